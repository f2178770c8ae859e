// Command alsd adjusts display brightness from an ambient-light sensor.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"alsd/bus"
	"alsd/services/als"
	"alsd/services/api"
	"alsd/services/config"
	"alsd/services/hal"
	"alsd/services/monitor"
	"alsd/x/strx"
	"alsd/x/timex"
)

func main() {
	var (
		cfgPath   = flag.String("config", "/etc/alsd/alsd.json", "config file (HuJSON)")
		curvePath = flag.String("curve", "", "brightness map file, overrides curve_path")
		listen    = flag.String("listen", "", "HTTP listen address, overrides api.listen")
		logLevel  = flag.String("log-level", "info", "debug, info, warn or error")
		traceBus  = flag.Bool("trace-bus", false, "log every bus message at debug level")
	)
	flag.Parse()

	log := newLogger(*logLevel)
	slog.SetDefault(log)

	if err := run(log, *cfgPath, *curvePath, *listen, *traceBus); err != nil {
		log.Error("alsd failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func run(log *slog.Logger, cfgPath, curvePath, listen string, traceBus bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log.Info("config loaded", "path", cfgPath, "enabled", cfg.Enabled, "sensor", cfg.HAL.Sensor.Type, "display", cfg.HAL.Display.Type)

	log.Debug("bootstrapping bus")
	b := bus.NewBus(16)
	if traceBus {
		mon := b.NewConnection("trace").Subscribe(bus.T(bus.MultiLevel))
		go func() {
			for m := range mon.Channel() {
				log.Debug("bus", "topic", m.Topic.String(), "retained", m.Retained, "payload", m.Payload)
			}
		}()
	}

	cfgSvc := config.NewService(cfgPath, cfg, log)
	if err := cfgSvc.Start(ctx, b.NewConnection("config")); err != nil {
		return err
	}
	curves := config.NewCurveStore(strx.Coalesce(curvePath, cfg.CurvePath), b.NewConnection("curve"), log)

	devs, err := hal.Open(ctx, cfg.HAL, b.NewConnection("hal"), log)
	if err != nil {
		return err
	}
	defer devs.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctrl, err := als.New(als.Options{
		Sensor:   devs.Sensor(),
		Display:  devs.Display(),
		Curve:    curves,
		Conn:     b.NewConnection("als"),
		Logger:   log,
		Metrics:  als.NewMetrics(reg),
		Settings: cfg.ALS.Loop(),
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()
	if cfg.Enabled {
		if err := ctrl.Enable(); err != nil {
			return err
		}
	}

	mon := &monitor.Service{
		Sampler:   ctrl,
		Status:    ctrl,
		Interval:  time.Duration(cfg.Monitor.IntervalS) * time.Second,
		Heartbeat: time.Duration(cfg.Monitor.HeartbeatS) * time.Second,
		Log:       log,
	}
	if err := mon.Start(ctx, b.NewConnection("monitor")); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              strx.Coalesce(listen, cfg.API.Listen),
		Handler:           (&api.Server{Ctrl: ctrl, Settings: cfgSvc, Curves: curves, Gatherer: reg, Log: log}).Handler(),
		ReadHeaderTimeout: timex.Ms(5000),
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		case err := <-errc:
			return err
		case <-hup:
			if err := curves.Reload(); err != nil {
				log.Warn("curve reload failed", "err", err)
			} else {
				log.Info("curve reloaded")
			}
		}
	}
}
