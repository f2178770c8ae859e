// Package monitor publishes the live sensor reading once per interval and
// logs a periodic heartbeat.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"alsd/bus"
	"alsd/errcode"
	"alsd/services/config"
	"alsd/types"
	"alsd/x/timex"
)

// Sampler reads the sensor outside the control loop.
type Sampler interface {
	LiveSample(ctx context.Context) (float64, error)
}

// StatusSource is optional; its state is included in heartbeat lines.
type StatusSource interface {
	Status() types.ALSStatus
}

type Service struct {
	Sampler   Sampler
	Status    StatusSource
	Interval  time.Duration // live sample period, default 1s
	Heartbeat time.Duration // 0 disables heartbeat lines
	Log       *slog.Logger
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	lg := s.Log
	if lg == nil {
		lg = slog.Default()
	}
	lg = lg.With("svc", "monitor")

	cfgSub := conn.Subscribe(types.TopicConfigMonitor)
	defer conn.Unsubscribe(cfgSub)

	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	live := time.NewTicker(interval)
	defer live.Stop()

	beat := time.NewTicker(time.Hour)
	beat.Stop()
	if s.Heartbeat > 0 {
		beat.Reset(s.Heartbeat)
	}
	defer beat.Stop()
	start := time.Now()

	s.publishLive(ctx, conn)
	for {
		select {
		case <-ctx.Done():
			lg.Info("monitor stopping")
			return
		case <-live.C:
			s.publishLive(ctx, conn)
		case <-beat.C:
			args := []any{"uptime", time.Since(start).Round(time.Second).String()}
			if s.Status != nil {
				st := s.Status.Status()
				args = append(args, "state", st.State, "current", st.Current, "target", st.Target)
			}
			lg.Info("heartbeat", args...)
		case msg := <-cfgSub.Channel():
			mc, ok := msg.Payload.(config.MonitorConfig)
			if !ok {
				lg.Warn("ignoring monitor config", "payload", msg.Payload)
				continue
			}
			if mc.IntervalS > 0 {
				live.Reset(time.Duration(mc.IntervalS) * time.Second)
			}
			if mc.HeartbeatS > 0 {
				beat.Reset(time.Duration(mc.HeartbeatS) * time.Second)
			} else {
				beat.Stop()
			}
			lg.Debug("monitor config applied", "interval_s", mc.IntervalS, "heartbeat_s", mc.HeartbeatS)
		}
	}
}

func (s *Service) publishLive(ctx context.Context, conn *bus.Connection) {
	ls := types.LiveSample{TS: timex.NowMs()}
	v, err := s.Sampler.LiveSample(ctx)
	if err != nil {
		ls.Error = err.Error()
	} else {
		ls.Value, ls.OK = v, true
	}
	conn.Publish(conn.NewMessage(types.TopicALSLive, ls, true))
}

// Start launches the monitor loop; it stops when ctx is cancelled.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if s.Sampler == nil {
		return &errcode.E{C: errcode.InvalidParams, Op: "monitor", Msg: "no sampler"}
	}
	go s.serviceLoop(ctx, conn)
	return nil
}
