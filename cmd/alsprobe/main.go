// Command alsprobe reads the configured sensor a few times and optionally
// writes one brightness level, to check wiring before starting alsd.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"alsd/services/als"
	"alsd/services/config"
	"alsd/services/hal"
)

func main() {
	var (
		cfgPath  = flag.String("config", "/etc/alsd/alsd.json", "config file (HuJSON)")
		samples  = flag.Int("n", 5, "number of samples")
		interval = flag.Duration("interval", 200*time.Millisecond, "delay between samples")
		set      = flag.Float64("set", -1, "write this brightness fraction (0..1) after sampling")
		list     = flag.Bool("list", false, "list device types and exit")
	)
	flag.Parse()

	if *list {
		s, d := hal.Types()
		fmt.Println("sensors: ", strings.Join(s, ", "))
		fmt.Println("displays:", strings.Join(d, ", "))
		return
	}
	if err := probe(*cfgPath, *samples, *interval, *set); err != nil {
		fmt.Fprintln(os.Stderr, "alsprobe:", err)
		os.Exit(1)
	}
}

func probe(cfgPath string, n int, interval time.Duration, set float64) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx := context.Background()
	devs, err := hal.Open(ctx, cfg.HAL, nil, log)
	if err != nil {
		return err
	}
	defer devs.Close()

	curve, err := config.LoadCurve(cfg.CurvePath)
	if err != nil {
		fmt.Println("curve:", err, "(using default)")
		curve = nil
	}

	var vals []float64
	for i := 0; i < n; i++ {
		if i > 0 {
			time.Sleep(interval)
		}
		v, err := devs.Sensor().ReadSample(ctx)
		if err != nil {
			fmt.Printf("%2d  error: %v\n", i+1, err)
			continue
		}
		vals = append(vals, v)
		fmt.Printf("%2d  %9.2f lx  -> %5.1f%%\n", i+1, v, als.Target(curve, 0, v))
	}
	if len(vals) > 0 {
		mean, sd := stat.MeanStdDev(vals, nil)
		fmt.Printf("ok %d/%d  mean %.2f lx  sd %.2f  target %.1f%%\n", len(vals), n, mean, sd, als.Target(curve, 0, mean))
	}

	if set >= 0 {
		if err := devs.Display().SetBrightness(set); err != nil {
			return fmt.Errorf("set brightness: %w", err)
		}
		fmt.Printf("display set to %.3f\n", set)
	}
	return nil
}
