// Package sim provides host-only stand-ins: a sensor that drifts through a
// day-like cycle and a display that remembers the last level.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"alsd/errcode"
	"alsd/services/hal/internal/core"
	"alsd/types"
	"alsd/x/mathx"
	"alsd/x/timex"
)

func init() {
	core.RegisterSensor("sim", sensorBuilder{})
	core.RegisterDisplay("sim", displayBuilder{})
}

// SensorParams shape the simulated light level:
// base + amplitude*sin(2πt/period), never below zero.
type SensorParams struct {
	Base      float64  `json:"base"`
	Amplitude float64  `json:"amplitude"`
	PeriodS   float64  `json:"period_s"`
	Fixed     *float64 `json:"fixed,omitempty"` // constant reading, overrides the wave
	FailEvery int      `json:"fail_every"`      // every Nth read fails, 0 never
}

type sensorBuilder struct{}

func (sensorBuilder) BuildSensor(_ context.Context, in core.BuildInput) (core.Sensor, error) {
	p := SensorParams{Base: 400, Amplitude: 300, PeriodS: 60}
	if err := core.DecodeParams(in.Params, &p); err != nil {
		return nil, err
	}
	if p.PeriodS <= 0 {
		return nil, errcode.InvalidParams
	}
	return NewSensor(p, time.Now), nil
}

type Sensor struct {
	p     SensorParams
	now   func() time.Time
	start time.Time

	mu    sync.Mutex
	reads int
}

func NewSensor(p SensorParams, now func() time.Time) *Sensor {
	return &Sensor{p: p, now: now, start: now()}
}

func (s *Sensor) ReadSample(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.reads++
	n := s.reads
	s.mu.Unlock()
	if s.p.FailEvery > 0 && n%s.p.FailEvery == 0 {
		return 0, errcode.Unavailable
	}
	if s.p.Fixed != nil {
		return *s.p.Fixed, nil
	}
	t := s.now().Sub(s.start).Seconds()
	v := s.p.Base + s.p.Amplitude*math.Sin(2*math.Pi*t/s.p.PeriodS)
	return math.Max(v, 0), nil
}

func (s *Sensor) Close() error { return nil }

// DisplayParams configure the simulated panel.
type DisplayParams struct {
	Initial float64 `json:"initial"` // fraction
}

type displayBuilder struct{}

func (displayBuilder) BuildDisplay(_ context.Context, in core.BuildInput) (core.Display, error) {
	p := DisplayParams{Initial: 0.5}
	if err := core.DecodeParams(in.Params, &p); err != nil {
		return nil, err
	}
	d := &Display{level: mathx.Clamp(p.Initial, 0, 1)}
	if in.Conn != nil {
		d.announce = func(f float64) {
			in.Conn.Publish(in.Conn.NewMessage(types.TopicBrightnessChanged,
				types.BrightnessChanged{Fraction: f, Source: "sim", TS: timex.NowMs()}, true))
		}
		d.announce(d.level)
	}
	return d, nil
}

// Display keeps the last written level. Nudge simulates a change made by
// something other than alsd.
type Display struct {
	mu       sync.Mutex
	level    float64
	writes   int
	announce func(float64)
}

func (d *Display) SetBrightness(f float64) error {
	if !mathx.Finite(f) {
		return errcode.InvalidParams
	}
	d.mu.Lock()
	d.level = mathx.Clamp(f, 0, 1)
	d.writes++
	d.mu.Unlock()
	return nil
}

func (d *Display) Nudge(f float64) {
	d.mu.Lock()
	d.level = mathx.Clamp(f, 0, 1)
	lvl := d.level
	d.mu.Unlock()
	if d.announce != nil {
		d.announce(lvl)
	}
}

func (d *Display) Level() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

func (d *Display) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

func (d *Display) Close() error { return nil }
