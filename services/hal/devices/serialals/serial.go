// Package serialals reads line-oriented lux readings from a USB-serial light
// meter.
//
// ReadSample is sample-and-hold: every call returns the most recent line
// until it is older than MaxAgeMs. When the loop polls faster than the meter
// reports, the smoothing window holds repeats of one reading, so sensitivity
// counts polls rather than distinct readings.
package serialals

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"alsd/errcode"
	"alsd/services/hal/internal/core"
	"alsd/x/timex"
)

func init() { core.RegisterSensor("serial", builder{}) }

type Params struct {
	Port     string `json:"port"`
	Baud     int    `json:"baud"`
	MaxAgeMs int    `json:"max_age_ms"` // readings older than this are unavailable
}

type builder struct{}

func (builder) BuildSensor(_ context.Context, in core.BuildInput) (core.Sensor, error) {
	p := Params{Baud: 9600, MaxAgeMs: 2000}
	if err := core.DecodeParams(in.Params, &p); err != nil {
		return nil, err
	}
	if p.Port == "" || p.Baud <= 0 {
		return nil, errcode.InvalidParams
	}
	port, err := serial.Open(p.Port, &serial.Mode{BaudRate: p.Baud})
	if err != nil {
		return nil, errcode.Wrap(errcode.UnknownDevice, "serial", err)
	}
	lg := in.Log
	if lg == nil {
		lg = slog.Default()
	}
	return NewSensor(port, timex.Ms(p.MaxAgeMs), lg.With("port", p.Port)), nil
}

// Sensor consumes the stream in the background and serves the latest value.
type Sensor struct {
	rc     io.ReadCloser
	latest core.Latest
	log    *slog.Logger

	once sync.Once
	done chan struct{}
}

// NewSensor starts reading rc. Closing the sensor closes rc.
func NewSensor(rc io.ReadCloser, maxAge time.Duration, log *slog.Logger) *Sensor {
	s := &Sensor{rc: rc, log: log, done: make(chan struct{})}
	s.latest.MaxAge = maxAge
	go s.readLoop()
	return s
}

func (s *Sensor) readLoop() {
	defer close(s.done)
	sc := bufio.NewScanner(s.rc)
	for sc.Scan() {
		v, err := core.ParseLux(sc.Bytes())
		if err != nil {
			s.log.Debug("skipping line", "line", sc.Text(), "err", err)
			continue
		}
		s.latest.Set(v)
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	s.latest.Fail(err)
}

func (s *Sensor) ReadSample(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.latest.Get()
}

func (s *Sensor) Close() error {
	var err error
	s.once.Do(func() {
		err = s.rc.Close()
		<-s.done
	})
	return err
}
