// Package bh1750 drives a BH1750 ambient-light sensor on a host I2C bus.
package bh1750

import (
	"context"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	drv "tinygo.org/x/drivers/bh1750"

	"alsd/errcode"
	"alsd/services/hal/internal/core"
)

func init() { core.RegisterSensor("bh1750", builder{}) }

type Params struct {
	Bus  string `json:"bus"`  // periph bus name, "" for the first bus
	Addr uint16 `json:"addr"` // defaults to 0x23
}

type builder struct{}

func (builder) BuildSensor(_ context.Context, in core.BuildInput) (core.Sensor, error) {
	p := Params{Addr: drv.Address}
	if err := core.DecodeParams(in.Params, &p); err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, errcode.Wrap(errcode.Unavailable, "bh1750.host", err)
	}
	bus, err := i2creg.Open(p.Bus)
	if err != nil {
		return nil, errcode.Wrap(errcode.UnknownDevice, "bh1750.bus", err)
	}
	s, err := New(bus, p.Addr)
	if err != nil {
		bus.Close()
		return nil, err
	}
	s.closer = bus
	return s, nil
}

// tx records the first bus error of a driver call; the driver itself
// discards them.
type tx struct {
	bus i2c.Bus
	err error
}

func (t *tx) Tx(addr uint16, w, r []byte) error {
	err := t.bus.Tx(addr, w, r)
	if err != nil && t.err == nil {
		t.err = err
	}
	return err
}

func (t *tx) take() error {
	err := t.err
	t.err = nil
	return err
}

type Sensor struct {
	mu     sync.Mutex
	tx     *tx
	dev    drv.Device
	closer interface{ Close() error }
}

// New powers the sensor on in continuous high resolution mode.
func New(bus i2c.Bus, addr uint16) (*Sensor, error) {
	t := &tx{bus: bus}
	s := &Sensor{tx: t, dev: drv.New(t)}
	s.dev.Address = addr
	s.dev.Configure()
	if err := t.take(); err != nil {
		return nil, errcode.Wrap(errcode.UnknownDevice, "bh1750.configure", err)
	}
	return s, nil
}

// ReadSample returns lux.
func (s *Sensor) ReadSample(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mlx := s.dev.Illuminance()
	if err := s.tx.take(); err != nil {
		return 0, errcode.Wrap(errcode.Unavailable, "bh1750.read", err)
	}
	return float64(mlx) / 1000, nil
}

func (s *Sensor) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
