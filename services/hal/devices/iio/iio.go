// Package iio reads illuminance from a Linux Industrial I/O device through
// sysfs, e.g. /sys/bus/iio/devices/iio:device0.
package iio

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"alsd/errcode"
	"alsd/services/hal/internal/core"
	"alsd/x/strx"
)

func init() { core.RegisterSensor("iio", builder{}) }

const defaultDir = "/sys/bus/iio/devices/iio:device0"

type Params struct {
	Dir string `json:"dir"`
	// Scale multiplies raw readings when the device exposes no
	// in_illuminance_scale. Defaults to 1.
	Scale float64 `json:"scale"`
}

type builder struct{}

func (builder) BuildSensor(_ context.Context, in core.BuildInput) (core.Sensor, error) {
	var p Params
	if err := core.DecodeParams(in.Params, &p); err != nil {
		return nil, err
	}
	return Open(strx.Coalesce(p.Dir, defaultDir), p.Scale)
}

// Sensor prefers the processed in_illuminance_input attribute and falls back
// to (raw + offset) * scale.
type Sensor struct {
	dir   string
	input string // processed value, "" when absent
	raw   string
	scale float64
	off   float64
}

// Open probes dir for a usable illuminance channel.
func Open(dir string, scale float64) (*Sensor, error) {
	s := &Sensor{dir: dir, scale: scale, raw: filepath.Join(dir, "in_illuminance_raw")}
	if s.scale == 0 {
		s.scale = 1
	}
	if in := filepath.Join(dir, "in_illuminance_input"); exists(in) {
		s.input = in
		return s, nil
	}
	if !exists(s.raw) {
		return nil, &errcode.E{C: errcode.UnknownDevice, Op: "iio", Msg: "no illuminance channel in " + dir}
	}
	if v, err := readFloat(filepath.Join(dir, "in_illuminance_scale")); err == nil {
		s.scale = v
	}
	if v, err := readFloat(filepath.Join(dir, "in_illuminance_offset")); err == nil {
		s.off = v
	}
	return s, nil
}

func (s *Sensor) ReadSample(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.input != "" {
		v, err := readFloat(s.input)
		return v, errcode.Wrap(errcode.Unavailable, "iio", err)
	}
	v, err := readFloat(s.raw)
	if err != nil {
		return 0, errcode.Wrap(errcode.Unavailable, "iio", err)
	}
	return (v + s.off) * s.scale, nil
}

func (s *Sensor) Close() error { return nil }

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

func readFloat(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
}
