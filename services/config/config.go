package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"alsd/errcode"
	"alsd/services/als"
	"alsd/types"
	"alsd/x/timex"
)

// Recognised ranges for the loop settings.
const (
	PollMinMs, PollMaxMs, PollStepMs              = 100, 500, 50
	TransitionMinMs, TransitionMaxMs, TransStepMs = 100, 1000, 50
	SensitivityMin, SensitivityMax, SensStep      = 25, 100, 25
)

// Settings are the user-tunable loop parameters as persisted.
type Settings struct {
	PollIntervalMs int `json:"poll_interval_ms"`
	TransitionMs   int `json:"transition_ms"`
	Sensitivity    int `json:"sensitivity"`
}

// Loop converts to the controller's settings.
func (s Settings) Loop() als.Settings {
	return als.Settings{
		PollInterval:       timex.Ms(s.PollIntervalMs),
		TransitionDuration: timex.Ms(s.TransitionMs),
		Sensitivity:        s.Sensitivity,
	}
}

// Validate checks every field against its range and step.
func (s Settings) Validate() error {
	var errs []error
	if err := inRange("poll_interval_ms", s.PollIntervalMs, PollMinMs, PollMaxMs, PollStepMs); err != nil {
		errs = append(errs, err)
	}
	if err := inRange("transition_ms", s.TransitionMs, TransitionMinMs, TransitionMaxMs, TransStepMs); err != nil {
		errs = append(errs, err)
	}
	if err := inRange("sensitivity", s.Sensitivity, SensitivityMin, SensitivityMax, SensStep); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &errcode.E{C: errcode.InvalidParams, Op: "settings", Err: errors.Join(errs...)}
	}
	return nil
}

func inRange(name string, v, lo, hi, step int) error {
	if v < lo || v > hi || (v-lo)%step != 0 {
		return fmt.Errorf("%s=%d: want %d..%d in steps of %d", name, v, lo, hi, step)
	}
	return nil
}

type APIConfig struct {
	Listen string `json:"listen"`
}

type MonitorConfig struct {
	IntervalS  int `json:"interval_s"`  // live sample period
	HeartbeatS int `json:"heartbeat_s"` // heartbeat log period, 0 disables
}

// Config is the daemon configuration file.
type Config struct {
	Enabled   bool            `json:"enabled"`
	ALS       Settings        `json:"als"`
	CurvePath string          `json:"curve_path"`
	HAL       types.HALConfig `json:"hal"`
	API       APIConfig       `json:"api"`
	Monitor   MonitorConfig   `json:"monitor"`
}

// Validate checks the settings and the required device entries.
func (c Config) Validate() error {
	if err := c.ALS.Validate(); err != nil {
		return err
	}
	if c.HAL.Sensor.Type == "" || c.HAL.Display.Type == "" {
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "hal.sensor.type and hal.display.type are required"}
	}
	if c.Monitor.IntervalS < 0 || c.Monitor.HeartbeatS < 0 {
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "monitor periods must not be negative"}
	}
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	c, err := decode(Config{}, []byte(defaultConfig))
	if err != nil {
		panic("config: bad built-in default: " + err.Error())
	}
	return c
}

// Parse decodes a HuJSON document over the defaults and validates it.
func Parse(data []byte) (Config, error) {
	c, err := decode(Default(), data)
	if err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func decode(base Config, data []byte) (Config, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, errcode.Wrap(errcode.InvalidPayload, "config", err)
	}
	dec := json.NewDecoder(bytes.NewReader(std))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&base); err != nil {
		return Config{}, errcode.Wrap(errcode.InvalidPayload, "config", err)
	}
	return base, nil
}

// Load reads path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Write validates c and stores it at path as indented JSON.
func Write(path string, c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(b, '\n'))
}

// writeFileAtomic replaces path via a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
