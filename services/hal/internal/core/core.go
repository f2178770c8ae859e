// Package core holds the device contracts and the builder registry shared by
// the HAL service and its device packages.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"alsd/bus"
	"alsd/errcode"
)

// Sensor yields ambient-light samples in lux.
type Sensor interface {
	ReadSample(ctx context.Context) (float64, error)
	Close() error
}

// Display accepts brightness as a fraction in [0,1].
type Display interface {
	SetBrightness(fraction float64) error
	Close() error
}

// BuildInput is passed to a device builder.
type BuildInput struct {
	ID     string
	Params any // raw config value, see DecodeParams
	Conn   *bus.Connection
	Log    *slog.Logger
}

type SensorBuilder interface {
	BuildSensor(ctx context.Context, in BuildInput) (Sensor, error)
}

type DisplayBuilder interface {
	BuildDisplay(ctx context.Context, in BuildInput) (Display, error)
}

var (
	regMu    sync.RWMutex
	sensors  = map[string]SensorBuilder{}
	displays = map[string]DisplayBuilder{}
)

func RegisterSensor(typ string, b SensorBuilder) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := sensors[typ]; exists {
		panic(fmt.Sprintf("duplicate sensor builder: %s", typ))
	}
	sensors[typ] = b
}

func RegisterDisplay(typ string, b DisplayBuilder) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := displays[typ]; exists {
		panic(fmt.Sprintf("duplicate display builder: %s", typ))
	}
	displays[typ] = b
}

func LookupSensor(typ string) (SensorBuilder, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	b, ok := sensors[typ]
	return b, ok
}

func LookupDisplay(typ string) (DisplayBuilder, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	b, ok := displays[typ]
	return b, ok
}

// Types lists the registered sensor and display types, sorted.
func Types() (sensorTypes, displayTypes []string) {
	regMu.RLock()
	defer regMu.RUnlock()
	for k := range sensors {
		sensorTypes = append(sensorTypes, k)
	}
	for k := range displays {
		displayTypes = append(displayTypes, k)
	}
	sort.Strings(sensorTypes)
	sort.Strings(displayTypes)
	return sensorTypes, displayTypes
}

// DecodeParams converts a config value (already decoded JSON, raw bytes or a
// string) into dst. A nil src leaves dst untouched so builders can pre-fill
// defaults.
func DecodeParams[T any](src any, dst *T) error {
	var err error
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		err = json.Unmarshal(v, dst)
	case string:
		err = json.Unmarshal([]byte(v), dst)
	case json.RawMessage:
		err = json.Unmarshal(v, dst)
	default:
		var b []byte
		if b, err = json.Marshal(v); err == nil {
			err = json.Unmarshal(b, dst)
		}
	}
	if err != nil {
		return errcode.Wrap(errcode.InvalidParams, "params", err)
	}
	return nil
}
