package types

import (
	"encoding/json"
	"fmt"
)

// ---- Capability kinds ----

type Kind string

const (
	KindAmbientLight Kind = "ambient_light"
	KindBacklight    Kind = "backlight"
)

// Link is the link/state reported for a device.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

// DeviceStatus is published retained under hal/<kind>/<id>/status.
type DeviceStatus struct {
	Driver string `json:"driver"`
	Link   Link   `json:"link"`
	TS     int64  `json:"ts_ms"`
	Error  string `json:"error,omitempty"`
}

// ---- Brightness curve ----

// Breakpoint maps every sample at or below Threshold (and above the previous
// breakpoint) to Target percent.
//
// On the wire a breakpoint is a two element array [threshold, target], the
// same shape the curve editor writes. The object form
// {"threshold":..,"target":..} is accepted on input.
type Breakpoint struct {
	Threshold float64 `json:"threshold"`
	Target    float64 `json:"target"`
}

func (b Breakpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{b.Threshold, b.Target})
}

func (b *Breakpoint) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("breakpoint: want [threshold, target], got %d values", len(pair))
		}
		b.Threshold, b.Target = pair[0], pair[1]
		return nil
	}
	var obj struct {
		Threshold *float64 `json:"threshold"`
		Target    *float64 `json:"target"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("breakpoint: %w", err)
	}
	if obj.Threshold == nil || obj.Target == nil {
		return fmt.Errorf("breakpoint: threshold and target are required")
	}
	b.Threshold, b.Target = *obj.Threshold, *obj.Target
	return nil
}

// Curve is an ordered set of breakpoints, ascending by threshold.
type Curve []Breakpoint

// DefaultCurve is used whenever no curve is configured.
func DefaultCurve() Curve {
	return Curve{{Threshold: 0, Target: 10}, {Threshold: 1899, Target: 100}}
}

// Clone returns an independent copy.
func (c Curve) Clone() Curve {
	if c == nil {
		return nil
	}
	out := make(Curve, len(c))
	copy(out, c)
	return out
}

// ---- Bus payloads ----

// BrightnessChanged is published on display/brightness/changed whenever the
// display brightness changes for a reason other than our own writes.
type BrightnessChanged struct {
	Fraction float64 `json:"fraction"` // 0..1
	Source   string  `json:"source,omitempty"`
	TS       int64   `json:"ts_ms"`
}

// LiveSample is published retained on als/live.
type LiveSample struct {
	Value float64 `json:"value"`
	OK    bool    `json:"ok"`
	Error string  `json:"error,omitempty"`
	TS    int64   `json:"ts_ms"`
}

// ControlState names the control loop state.
type ControlState string

const (
	StateDisabled      ControlState = "disabled"
	StateWaiting       ControlState = "waiting"
	StateSampling      ControlState = "sampling"
	StateTransitioning ControlState = "transitioning"
)

// ALSStatus is published retained on als/state.
type ALSStatus struct {
	State          ControlState `json:"state"`
	Enabled        bool         `json:"enabled"`
	Current        float64      `json:"current_percent"`
	Target         float64      `json:"target_percent"`
	Average        float64      `json:"average"`
	PollIntervalMs int          `json:"poll_interval_ms"`
	TransitionMs   int          `json:"transition_ms"`
	Sensitivity    int          `json:"sensitivity"`
	WindowFill     int          `json:"window_fill"`
	Cycle          string       `json:"cycle,omitempty"`
	TS             int64        `json:"ts_ms"`
}

// ---- Generic replies ----

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
