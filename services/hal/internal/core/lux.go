package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"alsd/errcode"
	"alsd/x/mathx"
)

// ParseLux accepts a reading as a bare number ("412.5"), a key=value pair
// ("lux=412.5", "lux: 412.5") or a JSON object with a "lux", "illuminance"
// or "value" field.
func ParseLux(b []byte) (float64, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return 0, errcode.InvalidPayload
	}
	if b[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(b, &obj); err != nil {
			return 0, errcode.Wrap(errcode.InvalidPayload, "lux", err)
		}
		for _, k := range []string{"lux", "illuminance", "value"} {
			if raw, ok := obj[k]; ok {
				var v float64
				if err := json.Unmarshal(raw, &v); err != nil {
					return 0, errcode.Wrap(errcode.InvalidPayload, "lux", err)
				}
				return finite(v)
			}
		}
		return 0, &errcode.E{C: errcode.InvalidPayload, Op: "lux", Msg: "no lux field"}
	}
	s := string(b)
	if i := strings.IndexAny(s, "=:"); i >= 0 {
		s = strings.TrimSpace(s[i+1:])
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s, "lx"), "lux"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errcode.Wrap(errcode.InvalidPayload, "lux", err)
	}
	return finite(v)
}

func finite(v float64) (float64, error) {
	if !mathx.Finite(v) {
		return 0, &errcode.E{C: errcode.InvalidPayload, Op: "lux", Msg: fmt.Sprint(v)}
	}
	return v, nil
}

// Latest keeps the most recent reading pushed by a streaming source. Get
// returns the same reading to every caller until a newer one is Set; readings
// older than MaxAge are reported as unavailable.
type Latest struct {
	MaxAge time.Duration
	Now    func() time.Time

	mu  sync.Mutex
	v   float64
	at  time.Time
	err error
}

func (l *Latest) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Set records a reading.
func (l *Latest) Set(v float64) {
	l.mu.Lock()
	l.v, l.at, l.err = v, l.now(), nil
	l.mu.Unlock()
}

// Fail records a source error; it is returned until the next Set.
func (l *Latest) Fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

// Get returns the reading if one is fresh.
func (l *Latest) Get() (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.err != nil:
		return 0, errcode.Wrap(errcode.Unavailable, "latest", l.err)
	case l.at.IsZero():
		return 0, errcode.Unavailable
	case l.MaxAge > 0 && l.now().Sub(l.at) > l.MaxAge:
		return 0, &errcode.E{C: errcode.Unavailable, Op: "latest", Msg: "stale reading"}
	}
	return l.v, nil
}
