package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/tailscale/hujson"

	"alsd/bus"
	"alsd/errcode"
	"alsd/types"
	"alsd/x/mathx"
)

// ValidateCurve accepts a non-empty curve with strictly ascending finite
// thresholds and targets in [0,100].
func ValidateCurve(c types.Curve) error {
	if len(c) == 0 {
		return &errcode.E{C: errcode.InvalidCurve, Op: "curve", Msg: "no breakpoints"}
	}
	for i, bp := range c {
		if !mathx.Finite(bp.Threshold) || !mathx.Finite(bp.Target) {
			return &errcode.E{C: errcode.InvalidCurve, Op: "curve", Msg: fmt.Sprintf("breakpoint %d is not finite", i)}
		}
		if !mathx.Between(bp.Target, 0, 100) {
			return &errcode.E{C: errcode.InvalidCurve, Op: "curve", Msg: fmt.Sprintf("breakpoint %d: target %v outside 0..100", i, bp.Target)}
		}
		if i > 0 && bp.Threshold <= c[i-1].Threshold {
			return &errcode.E{C: errcode.InvalidCurve, Op: "curve", Msg: fmt.Sprintf("breakpoint %d: threshold %v not above %v", i, bp.Threshold, c[i-1].Threshold)}
		}
	}
	return nil
}

// ParseCurve decodes a HuJSON list of [threshold, percent] pairs.
func ParseCurve(data []byte) (types.Curve, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidPayload, "curve", err)
	}
	var c types.Curve
	if err := json.Unmarshal(std, &c); err != nil {
		return nil, errcode.Wrap(errcode.InvalidPayload, "curve", err)
	}
	return c, nil
}

// LoadCurve reads the curve file. A missing or empty file yields the default
// curve.
func LoadCurve(path string) (types.Curve, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return types.DefaultCurve(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("curve: %w", err)
	}
	c, err := ParseCurve(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(c) == 0 {
		return types.DefaultCurve(), nil
	}
	return c, nil
}

// SaveCurve validates c and replaces the curve file.
func SaveCurve(path string, c types.Curve) error {
	if err := ValidateCurve(c); err != nil {
		return err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(b, '\n'))
}

// CurveStore holds the active curve, backed by a file, and republishes it
// retained on config/curve whenever it changes.
type CurveStore struct {
	path string
	conn *bus.Connection
	log  *slog.Logger

	mu    sync.RWMutex
	curve types.Curve
}

// NewCurveStore loads path. An unreadable file is logged and replaced by the
// default curve in memory; the file itself is left alone.
func NewCurveStore(path string, conn *bus.Connection, log *slog.Logger) *CurveStore {
	if log == nil {
		log = slog.Default()
	}
	s := &CurveStore{path: path, conn: conn, log: log.With("svc", "curve")}
	c, err := LoadCurve(path)
	if err != nil {
		s.log.Warn("curve file unusable, using default", "path", path, "err", err)
		c = types.DefaultCurve()
	}
	s.curve = c
	s.publish()
	return s
}

// Curve returns a copy of the active curve.
func (s *CurveStore) Curve(context.Context) (types.Curve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.curve.Clone(), nil
}

// Set validates and persists c, then makes it active.
func (s *CurveStore) Set(ctx context.Context, c types.Curve) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := SaveCurve(s.path, c); err != nil {
		return err
	}
	s.mu.Lock()
	s.curve = c.Clone()
	s.mu.Unlock()
	s.log.Info("curve saved", "path", s.path, "breakpoints", len(c))
	s.publish()
	return nil
}

// Reload re-reads the file, keeping the active curve on error.
func (s *CurveStore) Reload() error {
	c, err := LoadCurve(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.curve = c
	s.mu.Unlock()
	s.publish()
	return nil
}

func (s *CurveStore) publish() {
	if s.conn == nil {
		return
	}
	c, _ := s.Curve(context.Background())
	s.conn.Publish(s.conn.NewMessage(types.TopicConfigCurve, c, true))
}
