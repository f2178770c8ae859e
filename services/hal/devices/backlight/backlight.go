// Package backlight drives a Linux backlight class device
// (/sys/class/backlight/<name>) and reports brightness changes made by
// anything else, such as keyboard hotkeys or a desktop slider.
package backlight

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3/display"

	"alsd/bus"
	"alsd/errcode"
	"alsd/services/hal/internal/core"
	"alsd/types"
	"alsd/x/mathx"
	"alsd/x/strx"
	"alsd/x/timex"
)

func init() { core.RegisterDisplay("backlight", builder{}) }

const defaultRoot = "/sys/class/backlight"

// maxRecent bounds the writes remembered for echo suppression. actual_brightness
// can trail brightness by a few writes while a transition is stepping.
const maxRecent = 16

type Params struct {
	Name    string `json:"name"` // "" picks the first device
	Root    string `json:"root"`
	WatchMs int    `json:"watch_ms"` // <0 disables change reporting
}

type builder struct{}

func (builder) BuildDisplay(_ context.Context, in core.BuildInput) (core.Display, error) {
	p := Params{WatchMs: 250}
	if err := core.DecodeParams(in.Params, &p); err != nil {
		return nil, err
	}
	lg := in.Log
	if lg == nil {
		lg = slog.Default()
	}
	dir, err := Find(strx.Coalesce(p.Root, defaultRoot), p.Name)
	if err != nil {
		return nil, err
	}
	d, err := Open(dir, in.Conn, lg)
	if err != nil {
		return nil, err
	}
	if p.WatchMs >= 0 {
		d.Watch(timex.Ms(max(p.WatchMs, 20)))
	}
	return d, nil
}

// Find resolves the device directory under root.
func Find(root, name string) (string, error) {
	if name != "" {
		dir := filepath.Join(root, name)
		if _, err := os.Stat(filepath.Join(dir, "max_brightness")); err != nil {
			return "", errcode.Wrap(errcode.UnknownDevice, "backlight", err)
		}
		return dir, nil
	}
	matches, _ := filepath.Glob(filepath.Join(root, "*", "max_brightness"))
	if len(matches) == 0 {
		return "", &errcode.E{C: errcode.UnknownDevice, Op: "backlight", Msg: "no device under " + root}
	}
	return filepath.Dir(matches[0]), nil
}

// Display maps fractions onto the device's 0..max_brightness range.
type Display struct {
	dir  string
	max  int
	conn *bus.Connection
	log  *slog.Logger

	mu     sync.Mutex
	recent []int // raw values written and not yet observed, oldest first
	seen   int   // last raw value observed, -1 for none

	stop context.CancelFunc
	done chan struct{}
}

var _ display.DisplayBacklight = (*Display)(nil)

// Open reads max_brightness and announces the current level retained.
func Open(dir string, conn *bus.Connection, log *slog.Logger) (*Display, error) {
	mx, err := readInt(filepath.Join(dir, "max_brightness"))
	if err != nil {
		return nil, errcode.Wrap(errcode.UnknownDevice, "backlight", err)
	}
	if mx <= 0 {
		return nil, &errcode.E{C: errcode.UnknownDevice, Op: "backlight", Msg: "max_brightness is zero"}
	}
	d := &Display{dir: dir, max: mx, conn: conn, log: log.With("backlight", filepath.Base(dir)), seen: -1}
	d.Poll()
	return d, nil
}

// SetBrightness writes round(fraction*max).
func (d *Display) SetBrightness(fraction float64) error {
	if !mathx.Finite(fraction) {
		return errcode.InvalidParams
	}
	raw := int(math.Round(mathx.Map(fraction, 0, 1, 0, float64(d.max))))
	return d.Backlight(display.Intensity(raw))
}

// Backlight writes a raw device level, clamped to 0..max.
func (d *Display) Backlight(intensity display.Intensity) error {
	raw := mathx.Clamp(int(intensity), 0, d.max)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := os.WriteFile(filepath.Join(d.dir, "brightness"), []byte(strconv.Itoa(raw)), 0o644); err != nil {
		return errcode.Wrap(errcode.Unavailable, "backlight.write", err)
	}
	if len(d.recent) == maxRecent {
		d.recent = d.recent[1:]
	}
	d.recent = append(d.recent, raw)
	return nil
}

// Level reads the current fraction.
func (d *Display) Level() (float64, error) {
	raw, err := d.readActual()
	if err != nil {
		return 0, err
	}
	return float64(raw) / float64(d.max), nil
}

func (d *Display) readActual() (int, error) {
	raw, err := readInt(filepath.Join(d.dir, "actual_brightness"))
	if err != nil {
		raw, err = readInt(filepath.Join(d.dir, "brightness"))
	}
	return raw, err
}

// Poll compares the device level with the last known one and publishes a
// BrightnessChanged when something other than our own writes moved it.
//
// The read and the comparison happen under the write lock, so a level is
// always judged against every write that preceded it.
func (d *Display) Poll() {
	d.mu.Lock()
	raw, err := d.readActual()
	if err != nil {
		d.mu.Unlock()
		d.log.Debug("backlight read failed", "err", err)
		return
	}
	if i := slices.Index(d.recent, raw); i >= 0 {
		// Writes older than the one now visible can no longer show up.
		d.recent = d.recent[i+1:]
		d.seen = raw
		d.mu.Unlock()
		return
	}
	if raw == d.seen {
		d.mu.Unlock()
		return
	}
	d.seen = raw
	d.recent = d.recent[:0]
	d.mu.Unlock()

	f := float64(raw) / float64(d.max)
	d.log.Debug("external brightness change", "raw", raw, "fraction", f)
	if d.conn != nil {
		d.conn.Publish(d.conn.NewMessage(types.TopicBrightnessChanged,
			types.BrightnessChanged{Fraction: f, Source: "backlight", TS: timex.NowMs()}, true))
	}
}

// Watch polls every interval until Close.
func (d *Display) Watch(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	d.stop, d.done = cancel, make(chan struct{})
	go func() {
		defer close(d.done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				d.Poll()
			}
		}
	}()
}

func (d *Display) Close() error {
	if d.stop != nil {
		d.stop()
		<-d.done
		d.stop = nil
	}
	return nil
}

func (d *Display) String() string { return fmt.Sprintf("backlight(%s, max=%d)", d.dir, d.max) }

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(b)))
}
