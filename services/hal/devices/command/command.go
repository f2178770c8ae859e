// Package command drives the display through an external program, for
// panels only reachable via tools such as brightnessctl or ddcutil.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"alsd/errcode"
	"alsd/services/hal/internal/core"
	"alsd/x/mathx"
	"alsd/x/timex"
)

func init() { core.RegisterDisplay("command", builder{}) }

// Params.Set is a command template. Placeholders:
//
//	{percent}   integer percent 0..100
//	{fraction}  fraction with three decimals
//	{raw}       round(fraction*Max)
type Params struct {
	Set       string `json:"set"`
	Max       int    `json:"max"`
	TimeoutMs int    `json:"timeout_ms"`
}

type builder struct{}

func (builder) BuildDisplay(_ context.Context, in core.BuildInput) (core.Display, error) {
	p := Params{Max: 255, TimeoutMs: 2000}
	if err := core.DecodeParams(in.Params, &p); err != nil {
		return nil, err
	}
	lg := in.Log
	if lg == nil {
		lg = slog.Default()
	}
	return New(p, lg)
}

type Display struct {
	argv    []string
	max     int
	timeout time.Duration
	log     *slog.Logger
}

// New parses the template once; it fails on an empty or unbalanced one.
func New(p Params, log *slog.Logger) (*Display, error) {
	argv, err := shlex.Split(p.Set)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidParams, "command", err)
	}
	if len(argv) == 0 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "command", Msg: "empty set command"}
	}
	if p.Max <= 0 {
		p.Max = 255
	}
	return &Display{argv: argv, max: p.Max, timeout: timex.Ms(p.TimeoutMs), log: log}, nil
}

// Args expands the template for a fraction.
func (d *Display) Args(fraction float64) []string {
	f := mathx.Clamp(fraction, 0, 1)
	r := strings.NewReplacer(
		"{percent}", strconv.Itoa(int(math.Round(f*100))),
		"{fraction}", strconv.FormatFloat(f, 'f', 3, 64),
		"{raw}", strconv.Itoa(int(math.Round(f*float64(d.max)))),
	)
	out := make([]string, len(d.argv))
	for i, a := range d.argv {
		out[i] = r.Replace(a)
	}
	return out
}

func (d *Display) SetBrightness(fraction float64) error {
	if !mathx.Finite(fraction) {
		return errcode.InvalidParams
	}
	args := d.Args(fraction)
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return errcode.Timeout
		}
		return &errcode.E{C: errcode.Unavailable, Op: "command", Msg: fmt.Sprintf("%s: %s", args[0], strings.TrimSpace(string(out))), Err: err}
	}
	d.log.Debug("brightness command", "args", args)
	return nil
}

func (d *Display) Close() error { return nil }
