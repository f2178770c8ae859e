package ramp

import (
	"context"
	"time"

	"alsd/x/mathx"
)

// StepCount is the number of discrete steps of a brightness transition,
// regardless of its duration.
const StepCount = 10

// Step applies a new level in percent [0..100].
type Step func(level float64)

// Tick waits for d and reports whether to continue (false => cancelled).
type Tick func(d time.Duration) bool

// StepDelay is the wait before each of steps steps so that the whole ramp
// takes approximately duration. Never less than 1ms.
func StepDelay(duration time.Duration, steps int) time.Duration {
	if steps <= 0 {
		return 0
	}
	d := duration / time.Duration(steps)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

// Linear runs a synchronous (caller-driven) ramp from 'from' to 'to'.
// Each of the steps steps first waits StepDelay via tick, then calls set
// with the next level. Intermediate levels stay within both [0,100] and
// [min(from,to), max(from,to)]; the last step sets 'to' exactly.
//
// It returns the last level passed to set (from if none) and whether the
// ramp completed. steps<=0 or duration<=0 snaps to 'to' without waiting.
func Linear(from, to float64, duration time.Duration, steps int, tick Tick, set Step) (last float64, completed bool) {
	to = mathx.ClampPercent(to)
	if steps <= 0 || duration <= 0 {
		set(to)
		return to, true
	}
	last = from
	delay := StepDelay(duration, steps)
	for i := 1; i <= steps; i++ {
		if !tick(delay) {
			return last, false
		}
		if i == steps {
			last = to
		} else {
			last = mathx.ClampPercent(mathx.LerpClamped(from, to, float64(i)/float64(steps)))
		}
		set(last)
	}
	return last, true
}

// ContextTick returns a Tick that sleeps unless ctx is done, checking ctx
// both before and after the wait.
func ContextTick(ctx context.Context) Tick {
	return func(d time.Duration) bool {
		if ctx.Err() != nil {
			return false
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return ctx.Err() == nil
		}
	}
}
