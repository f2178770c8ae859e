package als

import (
	"math"
	"testing"

	"alsd/types"
)

func TestTargetDefaultCurve(t *testing.T) {
	cases := []struct {
		sample float64
		want   float64
	}{
		{0, 10},
		{-5, 10},
		{1, 100},
		{1899, 100},
		{3000, 100},
	}
	for _, tc := range cases {
		if got := Target(types.DefaultCurve(), 50, tc.sample); got != tc.want {
			t.Errorf("Target(default, %v) = %v, want %v", tc.sample, got, tc.want)
		}
	}
}

func TestTargetEmptyCurveUsesDefault(t *testing.T) {
	if got := Target(nil, 50, 0); got != 10 {
		t.Fatalf("got %v, want 10", got)
	}
}

func TestTargetNaNKeepsFallback(t *testing.T) {
	if got := Target(types.DefaultCurve(), 42, math.NaN()); got != 42 {
		t.Fatalf("got %v, want 42", got)
	}
}

func TestTargetClampsToPercent(t *testing.T) {
	c := types.Curve{{Threshold: 10, Target: -20}, {Threshold: 20, Target: 150}}
	if got := Target(c, 50, 5); got != 0 {
		t.Errorf("low: got %v", got)
	}
	if got := Target(c, 50, 500); got != 100 {
		t.Errorf("high: got %v", got)
	}
}

func TestTargetIsMonotonic(t *testing.T) {
	c := types.Curve{{Threshold: 0, Target: 5}, {Threshold: 50, Target: 20}, {Threshold: 200, Target: 45}, {Threshold: 800, Target: 70}, {Threshold: 1500, Target: 100}}
	prev := -1.0
	for s := -10.0; s <= 2000; s += 7.5 {
		got := Target(c, 50, s)
		if got < prev {
			t.Fatalf("Target(%v) = %v < previous %v", s, got, prev)
		}
		if got < 0 || got > 100 {
			t.Fatalf("Target(%v) = %v out of range", s, got)
		}
		prev = got
	}
}
