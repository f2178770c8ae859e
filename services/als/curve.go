package als

import (
	"math"

	"alsd/types"
	"alsd/x/mathx"
)

// Target maps an averaged sample to a brightness percentage.
//
// The curve is a step function: the first breakpoint (ascending) whose
// threshold is >= sample wins, and the last breakpoint is the ceiling for
// samples above every threshold. An empty curve means types.DefaultCurve.
// A NaN sample yields fallback. Results are limited to [0,100].
//
// Curves with non-increasing thresholds or decreasing targets are not
// checked here; the mapping of such curves is undefined.
func Target(curve types.Curve, fallback, sample float64) float64 {
	if math.IsNaN(sample) {
		return fallback
	}
	if len(curve) == 0 {
		curve = types.DefaultCurve()
	}
	for _, bp := range curve {
		if sample <= bp.Threshold {
			return mathx.ClampPercent(bp.Target)
		}
	}
	return mathx.ClampPercent(curve[len(curve)-1].Target)
}
