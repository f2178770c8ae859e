package mathx

import "golang.org/x/exp/constraints"

// Map maps x in [inMin,inMax] to [outMin,outMax].
// Clamps to the out range if x is outside the input range.
func Map[T constraints.Float](x, inMin, inMax, outMin, outMax T) T {
	if inMax == inMin {
		return outMin
	}
	if x <= inMin {
		return outMin
	}
	if x >= inMax {
		return outMax
	}
	return outMin + (x-inMin)*(outMax-outMin)/(inMax-inMin)
}
