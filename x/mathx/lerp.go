package mathx

import "golang.org/x/exp/constraints"

// Lerp returns a + (b-a)*t. t is not clamped.
func Lerp[T constraints.Float](a, b, t T) T {
	return a + (b-a)*t
}

// LerpClamped interpolates with t limited to [0,1]. The ends are returned
// exactly and intermediate results never leave [min(a,b), max(a,b)].
func LerpClamped[T constraints.Float](a, b, t T) T {
	switch {
	case t <= 0:
		return a
	case t >= 1:
		return b
	}
	return Clamp(Lerp(a, b, t), a, b)
}
