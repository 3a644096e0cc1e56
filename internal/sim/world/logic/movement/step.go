package movement

import "math"

// arriveEpsilon absorbs float error accumulated over straight-line steps.
const arriveEpsilon = 1e-9

type Vec struct {
	X float64
	Y float64
}

func Distance(a, b Vec) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Step advances pos toward target by at most speed along the straight line.
// When the target is within reach it returns the target itself and arrived=true,
// so arrival lands on the exact coordinates without float drift.
func Step(pos, target Vec, speed float64) (next Vec, arrived bool) {
	d := Distance(pos, target)
	if d <= speed+arriveEpsilon {
		return target, true
	}
	k := speed / d
	return Vec{X: pos.X + (target.X-pos.X)*k, Y: pos.Y + (target.Y-pos.Y)*k}, false
}

// Clamp keeps v inside [0,width]×[0,height].
func Clamp(v Vec, width, height float64) Vec {
	return Vec{X: clamp(v.X, 0, width), Y: clamp(v.Y, 0, height)}
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}
