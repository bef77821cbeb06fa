// Package math provides the vector, matrix and angle helpers used by the viewer.
package math

import "math"

// TwoPi is a full turn in radians.
const TwoPi = 2 * math.Pi

// NormalizeAngle maps any finite angle into [0, 2π).
func NormalizeAngle(angle float64) float64 {
	a := math.Mod(angle, TwoPi)
	if a < 0 {
		a += TwoPi
	}
	// a tiny negative remainder plus 2π rounds up to exactly 2π
	if a >= TwoPi {
		a = 0
	}
	return a
}

// AngleDelta returns the shortest signed rotation from one angle to another,
// in (-π, π].
func AngleDelta(from, to float64) float64 {
	diff := NormalizeAngle(to) - NormalizeAngle(from)
	if diff > math.Pi {
		diff -= TwoPi
	} else if diff <= -math.Pi {
		diff += TwoPi
	}
	return diff
}
