package character

import (
	gomath "math"

	"github.com/Faultbox/midgard-viewer/pkg/math"
)

// TurnRate is the maximum heading change in radians per second.
const TurnRate = math.TwoPi

// HeadingTo returns the heading from (fromX, fromZ) to (toX, toZ),
// measured from +Z towards +X.
func HeadingTo(fromX, fromZ, toX, toZ float64) float64 {
	return gomath.Atan2(toX-fromX, toZ-fromZ)
}

// smoothHeading moves current towards target by at most TurnRate*step,
// taking the short way round. Within range it snaps to target exactly.
func smoothHeading(current, target, step float64) float64 {
	diff := math.AngleDelta(math.NormalizeAngle(current), math.NormalizeAngle(target))
	limit := TurnRate * step
	if gomath.Abs(diff) > limit {
		sign := 1.0
		if diff < 0 {
			sign = -1
		}
		return math.NormalizeAngle(math.NormalizeAngle(current) + sign*limit)
	}
	return target
}

// forward returns the unit vector (0, 0, 1) rotated about +Y by heading.
func forward(heading float64) (x, z float64) {
	return gomath.Sin(heading), gomath.Cos(heading)
}
