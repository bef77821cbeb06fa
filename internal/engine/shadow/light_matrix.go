package shadow

import (
	"github.com/Faultbox/midgard-viewer/pkg/math"
)

// Frustum is the orthographic box a directional light renders depth into.
type Frustum struct {
	HalfExtent float32
	Near       float32
	Far        float32
}

// LightMatrix returns the view-projection of a directional light placed at
// position and aimed at target. Only the box in front of the light between
// Near and Far casts or receives shadows.
func LightMatrix(position, target [3]float32, f Frustum) math.Mat4 {
	eye := math.Vec3{X: position[0], Y: position[1], Z: position[2]}
	center := math.Vec3{X: target[0], Y: target[1], Z: target[2]}

	up := math.Vec3{Y: 1}
	// a vertical light needs another up axis
	if dir := eye.Sub(center).Normalize(); abs32(dir.Y) > 0.99 {
		up = math.Vec3{Z: 1}
	}

	view := math.LookAt(eye, center, up)
	h := f.HalfExtent
	proj := math.Ortho(-h, h, -h, h, f.Near, f.Far)
	return proj.Mul(view)
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
