// Package camera provides camera implementations for 3D rendering.
package camera

import (
	gomath "math"

	"github.com/Faultbox/midgard-viewer/pkg/math"
)

// Camera is a fixed perspective camera looking at a target point.
type Camera struct {
	Position math.Vec3
	Target   math.Vec3
	Up       math.Vec3

	FOV    float32 // Vertical field of view in degrees
	Near   float32
	Far    float32
	Aspect float32
}

// New creates a camera at position looking at target with a +Y up vector.
func New(position, target math.Vec3, fov, near, far float32) *Camera {
	return &Camera{
		Position: position,
		Target:   target,
		Up:       math.Vec3{X: 0, Y: 1, Z: 0},
		FOV:      fov,
		Near:     near,
		Far:      far,
		Aspect:   1,
	}
}

// SetAspect updates the aspect ratio from a viewport size. Zero-height
// viewports (minimized windows) are ignored.
func (c *Camera) SetAspect(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	c.Aspect = float32(width) / float32(height)
}

// ViewMatrix returns the view matrix for this camera.
func (c *Camera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.Position, c.Target, c.Up)
}

// ProjectionMatrix returns the perspective projection matrix.
func (c *Camera) ProjectionMatrix() math.Mat4 {
	fovRad := float32(float64(c.FOV) * gomath.Pi / 180.0)
	return math.Perspective(fovRad, c.Aspect, c.Near, c.Far)
}

// ViewProjection returns projection * view.
func (c *Camera) ViewProjection() math.Mat4 {
	return c.ProjectionMatrix().Mul(c.ViewMatrix())
}
