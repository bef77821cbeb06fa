// Package lighting provides light definitions for 3D rendering.
package lighting

import "math"

// Lights is the scene's light rig: one ambient term and one directional light.
type Lights struct {
	Ambient   [3]float32 // RGB, 0-1
	Color     [3]float32 // Directional light RGB, 0-1
	Intensity float32
	Direction [3]float32 // Normalized, pointing from the scene towards the light
}

// NewLights builds a rig from hex colors and a light position. The light is
// directional: only the direction from the origin to position matters.
func NewLights(ambient, color uint32, intensity float32, position [3]float32) Lights {
	return Lights{
		Ambient:   HexColor(ambient),
		Color:     HexColor(color),
		Intensity: intensity,
		Direction: DirectionFrom(position),
	}
}

// HexColor converts 0xRRGGBB to normalized RGB.
func HexColor(hex uint32) [3]float32 {
	return [3]float32{
		float32((hex>>16)&0xff) / 255.0,
		float32((hex>>8)&0xff) / 255.0,
		float32(hex&0xff) / 255.0,
	}
}

// DirectionFrom returns the normalized direction from the origin to position.
// A zero position yields straight up.
func DirectionFrom(position [3]float32) [3]float32 {
	x, y, z := float64(position[0]), float64(position[1]), float64(position[2])
	length := math.Sqrt(x*x + y*y + z*z)
	if length < 1e-9 {
		return [3]float32{0, 1, 0}
	}
	return [3]float32{float32(x / length), float32(y / length), float32(z / length)}
}
