// Package character implements the per-model locomotion state machine:
// clip selection with cross-fades, displacement along a heading, heading
// smoothing on a fixed-step accumulator and the idle/wander cycle.
package character

import (
	gomath "math"

	"github.com/Faultbox/midgard-viewer/internal/database"
	"github.com/Faultbox/midgard-viewer/internal/engine/animation"
	"github.com/Faultbox/midgard-viewer/pkg/math"
)

// Visual is the GPU-side representation of a character.
type Visual interface {
	Release()
}

// Stage is the set of shown, ticked characters.
type Stage interface {
	Add(c *Character)
	Remove(c *Character)
}

// Character is an animated model placed on the ground plane.
type Character struct {
	desc   database.Descriptor
	mixer  *animation.Mixer
	visual Visual

	roles  [roleCount]*animation.Action
	speeds SpeedTable

	active     *animation.Action
	activeRole Role

	heading         float64 // target, radians from +Z
	smoothedHeading float64

	x, y, z float64

	accumulated float64
	processed   float64
	steps       int

	destX, destZ   float64
	hasDestination bool

	// OnArrival runs once each time a destination is reached or abandoned.
	// It may call MoveTo to set a new one.
	OnArrival func(c *Character)

	stage    Stage
	token    uint64
	disposed bool
	released bool
}

// New creates a character for desc. Roles are resolved from the mixer's clips.
// visual may be nil.
func New(desc database.Descriptor, mixer *animation.Mixer, visual Visual) *Character {
	c := &Character{
		desc:       desc,
		mixer:      mixer,
		visual:     visual,
		speeds:     NewSpeedTable(desc),
		activeRole: RoleNone,
	}
	c.roles = ResolveRoles(mixer)
	return c
}

// Descriptor returns the model descriptor.
func (c *Character) Descriptor() database.Descriptor {
	return c.desc
}

// Name returns the model name.
func (c *Character) Name() string {
	return c.desc.Name
}

// Mixer returns the clip mixer.
func (c *Character) Mixer() *animation.Mixer {
	return c.mixer
}

// Visual returns the GPU resources, or nil.
func (c *Character) Visual() Visual {
	return c.visual
}

// Position returns the planar position.
func (c *Character) Position() (x, z float64) {
	return c.x, c.z
}

// SetPosition places the character on the ground plane.
func (c *Character) SetPosition(x, z float64) {
	c.x, c.z = x, z
}

// Heading returns the target heading in radians.
func (c *Character) Heading() float64 {
	return c.heading
}

// SmoothedHeading returns the displayed heading in radians.
func (c *Character) SmoothedHeading() float64 {
	return c.smoothedHeading
}

// Destination returns the current destination, if any.
func (c *Character) Destination() (x, z float64, ok bool) {
	return c.destX, c.destZ, c.hasDestination
}

// HasDestination reports whether the character is walking somewhere.
func (c *Character) HasDestination() bool {
	return c.hasDestination
}

// ActiveRole returns the role of the playing clip, or RoleNone.
func (c *Character) ActiveRole() Role {
	return c.activeRole
}

// ActiveAction returns the playing action, or nil.
func (c *Character) ActiveAction() *animation.Action {
	return c.active
}

// Steps returns how many fixed simulation steps have run.
func (c *Character) Steps() int {
	return c.steps
}

// Token changes whenever the character leaves the stage or is disposed.
func (c *Character) Token() uint64 {
	return c.token
}

// Attached reports whether the character is on a stage.
func (c *Character) Attached() bool {
	return c.stage != nil
}

// Disposed reports whether Dispose has been called.
func (c *Character) Disposed() bool {
	return c.disposed
}

// Transform returns the model matrix: translation then rotation about +Y.
func (c *Character) Transform() math.Mat4 {
	t := math.Translate(float32(c.x), float32(c.y), float32(c.z))
	return t.Mul(math.RotateY(float32(c.smoothedHeading)))
}

// distanceTo returns the planar distance to (x, z).
func (c *Character) distanceTo(x, z float64) float64 {
	return gomath.Hypot(x-c.x, z-c.z)
}
