package character

// FixedStep is the simulation step in seconds. Movement, turning and arrival
// checks run at this rate regardless of frame rate.
const FixedStep = 1.0 / 60.0

// ArrivalThreshold is the planar distance at which a destination counts as reached.
const ArrivalThreshold = 0.1

// speedScale converts descriptor speeds into world units per second.
const speedScale = 100.0

// MoveTo sets a destination, turns the target heading towards it and plays role.
func (c *Character) MoveTo(role Role, x, z float64) {
	if c.disposed {
		return
	}
	c.destX, c.destZ = x, z
	c.hasDestination = true
	c.heading = HeadingTo(c.x, c.z, x, z)
	c.Play(role)
}

// ClearDestination drops the destination without firing OnArrival.
func (c *Character) ClearDestination() {
	c.hasDestination = false
}

// Advance feeds dt seconds of frame time into the mixer and the fixed-step
// simulation. Any number of steps may run, including none.
func (c *Character) Advance(dt float64) {
	if c.disposed {
		return
	}
	if c.mixer != nil {
		c.mixer.Update(dt)
	}

	c.accumulated += dt
	for c.accumulated-c.processed >= 0 {
		c.processed += FixedStep
		c.step(FixedStep)
		if c.disposed {
			return
		}
	}
}

func (c *Character) step(dt float64) {
	c.steps++
	speed := c.speeds.Speed(c.activeRole)

	// Displacement follows the target heading, not the smoothed one.
	if m := speed / speedScale * dt; m > 0 {
		dx, dz := forward(c.heading)
		c.x += dx * m
		c.z += dz * m
	}

	if c.smoothedHeading != c.heading {
		c.smoothedHeading = smoothHeading(c.smoothedHeading, c.heading, dt)
	}

	if c.hasDestination {
		if speed == 0 || c.distanceTo(c.destX, c.destZ) < ArrivalThreshold {
			c.hasDestination = false
			if c.OnArrival != nil {
				c.OnArrival(c)
			}
		}
	}
}
