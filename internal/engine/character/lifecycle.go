package character

// Attach adds the character to stage. Attaching to the stage it is already
// on does nothing; attaching elsewhere moves it.
func (c *Character) Attach(stage Stage) {
	if c.disposed || stage == nil || c.stage == stage {
		return
	}
	if c.stage != nil {
		c.Detach()
	}
	c.stage = stage
	stage.Add(c)
}

// Detach removes the character from its stage and invalidates pending
// wander timers. Safe to call when not attached.
func (c *Character) Detach() {
	c.token++
	if c.stage == nil {
		return
	}
	s := c.stage
	c.stage = nil
	s.Remove(c)
}

// Dispose stops all clips, detaches and releases the visual. Repeated calls
// are no-ops.
func (c *Character) Dispose() {
	if c.disposed {
		return
	}
	c.Detach()
	c.disposed = true
	c.OnArrival = nil
	c.hasDestination = false

	if c.mixer != nil {
		c.mixer.StopAll()
	}
	c.active = nil
	c.activeRole = RoleNone

	if c.visual != nil && !c.released {
		c.visual.Release()
		c.released = true
	}
}
