package character

import (
	"github.com/Faultbox/midgard-viewer/internal/logger"
	"go.uber.org/zap"
)

// CrossFadeTime is the clip transition duration in seconds.
const CrossFadeTime = 0.2

// HasRole reports whether a clip was resolved for r.
func (c *Character) HasRole(r Role) bool {
	return r >= 0 && r < roleCount && c.roles[r] != nil
}

// Play switches to the clip for role, cross-fading from the current one.
// Unknown roles and roles without a clip are logged and ignored.
func (c *Character) Play(role Role) {
	if c.disposed {
		return
	}
	if !c.HasRole(role) {
		logger.Warn("animation not found",
			zap.String("model", c.desc.Name),
			zap.Stringer("role", role))
		return
	}

	next := c.roles[role]
	if next == c.active {
		c.activeRole = role
		return
	}

	if c.active != nil {
		c.active.FadeOut(CrossFadeTime)
		next.Reset().FadeIn(CrossFadeTime).Play()
	} else {
		next.Reset().Play()
	}

	c.active = next
	c.activeRole = role
}
