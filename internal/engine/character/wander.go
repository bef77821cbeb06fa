package character

import (
	"math/rand/v2"
	"time"

	"github.com/Faultbox/midgard-viewer/internal/engine/timer"
	"github.com/Faultbox/midgard-viewer/internal/logger"
	"go.uber.org/zap"
)

// Scheduler runs delayed callbacks on the simulation clock.
type Scheduler interface {
	After(delay time.Duration, fn func()) timer.ID
}

// WanderConfig tunes the idle/wander cycle.
type WanderConfig struct {
	Delay           time.Duration // Idle time before each walk
	HalfExtent      float64       // Targets are sampled in [-HalfExtent, HalfExtent]²
	MinDistance     float64       // Targets must be farther than this from the character
	AgitationChance float64       // Probability of toggling between walk and run
}

// DefaultWanderConfig returns the stock cycle: one second idle, targets in
// [-2, 2]² at least one unit away, even odds of toggling agitation.
func DefaultWanderConfig() WanderConfig {
	return WanderConfig{
		Delay:           time.Second,
		HalfExtent:      2,
		MinDistance:     1,
		AgitationChance: 0.5,
	}
}

// maxSamples bounds target rejection sampling.
const maxSamples = 64

// Wanderer drives characters through idle, pick a point, walk or run there, repeat.
type Wanderer struct {
	cfg   WanderConfig
	sched Scheduler
	rng   *rand.Rand
}

// NewWanderer creates a wanderer. rng must not be shared across goroutines.
func NewWanderer(cfg WanderConfig, sched Scheduler, rng *rand.Rand) *Wanderer {
	return &Wanderer{cfg: cfg, sched: sched, rng: rng}
}

// Arm starts the cycle for c, replacing its arrival callback and dropping
// any walk left over from an earlier showing. The cycle stops by itself once
// c is detached or disposed.
func (w *Wanderer) Arm(c *Character) {
	agitated := false

	var idle func(*Character)
	idle = func(c *Character) {
		if agitated {
			c.Play(RoleAgitatedIdle)
		} else {
			c.Play(RoleIdle)
		}

		token := c.Token()
		w.sched.After(w.cfg.Delay, func() {
			if c.Disposed() || !c.Attached() || c.Token() != token {
				return
			}
			if w.rng.Float64() < w.cfg.AgitationChance {
				agitated = !agitated
			}

			x, z := w.pickTarget(c)
			role := RoleWalk
			if agitated {
				role = RoleRun
			}
			logger.Debug("wander",
				zap.String("model", c.Name()),
				zap.Stringer("role", role),
				zap.Float64("x", x),
				zap.Float64("z", z))
			c.MoveTo(role, x, z)
		})
	}

	c.ClearDestination()
	c.OnArrival = idle
	idle(c)
}

func (w *Wanderer) pickTarget(c *Character) (x, z float64) {
	h := w.cfg.HalfExtent
	for range maxSamples {
		x = -h + w.rng.Float64()*2*h
		z = -h + w.rng.Float64()*2*h
		if c.distanceTo(x, z) > w.cfg.MinDistance {
			return x, z
		}
	}
	return x, z
}
