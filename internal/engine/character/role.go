package character

import (
	"strings"

	"github.com/Faultbox/midgard-viewer/internal/database"
	"github.com/Faultbox/midgard-viewer/internal/engine/animation"
)

// Role is what a clip is used for, independent of its name in the model.
type Role int

// Roles.
const (
	RoleNone Role = iota - 1
	RoleIdle
	RoleAgitatedIdle
	RoleWalk
	RoleRun
	RoleAttackIdle
	roleCount
)

func (r Role) String() string {
	switch r {
	case RoleIdle:
		return "idle"
	case RoleAgitatedIdle:
		return "agitated-idle"
	case RoleWalk:
		return "walk"
	case RoleRun:
		return "run"
	case RoleAttackIdle:
		return "attack-idle"
	case RoleNone:
		return "none"
	}
	return "unknown"
}

// Clip name prefixes used by the model set.
const (
	PrefixIdle       = "Wait"
	PrefixAttackIdle = "AtkWait"
	PrefixWalk       = "Walk"
	PrefixRun        = "Run"
)

// ResolveRoles maps each role to the first clip whose name starts with the
// role's prefix. AttackIdle falls back to Idle; AgitatedIdle uses AttackIdle.
// Walk and Run have no fallback and stay nil when missing.
func ResolveRoles(mixer *animation.Mixer) [roleCount]*animation.Action {
	var roles [roleCount]*animation.Action
	if mixer == nil {
		return roles
	}

	find := func(prefix string) *animation.Action {
		for _, a := range mixer.Actions() {
			if strings.HasPrefix(a.Clip().Name, prefix) {
				return a
			}
		}
		return nil
	}

	roles[RoleIdle] = find(PrefixIdle)
	roles[RoleAttackIdle] = find(PrefixAttackIdle)
	roles[RoleWalk] = find(PrefixWalk)
	roles[RoleRun] = find(PrefixRun)

	if roles[RoleAttackIdle] == nil {
		roles[RoleAttackIdle] = roles[RoleIdle]
	}
	roles[RoleAgitatedIdle] = roles[RoleAttackIdle]
	return roles
}

// SpeedTable holds ground speed per role, in descriptor units (1/100 world
// unit per second).
type SpeedTable [roleCount]float64

// NewSpeedTable builds the table from a descriptor. Only Walk and Run move.
func NewSpeedTable(desc database.Descriptor) SpeedTable {
	var t SpeedTable
	t[RoleWalk] = desc.WalkSpeed
	t[RoleRun] = desc.RunSpeed
	return t
}

// Speed returns the speed for r, 0 for RoleNone.
func (t SpeedTable) Speed(r Role) float64 {
	if r < 0 || r >= roleCount {
		return 0
	}
	return t[r]
}
