// Package viewer ties models, navigation and the simulation clock together.
package viewer

import "github.com/Faultbox/midgard-viewer/internal/engine/character"

// Stage is the ordered set of shown characters. Everything on the stage is
// drawn and ticked each frame.
type Stage struct {
	members []*character.Character
}

// NewStage creates an empty stage.
func NewStage() *Stage {
	return &Stage{}
}

// Add puts c on the stage. Adding a member again does nothing.
func (s *Stage) Add(c *character.Character) {
	if s.Contains(c) {
		return
	}
	s.members = append(s.members, c)
}

// Remove takes c off the stage.
func (s *Stage) Remove(c *character.Character) {
	for i, m := range s.members {
		if m == c {
			s.members = append(s.members[:i], s.members[i+1:]...)
			return
		}
	}
}

// Contains reports whether c is on the stage.
func (s *Stage) Contains(c *character.Character) bool {
	for _, m := range s.members {
		if m == c {
			return true
		}
	}
	return false
}

// Len returns the number of shown characters.
func (s *Stage) Len() int {
	return len(s.members)
}

// Characters returns a snapshot of the shown characters.
func (s *Stage) Characters() []*character.Character {
	out := make([]*character.Character, len(s.members))
	copy(out, s.members)
	return out
}

// Tick advances every shown character by dt seconds.
func (s *Stage) Tick(dt float64) {
	for _, c := range s.Characters() {
		c.Advance(dt)
	}
}
