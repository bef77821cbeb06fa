package character

import (
	gomath "math"
	"testing"

	"github.com/Faultbox/midgard-viewer/internal/database"
	"github.com/Faultbox/midgard-viewer/internal/engine/animation"
	"github.com/Faultbox/midgard-viewer/pkg/math"
)

type fakeVisual struct {
	released int
}

func (v *fakeVisual) Release() { v.released++ }

type fakeStage struct {
	members map[*Character]int
}

func newFakeStage() *fakeStage {
	return &fakeStage{members: make(map[*Character]int)}
}

func (s *fakeStage) Add(c *Character)    { s.members[c]++ }
func (s *fakeStage) Remove(c *Character) { delete(s.members, c) }

var fullClips = []animation.Clip{
	{Name: "Wait01", Duration: 2},
	{Name: "AtkWait", Duration: 1},
	{Name: "Walk", Duration: 1},
	{Name: "Run01", Duration: 0.5},
}

func newTestCharacter(clips []animation.Clip) (*Character, *fakeVisual) {
	desc := database.Descriptor{Name: "Poring", WalkSpeed: 60, RunSpeed: 240}
	v := &fakeVisual{}
	return New(desc, animation.NewMixer(clips), v), v
}

func TestResolveRoles(t *testing.T) {
	tests := []struct {
		name  string
		clips []string
		want  map[Role]string
	}{
		{
			name:  "all present",
			clips: []string{"Wait01", "AtkWait", "Walk", "Run01"},
			want: map[Role]string{
				RoleIdle: "Wait01", RoleAttackIdle: "AtkWait", RoleAgitatedIdle: "AtkWait",
				RoleWalk: "Walk", RoleRun: "Run01",
			},
		},
		{
			name:  "attack idle falls back to idle",
			clips: []string{"Wait", "Walk"},
			want: map[Role]string{
				RoleIdle: "Wait", RoleAttackIdle: "Wait", RoleAgitatedIdle: "Wait",
				RoleWalk: "Walk", RoleRun: "",
			},
		},
		{
			name:  "no clips",
			clips: nil,
			want: map[Role]string{
				RoleIdle: "", RoleAttackIdle: "", RoleAgitatedIdle: "", RoleWalk: "", RoleRun: "",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var clips []animation.Clip
			for _, n := range tt.clips {
				clips = append(clips, animation.Clip{Name: n, Duration: 1})
			}
			roles := ResolveRoles(animation.NewMixer(clips))
			for role, want := range tt.want {
				got := ""
				if a := roles[role]; a != nil {
					got = a.Clip().Name
				}
				if got != want {
					t.Errorf("%v resolved to %q, want %q", role, got, want)
				}
			}
		})
	}
}

func TestSpeedTable(t *testing.T) {
	st := NewSpeedTable(database.Descriptor{WalkSpeed: 150, RunSpeed: 400})
	tests := []struct {
		role Role
		want float64
	}{
		{RoleWalk, 150},
		{RoleRun, 400},
		{RoleIdle, 0},
		{RoleAgitatedIdle, 0},
		{RoleAttackIdle, 0},
		{RoleNone, 0},
	}
	for _, tt := range tests {
		if got := st.Speed(tt.role); got != tt.want {
			t.Errorf("Speed(%v) = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestPlay(t *testing.T) {
	c, _ := newTestCharacter(fullClips)

	c.Play(RoleIdle)
	idle := c.ActiveAction()
	if idle == nil || idle.Clip().Name != "Wait01" || !idle.IsRunning() {
		t.Fatalf("expected Wait01 running, got %+v", idle)
	}
	if idle.Weight() != 1 || idle.IsFading() {
		t.Error("first clip should start without a fade")
	}

	c.Advance(0.5)
	before := idle.Time()
	c.Play(RoleIdle)
	if idle.Time() != before {
		t.Error("replaying the active role must not reset the clip")
	}

	c.Play(RoleWalk)
	walk := c.ActiveAction()
	if c.ActiveRole() != RoleWalk || walk.Clip().Name != "Walk" {
		t.Fatalf("expected walk active, got %v", c.ActiveRole())
	}
	if !walk.IsFading() || walk.Weight() != 0 || !idle.IsFading() {
		t.Error("expected cross-fade between idle and walk")
	}

	c.Advance(CrossFadeTime)
	if idle.IsRunning() {
		t.Error("idle should stop once faded out")
	}
	if walk.Weight() != 1 {
		t.Errorf("walk weight after fade = %v, want 1", walk.Weight())
	}
}

func TestPlayMissingRole(t *testing.T) {
	c, _ := newTestCharacter([]animation.Clip{{Name: "Wait", Duration: 1}})

	c.Play(RoleIdle)
	active := c.ActiveAction()

	c.Play(RoleRun)
	if c.ActiveAction() != active || c.ActiveRole() != RoleIdle {
		t.Error("missing role must leave the active clip untouched")
	}

	c.Play(Role(42))
	if c.ActiveRole() != RoleIdle {
		t.Error("out of range role must be ignored")
	}
}

func TestAccumulatorSplitMatchesWhole(t *testing.T) {
	run := func(dts []float64) *Character {
		c, _ := newTestCharacter(fullClips)
		c.MoveTo(RoleWalk, 1.5, 1)
		for _, dt := range dts {
			c.Advance(dt)
		}
		return c
	}

	whole := run([]float64{0.5})
	split := run([]float64{0.25, 0.125, 0.0625, 0.0625})
	many := run([]float64{0.125, 0.125, 0.125, 0.125})

	if whole.Steps() < 30 || whole.Steps() > 31 {
		t.Errorf("Steps() = %d for 0.5s, want 30 or 31", whole.Steps())
	}
	for _, c := range []*Character{split, many} {
		if c.Steps() != whole.Steps() {
			t.Errorf("Steps() = %d, want %d", c.Steps(), whole.Steps())
		}
		wx, wz := whole.Position()
		x, z := c.Position()
		if x != wx || z != wz {
			t.Errorf("position (%v, %v), want (%v, %v)", x, z, wx, wz)
		}
		if c.SmoothedHeading() != whole.SmoothedHeading() {
			t.Errorf("smoothed heading %v, want %v", c.SmoothedHeading(), whole.SmoothedHeading())
		}
	}
}

func TestAdvanceZeroRunsInitialStep(t *testing.T) {
	c, _ := newTestCharacter(fullClips)
	c.Advance(0)
	if c.Steps() != 1 {
		t.Errorf("Steps() after Advance(0) = %d, want 1", c.Steps())
	}
	c.Advance(0)
	if c.Steps() != 1 {
		t.Errorf("Steps() after second Advance(0) = %d, want 1", c.Steps())
	}
}

func TestHeadingSmoothing(t *testing.T) {
	targets := []struct {
		name string
		x, z float64
	}{
		{"behind", 0, -2},
		{"left", -2, 0.01},
		{"right", 2, -0.01},
		{"ahead", 0.01, 2},
	}

	const eps = 1e-9
	maxStep := TurnRate * FixedStep

	for _, tt := range targets {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCharacter(fullClips)
			c.MoveTo(RoleIdle, tt.x, tt.z)
			target := c.Heading()

			prev := c.SmoothedHeading()
			prevGap := gomath.Abs(math.AngleDelta(prev, target))
			for i := 0; i < 60; i++ {
				c.step(FixedStep)
				cur := c.SmoothedHeading()

				change := gomath.Abs(math.AngleDelta(prev, cur))
				if change > maxStep+eps {
					t.Fatalf("step %d turned %v, limit %v", i, change, maxStep)
				}
				gap := gomath.Abs(math.AngleDelta(cur, target))
				if gap > prevGap+eps {
					t.Fatalf("step %d overshot: gap %v after %v", i, gap, prevGap)
				}
				prev, prevGap = cur, gap
			}
			if c.SmoothedHeading() != target {
				t.Errorf("smoothed heading %v did not snap to %v", c.SmoothedHeading(), target)
			}
		})
	}
}

func TestMoveToArrives(t *testing.T) {
	c, _ := newTestCharacter(fullClips)
	c.Play(RoleIdle)

	arrivals := 0
	c.OnArrival = func(*Character) { arrivals++ }

	c.MoveTo(RoleWalk, 1.5, 1)
	if !c.HasDestination() {
		t.Fatal("expected destination after MoveTo")
	}
	if want := gomath.Atan2(1.5, 1); c.Heading() != want {
		t.Errorf("Heading() = %v, want %v", c.Heading(), want)
	}

	dist := func() float64 {
		x, z := c.Position()
		return gomath.Hypot(1.5-x, 1-z)
	}

	last := dist()
	for i := 0; i < 600 && c.HasDestination(); i++ {
		c.Advance(FixedStep)
		d := dist()
		if d > last+1e-12 {
			t.Fatalf("distance increased from %v to %v", last, d)
		}
		last = d
	}

	if c.HasDestination() {
		t.Fatal("never arrived")
	}
	if last >= ArrivalThreshold {
		t.Errorf("arrived at distance %v, want < %v", last, ArrivalThreshold)
	}
	if arrivals != 1 {
		t.Errorf("OnArrival fired %d times, want 1", arrivals)
	}

	// Still walking with no destination: no more callbacks.
	c.Advance(1)
	if arrivals != 1 {
		t.Errorf("OnArrival fired %d times after arrival, want 1", arrivals)
	}
}

func TestMoveToWithoutClipArrivesImmediately(t *testing.T) {
	c, _ := newTestCharacter([]animation.Clip{{Name: "Wait", Duration: 1}})
	c.Play(RoleIdle)

	arrived := false
	c.OnArrival = func(*Character) { arrived = true }
	c.MoveTo(RoleRun, 2, 2)

	c.Advance(FixedStep)
	if !arrived || c.HasDestination() {
		t.Error("zero speed must count as arrival on the next step")
	}
	if x, z := c.Position(); x != 0 || z != 0 {
		t.Errorf("position moved to (%v, %v)", x, z)
	}
}

func TestArrivalMayRearm(t *testing.T) {
	c, _ := newTestCharacter(fullClips)
	legs := 0
	c.OnArrival = func(c *Character) {
		legs++
		if legs < 3 {
			x, _ := c.Position()
			c.MoveTo(RoleRun, x+0.5, 0)
		} else {
			c.Play(RoleIdle)
		}
	}
	c.MoveTo(RoleRun, 0.5, 0)

	for i := 0; i < 20; i++ {
		c.Advance(0.25)
	}
	if legs != 3 {
		t.Errorf("legs = %d, want 3", legs)
	}
	if c.ActiveRole() != RoleIdle || c.HasDestination() {
		t.Errorf("expected idle at rest, got %v dest=%v", c.ActiveRole(), c.HasDestination())
	}
}

func TestAttachDetach(t *testing.T) {
	c, _ := newTestCharacter(fullClips)
	stage := newFakeStage()

	c.Detach()
	if c.Attached() {
		t.Fatal("detach on fresh character attached it")
	}

	c.Attach(stage)
	c.Attach(stage)
	if stage.members[c] != 1 || !c.Attached() {
		t.Errorf("attach not idempotent: %d adds", stage.members[c])
	}

	token := c.Token()
	c.Detach()
	if _, ok := stage.members[c]; ok || c.Attached() {
		t.Error("detach did not remove from stage")
	}
	if c.Token() == token {
		t.Error("detach must change the token")
	}
}

func TestDispose(t *testing.T) {
	c, v := newTestCharacter(fullClips)
	stage := newFakeStage()
	c.Attach(stage)
	c.Play(RoleWalk)
	token := c.Token()

	c.Dispose()
	c.Dispose()

	if v.released != 1 {
		t.Errorf("visual released %d times, want 1", v.released)
	}
	if len(stage.members) != 0 {
		t.Error("dispose must detach")
	}
	if c.Token() == token {
		t.Error("dispose must change the token")
	}
	if len(c.Mixer().Running()) != 0 {
		t.Error("dispose must stop all actions")
	}

	steps := c.Steps()
	c.Advance(1)
	c.MoveTo(RoleWalk, 1, 1)
	c.Play(RoleIdle)
	if c.Steps() != steps || c.HasDestination() || c.ActiveAction() != nil {
		t.Error("disposed character must ignore Advance, MoveTo and Play")
	}

	c.Attach(stage)
	if len(stage.members) != 0 {
		t.Error("disposed character must not attach")
	}
}

func TestDisposeNeverAttached(t *testing.T) {
	c := New(database.Descriptor{Name: "Bare"}, animation.NewMixer(nil), nil)
	c.Dispose()
	if !c.Disposed() {
		t.Error("expected disposed")
	}
}

func TestTransform(t *testing.T) {
	c, _ := newTestCharacter(fullClips)
	c.SetPosition(1, 2)
	c.smoothedHeading = gomath.Pi / 2

	p := c.Transform().TransformPoint([3]float32{0, 0, 1})
	want := [3]float32{2, 0, 2}
	for i := range p {
		if gomath.Abs(float64(p[i]-want[i])) > 1e-5 {
			t.Fatalf("Transform()*(0,0,1) = %v, want %v", p, want)
		}
	}
}
