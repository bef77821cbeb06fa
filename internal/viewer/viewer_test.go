package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/Faultbox/midgard-viewer/internal/database"
	"github.com/Faultbox/midgard-viewer/internal/engine/animation"
	"github.com/Faultbox/midgard-viewer/internal/engine/character"
	"github.com/Faultbox/midgard-viewer/pkg/formats"
	vmath "github.com/Faultbox/midgard-viewer/pkg/math"
)

type fakeLoader struct {
	mu    sync.Mutex
	fail  map[string]error
	gate  chan struct{}
	calls []string
}

func (l *fakeLoader) Load(ctx context.Context, desc database.Descriptor) (*formats.GLB, error) {
	l.mu.Lock()
	l.calls = append(l.calls, desc.Name)
	gate := l.gate
	err := l.fail[desc.Name]
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &formats.GLB{
		Animations: []formats.GLBAnimation{
			{Name: "Wait", Duration: 1},
			{Name: "Walk", Duration: 1},
			{Name: "Run", Duration: 0.5},
		},
	}, nil
}

func (l *fakeLoader) setFail(name string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail == nil {
		l.fail = make(map[string]error)
	}
	if err == nil {
		delete(l.fail, name)
	} else {
		l.fail[name] = err
	}
}

func (l *fakeLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

// waitCalls blocks until the loader goroutines have made n calls.
func (l *fakeLoader) waitCalls(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for l.callCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("loader called %d times, want %d", l.callCount(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

type countingVisual struct {
	released int
}

func (v *countingVisual) Release() { v.released++ }

type fakeBuilder struct {
	visuals map[*character.Character]*countingVisual
}

func newFakeBuilder() *fakeBuilder {
	return &fakeBuilder{visuals: make(map[*character.Character]*countingVisual)}
}

func (b *fakeBuilder) Build(desc database.Descriptor, glb *formats.GLB) (*character.Character, error) {
	v := &countingVisual{}
	c := character.New(desc, animation.NewMixer(Clips(glb)), v)
	b.visuals[c] = v
	return c, nil
}

type memStore struct {
	num   int
	saved []int
	err   error
}

func (s *memStore) Load() int { return s.num }

func (s *memStore) Save(num int) error {
	if s.err != nil {
		return s.err
	}
	s.num = num
	s.saved = append(s.saved, num)
	return nil
}

type nopArmer struct {
	armed []*character.Character
}

func (a *nopArmer) Arm(c *character.Character) { a.armed = append(a.armed, c) }

func testDatabase(n int) *database.Database {
	db := &database.Database{}
	for i := 0; i < n; i++ {
		db.Models = append(db.Models, database.Descriptor{
			Name:      fmt.Sprintf("m%d", i),
			WalkSpeed: 100,
			RunSpeed:  300,
		})
	}
	return db
}

type fixture struct {
	db      *database.Database
	loader  *fakeLoader
	builder *fakeBuilder
	store   *memStore
	stage   *Stage
	armer   *nopArmer
	c       *Carousel
}

func newFixture(n, start int) *fixture {
	f := &fixture{
		db:      testDatabase(n),
		loader:  &fakeLoader{},
		builder: newFakeBuilder(),
		store:   &memStore{num: start},
		stage:   NewStage(),
		armer:   &nopArmer{},
	}
	f.c = NewCarousel(f.db, f.loader, f.builder, f.store, f.stage, f.armer)
	return f
}

// settle polls the carousel until it is idle and returns the load errors.
func settle(t *testing.T, c *Carousel) []error {
	t.Helper()
	var errs []error
	deadline := time.Now().Add(2 * time.Second)
	for {
		errs = append(errs, multierr.Errors(c.Update())...)
		if !c.Busy() {
			return errs
		}
		if time.Now().After(deadline) {
			t.Fatal("carousel did not settle")
		}
		time.Sleep(time.Millisecond)
	}
}

func slotName(c *Carousel, i int) string {
	if ch := c.Slot(i); ch != nil {
		return ch.Name()
	}
	return ""
}

func TestCarouselStart(t *testing.T) {
	f := newFixture(5, 2)

	if !f.c.Navigate(0) {
		t.Fatal("Navigate(0) rejected")
	}
	if !f.c.Busy() {
		t.Error("expected busy while the current model loads")
	}
	if errs := settle(t, f.c); len(errs) != 0 {
		t.Fatalf("unexpected errors %v", errs)
	}

	cur := f.c.Current()
	if cur == nil || cur.Name() != "m2" {
		t.Fatalf("Current() = %v, want m2", cur)
	}
	if !f.stage.Contains(cur) || f.stage.Len() != 1 {
		t.Error("current model must be the only one on stage")
	}
	if cur.ActiveRole() != character.RoleIdle {
		t.Errorf("current model plays %v, want idle", cur.ActiveRole())
	}
	if len(f.armer.armed) != 1 || f.armer.armed[0] != cur {
		t.Error("wander cycle not armed for the shown model")
	}
	if f.c.Slot(SlotPrev) != nil || f.c.Slot(SlotNext) != nil {
		t.Error("initial show must not preload neighbours")
	}
	if len(f.store.saved) != 1 || f.store.saved[0] != 2 {
		t.Errorf("saved %v, want [2]", f.store.saved)
	}
}

func TestCarouselStoredIndexWraps(t *testing.T) {
	f := newFixture(5, 12)
	if f.c.Index() != 2 {
		t.Errorf("Index() = %d, want 12 wrapped to 2", f.c.Index())
	}

	f = newFixture(5, -1)
	if f.c.Index() != 4 {
		t.Errorf("Index() = %d, want -1 wrapped to 4", f.c.Index())
	}
}

func TestCarouselShiftForwardWraps(t *testing.T) {
	f := newFixture(5, 4)
	f.c.Navigate(0)
	settle(t, f.c)
	m4 := f.c.Current()

	if !f.c.Navigate(1) {
		t.Fatal("Navigate(1) rejected")
	}
	settle(t, f.c)

	if f.c.Index() != 0 {
		t.Fatalf("Index() = %d, want 0 after wrapping", f.c.Index())
	}
	if got := [3]string{slotName(f.c, SlotPrev), slotName(f.c, SlotCurrent), slotName(f.c, SlotNext)}; got != [3]string{"m4", "m0", "m1"} {
		t.Fatalf("slots = %v, want [m4 m0 m1]", got)
	}
	if f.c.Slot(SlotPrev) != m4 {
		t.Error("previous current must move to the prev slot")
	}
	if m4.Attached() || m4.Disposed() {
		t.Error("prev slot model must be detached but kept")
	}
	next := f.c.Slot(SlotNext)

	f.c.Navigate(1)
	settle(t, f.c)

	if f.c.Index() != 1 {
		t.Fatalf("Index() = %d, want 1", f.c.Index())
	}
	if f.c.Current() != next {
		t.Error("preloaded next model must become current without reloading")
	}
	if got := [3]string{slotName(f.c, SlotPrev), slotName(f.c, SlotCurrent), slotName(f.c, SlotNext)}; got != [3]string{"m0", "m1", "m2"} {
		t.Errorf("slots = %v, want [m0 m1 m2]", got)
	}
	if !m4.Disposed() || f.builder.visuals[m4].released != 1 {
		t.Error("evicted model must be disposed exactly once")
	}
	if f.stage.Len() != 1 || !f.stage.Contains(next) {
		t.Error("only the current model may be on stage")
	}
}

func TestCarouselShiftBackwardWraps(t *testing.T) {
	f := newFixture(5, 0)
	f.c.Navigate(0)
	settle(t, f.c)
	m0 := f.c.Current()

	f.c.Navigate(-1)
	settle(t, f.c)

	if f.c.Index() != 4 {
		t.Fatalf("Index() = %d, want 4", f.c.Index())
	}
	if got := [3]string{slotName(f.c, SlotPrev), slotName(f.c, SlotCurrent), slotName(f.c, SlotNext)}; got != [3]string{"m3", "m4", "m0"} {
		t.Fatalf("slots = %v, want [m3 m4 m0]", got)
	}
	if f.c.Slot(SlotNext) != m0 {
		t.Error("previous current must move to the next slot")
	}

	// Forward again reuses the kept model.
	f.c.Navigate(1)
	settle(t, f.c)
	if f.c.Current() != m0 {
		t.Error("stepping back must show the kept instance")
	}
	if f.store.num != 0 {
		t.Errorf("persisted index = %d, want 0", f.store.num)
	}
}

func TestCarouselReentrancy(t *testing.T) {
	f := newFixture(5, 0)
	f.loader.gate = make(chan struct{})

	if !f.c.Navigate(0) {
		t.Fatal("first Navigate rejected")
	}
	for _, dir := range []int{1, -1, 0} {
		if f.c.Navigate(dir) {
			t.Errorf("Navigate(%d) accepted while busy", dir)
		}
	}
	f.c.Update()
	if !f.c.Busy() || f.c.Index() != 0 || len(f.store.saved) != 1 {
		t.Error("rejected navigation must not change state")
	}
	f.loader.waitCalls(t, 1)
	// a stray second load would have started by now
	time.Sleep(10 * time.Millisecond)
	if n := f.loader.callCount(); n != 1 {
		t.Errorf("loader called %d times, want 1", n)
	}

	close(f.loader.gate)
	settle(t, f.c)

	if !f.c.Navigate(1) {
		t.Error("Navigate rejected after the load finished")
	}
	settle(t, f.c)
	if f.c.Index() != 1 {
		t.Errorf("Index() = %d, want 1", f.c.Index())
	}
}

func TestCarouselInvalidDirection(t *testing.T) {
	f := newFixture(5, 0)
	if f.c.Navigate(2) || f.c.Navigate(-3) {
		t.Error("directions outside -1..1 must be rejected")
	}
	if f.c.Busy() || len(f.store.saved) != 0 {
		t.Error("rejected navigation must not change state")
	}
}

func TestCarouselCurrentLoadFailure(t *testing.T) {
	f := newFixture(5, 0)
	boom := errors.New("boom")
	f.loader.setFail("m0", boom)

	f.c.Navigate(0)
	errs := settle(t, f.c)
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	var le *LoadError
	if !errors.As(errs[0], &le) || le.Name != "m0" || le.Index != 0 {
		t.Errorf("error %v, want LoadError for m0", errs[0])
	}
	if !errors.Is(errs[0], boom) {
		t.Error("LoadError must wrap the cause")
	}
	if f.c.Current() != nil || f.stage.Len() != 0 {
		t.Error("failed current load must leave nothing shown")
	}
	if f.c.Busy() {
		t.Fatal("failure must clear busy")
	}

	f.loader.setFail("m0", nil)
	if !f.c.Navigate(0) {
		t.Fatal("retry rejected")
	}
	if errs := settle(t, f.c); len(errs) != 0 {
		t.Fatalf("retry errors %v", errs)
	}
	if f.c.Current() == nil || f.c.Current().Name() != "m0" {
		t.Error("retry must show m0")
	}
}

func TestCarouselAdjacentLoadFailure(t *testing.T) {
	f := newFixture(5, 0)
	f.c.Navigate(0)
	settle(t, f.c)

	f.loader.setFail("m3", errors.New("missing file"))
	f.c.Navigate(-1)
	errs := settle(t, f.c)

	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	if f.c.Current() == nil || f.c.Current().Name() != "m4" {
		t.Fatal("current must show despite the neighbour failing")
	}
	if f.c.Slot(SlotPrev) != nil || f.c.Loading(SlotPrev) {
		t.Error("failed neighbour slot must stay empty")
	}

	f.loader.setFail("m3", nil)
	f.c.Navigate(-1)
	if errs := settle(t, f.c); len(errs) != 0 {
		t.Fatalf("unexpected errors %v", errs)
	}
	if got := [3]string{slotName(f.c, SlotPrev), slotName(f.c, SlotCurrent), slotName(f.c, SlotNext)}; got != [3]string{"m2", "m3", "m4"} {
		t.Errorf("slots = %v, want [m2 m3 m4]", got)
	}
}

func TestCarouselSingleModel(t *testing.T) {
	f := newFixture(1, 0)
	f.c.Navigate(0)
	settle(t, f.c)
	only := f.c.Current()

	if !f.c.Navigate(1) {
		t.Fatal("Navigate(1) rejected")
	}
	settle(t, f.c)

	if f.c.Index() != 0 || f.c.Current() != only {
		t.Error("single model must stay shown")
	}
	if !only.Attached() || only.Disposed() {
		t.Error("single model must be re-attached, not disposed")
	}
	if n := f.loader.callCount(); n != 1 {
		t.Errorf("loader called %d times, want 1", n)
	}
}

func TestCarouselTwoModels(t *testing.T) {
	f := newFixture(2, 0)
	f.c.Navigate(0)
	settle(t, f.c)
	first := f.c.Current()

	f.c.Navigate(1)
	settle(t, f.c)

	prev, next := f.c.Slot(SlotPrev), f.c.Slot(SlotNext)
	if prev != first || next == nil || next == first {
		t.Fatal("neighbours must be separate instances of the same model")
	}
	if prev.Name() != "m0" || next.Name() != "m0" {
		t.Errorf("neighbours = %s/%s, want m0/m0", prev.Name(), next.Name())
	}

	f.c.Navigate(1)
	settle(t, f.c)
	if f.c.Current() != next {
		t.Error("preloaded instance must become current")
	}
	if f.builder.visuals[first].released != 1 {
		t.Errorf("evicted instance released %d times, want 1", f.builder.visuals[first].released)
	}
	if f.builder.visuals[next].released != 0 {
		t.Error("shown instance must not be released")
	}
}

func TestCarouselPersistFailure(t *testing.T) {
	f := newFixture(3, 0)
	f.store.err = errors.New("read-only")

	if !f.c.Navigate(1) {
		t.Fatal("persist failure must not block navigation")
	}
	settle(t, f.c)
	if f.c.Index() != 1 || f.c.Current() == nil {
		t.Error("navigation must proceed despite the persist failure")
	}
}

func TestCarouselClose(t *testing.T) {
	f := newFixture(5, 0)
	f.c.Navigate(0)
	settle(t, f.c)
	f.c.Navigate(1)
	settle(t, f.c)

	f.loader.gate = make(chan struct{})
	f.c.Navigate(1)
	if !f.c.Busy() {
		t.Fatal("expected a pending load")
	}

	f.c.Close()
	for ch, v := range f.builder.visuals {
		if !ch.Disposed() || v.released != 1 {
			t.Errorf("%s not disposed exactly once", ch.Name())
		}
	}
	if f.stage.Len() != 0 {
		t.Error("stage must be empty after Close")
	}
	if f.c.Busy() || f.c.Navigate(1) {
		t.Error("closed carousel must reject navigation")
	}
	if err := f.c.Update(); err != nil {
		t.Errorf("Update after Close = %v", err)
	}
}

func TestStage(t *testing.T) {
	s := NewStage()
	db := testDatabase(2)
	a := character.New(db.Models[0], animation.NewMixer(nil), nil)
	b := character.New(db.Models[1], animation.NewMixer(nil), nil)

	s.Add(a)
	s.Add(a)
	s.Add(b)
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}

	s.Tick(0.5)
	if a.Steps() == 0 || b.Steps() == 0 {
		t.Error("Tick must advance every member")
	}

	s.Remove(a)
	s.Remove(a)
	if s.Contains(a) || !s.Contains(b) || s.Len() != 1 {
		t.Error("Remove must drop only the given member")
	}
}

func TestSessionWanders(t *testing.T) {
	db := testDatabase(3)
	cfg := Config{Wander: character.DefaultWanderConfig(), Seed: 7}
	s := NewSession(db, &fakeLoader{}, newFakeBuilder(), &memStore{}, cfg)

	if !s.Start() {
		t.Fatal("Start rejected")
	}
	settle(t, s.Carousel())
	cur := s.Carousel().Current()
	if cur == nil {
		t.Fatal("nothing shown")
	}

	for i := 0; i < 11; i++ {
		if err := s.Update(0.1); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	if !cur.HasDestination() {
		t.Error("expected the shown model to start wandering after the idle delay")
	}
	if r := cur.ActiveRole(); r != character.RoleWalk && r != character.RoleRun {
		t.Errorf("wandering role = %v", r)
	}

	if !s.Next() {
		t.Fatal("Next rejected")
	}
	settle(t, s.Carousel())
	if cur.Attached() {
		t.Error("previous model must leave the stage")
	}
	if s.Stage().Len() != 1 {
		t.Errorf("stage has %d members, want 1", s.Stage().Len())
	}

	s.Close()
	if s.Stage().Len() != 0 {
		t.Error("Close must clear the stage")
	}
}

type bytesSource map[string][]byte

func (b bytesSource) Load(_ context.Context, name string) ([]byte, error) {
	data, ok := b[name]
	if !ok {
		return nil, fmt.Errorf("no asset %s", name)
	}
	return data, nil
}

func TestAssetLoaderErrors(t *testing.T) {
	l := NewAssetLoader(bytesSource{"bad": []byte("definitely not a glb file")})

	_, err := l.Load(context.Background(), database.Descriptor{Name: "bad"})
	if !errors.Is(err, formats.ErrInvalidGLBMagic) {
		t.Errorf("Load(bad) error = %v, want ErrInvalidGLBMagic", err)
	}

	if _, err := l.Load(context.Background(), database.Descriptor{Name: "missing"}); err == nil {
		t.Error("expected source error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Load(ctx, database.Descriptor{Name: "bad"}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Load error = %v, want context.Canceled", err)
	}
}

func TestClips(t *testing.T) {
	glb := &formats.GLB{Animations: []formats.GLBAnimation{
		{Name: "Wait", Duration: 1.5},
		{Name: "Walk01", Duration: 0.75},
	}}
	clips := Clips(glb)
	if len(clips) != 2 || clips[0].Name != "Wait" || clips[1].Duration != 0.75 {
		t.Errorf("Clips() = %+v", clips)
	}
}

func TestClipsCarryTracks(t *testing.T) {
	glb := &formats.GLB{Animations: []formats.GLBAnimation{{
		Name: "Walk01", Duration: 1,
		Channels: []formats.GLBChannel{
			{Node: 2, Path: formats.PathRotation, Interpolation: formats.InterpolationCubicSpline,
				Times: []float32{0}, Values: make([]float32, 12)},
			{Node: 0, Path: formats.PathScale, Interpolation: formats.InterpolationStep,
				Times: []float32{0}, Values: []float32{1, 1, 1}},
		},
	}}}
	tracks := Clips(glb)[0].Tracks
	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, want 2", len(tracks))
	}
	if tr := tracks[0]; tr.Joint != 2 || tr.Path != animation.Rotation || tr.Interpolation != animation.CubicSpline {
		t.Errorf("track 0 = %+v", tr)
	}
	if tr := tracks[1]; tr.Path != animation.Scale || tr.Interpolation != animation.Step {
		t.Errorf("track 1 = %+v", tr)
	}
}

func TestSkeletonFromNodes(t *testing.T) {
	one := [3]float32{1, 1, 1}
	fixed := vmath.Translate(0, 0, 3)
	glb := &formats.GLB{
		Nodes: []formats.GLBNode{
			{Name: "hip", Parent: -1, Translation: [3]float32{0, 1, 0}, Rotation: vmath.QuatIdentity(), Scale: one},
			{Name: "knee", Parent: 0, Translation: [3]float32{0, 1, 0}, Rotation: vmath.QuatIdentity(), Scale: one},
			{Name: "hat", Parent: 1, Matrix: &fixed},
		},
		Bones: []formats.GLBBone{
			{Node: 1, InverseBind: vmath.Translate(0, -2, 0)},
			{Node: 2, InverseBind: vmath.Identity()},
		},
	}
	skel, err := Skeleton(glb)
	if err != nil {
		t.Fatalf("Skeleton: %v", err)
	}
	if skel.Joints() != 3 || skel.Bones() != 2 || skel.JointIndex("knee") != 1 {
		t.Fatalf("skeleton shape = %d joints, %d bones", skel.Joints(), skel.Bones())
	}
	palette := skel.Palette(skel.RestPose(), nil)
	if got := palette[0].TransformPoint([3]float32{0, 2, 0}); got != [3]float32{0, 2, 0} {
		t.Errorf("knee rest = %v, want unchanged", got)
	}
	if got := palette[1].TransformPoint([3]float32{}); got != [3]float32{0, 2, 3} {
		t.Errorf("hat = %v, want (0, 2, 3)", got)
	}

	glb.Nodes[0].Parent = 2
	if _, err := Skeleton(glb); !errors.Is(err, animation.ErrInvalidSkeleton) {
		t.Errorf("cyclic nodes err = %v, want ErrInvalidSkeleton", err)
	}
}
