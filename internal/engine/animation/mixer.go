// Package animation plays skeletal clips and blends them into a pose.
//
// A mixer tracks which clips are running, where their playheads are and how
// much each contributes while cross-fading. When bound to a skeleton it also
// samples every running clip's tracks and accumulates them into one skinning
// palette per frame.
package animation

import (
	"math"

	vmath "github.com/Faultbox/midgard-viewer/pkg/math"
)

// Clip is a named animation with a duration in seconds.
type Clip struct {
	Name     string
	Duration float64
	Tracks   []Track
}

// Action is the playback state of one clip within a mixer.
type Action struct {
	clip    Clip
	time    float64
	weight  float64
	running bool

	// fade state
	fading    bool
	fadeFrom  float64
	fadeTo    float64
	fadeTime  float64
	fadeTotal float64
}

// Clip returns the clip this action plays.
func (a *Action) Clip() Clip {
	return a.clip
}

// Reset rewinds the playhead and restores full weight. Returns a for chaining.
func (a *Action) Reset() *Action {
	a.time = 0
	a.weight = 1
	a.fading = false
	return a
}

// Play starts or resumes playback.
func (a *Action) Play() *Action {
	a.running = true
	return a
}

// Stop halts playback and cancels any fade.
func (a *Action) Stop() *Action {
	a.running = false
	a.fading = false
	return a
}

// FadeIn ramps the weight from 0 to 1 over duration.
func (a *Action) FadeIn(duration float64) *Action {
	a.startFade(0, 1, duration)
	return a
}

// FadeOut ramps the weight from its current value to 0 over duration,
// then stops the action.
func (a *Action) FadeOut(duration float64) *Action {
	a.startFade(a.weight, 0, duration)
	return a
}

func (a *Action) startFade(from, to, duration float64) {
	if duration <= 0 {
		a.weight = to
		a.fading = false
		if to == 0 {
			a.running = false
		}
		return
	}
	a.weight = from
	a.fading = true
	a.fadeFrom = from
	a.fadeTo = to
	a.fadeTime = 0
	a.fadeTotal = duration
}

// IsRunning reports whether the action is playing.
func (a *Action) IsRunning() bool {
	return a.running
}

// IsFading reports whether a weight ramp is in progress.
func (a *Action) IsFading() bool {
	return a.fading
}

// Time returns the playhead position in seconds.
func (a *Action) Time() float64 {
	return a.time
}

// Weight returns the current blend weight in [0, 1].
func (a *Action) Weight() float64 {
	return a.weight
}

func (a *Action) update(dt float64) {
	if !a.running {
		return
	}

	a.time += dt
	if d := a.clip.Duration; d > 0 && a.time >= d {
		a.time = math.Mod(a.time, d)
	}

	if !a.fading {
		return
	}
	a.fadeTime += dt
	progress := a.fadeTime / a.fadeTotal
	if progress >= 1 {
		a.weight = a.fadeTo
		a.fading = false
		if a.fadeTo == 0 {
			a.running = false
		}
		return
	}
	a.weight = a.fadeFrom + (a.fadeTo-a.fadeFrom)*progress
}

// Mixer owns one action per clip.
type Mixer struct {
	actions []*Action
	byName  map[string]*Action
	time    float64

	// nil when the mixer only tracks time
	skeleton *Skeleton
	blend    []jointBlend
	pose     Pose
	world    []vmath.Mat4
	palette  []vmath.Mat4
}

// jointBlend accumulates weighted samples for one joint.
type jointBlend struct {
	translation [3]float32
	rotation    vmath.Quat
	scale       [3]float32
	weights     [3]float32 // by Path
}

// NewMixer creates a mixer for clips. Later clips with a duplicate name are ignored.
func NewMixer(clips []Clip) *Mixer {
	m := &Mixer{byName: make(map[string]*Action, len(clips))}
	for _, c := range clips {
		if _, dup := m.byName[c.Name]; dup {
			continue
		}
		a := &Action{clip: c, weight: 1}
		m.actions = append(m.actions, a)
		m.byName[c.Name] = a
	}
	return m
}

// NewSkinnedMixer creates a mixer that poses skeleton. Tracks aimed at
// joints outside the skeleton or with mismatched key data are dropped.
// Until the first Update the palette holds the rest pose.
func NewSkinnedMixer(skeleton *Skeleton, clips []Clip) *Mixer {
	bound := make([]Clip, len(clips))
	for i, c := range clips {
		bound[i] = c
		bound[i].Tracks = nil
		for _, tr := range c.Tracks {
			if tr.Joint >= 0 && tr.Joint < skeleton.Joints() && tr.valid() {
				bound[i].Tracks = append(bound[i].Tracks, tr)
			}
		}
	}
	m := NewMixer(bound)
	m.skeleton = skeleton
	m.blend = make([]jointBlend, skeleton.Joints())
	m.pose = skeleton.RestPose()
	m.world = skeleton.World(m.pose, nil)
	m.palette = skeleton.skin(m.world, nil)
	return m
}

// Skeleton returns the bound skeleton, or nil.
func (m *Mixer) Skeleton() *Skeleton {
	return m.skeleton
}

// Pose returns the last evaluated local pose. The slice is reused by Update.
func (m *Mixer) Pose() Pose {
	return m.pose
}

// Palette returns the last evaluated skinning matrices, one per bone. The
// slice is reused by Update. Nil without a skeleton.
func (m *Mixer) Palette() []vmath.Mat4 {
	return m.palette
}

// ClipAction returns the action for a clip name, or nil.
func (m *Mixer) ClipAction(name string) *Action {
	return m.byName[name]
}

// Actions returns all actions in clip order.
func (m *Mixer) Actions() []*Action {
	return m.actions
}

// Clips returns the clips in order.
func (m *Mixer) Clips() []Clip {
	clips := make([]Clip, len(m.actions))
	for i, a := range m.actions {
		clips[i] = a.clip
	}
	return clips
}

// Update advances every running action by dt seconds and, with a
// skeleton bound, re-evaluates the pose and palette.
func (m *Mixer) Update(dt float64) {
	m.time += dt
	for _, a := range m.actions {
		a.update(dt)
	}
	if m.skeleton != nil {
		m.evaluate()
	}
}

// evaluate blends running actions the way a weighted mixer does: the first
// contribution to a property is taken as is, each later one is mixed in by
// its share of the running weight, and a total below one fades toward rest.
func (m *Mixer) evaluate() {
	for i := range m.blend {
		m.blend[i] = jointBlend{}
	}
	for _, a := range m.actions {
		w := float32(a.weight)
		if !a.running || w <= 0 {
			continue
		}
		t := float32(a.time)
		for k := range a.clip.Tracks {
			tr := &a.clip.Tracks[k]
			m.blend[tr.Joint].add(tr.Path, tr.Sample(t), w)
		}
	}

	for i, j := range m.skeleton.joints {
		m.pose[i] = m.blend[i].resolve(j.Rest)
	}
	m.world = m.skeleton.World(m.pose, m.world)
	m.palette = m.skeleton.skin(m.world, m.palette)
}

func (b *jointBlend) add(p Path, v [4]float32, w float32) {
	c := b.weights[p]
	b.weights[p] = c + w
	mix := float32(1)
	if c > 0 {
		mix = w / (c + w)
	}
	switch p {
	case Translation:
		b.translation = vmath.LerpVec3(b.translation, [3]float32{v[0], v[1], v[2]}, mix)
	case Scale:
		b.scale = vmath.LerpVec3(b.scale, [3]float32{v[0], v[1], v[2]}, mix)
	case Rotation:
		q := quat(v[:])
		if c == 0 {
			b.rotation = q
		} else {
			b.rotation = b.rotation.Slerp(q, mix)
		}
	}
}

func (b *jointBlend) resolve(rest Transform) Transform {
	out := rest
	if c := b.weights[Translation]; c > 0 {
		out.Translation = vmath.LerpVec3(rest.Translation, b.translation, min(c, 1))
	}
	if c := b.weights[Rotation]; c > 0 {
		out.Rotation = rest.Rotation.Slerp(b.rotation, min(c, 1))
	}
	if c := b.weights[Scale]; c > 0 {
		out.Scale = vmath.LerpVec3(rest.Scale, b.scale, min(c, 1))
	}
	return out
}

// Time returns total time the mixer has been advanced.
func (m *Mixer) Time() float64 {
	return m.time
}

// StopAll stops every action.
func (m *Mixer) StopAll() {
	for _, a := range m.actions {
		a.Stop()
	}
}

// Running returns the actions currently playing.
func (m *Mixer) Running() []*Action {
	var out []*Action
	for _, a := range m.actions {
		if a.running {
			out = append(out, a)
		}
	}
	return out
}
