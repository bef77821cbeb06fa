package animation

import (
	"sort"

	"github.com/Faultbox/midgard-viewer/pkg/math"
)

// Path is the joint property a track drives.
type Path uint8

// Animated joint properties.
const (
	Translation Path = iota
	Rotation
	Scale
)

// Width returns the floats per key value.
func (p Path) Width() int {
	if p == Rotation {
		return 4
	}
	return 3
}

// Interpolation selects how a track fills the time between keys.
type Interpolation uint8

// Interpolation modes.
const (
	Linear Interpolation = iota
	Step
	CubicSpline
)

// Track is the keyframes for one property of one joint. Values holds
// Path.Width() floats per key; cubic splines store in-tangent, value and
// out-tangent per key.
type Track struct {
	Joint         int
	Path          Path
	Interpolation Interpolation
	Times         []float32
	Values        []float32
}

func (tr *Track) stride() int {
	if tr.Interpolation == CubicSpline {
		return 3 * tr.Path.Width()
	}
	return tr.Path.Width()
}

// valid reports whether Values holds exactly one entry per key.
func (tr *Track) valid() bool {
	return len(tr.Times) > 0 && len(tr.Values) == len(tr.Times)*tr.stride()
}

func (tr *Track) key(k int) []float32 {
	s := tr.stride()
	w := tr.Path.Width()
	v := tr.Values[k*s : (k+1)*s]
	if tr.Interpolation == CubicSpline {
		return v[w : 2*w]
	}
	return v
}

// Sample evaluates the track at time t, clamping outside the key range.
// Only the first Path.Width() components of the result are meaningful.
func (tr *Track) Sample(t float32) [4]float32 {
	var out [4]float32
	last := len(tr.Times) - 1
	if t <= tr.Times[0] {
		copy(out[:], tr.key(0))
		return out
	}
	if t >= tr.Times[last] {
		copy(out[:], tr.key(last))
		return out
	}

	// first key strictly after t
	k := sort.Search(len(tr.Times), func(i int) bool { return tr.Times[i] > t }) - 1
	t0, t1 := tr.Times[k], tr.Times[k+1]
	dt := t1 - t0
	s := (t - t0) / dt

	switch tr.Interpolation {
	case Step:
		copy(out[:], tr.key(k))
	case CubicSpline:
		out = tr.hermite(k, s, dt)
	default:
		a, b := tr.key(k), tr.key(k+1)
		if tr.Path == Rotation {
			q := quat(a).Slerp(quat(b), s)
			return [4]float32{q.X, q.Y, q.Z, q.W}
		}
		for c := range a {
			out[c] = a[c] + s*(b[c]-a[c])
		}
	}
	if tr.Path == Rotation {
		q := quat(out[:]).Normalize()
		out = [4]float32{q.X, q.Y, q.Z, q.W}
	}
	return out
}

func (tr *Track) hermite(k int, s, dt float32) [4]float32 {
	w := tr.Path.Width()
	stride := tr.stride()
	p0 := tr.Values[k*stride+w : k*stride+2*w]
	m0 := tr.Values[k*stride+2*w : (k+1)*stride] // out-tangent
	p1 := tr.Values[(k+1)*stride+w : (k+1)*stride+2*w]
	m1 := tr.Values[(k+1)*stride : (k+1)*stride+w] // in-tangent

	s2 := s * s
	s3 := s2 * s
	h00 := 2*s3 - 3*s2 + 1
	h10 := s3 - 2*s2 + s
	h01 := -2*s3 + 3*s2
	h11 := s3 - s2

	var out [4]float32
	for c := 0; c < w; c++ {
		out[c] = h00*p0[c] + h10*dt*m0[c] + h01*p1[c] + h11*dt*m1[c]
	}
	return out
}

func quat(v []float32) math.Quat {
	return math.Quat{X: v[0], Y: v[1], Z: v[2], W: v[3]}
}
