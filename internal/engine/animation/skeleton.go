package animation

import (
	"errors"
	"fmt"

	"github.com/Faultbox/midgard-viewer/pkg/math"
)

// ErrInvalidSkeleton is returned for hierarchies that cannot be posed.
var ErrInvalidSkeleton = errors.New("invalid skeleton")

// Transform is a local translation, rotation and scale.
type Transform struct {
	Translation [3]float32
	Rotation    math.Quat
	Scale       [3]float32
}

// Matrix composes T * R * S.
func (t Transform) Matrix() math.Mat4 {
	return math.TRS(t.Translation, t.Rotation, t.Scale)
}

// Joint is one node of the hierarchy a model is posed through.
type Joint struct {
	Name   string
	Parent int // -1 for roots
	Rest   Transform
	// Fixed replaces the TRS transform. Tracks never drive a fixed joint.
	Fixed *math.Mat4
}

// Bone is one slot of the skinning palette.
type Bone struct {
	Joint       int
	InverseBind math.Mat4
}

// Pose holds the local transform of every joint.
type Pose []Transform

// Skeleton evaluates poses into skinning palettes.
type Skeleton struct {
	joints []Joint
	bones  []Bone
	order  []int // parents before children
}

// NewSkeleton validates the hierarchy and sorts it parents first.
func NewSkeleton(joints []Joint, bones []Bone) (*Skeleton, error) {
	n := len(joints)
	children := make([][]int, n)
	var roots []int
	for i, j := range joints {
		switch {
		case j.Parent == -1:
			roots = append(roots, i)
		case j.Parent < 0 || j.Parent >= n || j.Parent == i:
			return nil, fmt.Errorf("%w: joint %d has parent %d", ErrInvalidSkeleton, i, j.Parent)
		default:
			children[j.Parent] = append(children[j.Parent], i)
		}
	}

	order := make([]int, 0, n)
	queue := append([]int(nil), roots...)
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, i)
		queue = append(queue, children[i]...)
	}
	if len(order) != n {
		return nil, fmt.Errorf("%w: %d joints unreachable from a root", ErrInvalidSkeleton, n-len(order))
	}

	for b, bone := range bones {
		if bone.Joint < 0 || bone.Joint >= n {
			return nil, fmt.Errorf("%w: bone %d on joint %d", ErrInvalidSkeleton, b, bone.Joint)
		}
	}
	return &Skeleton{joints: joints, bones: bones, order: order}, nil
}

// Joints returns the joint count.
func (s *Skeleton) Joints() int {
	return len(s.joints)
}

// Bones returns the palette size.
func (s *Skeleton) Bones() int {
	return len(s.bones)
}

// JointIndex finds a joint by name, or -1.
func (s *Skeleton) JointIndex(name string) int {
	for i, j := range s.joints {
		if j.Name == name {
			return i
		}
	}
	return -1
}

// RestPose returns a fresh copy of every joint's rest transform.
func (s *Skeleton) RestPose() Pose {
	pose := make(Pose, len(s.joints))
	for i, j := range s.joints {
		pose[i] = j.Rest
	}
	return pose
}

// Palette writes one skinning matrix per bone for pose into out, growing
// it when needed, and returns it.
func (s *Skeleton) Palette(pose Pose, out []math.Mat4) []math.Mat4 {
	return s.skin(s.World(pose, nil), out)
}

func (s *Skeleton) skin(world, out []math.Mat4) []math.Mat4 {
	if cap(out) < len(s.bones) {
		out = make([]math.Mat4, len(s.bones))
	}
	out = out[:len(s.bones)]
	for i, b := range s.bones {
		out[i] = world[b.Joint].Mul(b.InverseBind)
	}
	return out
}

// World returns every joint's model-space matrix for pose.
func (s *Skeleton) World(pose Pose, out []math.Mat4) []math.Mat4 {
	if cap(out) < len(s.joints) {
		out = make([]math.Mat4, len(s.joints))
	}
	out = out[:len(s.joints)]
	for _, i := range s.order {
		j := &s.joints[i]
		local := pose[i].Matrix()
		if j.Fixed != nil {
			local = *j.Fixed
		}
		if j.Parent >= 0 {
			local = out[j.Parent].Mul(local)
		}
		out[i] = local
	}
	return out
}
