package viewer

import (
	"context"
	"fmt"

	"github.com/Faultbox/midgard-viewer/internal/database"
	"github.com/Faultbox/midgard-viewer/internal/engine/animation"
	"github.com/Faultbox/midgard-viewer/internal/engine/character"
	"github.com/Faultbox/midgard-viewer/pkg/formats"
)

// Loader fetches and decodes a model. It runs off the main thread and must
// not touch GPU or entity state.
type Loader interface {
	Load(ctx context.Context, desc database.Descriptor) (*formats.GLB, error)
}

// Builder turns a decoded model into a character. It runs on the main thread.
type Builder interface {
	Build(desc database.Descriptor, glb *formats.GLB) (*character.Character, error)
}

// IndexStore persists the navigation index.
type IndexStore interface {
	Load() int
	Save(num int) error
}

// Source returns raw model bytes by name.
type Source interface {
	Load(ctx context.Context, name string) ([]byte, error)
}

// AssetLoader reads <name>.glb from a Source and decodes it.
type AssetLoader struct {
	src Source
}

// NewAssetLoader creates a loader over src.
func NewAssetLoader(src Source) *AssetLoader {
	return &AssetLoader{src: src}
}

// Load implements Loader.
func (l *AssetLoader) Load(ctx context.Context, desc database.Descriptor) (*formats.GLB, error) {
	data, err := l.src.Load(ctx, desc.Name)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	glb, err := formats.ParseGLB(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", desc.Name, err)
	}
	return glb, nil
}

// Clips converts the animations of a decoded model into mixer clips with
// one track per channel. Joint indices are node indices.
func Clips(glb *formats.GLB) []animation.Clip {
	clips := make([]animation.Clip, 0, len(glb.Animations))
	for _, a := range glb.Animations {
		clip := animation.Clip{Name: a.Name, Duration: float64(a.Duration)}
		for _, ch := range a.Channels {
			clip.Tracks = append(clip.Tracks, animation.Track{
				Joint:         ch.Node,
				Path:          trackPath(ch.Path),
				Interpolation: trackInterpolation(ch.Interpolation),
				Times:         ch.Times,
				Values:        ch.Values,
			})
		}
		clips = append(clips, clip)
	}
	return clips
}

func trackPath(p formats.ChannelPath) animation.Path {
	switch p {
	case formats.PathRotation:
		return animation.Rotation
	case formats.PathScale:
		return animation.Scale
	default:
		return animation.Translation
	}
}

func trackInterpolation(i formats.Interpolation) animation.Interpolation {
	switch i {
	case formats.InterpolationStep:
		return animation.Step
	case formats.InterpolationCubicSpline:
		return animation.CubicSpline
	default:
		return animation.Linear
	}
}

// Skeleton builds the pose hierarchy of a decoded model: one joint per
// node and one palette bone per skinning slot.
func Skeleton(glb *formats.GLB) (*animation.Skeleton, error) {
	joints := make([]animation.Joint, len(glb.Nodes))
	for i, n := range glb.Nodes {
		joints[i] = animation.Joint{
			Name:   n.Name,
			Parent: n.Parent,
			Rest: animation.Transform{
				Translation: n.Translation,
				Rotation:    n.Rotation,
				Scale:       n.Scale,
			},
			Fixed: n.Matrix,
		}
	}
	bones := make([]animation.Bone, len(glb.Bones))
	for i, b := range glb.Bones {
		bones[i] = animation.Bone{Joint: b.Node, InverseBind: b.InverseBind}
	}
	return animation.NewSkeleton(joints, bones)
}
