package game

import (
	"fmt"

	"github.com/Faultbox/midgard-viewer/internal/database"
	"github.com/Faultbox/midgard-viewer/internal/engine/animation"
	"github.com/Faultbox/midgard-viewer/internal/engine/character"
	"github.com/Faultbox/midgard-viewer/internal/engine/renderer"
	"github.com/Faultbox/midgard-viewer/internal/viewer"
	"github.com/Faultbox/midgard-viewer/pkg/formats"
)

// MeshBuilder uploads decoded models to the GPU and wraps them in characters.
type MeshBuilder struct {
	renderer *renderer.Renderer
}

// NewMeshBuilder creates a builder that uploads through r.
func NewMeshBuilder(r *renderer.Renderer) *MeshBuilder {
	return &MeshBuilder{renderer: r}
}

// Build implements viewer.Builder. Must run on the GL thread.
func (b *MeshBuilder) Build(desc database.Descriptor, glb *formats.GLB) (*character.Character, error) {
	skeleton, err := viewer.Skeleton(glb)
	if err != nil {
		return nil, fmt.Errorf("posing %s: %w", desc.Name, err)
	}
	mesh, err := b.renderer.UploadModel(glb)
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", desc.Name, err)
	}
	return character.New(desc, animation.NewSkinnedMixer(skeleton, viewer.Clips(glb)), mesh), nil
}
