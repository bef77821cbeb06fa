// Package renderer provides OpenGL rendering functionality.
package renderer

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-viewer/internal/engine/camera"
	"github.com/Faultbox/midgard-viewer/internal/engine/lighting"
	"github.com/Faultbox/midgard-viewer/internal/engine/shader"
	"github.com/Faultbox/midgard-viewer/internal/engine/shadow"
	"github.com/Faultbox/midgard-viewer/internal/logger"
	"github.com/Faultbox/midgard-viewer/pkg/formats"
	"github.com/Faultbox/midgard-viewer/pkg/math"
)

// Config holds renderer configuration.
type Config struct {
	Width       int
	Height      int
	Background  uint32 // 0xRRGGBB
	GroundSize  float32
	GroundColor uint32
	ModelColor  uint32

	Shadows       bool
	ShadowSize    int32
	ShadowFrustum shadow.Frustum
	ShadowBias    float32
	LightPosition [3]float32 // shadow camera position, aimed at the origin
}

// Texture units shared by the programs.
const (
	unitShadow = 0
	unitJoints = 1
)

// Item is one mesh drawn with a model matrix and its skinning palette.
// A nil Joints draws the mesh in its rest pose.
type Item struct {
	Mesh   *Mesh
	Model  math.Mat4
	Joints []math.Mat4
}

// Renderer draws the ground plane and character meshes, with an optional
// depth pass for the directional light's shadows.
type Renderer struct {
	config  Config
	program *shader.Program
	depth   *shader.Program
	ground  *Mesh

	// joint palette buffer texture
	jointBuf, jointTex uint32

	shadowMap  *shadow.Map
	lightSpace math.Mat4
}

// New creates a new renderer.
// IMPORTANT: Must be called AFTER OpenGL context is created!
func New(cfg Config) (*Renderer, error) {
	r := &Renderer{config: cfg}

	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	logger.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	bg := lighting.HexColor(cfg.Background)
	gl.ClearColor(bg[0], bg[1], bg[2], 1.0)

	var err error
	r.program, err = shader.NewProgram(litVertexShader, litFragmentShader)
	if err != nil {
		return nil, fmt.Errorf("failed to create shader program: %w", err)
	}
	r.depth, err = shader.NewProgram(depthVertexShader, depthFragmentShader)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to create depth program: %w", err)
	}

	r.ground, err = uploadGeometry(GroundGeometry(cfg.GroundSize), lighting.HexColor(cfg.GroundColor))
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to create ground plane: %w", err)
	}

	gl.GenBuffers(1, &r.jointBuf)
	gl.BindBuffer(gl.TEXTURE_BUFFER, r.jointBuf)
	gl.GenTextures(1, &r.jointTex)
	gl.BindTexture(gl.TEXTURE_BUFFER, r.jointTex)
	gl.TexBuffer(gl.TEXTURE_BUFFER, gl.RGBA32F, r.jointBuf)
	r.uploadJoints([]math.Mat4{math.Identity()})

	if cfg.Shadows {
		r.shadowMap, err = shadow.NewMap(cfg.ShadowSize)
		if err != nil {
			// draw unshadowed rather than not at all
			logger.Warn("shadows disabled", zap.Error(err))
		} else {
			r.lightSpace = shadow.LightMatrix(cfg.LightPosition, [3]float32{}, cfg.ShadowFrustum)
			logger.Info("shadow map ready", zap.Int32("size", r.shadowMap.Resolution))
		}
	}

	for _, p := range []*shader.Program{r.program, r.depth} {
		p.Use()
		p.SetInt("uShadowMap", unitShadow)
		p.SetInt("uJoints", unitJoints)
	}

	gl.Viewport(0, 0, int32(cfg.Width), int32(cfg.Height))
	return r, nil
}

// UploadModel uploads decoded geometry using the configured model color.
func (r *Renderer) UploadModel(glb *formats.GLB) (*Mesh, error) {
	return UploadMesh(glb, r.ModelColor())
}

// ModelColor returns the color used for character meshes.
func (r *Renderer) ModelColor() [3]float32 {
	return lighting.HexColor(r.config.ModelColor)
}

// Close cleans up renderer resources.
func (r *Renderer) Close() {
	logger.Info("closing renderer")
	if r.ground != nil {
		r.ground.Release()
	}
	if r.shadowMap != nil {
		r.shadowMap.Destroy()
	}
	if r.jointTex != 0 {
		gl.DeleteTextures(1, &r.jointTex)
		r.jointTex = 0
	}
	if r.jointBuf != 0 {
		gl.DeleteBuffers(1, &r.jointBuf)
		r.jointBuf = 0
	}
	for _, p := range []*shader.Program{r.program, r.depth} {
		if p != nil {
			p.Delete()
		}
	}
}

// Shadows reports whether the depth pass is active.
func (r *Renderer) Shadows() bool {
	return r.shadowMap != nil
}

// Resize handles window resize.
func (r *Renderer) Resize(width, height int) {
	r.config.Width = width
	r.config.Height = height
	gl.Viewport(0, 0, int32(width), int32(height))
	logger.Debug("renderer resized",
		zap.Int("width", width),
		zap.Int("height", height),
	)
}

// Render draws the shadow casters into the depth map, then clears the
// frame and draws the ground followed by items.
func (r *Renderer) Render(cam *camera.Camera, lights lighting.Lights, items []Item) {
	gl.ActiveTexture(gl.TEXTURE0 + unitJoints)
	gl.BindTexture(gl.TEXTURE_BUFFER, r.jointTex)

	if r.shadowMap != nil {
		r.renderShadowPass(items)
	}

	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	p := r.program
	p.Use()

	vp := cam.ViewProjection()
	p.SetMat4("uViewProj", (*[16]float32)(&vp))
	p.SetMat4("uLightSpace", (*[16]float32)(&r.lightSpace))
	p.SetVec3("uAmbient", lights.Ambient)
	p.SetVec3("uLightDir", lights.Direction)
	p.SetVec3("uLightColor", lights.Color)
	p.SetFloat("uLightIntensity", lights.Intensity)
	p.SetFloat("uShadowBias", r.config.ShadowBias)
	if r.shadowMap != nil {
		r.shadowMap.BindTexture(gl.TEXTURE0 + unitShadow)
	}

	// the ground only receives, meshes only cast
	identity := math.Identity()
	p.SetInt("uReceiveShadow", boolInt(r.shadowMap != nil))
	p.SetInt("uSkinned", 0)
	p.SetMat4("uModel", (*[16]float32)(&identity))
	p.SetVec3("uColor", r.ground.color)
	r.ground.draw()

	p.SetInt("uReceiveShadow", 0)
	for i := range items {
		if items[i].Mesh == nil {
			continue
		}
		r.drawMesh(p, &items[i])
		p.SetVec3("uColor", items[i].Mesh.color)
		items[i].Mesh.draw()
	}

	gl.BindVertexArray(0)
}

func (r *Renderer) renderShadowPass(items []Item) {
	r.shadowMap.Bind()
	defer r.shadowMap.Unbind()

	r.depth.Use()
	r.depth.SetMat4("uLightSpace", (*[16]float32)(&r.lightSpace))
	for i := range items {
		if items[i].Mesh == nil {
			continue
		}
		r.drawMesh(r.depth, &items[i])
		items[i].Mesh.draw()
	}
}

// drawMesh uploads the item's palette and model matrix to p.
func (r *Renderer) drawMesh(p *shader.Program, it *Item) {
	palette := it.Mesh.palette(it.Joints)
	skinned := len(palette) > 0
	if skinned {
		r.uploadJoints(palette)
	}
	p.SetInt("uSkinned", boolInt(skinned))
	p.SetMat4("uModel", (*[16]float32)(&it.Model))
}

func (r *Renderer) uploadJoints(palette []math.Mat4) {
	gl.BindBuffer(gl.TEXTURE_BUFFER, r.jointBuf)
	gl.BufferData(gl.TEXTURE_BUFFER, len(palette)*16*4, unsafe.Pointer(&palette[0]), gl.STREAM_DRAW)
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
