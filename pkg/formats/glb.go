// Package formats decodes the model formats the viewer loads.
package formats

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/midgard-viewer/pkg/math"
)

// GLB format errors.
var (
	ErrInvalidGLBMagic       = errors.New("invalid GLB magic: expected 'glTF'")
	ErrUnsupportedGLBVersion = errors.New("unsupported GLB version")
	ErrTruncatedGLBData      = errors.New("truncated GLB data")
	ErrMissingGLBJSON        = errors.New("GLB has no JSON chunk")
	ErrUnsupportedExtension  = errors.New("unsupported glTF extension")
	ErrInvalidAccessor       = errors.New("invalid glTF accessor")
	ErrInvalidHierarchy      = errors.New("invalid glTF node hierarchy")
)

const (
	glbMagic     = 0x46546C67 // "glTF"
	glbVersion   = 2
	glbChunkJSON = 0x4E4F534A // "JSON"
	glbChunkBIN  = 0x004E4942 // "BIN\0"
)

// Required extensions the decoder can honor. Material and texture extensions
// only change shading inputs the viewer does not read.
var (
	supportedExtensions = map[string]bool{
		meshoptExtension:        true,
		"KHR_mesh_quantization": true,
		"KHR_lights_punctual":   true,
	}
	ignorablePrefixes = []string{"KHR_materials_", "KHR_texture_", "EXT_texture_"}
)

// GLB is a decoded character model: the node hierarchy, the bones that
// deform its meshes and the animation clips it carries.
type GLB struct {
	Generator  string
	Nodes      []GLBNode
	Bones      []GLBBone
	Meshes     []GLBMesh
	Animations []GLBAnimation
	Bounds     GLBBounds
}

// GLBNode is one node of the scene graph at its rest transform.
type GLBNode struct {
	Name        string
	Parent      int // -1 for roots
	Translation [3]float32
	Rotation    math.Quat
	Scale       [3]float32
	// Matrix overrides TRS. Nodes with a matrix cannot be animated.
	Matrix *math.Mat4
}

// GLBBone binds a node to mesh vertices. Skin joints come first in skin
// order, then one bone per unskinned mesh node with an identity inverse bind.
type GLBBone struct {
	Node        int
	InverseBind math.Mat4
}

// GLBMesh is one triangle primitive in bind space. Joints index GLB.Bones.
type GLBMesh struct {
	Name      string
	Node      int
	Positions [][3]float32
	Normals   [][3]float32
	Joints    [][4]uint16
	Weights   [][4]float32
	Indices   []uint32
}

// ChannelPath is the node property an animation channel drives.
type ChannelPath uint8

// Animated node properties.
const (
	PathTranslation ChannelPath = iota
	PathRotation
	PathScale
)

// Components returns the number of floats per keyframe value.
func (p ChannelPath) Components() int {
	if p == PathRotation {
		return 4
	}
	return 3
}

// Interpolation selects how values between keyframes are computed.
type Interpolation uint8

// Keyframe interpolation modes.
const (
	InterpolationLinear Interpolation = iota
	InterpolationStep
	InterpolationCubicSpline
)

// GLBChannel is the keyframe data for one property of one node.
// Values holds Components() floats per key, or three times that for
// cubic splines (in-tangent, value, out-tangent).
type GLBChannel struct {
	Node          int
	Path          ChannelPath
	Interpolation Interpolation
	Times         []float32
	Values        []float32
}

// GLBAnimation describes a named clip. Duration is in seconds.
type GLBAnimation struct {
	Name     string
	Duration float32
	Channels []GLBChannel
}

// GLBBounds is the axis-aligned box around the model at rest.
type GLBBounds struct {
	Min [3]float32
	Max [3]float32
}

// VertexCount returns the total number of vertices across meshes.
func (g *GLB) VertexCount() int {
	n := 0
	for i := range g.Meshes {
		n += len(g.Meshes[i].Positions)
	}
	return n
}

// AnimationNames returns clip names in file order.
func (g *GLB) AnimationNames() []string {
	names := make([]string, len(g.Animations))
	for i, a := range g.Animations {
		names[i] = a.Name
	}
	return names
}

// Local returns the node transform relative to its parent.
func (n *GLBNode) Local() math.Mat4 {
	if n.Matrix != nil {
		return *n.Matrix
	}
	return math.TRS(n.Translation, n.Rotation, n.Scale)
}

// NodeWorlds returns the rest transform of every node in model space.
func (g *GLB) NodeWorlds() []math.Mat4 {
	world := make([]math.Mat4, len(g.Nodes))
	done := make([]bool, len(g.Nodes))
	var resolve func(i int) math.Mat4
	resolve = func(i int) math.Mat4 {
		if done[i] {
			return world[i]
		}
		m := g.Nodes[i].Local()
		if p := g.Nodes[i].Parent; p >= 0 {
			m = resolve(p).Mul(m)
		}
		world[i], done[i] = m, true
		return m
	}
	for i := range g.Nodes {
		resolve(i)
	}
	return world
}

// RestPalette returns the skinning matrix of every bone at rest.
func (g *GLB) RestPalette() []math.Mat4 {
	world := g.NodeWorlds()
	palette := make([]math.Mat4, len(g.Bones))
	for i, b := range g.Bones {
		palette[i] = world[b.Node].Mul(b.InverseBind)
	}
	return palette
}

// LoadGLB reads and decodes a GLB file from disk.
func LoadGLB(path string) (*GLB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading GLB: %w", err)
	}
	return ParseGLB(data)
}

// ParseGLB decodes a binary glTF container.
func ParseGLB(data []byte) (*GLB, error) {
	jsonChunk, binChunk, err := splitGLB(data)
	if err != nil {
		return nil, err
	}

	doc := new(gltf.Document)
	if err := json.Unmarshal(jsonChunk, doc); err != nil {
		return nil, fmt.Errorf("parsing glTF JSON: %w", err)
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return nil, fmt.Errorf("%w: asset version %q", ErrUnsupportedGLBVersion, doc.Asset.Version)
	}
	for _, ext := range doc.ExtensionsRequired {
		if !extensionSupported(ext) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, ext)
		}
	}
	if err := loadBuffers(doc, binChunk); err != nil {
		return nil, err
	}
	if err := decompressViews(doc); err != nil {
		return nil, err
	}

	d := &decoder{doc: doc}
	return d.decode()
}

func extensionSupported(name string) bool {
	if supportedExtensions[name] {
		return true
	}
	for _, prefix := range ignorablePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// splitGLB returns the JSON and first BIN chunk of a GLB container.
func splitGLB(data []byte) (jsonChunk, binChunk []byte, err error) {
	r := bytes.NewReader(data)

	var header struct {
		Magic   uint32
		Version uint32
		Length  uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, nil, ErrTruncatedGLBData
	}
	if header.Magic != glbMagic {
		return nil, nil, ErrInvalidGLBMagic
	}
	if header.Version != glbVersion {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedGLBVersion, header.Version)
	}

	for {
		var chunk struct {
			Length uint32
			Type   uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, ErrTruncatedGLBData
		}
		if int64(chunk.Length) > int64(r.Len()) {
			return nil, nil, ErrTruncatedGLBData
		}
		payload := make([]byte, chunk.Length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, ErrTruncatedGLBData
		}
		switch chunk.Type {
		case glbChunkJSON:
			jsonChunk = payload
		case glbChunkBIN:
			if binChunk == nil {
				binChunk = payload
			}
		}
	}
	if jsonChunk == nil {
		return nil, nil, ErrMissingGLBJSON
	}
	return jsonChunk, binChunk, nil
}

// loadBuffers attaches buffer contents: the BIN chunk, embedded data URIs,
// or nothing for meshopt fallback buffers whose views are decoded later.
func loadBuffers(doc *gltf.Document, bin []byte) error {
	for i, buf := range doc.Buffers {
		if buf == nil {
			return fmt.Errorf("buffer %d: missing", i)
		}
		switch {
		case buf.URI == "" && i == 0 && bin != nil:
			buf.Data = bin
		case strings.HasPrefix(buf.URI, "data:"):
			comma := strings.IndexByte(buf.URI, ',')
			if comma < 0 || !strings.Contains(buf.URI[:comma], ";base64") {
				return fmt.Errorf("buffer %d: unsupported data URI", i)
			}
			raw, err := base64.StdEncoding.DecodeString(buf.URI[comma+1:])
			if err != nil {
				return fmt.Errorf("buffer %d: %w", i, err)
			}
			buf.Data = raw
		case buf.URI == "" && isMeshoptFallback(buf):
			continue
		case buf.URI == "":
			return fmt.Errorf("buffer %d: no URI and no BIN chunk", i)
		default:
			return fmt.Errorf("buffer %d: external buffer %q not supported in GLB", i, buf.URI)
		}
		if len(buf.Data) < buf.ByteLength {
			return fmt.Errorf("buffer %d: %w", i, ErrTruncatedGLBData)
		}
	}
	return nil
}

type decoder struct {
	doc      *gltf.Document
	skinBase []int
}

func (d *decoder) decode() (*GLB, error) {
	glb := &GLB{Generator: d.doc.Asset.Generator}
	if err := d.readNodes(glb); err != nil {
		return nil, err
	}
	if err := d.readSkins(glb); err != nil {
		return nil, err
	}

	roots, err := d.sceneRoots(glb)
	if err != nil {
		return nil, err
	}
	for _, root := range roots {
		if err := d.walkNode(glb, root); err != nil {
			return nil, err
		}
	}

	if err := d.readAnimations(glb); err != nil {
		return nil, err
	}
	glb.Bounds = computeBounds(glb.Meshes, glb.RestPalette())
	return glb, nil
}

var identity64 = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

func (d *decoder) readNodes(glb *GLB) error {
	n := len(d.doc.Nodes)
	glb.Nodes = make([]GLBNode, n)
	for i := range glb.Nodes {
		glb.Nodes[i].Parent = -1
	}

	for i, node := range d.doc.Nodes {
		if node == nil {
			return fmt.Errorf("%w: node %d missing", ErrInvalidHierarchy, i)
		}
		out := &glb.Nodes[i]
		out.Name = node.Name

		t, r, s := node.TranslationOrDefault(), node.RotationOrDefault(), node.ScaleOrDefault()
		out.Translation = [3]float32{float32(t[0]), float32(t[1]), float32(t[2])}
		out.Rotation = math.Quat{X: float32(r[0]), Y: float32(r[1]), Z: float32(r[2]), W: float32(r[3])}
		out.Scale = [3]float32{float32(s[0]), float32(s[1]), float32(s[2])}
		if m := node.MatrixOrDefault(); m != identity64 {
			var mat math.Mat4
			for k := range m {
				mat[k] = float32(m[k])
			}
			out.Matrix = &mat
		}

		for _, c := range node.Children {
			if c < 0 || c >= n {
				return fmt.Errorf("%w: node %d child %d out of range", ErrInvalidHierarchy, i, c)
			}
			if c == i || glb.Nodes[c].Parent != -1 {
				return fmt.Errorf("%w: node %d has more than one parent", ErrInvalidHierarchy, c)
			}
			glb.Nodes[c].Parent = i
		}
	}

	// single parents leave only one way to go wrong: a loop
	for i := range glb.Nodes {
		steps := 0
		for p := glb.Nodes[i].Parent; p != -1; p = glb.Nodes[p].Parent {
			if steps++; steps > n {
				return fmt.Errorf("%w: cycle through node %d", ErrInvalidHierarchy, i)
			}
		}
	}
	return nil
}

func (d *decoder) sceneRoots(glb *GLB) ([]int, error) {
	if len(d.doc.Scenes) == 0 {
		var roots []int
		for i := range glb.Nodes {
			if glb.Nodes[i].Parent == -1 {
				roots = append(roots, i)
			}
		}
		return roots, nil
	}

	idx := 0
	if d.doc.Scene != nil {
		idx = *d.doc.Scene
	}
	if idx < 0 || idx >= len(d.doc.Scenes) || d.doc.Scenes[idx] == nil {
		return nil, fmt.Errorf("scene index %d out of range", idx)
	}
	roots := d.doc.Scenes[idx].Nodes
	for _, r := range roots {
		if r < 0 || r >= len(glb.Nodes) {
			return nil, fmt.Errorf("%w: scene root %d out of range", ErrInvalidHierarchy, r)
		}
	}
	return roots, nil
}

func (d *decoder) readSkins(glb *GLB) error {
	d.skinBase = make([]int, len(d.doc.Skins))
	for s, skin := range d.doc.Skins {
		if skin == nil {
			return fmt.Errorf("skin %d missing", s)
		}
		d.skinBase[s] = len(glb.Bones)

		var ibm []float32
		if idx, ok := index(skin.InverseBindMatrices); ok {
			values, comps, err := d.readFloats(idx)
			if err != nil {
				return fmt.Errorf("skin %d inverse bind matrices: %w", s, err)
			}
			if comps != 16 || len(values) < 16*len(skin.Joints) {
				return fmt.Errorf("skin %d: %w: want one MAT4 per joint", s, ErrInvalidAccessor)
			}
			ibm = values
		}

		for j, node := range skin.Joints {
			if node < 0 || node >= len(glb.Nodes) {
				return fmt.Errorf("%w: skin %d joint %d out of range", ErrInvalidHierarchy, s, node)
			}
			bone := GLBBone{Node: node, InverseBind: math.Identity()}
			if ibm != nil {
				copy(bone.InverseBind[:], ibm[j*16:(j+1)*16])
			}
			glb.Bones = append(glb.Bones, bone)
		}
	}
	return nil
}

func (d *decoder) walkNode(glb *GLB, idx int) error {
	node := d.doc.Nodes[idx]
	if node.Mesh != nil {
		if err := d.readMesh(glb, idx); err != nil {
			return fmt.Errorf("node %q: %w", node.Name, err)
		}
	}
	for _, child := range node.Children {
		if err := d.walkNode(glb, child); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) readMesh(glb *GLB, nodeIdx int) error {
	node := d.doc.Nodes[nodeIdx]
	meshIdx := *node.Mesh
	if meshIdx < 0 || meshIdx >= len(d.doc.Meshes) || d.doc.Meshes[meshIdx] == nil {
		return fmt.Errorf("mesh index %d out of range", meshIdx)
	}
	src := d.doc.Meshes[meshIdx]

	skin := -1
	if node.Skin != nil {
		skin = *node.Skin
		if skin < 0 || skin >= len(d.doc.Skins) {
			return fmt.Errorf("skin index %d out of range", skin)
		}
	}
	rigid := -1

	for p, prim := range src.Primitives {
		if prim == nil || prim.Mode != gltf.PrimitiveTriangles {
			continue
		}
		posIdx, ok := prim.Attributes["POSITION"]
		if !ok {
			continue
		}
		positions, err := d.readVec3(posIdx)
		if err != nil {
			return fmt.Errorf("mesh %q primitive %d positions: %w", src.Name, p, err)
		}

		var normals [][3]float32
		if nIdx, ok := prim.Attributes["NORMAL"]; ok {
			normals, err = d.readVec3(nIdx)
			if err != nil {
				return fmt.Errorf("mesh %q primitive %d normals: %w", src.Name, p, err)
			}
		}

		indices, err := d.readIndices(prim.Indices, len(positions))
		if err != nil {
			return fmt.Errorf("mesh %q primitive %d indices: %w", src.Name, p, err)
		}

		if len(normals) != len(positions) {
			normals = faceNormals(positions, indices)
		} else {
			for i := range normals {
				normals[i] = normalize3(normals[i])
			}
		}

		mesh := GLBMesh{
			Name:      src.Name,
			Node:      nodeIdx,
			Positions: positions,
			Normals:   normals,
			Indices:   indices,
		}

		jIdx, hasJoints := prim.Attributes["JOINTS_0"]
		wIdx, hasWeights := prim.Attributes["WEIGHTS_0"]
		if skin >= 0 && hasJoints && hasWeights {
			if err := d.readSkinning(&mesh, skin, jIdx, wIdx); err != nil {
				return fmt.Errorf("mesh %q primitive %d: %w", src.Name, p, err)
			}
		} else {
			if rigid < 0 {
				rigid = len(glb.Bones)
				glb.Bones = append(glb.Bones, GLBBone{Node: nodeIdx, InverseBind: math.Identity()})
			}
			mesh.Joints = make([][4]uint16, len(positions))
			mesh.Weights = make([][4]float32, len(positions))
			for i := range positions {
				mesh.Joints[i] = [4]uint16{uint16(rigid)}
				mesh.Weights[i] = [4]float32{1}
			}
		}
		glb.Meshes = append(glb.Meshes, mesh)
	}
	return nil
}

func (d *decoder) readSkinning(mesh *GLBMesh, skin, jIdx, wIdx int) error {
	jacr, err := d.accessor(jIdx)
	if err != nil {
		return fmt.Errorf("joints: %w", err)
	}
	joints, err := modeler.ReadJoints(d.doc, jacr, nil)
	if err != nil {
		return fmt.Errorf("joints: %w: %v", ErrInvalidAccessor, err)
	}
	wacr, err := d.accessor(wIdx)
	if err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	weights, err := modeler.ReadWeights(d.doc, wacr, nil)
	if err != nil {
		return fmt.Errorf("weights: %w: %v", ErrInvalidAccessor, err)
	}
	if len(joints) != len(mesh.Positions) || len(weights) != len(mesh.Positions) {
		return fmt.Errorf("%w: skin attributes do not match %d vertices", ErrInvalidAccessor, len(mesh.Positions))
	}

	count := len(d.doc.Skins[skin].Joints)
	base := d.skinBase[skin]
	for v := range joints {
		var sum float32
		for k := 0; k < 4; k++ {
			if int(joints[v][k]) >= count {
				if weights[v][k] != 0 {
					return fmt.Errorf("%w: joint %d outside skin of %d", ErrInvalidAccessor, joints[v][k], count)
				}
				joints[v][k] = 0
			}
			joints[v][k] += uint16(base)
			sum += weights[v][k]
		}
		if sum > 0 {
			for k := range weights[v] {
				weights[v][k] /= sum
			}
		} else {
			weights[v] = [4]float32{1}
		}
	}
	mesh.Joints = joints
	mesh.Weights = weights
	return nil
}

func (d *decoder) readAnimations(glb *GLB) error {
	for i, anim := range d.doc.Animations {
		if anim == nil {
			continue
		}
		out := GLBAnimation{Name: anim.Name}
		if out.Name == "" {
			out.Name = fmt.Sprintf("animation_%d", i)
		}

		times := make([][]float32, len(anim.Samplers))
		for s, sampler := range anim.Samplers {
			in, ok := index(sampler.Input)
			if !ok {
				return fmt.Errorf("animation %q: sampler %d has no input: %w", out.Name, s, ErrInvalidAccessor)
			}
			keys, err := d.readScalars(in)
			if err != nil {
				return fmt.Errorf("animation %q: %w", out.Name, err)
			}
			times[s] = keys
			if acr := d.doc.Accessors[in]; len(acr.Max) > 0 {
				out.Duration = max(out.Duration, float32(acr.Max[0]))
				continue
			}
			for _, t := range keys {
				out.Duration = max(out.Duration, t)
			}
		}

		for c, ch := range anim.Channels {
			if ch == nil {
				continue
			}
			node, ok := index(ch.Target.Node)
			if !ok {
				continue
			}
			if node < 0 || node >= len(glb.Nodes) {
				return fmt.Errorf("animation %q channel %d: %w: node %d", out.Name, c, ErrInvalidHierarchy, node)
			}
			var path ChannelPath
			switch ch.Target.Path {
			case gltf.TRSTranslation:
				path = PathTranslation
			case gltf.TRSRotation:
				path = PathRotation
			case gltf.TRSScale:
				path = PathScale
			default:
				continue // morph weights
			}

			s, ok := index(ch.Sampler)
			if !ok || s < 0 || s >= len(anim.Samplers) {
				return fmt.Errorf("animation %q channel %d: sampler out of range", out.Name, c)
			}
			sampler := anim.Samplers[s]
			outIdx, ok := index(sampler.Output)
			if !ok {
				return fmt.Errorf("animation %q sampler %d has no output: %w", out.Name, s, ErrInvalidAccessor)
			}
			values, comps, err := d.readFloats(outIdx)
			if err != nil {
				return fmt.Errorf("animation %q: %w", out.Name, err)
			}

			interp := InterpolationLinear
			switch sampler.Interpolation {
			case gltf.InterpolationStep:
				interp = InterpolationStep
			case gltf.InterpolationCubicSpline:
				interp = InterpolationCubicSpline
			}
			want := len(times[s]) * path.Components()
			if interp == InterpolationCubicSpline {
				want *= 3
			}
			if comps != path.Components() || len(values) != want {
				return fmt.Errorf("animation %q channel %d: %w: %d values for %d keys", out.Name, c, ErrInvalidAccessor, len(values), len(times[s]))
			}

			out.Channels = append(out.Channels, GLBChannel{
				Node:          node,
				Path:          path,
				Interpolation: interp,
				Times:         times[s],
				Values:        values,
			})
		}
		glb.Animations = append(glb.Animations, out)
	}
	return nil
}

// index reads an optional glTF index property.
func index(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case *int:
		if x == nil {
			return 0, false
		}
		return *x, true
	case uint32:
		return int(x), true
	case *uint32:
		if x == nil {
			return 0, false
		}
		return int(*x), true
	}
	return 0, false
}

// accessor validates an accessor and the byte range its view covers
// before handing it to the modeler.
func (d *decoder) accessor(idx int) (*gltf.Accessor, error) {
	if idx < 0 || idx >= len(d.doc.Accessors) || d.doc.Accessors[idx] == nil {
		return nil, fmt.Errorf("%w: index %d", ErrInvalidAccessor, idx)
	}
	acr := d.doc.Accessors[idx]
	if acr.BufferView == nil {
		return acr, nil
	}

	v := *acr.BufferView
	if v < 0 || v >= len(d.doc.BufferViews) || d.doc.BufferViews[v] == nil {
		return nil, fmt.Errorf("%w: buffer view %d", ErrInvalidAccessor, v)
	}
	bv := d.doc.BufferViews[v]
	if bv.Buffer < 0 || bv.Buffer >= len(d.doc.Buffers) {
		return nil, fmt.Errorf("%w: buffer %d", ErrInvalidAccessor, bv.Buffer)
	}
	data := d.doc.Buffers[bv.Buffer].Data
	if bv.ByteOffset < 0 || bv.ByteLength < 0 || bv.ByteOffset+bv.ByteLength > len(data) {
		return nil, fmt.Errorf("%w: view out of buffer bounds", ErrInvalidAccessor)
	}

	elem := componentSize(acr.ComponentType) * componentCount(acr.Type)
	if elem == 0 {
		return nil, fmt.Errorf("%w: unknown element type", ErrInvalidAccessor)
	}
	stride := bv.ByteStride
	if stride == 0 {
		stride = elem
	}
	if acr.ByteOffset < 0 || (acr.Count > 0 && acr.ByteOffset+(acr.Count-1)*stride+elem > bv.ByteLength) {
		return nil, fmt.Errorf("%w: %d elements overflow view", ErrInvalidAccessor, acr.Count)
	}
	return acr, nil
}

func componentSize(c gltf.ComponentType) int {
	switch c {
	case gltf.ComponentByte, gltf.ComponentUbyte:
		return 1
	case gltf.ComponentShort, gltf.ComponentUshort:
		return 2
	case gltf.ComponentUint, gltf.ComponentFloat:
		return 4
	}
	return 0
}

func componentCount(t gltf.AccessorType) int {
	switch t {
	case gltf.AccessorScalar:
		return 1
	case gltf.AccessorVec2:
		return 2
	case gltf.AccessorVec3:
		return 3
	case gltf.AccessorVec4, gltf.AccessorMat2:
		return 4
	case gltf.AccessorMat3:
		return 9
	case gltf.AccessorMat4:
		return 16
	}
	return 0
}

// readFloats reads any accessor as a flat float slice. Normalized integer
// components (KHR_mesh_quantization) are mapped to [-1, 1] or [0, 1].
func (d *decoder) readFloats(idx int) ([]float32, int, error) {
	acr, err := d.accessor(idx)
	if err != nil {
		return nil, 0, err
	}
	comps := componentCount(acr.Type)
	if acr.BufferView == nil && acr.Sparse == nil {
		return make([]float32, acr.Count*comps), comps, nil
	}

	raw, err := modeler.ReadAccessor(d.doc, acr, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidAccessor, err)
	}
	out := appendFloats(make([]float32, 0, acr.Count*comps), reflect.ValueOf(raw), acr.Normalized)
	if len(out) != acr.Count*comps {
		return nil, 0, fmt.Errorf("%w: read %d values, want %d", ErrInvalidAccessor, len(out), acr.Count*comps)
	}
	return out, comps, nil
}

func appendFloats(dst []float32, v reflect.Value, normalized bool) []float32 {
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			dst = appendFloats(dst, v.Index(i), normalized)
		}
	case reflect.Float32, reflect.Float64:
		dst = append(dst, float32(v.Float()))
	case reflect.Int8, reflect.Int16, reflect.Int32:
		f := float32(v.Int())
		if normalized {
			f = max(f/float32(int64(1)<<(v.Type().Bits()-1)-1), -1)
		}
		dst = append(dst, f)
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		f := float32(v.Uint())
		if normalized {
			f /= float32(uint64(1)<<v.Type().Bits() - 1)
		}
		dst = append(dst, f)
	}
	return dst
}

func (d *decoder) readVec3(idx int) ([][3]float32, error) {
	values, comps, err := d.readFloats(idx)
	if err != nil {
		return nil, err
	}
	if comps != 3 {
		return nil, fmt.Errorf("%w: want VEC3, got %d components", ErrInvalidAccessor, comps)
	}
	out := make([][3]float32, len(values)/3)
	for i := range out {
		out[i] = [3]float32{values[i*3], values[i*3+1], values[i*3+2]}
	}
	return out, nil
}

func (d *decoder) readScalars(idx int) ([]float32, error) {
	values, comps, err := d.readFloats(idx)
	if err != nil {
		return nil, err
	}
	if comps != 1 {
		return nil, fmt.Errorf("%w: want SCALAR, got %d components", ErrInvalidAccessor, comps)
	}
	return values, nil
}

// readIndices reads a primitive's index accessor, or makes the implicit
// 0..n-1 list when it has none.
func (d *decoder) readIndices(ref *int, vertices int) ([]uint32, error) {
	if ref == nil {
		indices := make([]uint32, vertices)
		for i := range indices {
			indices[i] = uint32(i)
		}
		return indices, nil
	}

	acr, err := d.accessor(*ref)
	if err != nil {
		return nil, err
	}
	if acr.Type != gltf.AccessorScalar {
		return nil, fmt.Errorf("%w: index accessor is not SCALAR", ErrInvalidAccessor)
	}
	indices, err := modeler.ReadIndices(d.doc, acr, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessor, err)
	}
	for _, ix := range indices {
		if int(ix) >= vertices {
			return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidAccessor, ix)
		}
	}
	return indices, nil
}

// faceNormals builds per-vertex normals by accumulating triangle normals.
func faceNormals(positions [][3]float32, indices []uint32) [][3]float32 {
	normals := make([][3]float32, len(positions))
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := positions[indices[i]], positions[indices[i+1]], positions[indices[i+2]]
		e1 := math.Vec3{X: b[0] - a[0], Y: b[1] - a[1], Z: b[2] - a[2]}
		e2 := math.Vec3{X: c[0] - a[0], Y: c[1] - a[1], Z: c[2] - a[2]}
		n := e1.Cross(e2)
		for _, ix := range indices[i : i+3] {
			normals[ix][0] += n.X
			normals[ix][1] += n.Y
			normals[ix][2] += n.Z
		}
	}
	for i := range normals {
		normals[i] = normalize3(normals[i])
	}
	return normals
}

func normalize3(v [3]float32) [3]float32 {
	n := math.Vec3{X: v[0], Y: v[1], Z: v[2]}.Normalize()
	if n == (math.Vec3{}) {
		return [3]float32{0, 1, 0}
	}
	return n.Array()
}

// SkinPoint moves a bind-space position by up to four weighted bones.
func SkinPoint(palette []math.Mat4, p [3]float32, joints [4]uint16, weights [4]float32) [3]float32 {
	var out [3]float32
	for k := 0; k < 4; k++ {
		w := weights[k]
		if w == 0 || int(joints[k]) >= len(palette) {
			continue
		}
		q := palette[joints[k]].TransformPoint(p)
		out[0] += w * q[0]
		out[1] += w * q[1]
		out[2] += w * q[2]
	}
	return out
}

func computeBounds(meshes []GLBMesh, palette []math.Mat4) GLBBounds {
	b := GLBBounds{
		Min: [3]float32{1e10, 1e10, 1e10},
		Max: [3]float32{-1e10, -1e10, -1e10},
	}
	empty := true
	for i := range meshes {
		m := &meshes[i]
		for v, p := range m.Positions {
			if v < len(m.Joints) && v < len(m.Weights) {
				p = SkinPoint(palette, p, m.Joints[v], m.Weights[v])
			}
			empty = false
			for c := 0; c < 3; c++ {
				b.Min[c] = min(b.Min[c], p[c])
				b.Max[c] = max(b.Max[c], p[c])
			}
		}
	}
	if empty {
		return GLBBounds{}
	}
	return b
}
