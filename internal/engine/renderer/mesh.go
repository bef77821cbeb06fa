package renderer

import (
	"errors"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/midgard-viewer/pkg/formats"
	"github.com/Faultbox/midgard-viewer/pkg/math"
)

// floatsPerVertex is position (3) + normal (3) + skin weights (4).
const floatsPerVertex = 10

// Vertex attribute locations shared by every program.
const (
	attribPosition = 0
	attribNormal   = 1
	attribWeights  = 2
	attribJoints   = 3
)

// ErrEmptyMesh is returned when a model has no drawable geometry.
var ErrEmptyMesh = errors.New("model has no triangles")

// Mesh is uploaded geometry: an interleaved float buffer, a joint index
// buffer and an index buffer.
type Mesh struct {
	vao, vbo, jbo, ebo uint32
	indexCount         int32
	color              [3]float32

	bones int         // palette size the joint indices address
	rest  []math.Mat4 // palette drawn when no pose is supplied
}

// Geometry is CPU-side vertex data ready for upload.
type Geometry struct {
	Vertices []float32 // x, y, z, nx, ny, nz, w0, w1, w2, w3
	Joints   []uint16  // four palette indices per vertex
	Indices  []uint32
	Bones    int
}

// BuildGeometry merges every primitive of a GLB into one indexed buffer.
// Positions stay in bind space; the palette places them.
func BuildGeometry(glb *formats.GLB) Geometry {
	g := Geometry{Bones: len(glb.Bones)}
	n := glb.VertexCount()
	g.Vertices = make([]float32, 0, n*floatsPerVertex)
	g.Joints = make([]uint16, 0, n*4)

	for _, m := range glb.Meshes {
		base := uint32(len(g.Vertices) / floatsPerVertex)
		for i, p := range m.Positions {
			nrm := [3]float32{0, 1, 0}
			if i < len(m.Normals) {
				nrm = m.Normals[i]
			}
			w := [4]float32{1, 0, 0, 0}
			var j [4]uint16
			if i < len(m.Weights) && i < len(m.Joints) {
				w, j = m.Weights[i], m.Joints[i]
			}
			g.Vertices = append(g.Vertices, p[0], p[1], p[2], nrm[0], nrm[1], nrm[2], w[0], w[1], w[2], w[3])
			g.Joints = append(g.Joints, j[0], j[1], j[2], j[3])
		}
		for _, idx := range m.Indices {
			g.Indices = append(g.Indices, base+idx)
		}
	}
	return g
}

// UploadMesh creates GPU buffers for a decoded model. Must be called on the
// thread that owns the GL context.
func UploadMesh(glb *formats.GLB, color [3]float32) (*Mesh, error) {
	m, err := uploadGeometry(BuildGeometry(glb), color)
	if err != nil {
		return nil, err
	}
	m.rest = glb.RestPalette()
	return m, nil
}

func uploadGeometry(g Geometry, color [3]float32) (*Mesh, error) {
	if len(g.Indices) == 0 || len(g.Vertices) == 0 {
		return nil, ErrEmptyMesh
	}

	m := &Mesh{indexCount: int32(len(g.Indices)), color: color, bones: g.Bones}

	gl.GenVertexArrays(1, &m.vao)
	gl.BindVertexArray(m.vao)

	gl.GenBuffers(1, &m.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(g.Vertices)*4, unsafe.Pointer(&g.Vertices[0]), gl.STATIC_DRAW)

	stride := int32(floatsPerVertex * 4)
	gl.VertexAttribPointerWithOffset(attribPosition, 3, gl.FLOAT, false, stride, 0)
	gl.EnableVertexAttribArray(attribPosition)
	gl.VertexAttribPointerWithOffset(attribNormal, 3, gl.FLOAT, false, stride, 3*4)
	gl.EnableVertexAttribArray(attribNormal)
	gl.VertexAttribPointerWithOffset(attribWeights, 4, gl.FLOAT, false, stride, 6*4)
	gl.EnableVertexAttribArray(attribWeights)

	if len(g.Joints) > 0 {
		gl.GenBuffers(1, &m.jbo)
		gl.BindBuffer(gl.ARRAY_BUFFER, m.jbo)
		gl.BufferData(gl.ARRAY_BUFFER, len(g.Joints)*2, unsafe.Pointer(&g.Joints[0]), gl.STATIC_DRAW)
		gl.VertexAttribIPointer(attribJoints, 4, gl.UNSIGNED_SHORT, 0, nil)
		gl.EnableVertexAttribArray(attribJoints)
	}

	gl.GenBuffers(1, &m.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, m.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(g.Indices)*4, unsafe.Pointer(&g.Indices[0]), gl.STATIC_DRAW)

	gl.BindVertexArray(0)
	return m, nil
}

// palette picks the matrices to skin with: pose when it covers every bone,
// the rest palette otherwise.
func (m *Mesh) palette(pose []math.Mat4) []math.Mat4 {
	if m.bones > 0 && len(pose) >= m.bones {
		return pose
	}
	return m.rest
}

// Release frees the GPU buffers. Safe to call more than once.
func (m *Mesh) Release() {
	if m.vao != 0 {
		gl.DeleteVertexArrays(1, &m.vao)
		m.vao = 0
	}
	for _, b := range []*uint32{&m.vbo, &m.jbo, &m.ebo} {
		if *b != 0 {
			gl.DeleteBuffers(1, b)
			*b = 0
		}
	}
	m.indexCount = 0
}

func (m *Mesh) draw() {
	if m.vao == 0 {
		return
	}
	gl.BindVertexArray(m.vao)
	gl.DrawElements(gl.TRIANGLES, m.indexCount, gl.UNSIGNED_INT, nil)
}
