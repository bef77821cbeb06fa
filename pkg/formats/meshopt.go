package formats

// EXT_meshopt_compression: buffer views whose bytes were packed by the
// meshoptimizer vertex, index or index-sequence codecs, optionally followed
// by a decode filter.

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	gomath "math"

	"github.com/qmuntal/gltf"
)

const meshoptExtension = "EXT_meshopt_compression"

// ErrMeshoptData is returned for corrupt or unsupported compressed streams.
var ErrMeshoptData = errors.New("invalid meshopt data")

const (
	vertexHeader   = 0xa0
	indexHeader    = 0xe0
	sequenceHeader = 0xd0

	vertexBlockBytes = 8192
	vertexBlockMax   = 256
	byteGroupSize    = 16
	vertexTailMin    = 32
)

// meshoptView is the extension object. Buffers carry only Fallback; buffer
// views carry the rest.
type meshoptView struct {
	Buffer     int    `json:"buffer"`
	ByteOffset int    `json:"byteOffset"`
	ByteLength int    `json:"byteLength"`
	ByteStride int    `json:"byteStride"`
	Count      int    `json:"count"`
	Mode       string `json:"mode"`
	Filter     string `json:"filter"`
	Fallback   bool   `json:"fallback"`
}

func init() {
	gltf.RegisterExtension(meshoptExtension, func(data []byte) (any, error) {
		ext := new(meshoptView)
		if err := json.Unmarshal(data, ext); err != nil {
			return nil, err
		}
		return ext, nil
	})
}

// meshoptOf returns the extension object attached to ext, if any.
func meshoptOf(ext gltf.Extensions) (*meshoptView, error) {
	raw, ok := ext[meshoptExtension]
	if !ok {
		return nil, nil
	}
	if v, ok := raw.(*meshoptView); ok {
		return v, nil
	}
	// unregistered extensions stay as raw JSON
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	v := new(meshoptView)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	return v, nil
}

func isMeshoptFallback(buf *gltf.Buffer) bool {
	v, err := meshoptOf(buf.Extensions)
	return err == nil && v != nil && v.Fallback
}

// decompressViews decodes every compressed buffer view into a new buffer
// and points the view at it, so accessors read plain data afterwards.
func decompressViews(doc *gltf.Document) error {
	for i, bv := range doc.BufferViews {
		if bv == nil {
			continue
		}
		ext, err := meshoptOf(bv.Extensions)
		if err != nil {
			return fmt.Errorf("buffer view %d: %w: %v", i, ErrMeshoptData, err)
		}
		if ext == nil {
			continue
		}
		if ext.Buffer < 0 || ext.Buffer >= len(doc.Buffers) || doc.Buffers[ext.Buffer] == nil {
			return fmt.Errorf("buffer view %d: %w: buffer %d", i, ErrMeshoptData, ext.Buffer)
		}
		src := doc.Buffers[ext.Buffer].Data
		if ext.ByteOffset < 0 || ext.ByteLength < 0 || ext.ByteOffset+ext.ByteLength > len(src) {
			return fmt.Errorf("buffer view %d: %w: source out of bounds", i, ErrMeshoptData)
		}
		if ext.Count < 0 || ext.ByteStride <= 0 {
			return fmt.Errorf("buffer view %d: %w: count %d stride %d", i, ErrMeshoptData, ext.Count, ext.ByteStride)
		}

		out, err := decodeMeshopt(ext, src[ext.ByteOffset:ext.ByteOffset+ext.ByteLength])
		if err != nil {
			return fmt.Errorf("buffer view %d: %w", i, err)
		}

		doc.Buffers = append(doc.Buffers, &gltf.Buffer{ByteLength: len(out), Data: out})
		bv.Buffer = len(doc.Buffers) - 1
		bv.ByteOffset = 0
		bv.ByteLength = len(out)
		if ext.Mode == "ATTRIBUTES" {
			bv.ByteStride = ext.ByteStride
		}
		delete(bv.Extensions, meshoptExtension)
	}
	return nil
}

func decodeMeshopt(ext *meshoptView, src []byte) ([]byte, error) {
	out := make([]byte, ext.Count*ext.ByteStride)
	var err error
	switch ext.Mode {
	case "ATTRIBUTES":
		err = decodeVertexBuffer(out, ext.Count, ext.ByteStride, src)
	case "TRIANGLES":
		err = decodeIndexBuffer(out, ext.Count, ext.ByteStride, src)
	case "INDICES":
		err = decodeIndexSequence(out, ext.Count, ext.ByteStride, src)
	default:
		return nil, fmt.Errorf("%w: mode %q", ErrMeshoptData, ext.Mode)
	}
	if err != nil {
		return nil, err
	}

	switch ext.Filter {
	case "", "NONE":
	case "OCTAHEDRAL":
		err = filterOctahedral(out, ext.Count, ext.ByteStride)
	case "QUATERNION":
		err = filterQuaternion(out, ext.Count, ext.ByteStride)
	case "EXPONENTIAL":
		err = filterExponential(out, ext.Count, ext.ByteStride)
	default:
		err = fmt.Errorf("%w: filter %q", ErrMeshoptData, ext.Filter)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func vertexBlockSize(stride int) int {
	n := vertexBlockBytes / stride
	n &^= byteGroupSize - 1
	return min(n, vertexBlockMax)
}

func unzigzag8(v byte) byte {
	return -(v & 1) ^ (v >> 1)
}

// decodeVertexBuffer reverses the byte-lane delta coding of count vertices
// of stride bytes each.
func decodeVertexBuffer(dst []byte, count, stride int, src []byte) error {
	if stride <= 0 || stride > 256 || stride%4 != 0 {
		return fmt.Errorf("%w: vertex stride %d", ErrMeshoptData, stride)
	}
	if len(dst) < count*stride {
		return fmt.Errorf("%w: output too small", ErrMeshoptData)
	}
	if len(src) < 1+stride {
		return fmt.Errorf("%w: vertex stream too short", ErrMeshoptData)
	}
	if src[0]&0xf0 != vertexHeader {
		return fmt.Errorf("%w: vertex header %#x", ErrMeshoptData, src[0])
	}
	if version := src[0] & 0x0f; version > 0 {
		return fmt.Errorf("%w: vertex codec version %d", ErrMeshoptData, version)
	}

	data := src[1:]
	tail := max(vertexTailMin, stride)
	if len(data) < tail {
		return fmt.Errorf("%w: vertex stream too short", ErrMeshoptData)
	}
	// the tail ends with the first vertex, the base of the first deltas
	var last [256]byte
	copy(last[:stride], data[len(data)-stride:])
	body := data[:len(data)-tail]

	var lane [vertexBlockMax]byte
	blockSize := vertexBlockSize(stride)
	pos := 0
	for offset := 0; offset < count; {
		n := min(count-offset, blockSize)
		aligned := (n + byteGroupSize - 1) &^ (byteGroupSize - 1)
		block := dst[offset*stride:]

		for k := 0; k < stride; k++ {
			var err error
			if pos, err = decodeBytes(body, pos, lane[:aligned]); err != nil {
				return err
			}
			p := last[k]
			for i := 0; i < n; i++ {
				p += unzigzag8(lane[i])
				block[i*stride+k] = p
			}
		}

		copy(last[:stride], block[(n-1)*stride:n*stride])
		offset += n
	}
	if pos != len(body) {
		return fmt.Errorf("%w: %d trailing vertex bytes", ErrMeshoptData, len(body)-pos)
	}
	return nil
}

// decodeBytes reads one byte lane: a 2-bit mode per group of 16, then the groups.
func decodeBytes(data []byte, pos int, out []byte) (int, error) {
	groups := len(out) / byteGroupSize
	headerSize := (groups + 3) / 4
	if len(data)-pos < headerSize {
		return 0, fmt.Errorf("%w: truncated lane header", ErrMeshoptData)
	}
	header := data[pos : pos+headerSize]
	pos += headerSize

	for g := 0; g < groups; g++ {
		mode := header[g/4] >> ((g % 4) * 2) & 3
		var err error
		if pos, err = decodeBytesGroup(data, pos, out[g*byteGroupSize:(g+1)*byteGroupSize], mode); err != nil {
			return 0, err
		}
	}
	return pos, nil
}

// decodeBytesGroup decodes 16 bytes stored as zeros, packed 2-bit or 4-bit
// values with escapes for the all-ones code, or raw bytes.
func decodeBytesGroup(data []byte, pos int, out []byte, mode byte) (int, error) {
	switch mode {
	case 0:
		clear(out)
		return pos, nil
	case 3:
		if len(data)-pos < byteGroupSize {
			return 0, fmt.Errorf("%w: truncated raw group", ErrMeshoptData)
		}
		copy(out, data[pos:pos+byteGroupSize])
		return pos + byteGroupSize, nil
	}

	bits := 1 << mode
	packed := bits * byteGroupSize / 8
	if len(data)-pos < packed {
		return 0, fmt.Errorf("%w: truncated packed group", ErrMeshoptData)
	}
	sentinel := byte(1<<bits - 1)
	escape := pos + packed
	for i := 0; i < byteGroupSize; i++ {
		bit := i * bits
		enc := data[pos+bit/8] >> (8 - bits - bit%8) & sentinel
		if enc == sentinel {
			if escape >= len(data) {
				return 0, fmt.Errorf("%w: truncated escapes", ErrMeshoptData)
			}
			enc = data[escape]
			escape++
		}
		out[i] = enc
	}
	return escape, nil
}

func writeIndex(dst []byte, i, size int, v uint32) {
	if size == 2 {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(v))
		return
	}
	binary.LittleEndian.PutUint32(dst[i*4:], v)
}

// byteReader bounds every read of a compressed index stream.
type byteReader struct {
	data []byte
	pos  int
	end  int
	err  error
}

func (r *byteReader) byte() byte {
	if r.pos >= r.end {
		r.err = fmt.Errorf("%w: truncated index stream", ErrMeshoptData)
		return 0
	}
	b := r.data[r.pos]
	r.pos++
	return b
}

func (r *byteReader) vbyte() uint32 {
	lead := r.byte()
	if lead < 128 {
		return uint32(lead)
	}
	result := uint32(lead & 127)
	shift := 7
	for i := 0; i < 4; i++ {
		group := r.byte()
		result |= uint32(group&127) << shift
		shift += 7
		if group < 128 {
			break
		}
	}
	return result
}

func (r *byteReader) delta(last uint32) uint32 {
	v := r.vbyte()
	return last + ((v >> 1) ^ -(v & 1))
}

// decodeIndexBuffer rebuilds a triangle list from the edge and vertex FIFO
// coding. count must be a multiple of three.
func decodeIndexBuffer(dst []byte, count, size int, src []byte) error {
	if count%3 != 0 || (size != 2 && size != 4) {
		return fmt.Errorf("%w: index count %d size %d", ErrMeshoptData, count, size)
	}
	if len(dst) < count*size {
		return fmt.Errorf("%w: output too small", ErrMeshoptData)
	}
	if len(src) < 1+count/3+16 {
		return fmt.Errorf("%w: index stream too short", ErrMeshoptData)
	}
	if src[0]&0xf0 != indexHeader {
		return fmt.Errorf("%w: index header %#x", ErrMeshoptData, src[0])
	}
	version := src[0] & 0x0f
	if version > 1 {
		return fmt.Errorf("%w: index codec version %d", ErrMeshoptData, version)
	}

	var edges [16][2]uint32
	var verts [16]uint32
	for i := range edges {
		edges[i] = [2]uint32{^uint32(0), ^uint32(0)}
		verts[i] = ^uint32(0)
	}
	edgeOff, vertOff := 0, 0
	pushEdge := func(a, b uint32) {
		edges[edgeOff] = [2]uint32{a, b}
		edgeOff = (edgeOff + 1) & 15
	}
	pushVert := func(v uint32, advance bool) {
		verts[vertOff] = v
		if advance {
			vertOff = (vertOff + 1) & 15
		}
	}

	fecmax := 15
	if version >= 1 {
		fecmax = 13
	}

	codes := src[1 : 1+count/3]
	safeEnd := len(src) - 16
	auxTable := src[safeEnd:]
	r := &byteReader{data: src, pos: 1 + count/3, end: safeEnd}

	var next, last uint32
	for i := 0; i < count; i += 3 {
		if r.pos > safeEnd {
			return fmt.Errorf("%w: index data overruns table", ErrMeshoptData)
		}
		codetri := codes[i/3]

		switch {
		case codetri < 0xf0:
			fe := int(codetri >> 4)
			e := edges[(edgeOff-1-fe)&15]
			a, b := e[0], e[1]
			fec := int(codetri & 15)

			if fec < fecmax {
				c := verts[(vertOff-1-fec)&15]
				if fec == 0 {
					c = next
					next++
				}
				writeTriangle(dst, i, size, a, b, c)
				pushVert(c, fec == 0)
				pushEdge(c, b)
				pushEdge(a, c)
			} else {
				var c uint32
				if fec != 15 {
					// 13 and 14 step the last free index by -1 and +1
					c = last + uint32(fec-(fec^3))
				} else {
					c = r.delta(last)
				}
				last = c
				writeTriangle(dst, i, size, a, b, c)
				pushVert(c, true)
				pushEdge(c, b)
				pushEdge(a, c)
			}

		case codetri < 0xfe:
			aux := auxTable[codetri&15]
			feb, fec := int(aux>>4), int(aux&15)

			a := next
			next++
			b := verts[(vertOff-feb)&15]
			if feb == 0 {
				b = next
				next++
			}
			c := verts[(vertOff-fec)&15]
			if fec == 0 {
				c = next
				next++
			}
			writeTriangle(dst, i, size, a, b, c)
			pushVert(a, true)
			pushVert(b, feb == 0)
			pushVert(c, fec == 0)
			pushEdge(b, a)
			pushEdge(c, b)
			pushEdge(a, c)

		default:
			aux := r.byte()
			fea := 0
			if codetri != 0xfe {
				fea = 15
			}
			feb, fec := int(aux>>4), int(aux&15)
			if aux == 0 {
				next = 0
			}

			var a, b, c uint32
			if fea == 0 {
				a = next
				next++
			}
			if feb == 0 {
				b = next
				next++
			} else {
				b = verts[(vertOff-feb)&15]
			}
			if fec == 0 {
				c = next
				next++
			} else {
				c = verts[(vertOff-fec)&15]
			}
			if fea == 15 {
				a = r.delta(last)
				last = a
			}
			if feb == 15 {
				b = r.delta(last)
				last = b
			}
			if fec == 15 {
				c = r.delta(last)
				last = c
			}
			writeTriangle(dst, i, size, a, b, c)
			pushVert(a, true)
			pushVert(b, feb == 0 || feb == 15)
			pushVert(c, fec == 0 || fec == 15)
			pushEdge(b, a)
			pushEdge(c, b)
			pushEdge(a, c)
		}
		if r.err != nil {
			return r.err
		}
	}
	if r.pos != safeEnd {
		return fmt.Errorf("%w: %d unread index bytes", ErrMeshoptData, safeEnd-r.pos)
	}
	return nil
}

func writeTriangle(dst []byte, i, size int, a, b, c uint32) {
	writeIndex(dst, i, size, a)
	writeIndex(dst, i+1, size, b)
	writeIndex(dst, i+2, size, c)
}

// decodeIndexSequence decodes indices delta-coded against two baselines.
func decodeIndexSequence(dst []byte, count, size int, src []byte) error {
	if size != 2 && size != 4 {
		return fmt.Errorf("%w: index size %d", ErrMeshoptData, size)
	}
	if len(dst) < count*size {
		return fmt.Errorf("%w: output too small", ErrMeshoptData)
	}
	if len(src) < 1+count+4 {
		return fmt.Errorf("%w: sequence stream too short", ErrMeshoptData)
	}
	if src[0]&0xf0 != sequenceHeader {
		return fmt.Errorf("%w: sequence header %#x", ErrMeshoptData, src[0])
	}
	if version := src[0] & 0x0f; version > 1 {
		return fmt.Errorf("%w: sequence codec version %d", ErrMeshoptData, version)
	}

	safeEnd := len(src) - 4
	r := &byteReader{data: src, pos: 1, end: safeEnd}
	var last [2]uint32
	for i := 0; i < count; i++ {
		if r.pos >= safeEnd {
			return fmt.Errorf("%w: sequence data overruns tail", ErrMeshoptData)
		}
		v := r.vbyte()
		if r.err != nil {
			return r.err
		}
		baseline := v & 1
		v >>= 1
		last[baseline] += (v >> 1) ^ -(v & 1)
		writeIndex(dst, i, size, last[baseline])
	}
	if r.pos != safeEnd {
		return fmt.Errorf("%w: %d unread sequence bytes", ErrMeshoptData, safeEnd-r.pos)
	}
	return nil
}

// filterOctahedral expands octahedral-mapped unit vectors stored as
// 4 x int8 or 4 x int16. The fourth component is left alone.
func filterOctahedral(data []byte, count, stride int) error {
	switch stride {
	case 4:
		for i := 0; i < count; i++ {
			v := data[i*4:]
			x, y, z := octahedral(float32(int8(v[0])), float32(int8(v[1])), float32(int8(v[2])), 127)
			v[0], v[1], v[2] = byte(int8(x)), byte(int8(y)), byte(int8(z))
		}
	case 8:
		for i := 0; i < count; i++ {
			v := data[i*8:]
			x, y, z := octahedral(
				float32(int16(binary.LittleEndian.Uint16(v[0:]))),
				float32(int16(binary.LittleEndian.Uint16(v[2:]))),
				float32(int16(binary.LittleEndian.Uint16(v[4:]))),
				32767)
			binary.LittleEndian.PutUint16(v[0:], uint16(int16(x)))
			binary.LittleEndian.PutUint16(v[2:], uint16(int16(y)))
			binary.LittleEndian.PutUint16(v[4:], uint16(int16(z)))
		}
	default:
		return fmt.Errorf("%w: octahedral stride %d", ErrMeshoptData, stride)
	}
	return nil
}

func octahedral(x, y, one, scale float32) (int32, int32, int32) {
	z := one - abs32(x) - abs32(y)
	// fold back the lower hemisphere
	t := min(z, 0)
	if x >= 0 {
		x += t
	} else {
		x -= t
	}
	if y >= 0 {
		y += t
	} else {
		y -= t
	}
	s := scale / float32(gomath.Sqrt(float64(x*x+y*y+z*z)))
	return round32(x * s), round32(y * s), round32(z * s)
}

// filterQuaternion rebuilds unit quaternions stored as three int16
// components plus the index of the dropped largest one.
func filterQuaternion(data []byte, count, stride int) error {
	if stride != 8 {
		return fmt.Errorf("%w: quaternion stride %d", ErrMeshoptData, stride)
	}
	scale := float32(1 / gomath.Sqrt2)
	for i := 0; i < count; i++ {
		v := data[i*8:]
		var q [4]int16
		for k := range q {
			q[k] = int16(binary.LittleEndian.Uint16(v[k*2:]))
		}

		sf := int32(q[3]) | 3
		ss := scale / float32(sf)
		x := float32(q[0]) * ss
		y := float32(q[1]) * ss
		z := float32(q[2]) * ss
		w := float32(gomath.Sqrt(float64(max(1-x*x-y*y-z*z, 0))))

		qc := int(q[3] & 3)
		out := [4]int32{}
		out[(qc+1)&3] = round32(x * 32767)
		out[(qc+2)&3] = round32(y * 32767)
		out[(qc+3)&3] = round32(z * 32767)
		out[qc] = round32(w * 32767)
		for k := range out {
			binary.LittleEndian.PutUint16(v[k*2:], uint16(int16(out[k])))
		}
	}
	return nil
}

// filterExponential turns packed 24-bit mantissa / 8-bit exponent words
// into float32.
func filterExponential(data []byte, count, stride int) error {
	if stride%4 != 0 {
		return fmt.Errorf("%w: exponential stride %d", ErrMeshoptData, stride)
	}
	for i := 0; i < count*stride/4; i++ {
		v := binary.LittleEndian.Uint32(data[i*4:])
		m := int32(v<<8) >> 8
		e := int32(v) >> 24
		f := float32(gomath.Ldexp(float64(m), int(e)))
		binary.LittleEndian.PutUint32(data[i*4:], gomath.Float32bits(f))
	}
	return nil
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func round32(v float32) int32 {
	if v >= 0 {
		return int32(v + 0.5)
	}
	return int32(v - 0.5)
}
