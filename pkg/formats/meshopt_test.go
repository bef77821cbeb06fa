package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	gomath "math"
	"testing"
)

func zigzag8(v byte) byte {
	return byte(int8(v)>>7) ^ (v << 1)
}

// encodeVertexBuffer is the inverse of decodeVertexBuffer, picking the
// smallest group mode per 16 bytes.
func encodeVertexBuffer(vertices []byte, count, stride int) []byte {
	out := []byte{vertexHeader}
	var last [256]byte
	copy(last[:stride], vertices[:stride])

	block := vertexBlockSize(stride)
	for offset := 0; offset < count; offset += block {
		n := min(count-offset, block)
		aligned := (n + byteGroupSize - 1) &^ (byteGroupSize - 1)
		for k := 0; k < stride; k++ {
			lane := make([]byte, aligned)
			p := last[k]
			for i := 0; i < n; i++ {
				v := vertices[(offset+i)*stride+k]
				lane[i] = zigzag8(v - p)
				p = v
			}
			out = encodeBytes(out, lane)
		}
		copy(last[:stride], vertices[(offset+n-1)*stride:(offset+n)*stride])
	}

	if stride < vertexTailMin {
		out = append(out, make([]byte, vertexTailMin-stride)...)
	}
	return append(out, vertices[:stride]...)
}

func encodeBytes(out, lane []byte) []byte {
	groups := len(lane) / byteGroupSize
	header := len(out)
	out = append(out, make([]byte, (groups+3)/4)...)
	for g := 0; g < groups; g++ {
		group := lane[g*byteGroupSize : (g+1)*byteGroupSize]
		mode, best := byte(3), byteGroupSize
		for m := byte(2); ; m-- {
			if size := groupSize(group, m); size <= best {
				mode, best = m, size
			}
			if m == 0 {
				break
			}
		}
		out[header+g/4] |= mode << ((g % 4) * 2)
		out = encodeGroup(out, group, mode)
	}
	return out
}

func groupSize(group []byte, mode byte) int {
	if mode == 0 {
		for _, v := range group {
			if v != 0 {
				return 1 << 30
			}
		}
		return 0
	}
	bits := 1 << mode
	sentinel := byte(1<<bits - 1)
	size := bits * byteGroupSize / 8
	for _, v := range group {
		if v >= sentinel {
			size++
		}
	}
	return size
}

func encodeGroup(out, group []byte, mode byte) []byte {
	switch mode {
	case 0:
		return out
	case 3:
		return append(out, group...)
	}
	bits := 1 << mode
	sentinel := byte(1<<bits - 1)
	packed := make([]byte, bits*byteGroupSize/8)
	var escapes []byte
	for i, v := range group {
		enc := min(v, sentinel)
		if v >= sentinel {
			escapes = append(escapes, v)
		}
		bit := i * bits
		packed[bit/8] |= enc << (8 - bits - bit%8)
	}
	return append(append(out, packed...), escapes...)
}

// testVertices fills count vertices with constant, slowly varying and
// noisy lanes so every group mode shows up.
func testVertices(count, stride int) []byte {
	data := make([]byte, count*stride)
	seed := uint32(7)
	for i := 0; i < count; i++ {
		for k := 0; k < stride; k++ {
			var v byte
			switch k % 4 {
			case 0:
				v = 42
			case 1:
				v = byte(i / 3)
			case 2:
				v = byte(i * 5)
			default:
				seed = seed*1664525 + 1013904223
				v = byte(seed >> 24)
			}
			data[i*stride+k] = v
		}
	}
	return data
}

func TestVertexCodecRoundTrip(t *testing.T) {
	tests := []struct {
		name          string
		count, stride int
	}{
		{"single vertex", 1, 12},
		{"partial group", 17, 4},
		{"two blocks", 300, 12},
		{"wide vertex", 40, 48},
		{"stride over tail", 20, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := testVertices(tt.count, tt.stride)
			encoded := encodeVertexBuffer(src, tt.count, tt.stride)

			got := make([]byte, len(src))
			if err := decodeVertexBuffer(got, tt.count, tt.stride, encoded); err != nil {
				t.Fatalf("decodeVertexBuffer: %v", err)
			}
			if !bytes.Equal(got, src) {
				t.Errorf("round trip mismatch")
			}
		})
	}
}

func TestVertexCodecFloats(t *testing.T) {
	src := f32bytes(0, 0, 0, 1, 0.5, -2, 3.25, 0, 1, -1, 1e6, 0.001)
	got := make([]byte, len(src))
	if err := decodeVertexBuffer(got, 4, 12, encodeVertexBuffer(src, 4, 12)); err != nil {
		t.Fatalf("decodeVertexBuffer: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Errorf("decoded %v, want %v", got, src)
	}
}

func TestVertexCodecErrors(t *testing.T) {
	src := testVertices(8, 12)
	valid := encodeVertexBuffer(src, 8, 12)

	badHeader := append([]byte(nil), valid...)
	badHeader[0] = 0xb0
	future := append([]byte(nil), valid...)
	future[0] = 0xa1
	trailing := append(append([]byte(nil), valid[:len(valid)-32]...), append([]byte{0}, valid[len(valid)-32:]...)...)

	tests := []struct {
		name   string
		data   []byte
		stride int
	}{
		{"bad header", badHeader, 12},
		{"future version", future, 12},
		{"too short", valid[:8], 12},
		{"trailing bytes", trailing, 12},
		{"odd stride", valid, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, 8*tt.stride)
			if err := decodeVertexBuffer(dst, 8, tt.stride, tt.data); !errors.Is(err, ErrMeshoptData) {
				t.Errorf("expected ErrMeshoptData, got %v", err)
			}
		})
	}
}

func readIndices16(b []byte) []uint32 {
	out := make([]uint32, len(b)/2)
	for i := range out {
		out[i] = uint32(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func equalIndices(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDecodeIndexBuffer(t *testing.T) {
	aux := make([]byte, 16)
	tests := []struct {
		name string
		data []byte
		want []uint32
	}{
		{
			// table code 0xf0 starts a strip of three new vertices, then
			// 0x10 reuses the second-newest edge with one more new vertex
			name: "fresh and shared edge",
			data: append([]byte{0xe1, 0xf0, 0x10}, aux...),
			want: []uint32{0, 1, 2, 2, 1, 3},
		},
		{
			// 0xff reads codeaux inline, all three indices are free deltas
			name: "free indices",
			data: append([]byte{0xe1, 0xff, 0xff, 10, 4, 1}, aux...),
			want: []uint32{5, 7, 6},
		},
		{
			name: "version 0",
			data: append([]byte{0xe0, 0xf0}, aux...),
			want: []uint32{0, 1, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, len(tt.want)*2)
			if err := decodeIndexBuffer(dst, len(tt.want), 2, tt.data); err != nil {
				t.Fatalf("decodeIndexBuffer: %v", err)
			}
			if got := readIndices16(dst); !equalIndices(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeIndexBuffer32(t *testing.T) {
	data := append([]byte{0xe1, 0xf0}, make([]byte, 16)...)
	dst := make([]byte, 12)
	if err := decodeIndexBuffer(dst, 3, 4, data); err != nil {
		t.Fatalf("decodeIndexBuffer: %v", err)
	}
	for i, want := range []uint32{0, 1, 2} {
		if got := binary.LittleEndian.Uint32(dst[i*4:]); got != want {
			t.Errorf("index %d = %d, want %d", i, got, want)
		}
	}
}

func TestDecodeIndexBufferErrors(t *testing.T) {
	aux := make([]byte, 16)
	tests := []struct {
		name  string
		data  []byte
		count int
	}{
		{"bad header", append([]byte{0xd1, 0xf0}, aux...), 3},
		{"future version", append([]byte{0xe2, 0xf0}, aux...), 3},
		{"not triangles", append([]byte{0xe1, 0xf0}, aux...), 4},
		{"unread data", append([]byte{0xe1, 0xf0, 0x00}, aux...), 3},
		{"missing deltas", append([]byte{0xe1, 0xff, 0xff, 10}, aux...), 3},
		{"too short", []byte{0xe1, 0xf0}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, tt.count*2)
			if err := decodeIndexBuffer(dst, tt.count, 2, tt.data); !errors.Is(err, ErrMeshoptData) {
				t.Errorf("expected ErrMeshoptData, got %v", err)
			}
		})
	}
}

func appendVByte(out []byte, v uint32) []byte {
	for v >= 128 {
		out = append(out, byte(v&127)|128)
		v >>= 7
	}
	return append(out, byte(v))
}

// encodeSequence codes each index as a zigzag delta from the last index
// seen on its baseline.
func encodeSequence(indices []uint32, baselines []int) []byte {
	out := []byte{0xd1}
	var last [2]uint32
	for i, ix := range indices {
		b := baselines[i]
		d := int32(ix - last[b])
		zz := uint32(d<<1) ^ uint32(d>>31)
		out = appendVByte(out, zz<<1|uint32(b))
		last[b] = ix
	}
	return append(out, 0, 0, 0, 0)
}

func TestDecodeIndexSequence(t *testing.T) {
	indices := []uint32{5, 6, 1000, 7, 1001, 3, 70000}
	baselines := []int{0, 0, 1, 0, 1, 0, 1}
	data := encodeSequence(indices, baselines)

	dst := make([]byte, len(indices)*4)
	if err := decodeIndexSequence(dst, len(indices), 4, data); err != nil {
		t.Fatalf("decodeIndexSequence: %v", err)
	}
	for i, want := range indices {
		if got := binary.LittleEndian.Uint32(dst[i*4:]); got != want {
			t.Errorf("index %d = %d, want %d", i, got, want)
		}
	}

	more := make([]byte, (len(indices)+1)*4)
	if err := decodeIndexSequence(more, len(indices)+1, 4, data); !errors.Is(err, ErrMeshoptData) {
		t.Errorf("expected ErrMeshoptData for overrun, got %v", err)
	}
	data[0] = 0xe1
	if err := decodeIndexSequence(dst, len(indices), 4, data); !errors.Is(err, ErrMeshoptData) {
		t.Errorf("expected ErrMeshoptData for bad header, got %v", err)
	}
}

func TestFilterOctahedral(t *testing.T) {
	tests := []struct {
		in, want [4]int8
	}{
		{[4]int8{0, 0, 127, 9}, [4]int8{0, 0, 127, 9}},
		{[4]int8{127, 0, 127, 0}, [4]int8{127, 0, 0, 0}},
		{[4]int8{127, 127, 127, 0}, [4]int8{0, 0, -127, 0}},
	}
	for _, tt := range tests {
		data := make([]byte, 4)
		for i, v := range tt.in {
			data[i] = byte(v)
		}
		if err := filterOctahedral(data, 1, 4); err != nil {
			t.Fatalf("filterOctahedral: %v", err)
		}
		for i, v := range tt.want {
			if int8(data[i]) != v {
				t.Errorf("octahedral %v = %v, want %v", tt.in, data, tt.want)
				break
			}
		}
	}

	// 16-bit variant points the same way
	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[0:], uint16(32767))
	binary.LittleEndian.PutUint16(data[4:], uint16(32767))
	if err := filterOctahedral(data, 1, 8); err != nil {
		t.Fatalf("filterOctahedral: %v", err)
	}
	if x, z := int16(binary.LittleEndian.Uint16(data[0:])), int16(binary.LittleEndian.Uint16(data[4:])); x != 32767 || z != 0 {
		t.Errorf("16-bit octahedral = (%d, _, %d), want (32767, _, 0)", x, z)
	}

	if err := filterOctahedral(data, 1, 6); !errors.Is(err, ErrMeshoptData) {
		t.Errorf("expected ErrMeshoptData for stride 6, got %v", err)
	}
}

func TestFilterQuaternion(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[6:], 403) // scale 403, dropped component 3
	if err := filterQuaternion(data, 1, 8); err != nil {
		t.Fatalf("filterQuaternion: %v", err)
	}
	want := [4]int16{0, 0, 0, 32767}
	for i, v := range want {
		if got := int16(binary.LittleEndian.Uint16(data[i*2:])); got != v {
			t.Errorf("component %d = %d, want %d", i, got, v)
		}
	}
}

func TestFilterExponential(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:], 0xff000003) // 3 * 2^-1
	binary.LittleEndian.PutUint32(data[4:], 0x02fffffe) // -2 * 2^2
	if err := filterExponential(data, 1, 8); err != nil {
		t.Fatalf("filterExponential: %v", err)
	}
	for i, want := range []float32{1.5, -8} {
		if got := gomath.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])); got != want {
			t.Errorf("value %d = %v, want %v", i, got, want)
		}
	}
}
