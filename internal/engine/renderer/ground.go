package renderer

// GroundGeometry returns a size×size quad on the XZ plane centered at the
// origin, facing +Y. It carries no bones and is drawn unskinned.
func GroundGeometry(size float32) Geometry {
	h := size / 2
	return Geometry{
		Vertices: []float32{
			-h, 0, -h, 0, 1, 0, 1, 0, 0, 0,
			h, 0, -h, 0, 1, 0, 1, 0, 0, 0,
			h, 0, h, 0, 1, 0, 1, 0, 0, 0,
			-h, 0, h, 0, 1, 0, 1, 0, 0, 0,
		},
		Joints: make([]uint16, 4*4),
		// Counter-clockwise seen from above.
		Indices: []uint32{0, 2, 1, 0, 3, 2},
	}
}
