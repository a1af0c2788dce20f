package skypair

// NewMatFromData creates a rows x cols Mat holding a copy of data, which is
// laid out row by row.
func NewMatFromData(rows, cols int, data []float32) Mat {
	m := NewMatWithSize(rows, cols)
	copy(m.DataFloat32()[:rows*cols], data)
	return m
}
