//go:build purego || js

package skypair

import (
	"image"

	"github.com/disintegration/imaging"
)

// Mat is a pure Go 2D float32 matrix.
type Mat struct {
	data    []float32
	rows    int
	cols    int
	stride  int // elements per row in backing array (may differ from cols for sub-matrices)
	dataOff int // offset into data for sub-matrices
	owned   bool
}

func NewMat() Mat { return Mat{} }

func NewMatWithSize(rows, cols int) Mat {
	return Mat{
		data:   make([]float32, rows*cols),
		rows:   rows,
		cols:   cols,
		stride: cols,
		owned:  true,
	}
}

func (m Mat) Rows() int   { return m.rows }
func (m Mat) Cols() int   { return m.cols }
func (m Mat) Empty() bool { return m.data == nil || m.rows == 0 || m.cols == 0 }

func (m Mat) Clone() Mat {
	newData := make([]float32, m.rows*m.cols)
	for r := 0; r < m.rows; r++ {
		srcOff := m.dataOff + r*m.stride
		copy(newData[r*m.cols:], m.data[srcOff:srcOff+m.cols])
	}
	return Mat{data: newData, rows: m.rows, cols: m.cols, stride: m.cols, owned: true}
}

func (m *Mat) Close() {
	if m.owned {
		m.data = nil
	}
	m.rows = 0
	m.cols = 0
}

// DataFloat32 returns the backing float32 slice.
// Only valid for contiguous mats (not un-cloned sub-matrices from Region).
func (m Mat) DataFloat32() []float32 {
	return m.data[m.dataOff:]
}

func (m Mat) Region(r image.Rectangle) Mat {
	return Mat{
		data:    m.data,
		rows:    r.Dy(),
		cols:    r.Dx(),
		stride:  m.stride,
		dataOff: m.dataOff + r.Min.Y*m.stride + r.Min.X,
		owned:   false,
	}
}

// --- Pure Go image operations ---

// resizeAreaGray downsamples with imaging's box filter, which averages the
// source pixels covered by each destination pixel.
func resizeAreaGray(src *image.Gray, width, height int) *image.Gray {
	resized := imaging.Resize(src, width, height, imaging.Box)
	dst := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		srcOff := y * resized.Stride
		dstOff := y * dst.Stride
		for x := 0; x < width; x++ {
			// Gray input gives R == G == B.
			dst.Pix[dstOff+x] = resized.Pix[srcOff+x*4]
		}
	}
	return dst
}

func tensorFromGray(src *image.Gray, device Device) *Tensor {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	t := newTensor(h, w, device)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for x, v := range row {
			t.Data[y*w+x] = float32(v) / 255.0
		}
	}
	return t
}
