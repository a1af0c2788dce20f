//go:build !purego && !js

package skypair

import (
	"image"

	"gocv.io/x/gocv"
)

// Mat wraps gocv.Mat for the native OpenCV backend.
type Mat struct {
	m gocv.Mat
}

func NewMat() Mat                            { return Mat{m: gocv.NewMat()} }
func NewMatWithSize(rows, cols int) Mat       { return Mat{m: gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32F)} }
func (mat Mat) Rows() int                    { return mat.m.Rows() }
func (mat Mat) Cols() int                    { return mat.m.Cols() }
func (mat Mat) Empty() bool                  { return mat.m.Empty() }
func (mat Mat) Clone() Mat                   { return Mat{m: mat.m.Clone()} }
func (mat *Mat) Close()                      { mat.m.Close() }
func (mat Mat) Region(r image.Rectangle) Mat { return Mat{m: mat.m.Region(r)} }

func (mat Mat) DataFloat32() []float32 {
	data, _ := mat.m.DataPtrFloat32()
	return data
}

// --- CV operations ---

func resizeAreaGray(src *image.Gray, width, height int) *image.Gray {
	in, err := gocv.ImageGrayToMatGray(src)
	if err != nil {
		panic("gray image to mat: " + err.Error())
	}
	defer in.Close()
	out := gocv.NewMat()
	defer out.Close()
	gocv.Resize(in, &out, image.Pt(width, height), 0, 0, gocv.InterpolationArea)

	dst := image.NewGray(image.Rect(0, 0, width, height))
	data := out.ToBytes()
	for y := 0; y < height; y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+width], data[y*width:(y+1)*width])
	}
	return dst
}

// tensorFromGray builds the 1x1xHxW blob with OpenCV's DNN helper.
func tensorFromGray(src *image.Gray, device Device) *Tensor {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	in, err := gocv.ImageGrayToMatGray(src)
	if err != nil {
		panic("gray image to mat: " + err.Error())
	}
	defer in.Close()
	blob := gocv.BlobFromImage(in, 1.0/255.0, image.Pt(w, h), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	t := newTensor(h, w, device)
	data, err := blob.DataPtrFloat32()
	if err != nil {
		panic("blob data: " + err.Error())
	}
	copy(t.Data, data)
	return t
}
