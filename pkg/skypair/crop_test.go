package skypair

import (
	"errors"
	"image"
	"testing"
)

// identityMapping treats RA as x and Dec as y.
var identityMapping = AffineMapping{1, 0, 0, 0, 1, 0}

type failingMapping struct{}

func (failingMapping) SkyToPixel(p SkyPoint) (Point2d, error) {
	return Point2d{}, ErrUnprojectable
}

func square(x0, y0, x1, y1 float64) SkyPolygon {
	return SkyPolygon{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}

// rampMat fills pixel (x, y) with y*cols + x.
func rampMat(rows, cols int) Mat {
	data := make([]float32, rows*cols)
	for i := range data {
		data[i] = float32(i)
	}
	return NewMatFromData(rows, cols, data)
}

func TestSkyRegionToPixels(t *testing.T) {
	tests := []struct {
		name    string
		polygon SkyPolygon
		margin  int
		want    image.Rectangle
	}{
		{"clamped at origin", square(10, 20, 20, 10), 50, image.Rect(0, 0, 70, 70)},
		{"interior", square(500, 600, 700, 900), 50, image.Rect(450, 550, 750, 950)},
		{"clamped at far edge", square(1900, 1950, 1990, 1999), 50, image.Rect(1850, 1900, 2000, 2000)},
		{"truncates toward zero", square(10.9, 10.9, 100.7, 200.2), 0, image.Rect(10, 10, 100, 200)},
		{"negative truncation", square(-0.5, -0.5, 30.99, 40.99), 0, image.Rect(0, 0, 30, 40)},
		{"outside", square(5000, 5000, 5100, 5100), 50, image.Rectangle{Min: image.Pt(4950, 4950), Max: image.Pt(2000, 2000)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SkyRegionToPixels(2000, 2000, identityMapping, tt.polygon, tt.margin)
			if err != nil {
				t.Fatalf("SkyRegionToPixels: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSkyRegionToPixelsErrors(t *testing.T) {
	if _, err := SkyRegionToPixels(100, 100, nil, square(0, 0, 1, 1), 0); !errors.Is(err, ErrNilMapping) {
		t.Errorf("nil mapping: got %v", err)
	}
	if _, err := SkyRegionToPixels(100, 100, identityMapping, nil, 0); !errors.Is(err, ErrEmptyPolygon) {
		t.Errorf("empty polygon: got %v", err)
	}
	if _, err := SkyRegionToPixels(100, 100, failingMapping{}, square(0, 0, 1, 1), 0); !errors.Is(err, ErrUnprojectable) {
		t.Errorf("failing mapping: got %v", err)
	}
}

func TestCropToSkyRegionSmallCorner(t *testing.T) {
	img := rampMat(2000, 2000)
	defer img.Close()
	polygon := square(10, 10, 20, 20)

	// A 70x70 region is below the default minimum size.
	res, err := CropToSkyRegion(img, identityMapping, polygon, nil)
	if err != nil {
		t.Fatalf("CropToSkyRegion: %v", err)
	}
	if res.Available() || res.Status != CropTooSmall {
		t.Errorf("status = %v, want TooSmall", res.Status)
	}
	if res.Region != image.Rect(0, 0, 70, 70) {
		t.Errorf("region = %v, want [0,70]x[0,70]", res.Region)
	}

	res, err = CropToSkyRegion(img, identityMapping, polygon, &CropParams{Margin: 50, MinSize: 70})
	if err != nil {
		t.Fatalf("CropToSkyRegion: %v", err)
	}
	if !res.Available() {
		t.Fatalf("status = %v, want OK", res.Status)
	}
	defer res.Image.Close()
	if res.Image.Rows() != 70 || res.Image.Cols() != 70 {
		t.Errorf("crop size = %dx%d, want 70x70", res.Image.Cols(), res.Image.Rows())
	}
}

func TestCropToSkyRegionContent(t *testing.T) {
	const rows, cols = 600, 800
	img := rampMat(rows, cols)
	defer img.Close()
	before := append([]float32(nil), img.DataFloat32()[:rows*cols]...)

	res, err := CropToSkyRegion(img, identityMapping, square(200, 150, 500, 400), &CropParams{Margin: 10, MinSize: 100})
	if err != nil {
		t.Fatalf("CropToSkyRegion: %v", err)
	}
	if !res.Available() {
		t.Fatalf("status = %v, want OK", res.Status)
	}
	defer res.Image.Close()

	want := image.Rect(190, 140, 510, 410)
	if res.Region != want {
		t.Fatalf("region = %v, want %v", res.Region, want)
	}
	if res.Image.Rows() != want.Dy() || res.Image.Cols() != want.Dx() {
		t.Fatalf("crop size = %dx%d, want %dx%d", res.Image.Cols(), res.Image.Rows(), want.Dx(), want.Dy())
	}
	data := res.Image.DataFloat32()
	for _, p := range []image.Point{{0, 0}, {want.Dx() - 1, 0}, {0, want.Dy() - 1}, {want.Dx() - 1, want.Dy() - 1}, {17, 33}} {
		got := data[p.Y*want.Dx()+p.X]
		exp := float32((want.Min.Y+p.Y)*cols + want.Min.X + p.X)
		if got != exp {
			t.Errorf("crop(%d,%d) = %v, want %v", p.X, p.Y, got, exp)
		}
	}

	// The crop is a copy and the source is untouched.
	data[0] = -1
	after := img.DataFloat32()[:rows*cols]
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("source pixel %d changed from %v to %v", i, before[i], after[i])
		}
	}
}

func TestCropToSkyRegionNoOverlap(t *testing.T) {
	img := rampMat(1000, 1000)
	defer img.Close()

	for _, polygon := range []SkyPolygon{
		square(5000, 5000, 5100, 5100),
		square(-500, -500, -400, -400),
		square(200, 3000, 400, 3200),
	} {
		res, err := CropToSkyRegion(img, identityMapping, polygon, nil)
		if err != nil {
			t.Fatalf("CropToSkyRegion(%v): %v", polygon, err)
		}
		if res.Status != CropNoOverlap {
			t.Errorf("polygon %v: status = %v, want NoOverlap", polygon, res.Status)
		}
	}
}

func TestCropToSkyRegionErrors(t *testing.T) {
	img := rampMat(200, 200)
	defer img.Close()

	if _, err := CropToSkyRegion(img, identityMapping, nil, nil); !errors.Is(err, ErrEmptyPolygon) {
		t.Errorf("empty polygon: got %v", err)
	}
	if _, err := CropToSkyRegion(img, nil, square(0, 0, 10, 10), nil); !errors.Is(err, ErrNilMapping) {
		t.Errorf("nil mapping: got %v", err)
	}
	if _, err := CropToSkyRegion(img, identityMapping, square(0, 0, 10, 10), &CropParams{Margin: -1, MinSize: 1}); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("negative margin: got %v", err)
	}
	empty := NewMat()
	defer empty.Close()
	if _, err := CropToSkyRegion(empty, identityMapping, square(0, 0, 10, 10), nil); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("empty image: got %v", err)
	}
}
