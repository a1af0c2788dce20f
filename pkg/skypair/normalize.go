package skypair

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// CleanNonFinite returns a copy of img with every NaN and infinity replaced
// by zero. Missing data is treated as zero signal.
func CleanNonFinite(img Mat) Mat {
	clean := img.Clone()
	data := clean.DataFloat32()
	n := clean.Rows() * clean.Cols()
	for i := 0; i < n; i++ {
		v := float64(data[i])
		if math.IsNaN(v) || math.IsInf(v, 0) {
			data[i] = 0
		}
	}
	return clean
}

// Normalize turns raw pixel data into an 8-bit display image and a model
// input tensor.
//
// Non-finite pixels become zero, then the LowPercentile and HighPercentile
// values are stretched to black and white, which keeps the faint noise tail
// and saturated pixels or cosmic rays from dominating the contrast. If the
// larger side exceeds MaxDim the image is area-averaged down to fit and Scale
// records the ratio. A flat image, where both percentiles coincide, maps to
// all zeros.
func Normalize(img Mat, p *NormalizeParams) (*NormalizedProduct, error) {
	if p == nil {
		p = NewNormalizeParams()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, ErrEmptyImage
	}
	device := p.Device
	if device == "" {
		device = DeviceCPU
	}

	clean := CleanNonFinite(img)
	defer clean.Close()
	height, width := clean.Rows(), clean.Cols()
	data := clean.DataFloat32()[:height*width]

	bounds := Percentiles(data, p.LowPercentile, p.HighPercentile)
	vmin, vmax := bounds[0], bounds[1]
	flat := !(vmax > vmin)
	err := maybeSaveText(p.SaveIntermediateFilesPath, p.artifactName("00-stretch.txt"),
		fmt.Sprintf("Stretch: size=%dx%d p%g=%f p%g=%f flat=%t",
			width, height, p.LowPercentile, vmin, p.HighPercentile, vmax, flat))
	if err != nil {
		return nil, err
	}

	stretched := image.NewGray(image.Rect(0, 0, width, height))
	if !flat {
		span := vmax - vmin
		for y := 0; y < height; y++ {
			row := data[y*width : (y+1)*width]
			dst := stretched.Pix[y*stretched.Stride:]
			for x, v := range row {
				dst[x] = stretchToByte((float64(v) - vmin) / span)
			}
		}
	}
	if err := maybeSaveImage(stretched, p.SaveIntermediateFilesPath, p.artifactName("01-stretched.png")); err != nil {
		return nil, err
	}

	scale := 1.0
	display := stretched
	if maxSide := max(height, width); maxSide > p.MaxDim {
		scale = float64(p.MaxDim) / float64(maxSide)
		newW := max(1, int(math.Round(float64(width)*scale)))
		newH := max(1, int(math.Round(float64(height)*scale)))
		display = resizeAreaGray(stretched, newW, newH)
		if err := maybeSaveImage(display, p.SaveIntermediateFilesPath, p.artifactName("02-resized.png")); err != nil {
			return nil, err
		}
	}

	return &NormalizedProduct{
		Tensor:  tensorFromGray(display, device),
		Display: display,
		Scale:   scale,
		VMin:    vmin,
		VMax:    vmax,
		Flat:    flat,
	}, nil
}

// stretchToByte clips a normalized value to [0, 1] and truncates it onto 0..255.
func stretchToByte(v float64) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v * 255.0)
}

func maybeSaveImage(img image.Image, savePath, filename string) error {
	if savePath == "" {
		return nil
	}
	if _, err := os.Stat(savePath); os.IsNotExist(err) {
		return nil
	}
	if err := imaging.Save(img, filepath.Join(savePath, filename)); err != nil {
		return fmt.Errorf("saving intermediate %s: %w", filename, err)
	}
	return nil
}

func maybeSaveText(savePath, filename, text string) error {
	if savePath == "" {
		return nil
	}
	if _, err := os.Stat(savePath); os.IsNotExist(err) {
		return nil
	}
	if err := os.WriteFile(filepath.Join(savePath, filename), []byte(text), 0644); err != nil {
		return fmt.Errorf("saving intermediate %s: %w", filename, err)
	}
	return nil
}
