//go:build purego || js

package main

import (
	"fmt"

	"github.com/disintegration/imaging"

	sp "skypair/pkg/skypair"
)

func loadNonFitsImage(path string) (sp.Mat, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return sp.Mat{}, fmt.Errorf("decoding image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pixels := make([]float32, w*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// Grayscale luminance in the uint16 range
			pixels[y*w+x] = float32((19595*r + 38470*g + 7471*b + 1<<15) >> 16)
		}
	}
	return sp.NewMatFromData(h, w, pixels), nil
}
