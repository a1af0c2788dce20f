//go:build !purego && !js

package main

import (
	"fmt"

	"gocv.io/x/gocv"

	sp "skypair/pkg/skypair"
)

func loadNonFitsImage(path string) (sp.Mat, error) {
	src := gocv.IMRead(path, gocv.IMReadAnyDepth)
	if src.Empty() {
		return sp.Mat{}, fmt.Errorf("could not load image: %s", path)
	}
	defer src.Close()

	floatMat := gocv.NewMat()
	defer floatMat.Close()
	src.ConvertTo(&floatMat, gocv.MatTypeCV32F)

	data, err := floatMat.DataPtrFloat32()
	if err != nil {
		return sp.Mat{}, fmt.Errorf("reading pixels of %s: %w", path, err)
	}
	return sp.NewMatFromData(floatMat.Rows(), floatMat.Cols(), data), nil
}
