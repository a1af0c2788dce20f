package skypair

import (
	"fmt"
	"image"
	"strings"
	"sync"
)

// PairSide is the outcome of preparing one observation of a pair.
type PairSide struct {
	Name    string
	Status  CropStatus
	Region  image.Rectangle
	Product *NormalizedProduct // nil unless Status is CropOK
}

// PairResult holds both prepared sides of a pair.
type PairResult struct {
	A, B PairSide
}

// Available reports whether both sides produced a usable crop.
func (r *PairResult) Available() bool {
	return r.A.Status == CropOK && r.B.Status == CropOK
}

// PreparePair crops both observations to the same sky polygon and normalizes
// the crops. The two sides share no state and are processed concurrently.
// A side whose crop is not available is reported through its Status; only
// malformed input returns an error.
func PreparePair(a, b Observation, polygon SkyPolygon, cp *CropParams, np *NormalizeParams) (*PairResult, error) {
	if cp == nil {
		cp = NewCropParams()
	}
	if np == nil {
		np = NewNormalizeParams()
	}

	var (
		wg     sync.WaitGroup
		result PairResult
		errs   [2]error
	)
	sides := []*PairSide{&result.A, &result.B}
	for i, obs := range []Observation{a, b} {
		wg.Add(1)
		go func(i int, obs Observation) {
			defer wg.Done()
			side, err := prepareSide(obs, polygon, cp, np)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", obs.Name, err)
				return
			}
			*sides[i] = side
		}(i, obs)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return &result, nil
}

func prepareSide(obs Observation, polygon SkyPolygon, cp *CropParams, np *NormalizeParams) (PairSide, error) {
	side := PairSide{Name: obs.Name}
	crop, err := CropToSkyRegion(obs.Image, obs.Mapping, polygon, cp)
	if err != nil {
		return side, fmt.Errorf("crop: %w", err)
	}
	side.Status, side.Region = crop.Status, crop.Region
	if !crop.Available() {
		return side, nil
	}
	defer crop.Image.Close()

	sideParams := *np
	sideParams.SaveIntermediatePrefix = sideParams.artifactName(strings.ToLower(obs.Name))
	product, err := Normalize(crop.Image, &sideParams)
	if err != nil {
		return side, fmt.Errorf("normalize: %w", err)
	}
	side.Product = product
	return side, nil
}

// ReconcileSizes area-resizes both display images down to their common
// minimum width and height so they can be composed. It does not register the
// images; any residual offset shows up in the proof.
func ReconcileSizes(a, b *image.Gray) (*image.Gray, *image.Gray) {
	w := min(a.Bounds().Dx(), b.Bounds().Dx())
	h := min(a.Bounds().Dy(), b.Bounds().Dy())
	return fitGray(a, w, h), fitGray(b, w, h)
}

func fitGray(img *image.Gray, w, h int) *image.Gray {
	if img.Bounds().Dx() == w && img.Bounds().Dy() == h {
		return img
	}
	return resizeAreaGray(img, w, h)
}
