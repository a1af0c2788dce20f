package skypair

import (
	"fmt"
	"image"
	"math"
)

// SkyRegionToPixels maps every polygon vertex through the image's mapping and
// returns the axis-aligned bounding box, expanded by margin on each side and
// clamped to the image. The box may be empty or inverted when the polygon
// lies outside the image.
func SkyRegionToPixels(width, height int, mapping CoordinateMapping, polygon SkyPolygon, margin int) (image.Rectangle, error) {
	if mapping == nil {
		return image.Rectangle{}, ErrNilMapping
	}
	if len(polygon) == 0 {
		return image.Rectangle{}, ErrEmptyPolygon
	}

	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i, corner := range polygon {
		p, err := mapping.SkyToPixel(corner)
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("corner %d: %w", i, err)
		}
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return image.Rectangle{}, fmt.Errorf("corner %d: %w: mapped to (%f,%f)", i, ErrUnprojectable, p.X, p.Y)
		}
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}

	// Truncation toward zero, then margin, then clamp.
	return image.Rectangle{
		Min: image.Pt(max(0, truncToInt(minX)-margin), max(0, truncToInt(minY)-margin)),
		Max: image.Pt(min(width, truncToInt(maxX)+margin), min(height, truncToInt(maxY)+margin)),
	}, nil
}

// CropToSkyRegion cuts img down to the footprint of polygon so that two
// images of the same sky, cropped with the same polygon, cover the same
// physical area. The returned image is a copy owned by the caller.
//
// The bounding box is deliberately looser than the polygon: no rotation or
// skew is removed, and the margin absorbs small WCS differences between the
// two images.
func CropToSkyRegion(img Mat, mapping CoordinateMapping, polygon SkyPolygon, p *CropParams) (CropResult, error) {
	if p == nil {
		p = NewCropParams()
	}
	if err := p.Validate(); err != nil {
		return CropResult{}, err
	}
	if img.Empty() {
		return CropResult{}, ErrEmptyImage
	}

	r, err := SkyRegionToPixels(img.Cols(), img.Rows(), mapping, polygon, p.Margin)
	if err != nil {
		return CropResult{}, err
	}
	if r.Min.X >= r.Max.X || r.Min.Y >= r.Max.Y {
		return CropResult{Status: CropNoOverlap, Region: r}, nil
	}
	if r.Dx() < p.MinSize || r.Dy() < p.MinSize {
		return CropResult{Status: CropTooSmall, Region: r}, nil
	}

	view := img.Region(r)
	crop := view.Clone()
	view.Close()
	return CropResult{Status: CropOK, Region: r, Image: crop}, nil
}

// truncToInt saturates instead of overflowing for far-away projections.
func truncToInt(v float64) int {
	const limit = 1 << 40
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return int(v)
}
