package skypair

// DebayerRGGB performs bilinear interpolation on a raw RGGB Bayer-pattern
// frame from a one-shot-colour camera and returns a luminance Mat:
// (R + G + B) / 3 per pixel.
//
// RGGB layout (row-major, 0-indexed):
//
//	(even row, even col) = R
//	(even row, odd  col) = G  (Gr)
//	(odd  row, even col) = G  (Gb)
//	(odd  row, odd  col) = B
//
// Edge pixels use clamped (replicated) neighbor lookups. Invalid pixels
// spread into their neighbours; the normalizer zeroes them later.
func DebayerRGGB(src Mat) Mat {
	width, height := src.Cols(), src.Rows()
	contig := src.Clone()
	defer contig.Close()
	data := contig.DataFloat32()
	out := NewMatWithSize(height, width)
	dest := out.DataFloat32()

	clampX := func(x int) int {
		if x < 0 {
			return 0
		}
		if x >= width {
			return width - 1
		}
		return x
	}
	clampY := func(y int) int {
		if y < 0 {
			return 0
		}
		if y >= height {
			return height - 1
		}
		return y
	}
	px := func(x, y int) float64 {
		return float64(data[clampY(y)*width+clampX(x)])
	}

	for y := 0; y < height; y++ {
		evenRow := y%2 == 0
		for x := 0; x < width; x++ {
			evenCol := x%2 == 0
			var r, g, b float64

			switch {
			case evenRow && evenCol:
				r = px(x, y)
				g = (px(x-1, y) + px(x+1, y) + px(x, y-1) + px(x, y+1)) / 4
				b = (px(x-1, y-1) + px(x+1, y-1) + px(x-1, y+1) + px(x+1, y+1)) / 4

			case evenRow && !evenCol:
				r = (px(x-1, y) + px(x+1, y)) / 2
				g = px(x, y)
				b = (px(x, y-1) + px(x, y+1)) / 2

			case !evenRow && evenCol:
				r = (px(x, y-1) + px(x, y+1)) / 2
				g = px(x, y)
				b = (px(x-1, y) + px(x+1, y)) / 2

			default:
				r = (px(x-1, y-1) + px(x+1, y-1) + px(x-1, y+1) + px(x+1, y+1)) / 4
				g = (px(x-1, y) + px(x+1, y) + px(x, y-1) + px(x, y+1)) / 4
				b = px(x, y)
			}

			dest[y*width+x] = float32((r + g + b) / 3)
		}
	}
	return out
}
