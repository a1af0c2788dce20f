package skypair

import (
	"fmt"
	"image"
)

// ComposeProof builds the alignment proof: red carries a, green carries b,
// blue is zero. Stars that line up appear yellow; a source bright in only one
// channel marks either misalignment or a real change between the epochs.
// Both images must have the same size.
func ComposeProof(a, b *image.Gray) (*image.RGBA, error) {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch, ab.Dx(), ab.Dy(), bb.Dx(), bb.Dy())
	}
	w, h := ab.Dx(), ab.Dy()
	proof := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		rowA := a.Pix[a.PixOffset(ab.Min.X, ab.Min.Y+y):]
		rowB := b.Pix[b.PixOffset(bb.Min.X, bb.Min.Y+y):]
		dst := proof.Pix[y*proof.Stride:]
		for x := 0; x < w; x++ {
			dst[x*4+0] = rowA[x]
			dst[x*4+1] = rowB[x]
			dst[x*4+2] = 0
			dst[x*4+3] = 255
		}
	}
	return proof, nil
}
