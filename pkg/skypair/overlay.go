package skypair

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// CaptionProof returns a copy of proof with a legend strip at the bottom
// naming the red and green inputs.
func CaptionProof(proof *image.RGBA, labelA, labelB string) *image.RGBA {
	const stripH = 20
	b := proof.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()+stripH))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.RGBA{0, 0, 0, 255}), image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(0, 0, b.Dx(), b.Dy()), proof, b.Min, draw.Src)

	face := basicfont.Face7x13
	y := b.Dy() + 15
	redText := "A: " + labelA
	drawText(out, face, redText, 5, y, color.RGBA{255, 0, 0, 255})
	x := 5 + font.MeasureString(face, redText+"   ").Round()
	drawText(out, face, "B: "+labelB, x, y, color.RGBA{0, 255, 0, 255})
	return out
}

// EncodeProofPNG encodes a proof image as PNG bytes.
func EncodeProofPNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode proof: %w", err)
	}
	return buf.Bytes(), nil
}

// drawText draws a string at (x, y) using the given font face.
func drawText(img *image.RGBA, face font.Face, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
