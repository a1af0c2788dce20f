package main

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	sp "skypair/pkg/skypair"
)

func writeNoisePNG(t *testing.T, path string, w, h int, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{uint8(rng.Intn(256))})
		}
	}
	if err := imaging.Save(img, path); err != nil {
		t.Fatal(err)
	}
}

func writePair(t *testing.T, dir string, corners string) string {
	t.Helper()
	writeNoisePNG(t, filepath.Join(dir, "a.png"), 400, 300, 1)
	writeNoisePNG(t, filepath.Join(dir, "b.png"), 420, 320, 2)
	pair := fmt.Sprintf(`
images:
  a:
    path: %s
    affine: [1, 0, 0, 0, 1, 0]
  b:
    path: %s
    affine: [1, 0, 10, 0, 1, 15]
corners: %s
crop:
  margin: 20
normalize:
  max_dim: 128
`, filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png"), corners)
	path := filepath.Join(dir, "pair.yaml")
	if err := os.WriteFile(path, []byte(pair), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	config := writePair(t, dir, "[[50, 40], [300, 40], [300, 250], [50, 250]]")
	proofPath := filepath.Join(dir, "proof.png")
	outDir := filepath.Join(dir, "out")

	if err := run([]string{"-config", config, "-out", proofPath, "-dir", outDir, "-caption"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	proof, err := imaging.Open(proofPath)
	if err != nil {
		t.Fatalf("opening proof: %v", err)
	}
	// 290x250 crops scaled to 128 wide, plus the caption strip.
	if got := proof.Bounds().Size(); got.X != 128 || got.Y != 110+20 {
		t.Errorf("proof size = %v", got)
	}
	for _, name := range []string{"a.png", "b.png"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestRunFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	config := writePair(t, dir, "[[50, 40], [300, 250]]")
	proofPath := filepath.Join(dir, "small.png")

	err := run([]string{"-config", config, "-corners", "100,100;140,140", "-margin", "0", "-min-size", "30", "-out", proofPath})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	proof, err := imaging.Open(proofPath)
	if err != nil {
		t.Fatalf("opening proof: %v", err)
	}
	if got := proof.Bounds().Size(); got != image.Pt(40, 40) {
		t.Errorf("proof size = %v, want 40x40", got)
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	config := writePair(t, dir, "[[50, 40], [300, 250]]")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no inputs", []string{"-corners", "1,2"}, "images.a.path"},
		{"bad corners", []string{"-config", config, "-corners", "1;2"}, "-corners"},
		{"outside both images", []string{"-config", config, "-corners", "5000,5000;5100,5100"}, "not usable"},
		{"unknown flag", []string{"-bogus"}, "bogus"},
		{"missing file", []string{"-config", filepath.Join(dir, "none.yaml")}, "none.yaml"},
	}
	for _, tt := range tests {
		err := run(tt.args)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: got %v, want error containing %q", tt.name, err, tt.want)
		}
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	stdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = stdout }()
	fn()
	w.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(out)
}

func TestPrintSideSkyCorners(t *testing.T) {
	wcs, err := sp.NewTanWCS([2]float64{150.1, 2.2}, [2]float64{1, 1}, [4]float64{-1.0 / 3600, 0, 0, 1.0 / 3600})
	if err != nil {
		t.Fatal(err)
	}
	side := sp.PairSide{Name: "A", Status: sp.CropOK, Region: image.Rect(0, 0, 10, 10)}

	out := captureStdout(t, func() { printSide(side, wcs) })
	want := fmt.Sprintf("A sky corners: %v", wcs.RegionCorners(side.Region))
	if !strings.Contains(out, want) {
		t.Errorf("output %q does not contain %q", out, want)
	}
	if !strings.Contains(out, "(150.100000,2.200000)") {
		t.Errorf("output %q lacks the reference pixel corner", out)
	}

	out = captureStdout(t, func() { printSide(side, sp.AffineMapping{1, 0, 0, 0, 1, 0}) })
	if strings.Contains(out, "sky corners") {
		t.Errorf("affine mapping printed sky corners: %q", out)
	}
}
