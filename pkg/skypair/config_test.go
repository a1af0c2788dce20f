package skypair

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const testPairFile = `
images:
  a:
    path: visit-0412.fits
  b:
    path: visit-0977.png
    debayer: true
    affine: [2, 0, 1, 0, 3, -1]

corners:
  - [150.112, 2.181]
  - [150.168, 2.181]
  - [150.168, 2.237]

crop:
  margin: 20

normalize:
  max_dim: 512
  device: cuda:1

output:
  dir: out
  caption: true
`

func writePairFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pair.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPairConfig(t *testing.T) {
	c, err := LoadPairConfig(writePairFile(t, testPairFile))
	if err != nil {
		t.Fatalf("LoadPairConfig: %v", err)
	}
	if err := c.FinalizeConfiguration(); err != nil {
		t.Fatalf("FinalizeConfiguration: %v", err)
	}

	if c.Images.A.Path != "visit-0412.fits" || c.Images.A.HDU != -1 || c.Images.A.Mapping() != nil {
		t.Errorf("image a = %+v", c.Images.A)
	}
	if !c.Images.B.Debayer {
		t.Error("image b debayer not set")
	}
	p, err := c.Images.B.Mapping().SkyToPixel(SkyPoint{RA: 10, Dec: 20})
	if err != nil || p != (Point2d{X: 21, Y: 59}) {
		t.Errorf("image b mapping gives %v, %v", p, err)
	}

	if len(c.Polygon) != 3 || c.Polygon[1] != (SkyPoint{RA: 150.168, Dec: 2.181}) {
		t.Errorf("polygon = %v", c.Polygon)
	}

	// Unset values keep their defaults.
	cp := c.CropParams()
	if cp.Margin != 20 || cp.MinSize != 100 {
		t.Errorf("crop params = %+v", cp)
	}
	np := c.NormalizeParams()
	if np.MaxDim != 512 || np.Device != "cuda:1" || np.LowPercentile != 1 || np.HighPercentile != 99.5 {
		t.Errorf("normalize params = %+v", np)
	}
	if c.Output.Proof != "proof.png" || c.Output.Dir != "out" || !c.Output.Caption {
		t.Errorf("output = %+v", c.Output)
	}
}

func TestFinalizeConfigurationErrors(t *testing.T) {
	valid := func() PairConfig {
		c := NewPairConfig()
		c.Images.A.Path = "a.fits"
		c.Images.B.Path = "b.fits"
		c.Corners = [][]float64{{1, 2}}
		return c
	}
	if c := valid(); c.FinalizeConfiguration() != nil {
		t.Fatal("valid configuration rejected")
	}

	tests := []struct {
		name   string
		modify func(c *PairConfig)
		target error
	}{
		{"missing path", func(c *PairConfig) { c.Images.B.Path = "" }, ErrInvalidParams},
		{"short affine", func(c *PairConfig) { c.Images.A.Affine = []float64{1, 2, 3} }, ErrInvalidParams},
		{"no corners", func(c *PairConfig) { c.Corners = nil }, ErrEmptyPolygon},
		{"short corner", func(c *PairConfig) { c.Corners = [][]float64{{1}} }, ErrInvalidParams},
		{"NaN corner", func(c *PairConfig) { c.Corners = [][]float64{{math.NaN(), 1}} }, ErrInvalidSkyPoint},
		{"bad device", func(c *PairConfig) { c.Normalize.Device = "gpu" }, ErrInvalidParams},
		{"negative margin", func(c *PairConfig) { c.Crop.Margin = -3 }, ErrInvalidParams},
		{"zero max dim", func(c *PairConfig) { c.Normalize.MaxDim = 0 }, ErrInvalidParams},
	}
	for _, tt := range tests {
		c := valid()
		tt.modify(&c)
		if err := c.FinalizeConfiguration(); !errors.Is(err, tt.target) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.target)
		}
	}
}

func TestLoadPairConfigErrors(t *testing.T) {
	if _, err := LoadPairConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
	if _, err := LoadPairConfig(writePairFile(t, "images: [not, a, map")); err == nil {
		t.Error("malformed YAML accepted")
	}
}
