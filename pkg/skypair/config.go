package skypair

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

/* Example pair file ...

images:
  a:
    path: visit-0412.fits
  b:
    path: visit-0977.fits
    hdu: 1

corners:
  - [150.112, 2.181]
  - [150.168, 2.181]
  - [150.168, 2.237]
  - [150.112, 2.237]

crop:
  margin: 50
  min_size: 100

normalize:
  max_dim: 1024
  device: cpu

output:
  proof: proof.png
  dir: out
  caption: true

*/

// ImageSource describes where one image of the pair comes from.
type ImageSource struct {
	Path    string `yaml:"path"`
	HDU     int    `yaml:"hdu"`
	Debayer bool   `yaml:"debayer"`
	// Affine maps sky to pixel for inputs without a FITS WCS, see AffineMapping.
	Affine []float64 `yaml:"affine"`
}

type CropOptions struct {
	Margin  int `yaml:"margin"`
	MinSize int `yaml:"min_size"`
}

type NormalizeOptions struct {
	MaxDim         int     `yaml:"max_dim"`
	Device         string  `yaml:"device"`
	LowPercentile  float64 `yaml:"low_percentile"`
	HighPercentile float64 `yaml:"high_percentile"`
}

type OutputOptions struct {
	Proof            string `yaml:"proof"`
	Dir              string `yaml:"dir"`
	Caption          bool   `yaml:"caption"`
	SaveIntermediate string `yaml:"save_intermediate"`
}

// PairConfig is the on-disk description of one pair to prepare.
type PairConfig struct {
	Images struct {
		A ImageSource `yaml:"a"`
		B ImageSource `yaml:"b"`
	} `yaml:"images"`
	Corners   [][]float64      `yaml:"corners"`
	Crop      CropOptions      `yaml:"crop"`
	Normalize NormalizeOptions `yaml:"normalize"`
	Output    OutputOptions    `yaml:"output"`

	// Derived by FinalizeConfiguration
	Polygon SkyPolygon `yaml:"-"`
	Device  Device     `yaml:"-"`
}

// NewPairConfig returns a PairConfig holding the default values.
func NewPairConfig() PairConfig {
	cp, np := NewCropParams(), NewNormalizeParams()
	c := PairConfig{
		Crop: CropOptions{Margin: cp.Margin, MinSize: cp.MinSize},
		Normalize: NormalizeOptions{
			MaxDim:         np.MaxDim,
			Device:         string(np.Device),
			LowPercentile:  np.LowPercentile,
			HighPercentile: np.HighPercentile,
		},
		Output: OutputOptions{Proof: "proof.png"},
	}
	c.Images.A.HDU = -1
	c.Images.B.HDU = -1
	return c
}

// LoadPairConfig reads a YAML pair file on top of the defaults. The result
// still needs FinalizeConfiguration once command line overrides are applied.
func LoadPairConfig(filename string) (PairConfig, error) {
	c := NewPairConfig()
	contents, err := os.ReadFile(filename)
	if err != nil {
		return c, fmt.Errorf("read %q: %w", filename, err)
	}
	if err := yaml.Unmarshal(contents, &c); err != nil {
		return c, fmt.Errorf("parse %q: %w", filename, err)
	}
	return c, nil
}

// FinalizeConfiguration does sanity checks and fills the derived fields.
func (c *PairConfig) FinalizeConfiguration() error {
	for _, src := range []struct {
		name string
		s    ImageSource
	}{{"a", c.Images.A}, {"b", c.Images.B}} {
		if src.s.Path == "" {
			return fmt.Errorf("%w: images.%s.path is required", ErrInvalidParams, src.name)
		}
		if len(src.s.Affine) != 0 && len(src.s.Affine) != 6 {
			return fmt.Errorf("%w: images.%s.affine needs 6 values, got %d", ErrInvalidParams, src.name, len(src.s.Affine))
		}
	}

	if len(c.Corners) == 0 {
		return ErrEmptyPolygon
	}
	c.Polygon = make(SkyPolygon, len(c.Corners))
	for i, corner := range c.Corners {
		if len(corner) != 2 {
			return fmt.Errorf("%w: corner %d needs [ra, dec], got %v", ErrInvalidParams, i, corner)
		}
		c.Polygon[i] = SkyPoint{RA: corner[0], Dec: corner[1]}
		if !c.Polygon[i].valid() {
			return fmt.Errorf("corner %d: %w", i, ErrInvalidSkyPoint)
		}
	}

	device, err := ParseDevice(c.Normalize.Device)
	if err != nil {
		return err
	}
	c.Device = device

	if err := c.CropParams().Validate(); err != nil {
		return err
	}
	return c.NormalizeParams().Validate()
}

func (c *PairConfig) CropParams() *CropParams {
	return &CropParams{Margin: c.Crop.Margin, MinSize: c.Crop.MinSize}
}

func (c *PairConfig) NormalizeParams() *NormalizeParams {
	return &NormalizeParams{
		MaxDim:                    c.Normalize.MaxDim,
		Device:                    c.Device,
		LowPercentile:             c.Normalize.LowPercentile,
		HighPercentile:            c.Normalize.HighPercentile,
		SaveIntermediateFilesPath: c.Output.SaveIntermediate,
	}
}

// Mapping returns the configured affine mapping, or nil if none is set.
func (s ImageSource) Mapping() CoordinateMapping {
	if len(s.Affine) != 6 {
		return nil
	}
	var a AffineMapping
	copy(a[:], s.Affine)
	return a
}
