package skypair

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
)

var (
	ErrEmptyPolygon          = errors.New("sky polygon has no vertices")
	ErrNilMapping            = errors.New("coordinate mapping is nil")
	ErrInvalidSkyPoint       = errors.New("sky point is not finite")
	ErrUnprojectable         = errors.New("sky point cannot be projected onto the image plane")
	ErrEmptyImage            = errors.New("image is empty")
	ErrInvalidParams         = errors.New("invalid parameters")
	ErrUnsupportedProjection = errors.New("unsupported WCS projection")
	ErrShapeMismatch         = errors.New("image shapes differ")
)

// SkyPoint is a position on the celestial sphere in degrees.
type SkyPoint struct {
	RA  float64
	Dec float64
}

func (p SkyPoint) String() string {
	return fmt.Sprintf("(%.6f,%.6f)", p.RA, p.Dec)
}

func (p SkyPoint) valid() bool {
	return !math.IsNaN(p.RA) && !math.IsInf(p.RA, 0) && !math.IsNaN(p.Dec) && !math.IsInf(p.Dec, 0)
}

// SkyPolygon lists the corners of a target sky region. The same polygon is
// used for both images of a pair.
type SkyPolygon []SkyPoint

// ParseSkyPolygon parses "ra,dec;ra,dec;..." with coordinates in degrees.
func ParseSkyPolygon(s string) (SkyPolygon, error) {
	var poly SkyPolygon
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("corner %q: expected ra,dec", pair)
		}
		ra, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("corner %q: ra: %w", pair, err)
		}
		dec, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("corner %q: dec: %w", pair, err)
		}
		poly = append(poly, SkyPoint{RA: ra, Dec: dec})
	}
	if len(poly) == 0 {
		return nil, ErrEmptyPolygon
	}
	return poly, nil
}

// Point2d represents a 2D point with float64 coordinates.
type Point2d struct {
	X, Y float64
}

// CoordinateMapping converts sky coordinates into one image's pixel
// coordinates. Pixel coordinates are 0-based and need not be integral.
type CoordinateMapping interface {
	SkyToPixel(p SkyPoint) (Point2d, error)
}

// Device is the placement hint recorded on produced tensors.
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
	DeviceMPS  Device = "mps"
)

// ParseDevice accepts cpu, mps, cuda and cuda:N. An empty string means cpu.
func ParseDevice(s string) (Device, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return DeviceCPU, nil
	case s == string(DeviceCPU), s == string(DeviceCUDA), s == string(DeviceMPS):
		return Device(s), nil
	case strings.HasPrefix(s, "cuda:"):
		if n, err := strconv.Atoi(s[len("cuda:"):]); err != nil || n < 0 {
			return "", fmt.Errorf("%w: device %q", ErrInvalidParams, s)
		}
		return Device(s), nil
	default:
		return "", fmt.Errorf("%w: device %q", ErrInvalidParams, s)
	}
}

// Tensor is a dense float32 array in NCHW layout.
type Tensor struct {
	Shape  [4]int
	Data   []float32
	Device Device
}

func newTensor(height, width int, device Device) *Tensor {
	return &Tensor{
		Shape:  [4]int{1, 1, height, width},
		Data:   make([]float32, height*width),
		Device: device,
	}
}

// At returns the value at sample n, channel c, row y, column x.
func (t *Tensor) At(n, c, y, x int) float32 {
	s := t.Shape
	return t.Data[((n*s[1]+c)*s[2]+y)*s[3]+x]
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v@%s", t.Shape, t.Device)
}

// CropParams controls the sky region cropper.
type CropParams struct {
	// Margin is added on every side of the bounding box, in pixels.
	Margin int
	// MinSize is the smallest usable crop height and width.
	MinSize int
}

// NewCropParams creates CropParams with default values.
func NewCropParams() *CropParams {
	return &CropParams{
		Margin:  50,
		MinSize: 100,
	}
}

func (p *CropParams) Validate() error {
	if p.Margin < 0 {
		return fmt.Errorf("%w: margin must be >= 0, got %d", ErrInvalidParams, p.Margin)
	}
	if p.MinSize < 1 {
		return fmt.Errorf("%w: min size must be >= 1, got %d", ErrInvalidParams, p.MinSize)
	}
	return nil
}

// NormalizeParams controls the percentile stretch and downsampling.
type NormalizeParams struct {
	MaxDim                    int
	Device                    Device
	LowPercentile             float64
	HighPercentile            float64
	SaveIntermediateFilesPath string
	// SaveIntermediatePrefix is prepended to intermediate file names so
	// several images can share one directory.
	SaveIntermediatePrefix string
}

func (p *NormalizeParams) artifactName(name string) string {
	if p.SaveIntermediatePrefix == "" {
		return name
	}
	return p.SaveIntermediatePrefix + "-" + name
}

// NewNormalizeParams creates NormalizeParams with default values.
func NewNormalizeParams() *NormalizeParams {
	return &NormalizeParams{
		MaxDim:         1024,
		Device:         DeviceCPU,
		LowPercentile:  1,
		HighPercentile: 99.5,
	}
}

func (p *NormalizeParams) Validate() error {
	if p.MaxDim < 1 {
		return fmt.Errorf("%w: max dim must be >= 1, got %d", ErrInvalidParams, p.MaxDim)
	}
	if p.LowPercentile < 0 || p.HighPercentile > 100 || p.LowPercentile >= p.HighPercentile {
		return fmt.Errorf("%w: percentiles must satisfy 0 <= low < high <= 100, got %g, %g",
			ErrInvalidParams, p.LowPercentile, p.HighPercentile)
	}
	if _, err := ParseDevice(string(p.Device)); err != nil {
		return err
	}
	return nil
}

// CropStatus tags the outcome of a crop.
type CropStatus int

const (
	CropOK CropStatus = iota
	CropNoOverlap
	CropTooSmall
)

func (s CropStatus) String() string {
	switch s {
	case CropOK:
		return "OK"
	case CropNoOverlap:
		return "NoOverlap"
	case CropTooSmall:
		return "TooSmall"
	default:
		return "Unknown"
	}
}

// CropResult is either a cropped image or a not-available signal.
// Image is only set when Available reports true.
type CropResult struct {
	Status CropStatus
	Region image.Rectangle
	Image  Mat
}

// Available reports whether the crop produced a usable image.
func (r CropResult) Available() bool { return r.Status == CropOK }

// NormalizedProduct is the output of Normalize.
type NormalizedProduct struct {
	Tensor  *Tensor
	Display *image.Gray
	// Scale is output linear size over input linear size, at most 1.
	Scale float64
	// VMin and VMax are the stretch bounds; Flat is set when they coincide.
	VMin, VMax float64
	Flat       bool
}

// Observation is one image of a pair together with its coordinate mapping.
type Observation struct {
	Name    string
	Image   Mat
	Mapping CoordinateMapping
}
