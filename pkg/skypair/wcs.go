package skypair

import (
	"fmt"
	"image"
	"math"
	"strings"

	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"
)

const deg2rad = math.Pi / 180.0

// TanWCS is a gnomonic (TAN) world coordinate system as described by the
// FITS WCS papers. SIP distortion terms are ignored.
type TanWCS struct {
	CRVAL [2]float64 // reference sky point, degrees
	CRPIX [2]float64 // reference pixel, 1-based as in the FITS header
	CD    *mat.Dense // degrees per pixel
	cdInv *mat.Dense
}

// NewTanWCS creates a TanWCS from the reference point and the row-major CD
// matrix {CD1_1, CD1_2, CD2_1, CD2_2}.
func NewTanWCS(crval, crpix [2]float64, cd [4]float64) (*TanWCS, error) {
	cdMat := mat.NewDense(2, 2, cd[:])
	var inv mat.Dense
	if err := inv.Inverse(cdMat); err != nil {
		return nil, fmt.Errorf("inverting CD matrix %v: %w", cd, err)
	}
	return &TanWCS{CRVAL: crval, CRPIX: crpix, CD: cdMat, cdInv: &inv}, nil
}

// SkyToPixel projects a sky point onto the image plane and returns 0-based
// pixel coordinates.
func (w *TanWCS) SkyToPixel(p SkyPoint) (Point2d, error) {
	if !p.valid() {
		return Point2d{}, fmt.Errorf("%w: %v", ErrInvalidSkyPoint, p)
	}
	ra, dec := p.RA*deg2rad, p.Dec*deg2rad
	ra0, dec0 := w.CRVAL[0]*deg2rad, w.CRVAL[1]*deg2rad
	dra := ra - ra0

	cosc := math.Sin(dec0)*math.Sin(dec) + math.Cos(dec0)*math.Cos(dec)*math.Cos(dra)
	if cosc <= 0 {
		return Point2d{}, fmt.Errorf("%w: %v", ErrUnprojectable, p)
	}
	xi := math.Cos(dec) * math.Sin(dra) / cosc / deg2rad
	eta := (math.Cos(dec0)*math.Sin(dec) - math.Sin(dec0)*math.Cos(dec)*math.Cos(dra)) / cosc / deg2rad

	var pix mat.VecDense
	pix.MulVec(w.cdInv, mat.NewVecDense(2, []float64{xi, eta}))
	return Point2d{
		X: pix.AtVec(0) + w.CRPIX[0] - 1,
		Y: pix.AtVec(1) + w.CRPIX[1] - 1,
	}, nil
}

// PixelToSky is the inverse of SkyToPixel.
func (w *TanWCS) PixelToSky(p Point2d) SkyPoint {
	var proj mat.VecDense
	proj.MulVec(w.CD, mat.NewVecDense(2, []float64{p.X + 1 - w.CRPIX[0], p.Y + 1 - w.CRPIX[1]}))
	xi, eta := proj.AtVec(0)*deg2rad, proj.AtVec(1)*deg2rad

	rho := math.Hypot(xi, eta)
	if rho == 0 {
		return SkyPoint{RA: w.CRVAL[0], Dec: w.CRVAL[1]}
	}
	dec0 := w.CRVAL[1] * deg2rad
	c := math.Atan(rho)
	sinc, cosc := math.Sin(c), math.Cos(c)

	dec := math.Asin(cosc*math.Sin(dec0) + eta*sinc*math.Cos(dec0)/rho)
	ra := w.CRVAL[0]*deg2rad + math.Atan2(xi*sinc, rho*math.Cos(dec0)*cosc-eta*math.Sin(dec0)*sinc)

	raDeg := math.Mod(ra/deg2rad, 360)
	if raDeg < 0 {
		raDeg += 360
	}
	return SkyPoint{RA: raDeg, Dec: dec / deg2rad}
}

// RegionCorners returns the sky positions of the four corner pixel centres of
// r, clockwise from the top-left. An empty rectangle has no corners.
func (w *TanWCS) RegionCorners(r image.Rectangle) SkyPolygon {
	if r.Empty() {
		return nil
	}
	x0, y0 := float64(r.Min.X), float64(r.Min.Y)
	x1, y1 := float64(r.Max.X-1), float64(r.Max.Y-1)
	poly := make(SkyPolygon, 0, 4)
	for _, p := range []Point2d{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}} {
		poly = append(poly, w.PixelToSky(p))
	}
	return poly
}

func (w *TanWCS) String() string {
	return fmt.Sprintf("TAN{CRVAL=(%f,%f), CRPIX=(%f,%f), CD=%v}",
		w.CRVAL[0], w.CRVAL[1], w.CRPIX[0], w.CRPIX[1], mat.Formatted(w.CD, mat.Squeeze()))
}

// WCS builds the image's TAN coordinate mapping from its header. The CD
// matrix is taken from CDi_j, else PCi_j scaled by CDELTi, else CDELTi with
// CROTA2.
func (m *FitsMetadata) WCS() (*TanWCS, error) {
	ctype1, ctype2 := m.GetString("CTYPE1"), m.GetString("CTYPE2")
	if !strings.HasPrefix(ctype1, "RA") || !strings.HasPrefix(ctype2, "DEC") ||
		!strings.Contains(ctype1, "-TAN") || !strings.Contains(ctype2, "-TAN") {
		return nil, fmt.Errorf("%w: CTYPE1=%q CTYPE2=%q", ErrUnsupportedProjection, ctype1, ctype2)
	}

	var crval, crpix [2]float64
	for i, key := range []string{"CRVAL1", "CRVAL2"} {
		v, ok := m.GetDouble(key)
		if !ok {
			return nil, fmt.Errorf("missing WCS keyword %s", key)
		}
		crval[i] = v
	}
	for i, key := range []string{"CRPIX1", "CRPIX2"} {
		v, ok := m.GetDouble(key)
		if !ok {
			return nil, fmt.Errorf("missing WCS keyword %s", key)
		}
		crpix[i] = v
	}

	cd, err := m.cdMatrix()
	if err != nil {
		return nil, err
	}
	return NewTanWCS(crval, crpix, cd)
}

func (m *FitsMetadata) cdMatrix() ([4]float64, error) {
	cdKeys := []string{"CD1_1", "CD1_2", "CD2_1", "CD2_2"}
	var cd [4]float64
	found := false
	for i, key := range cdKeys {
		if v, ok := m.GetDouble(key); ok {
			cd[i] = v
			found = true
		}
	}
	if found {
		return cd, nil
	}

	cdelt1, ok1 := m.GetDouble("CDELT1")
	cdelt2, ok2 := m.GetDouble("CDELT2")
	if !ok1 || !ok2 {
		return cd, fmt.Errorf("missing WCS scale: neither CDi_j nor CDELTi present")
	}

	pc := [4]float64{1, 0, 0, 1}
	hasPC := false
	for i, key := range []string{"PC1_1", "PC1_2", "PC2_1", "PC2_2"} {
		if v, ok := m.GetDouble(key); ok {
			pc[i] = v
			hasPC = true
		}
	}
	if hasPC {
		return [4]float64{cdelt1 * pc[0], cdelt1 * pc[1], cdelt2 * pc[2], cdelt2 * pc[3]}, nil
	}

	crota, _ := m.GetDouble("CROTA2")
	s, c := math.Sincos(crota * deg2rad)
	return [4]float64{cdelt1 * c, -cdelt2 * s, cdelt1 * s, cdelt2 * c}, nil
}

// AffineMapping is a linear sky to pixel map:
//
//	x = a[0]*ra + a[1]*dec + a[2]
//	y = a[3]*ra + a[4]*dec + a[5]
//
// It is adequate for small fields and for inputs without a FITS header.
type AffineMapping f64.Aff3

func (a AffineMapping) SkyToPixel(p SkyPoint) (Point2d, error) {
	if !p.valid() {
		return Point2d{}, fmt.Errorf("%w: %v", ErrInvalidSkyPoint, p)
	}
	return Point2d{
		X: a[0]*p.RA + a[1]*p.Dec + a[2],
		Y: a[3]*p.RA + a[4]*p.Dec + a[5],
	}, nil
}
