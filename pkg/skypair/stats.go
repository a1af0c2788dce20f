package skypair

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ImageStatistics holds summary statistics over the finite pixels of an image.
type ImageStatistics struct {
	Min       float64
	Max       float64
	Mean      float64
	StdDev    float64
	Median    float64
	NonFinite int

	// Kappa-sigma clipped sky background and noise
	Background float64
	Noise      float64
}

func (s ImageStatistics) String() string {
	return fmt.Sprintf("{Min=%f, Max=%f, Mean=%f, StdDev=%f, Median=%f, Background=%f, Noise=%f, NonFinite=%d}",
		s.Min, s.Max, s.Mean, s.StdDev, s.Median, s.Background, s.Noise, s.NonFinite)
}

// CalculateStatistics computes statistics over the finite pixels of img.
// An image with no finite pixels yields zeros and the non-finite count.
func CalculateStatistics(img Mat) ImageStatistics {
	values, nonFinite := finiteValues(img)
	result := ImageStatistics{NonFinite: nonFinite}
	if len(values) == 0 {
		return result
	}
	result.Min, result.Max = floats.Min(values), floats.Max(values)
	sort.Float64s(values)
	result.Mean, result.StdDev = stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		result.StdDev = 0
	}
	result.Median = quantileSorted(values, 0.5)
	bg := KappaSigmaBackground(values, 3.0, 1e-5, 10)
	result.Background, result.Noise = bg.BackgroundMean, bg.Sigma
	return result
}

// KappaSigmaResult holds background estimation results.
type KappaSigmaResult struct {
	Sigma          float64
	BackgroundMean float64
	NumIterations  int
}

// KappaSigmaBackground iteratively estimates the sky background, discarding
// values above mean + clippingMultiplier*sigma until sigma settles within
// allowedError or maxIterations is reached. values must be finite.
func KappaSigmaBackground(values []float64, clippingMultiplier, allowedError float64, maxIterations int) KappaSigmaResult {
	var result KappaSigmaResult
	if len(values) == 0 {
		return result
	}

	kept := make([]float64, 0, len(values))
	threshold := math.Inf(1)
	lastSigma := math.NaN()
	for result.NumIterations < maxIterations {
		kept = kept[:0]
		for _, v := range values {
			if v < threshold {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			break
		}
		mean, sigma := stat.PopMeanStdDev(kept, nil)
		result.NumIterations++
		result.BackgroundMean, result.Sigma = mean, sigma
		if result.NumIterations > 1 && math.Abs(sigma-lastSigma) <= allowedError {
			break
		}
		threshold = mean + clippingMultiplier*sigma
		lastSigma = sigma
	}
	return result
}

// Percentiles returns the requested percentiles (0..100) of data using linear
// interpolation between order statistics. data must not contain non-finite
// values.
func Percentiles(data []float32, ps ...float64) []float64 {
	sorted := make([]float64, len(data))
	for i, v := range data {
		sorted[i] = float64(v)
	}
	sort.Float64s(sorted)
	return percentilesSorted(sorted, ps)
}

func percentilesSorted(sorted []float64, ps []float64) []float64 {
	out := make([]float64, len(ps))
	if len(sorted) == 0 {
		return out
	}
	for i, p := range ps {
		out[i] = quantileSorted(sorted, p/100.0)
	}
	return out
}

// quantileSorted interpolates linearly between the order statistics at
// q*(n-1), so q=0.5 over an even count is the mean of the middle pair.
// stat.LinInterp places samples at i/n instead and gives different bounds.
func quantileSorted(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	if lo < 0 {
		return sorted[0]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

func finiteValues(img Mat) ([]float64, int) {
	// Region views are strided; read through a contiguous copy.
	c := img.Clone()
	defer c.Close()
	rows, cols := c.Rows(), c.Cols()
	data := c.DataFloat32()
	values := make([]float64, 0, rows*cols)
	nonFinite := 0
	for i := 0; i < rows*cols; i++ {
		v := float64(data[i])
		if math.IsNaN(v) || math.IsInf(v, 0) {
			nonFinite++
			continue
		}
		values = append(values, v)
	}
	return values, nonFinite
}
