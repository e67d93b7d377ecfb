package render

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

const (
	lowerPercentile = 0.05
	upperPercentile = 0.95

	// Below this many finite samples the full range is used.
	minimumSampleCount = 20

	boundsMargin = 0.1
)

// Bounds is the value range mapped onto a color table or a plot axis.
type Bounds struct {
	Min float64
	Max float64
}

// Span returns Max - Min.
func (b Bounds) Span() float64 {
	return b.Max - b.Min
}

// PercentileBounds returns the 5th to 95th percentile range of the finite
// values, widened by a 10% margin. Small samples use their full range. A
// constant or empty input yields a unit range around its value.
func PercentileBounds(values []float64) Bounds {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return Bounds{Min: -0.5, Max: 0.5}
	}
	slices.Sort(finite)

	b := Bounds{Min: finite[0], Max: finite[len(finite)-1]}
	if len(finite) >= minimumSampleCount {
		b.Min = stat.Quantile(lowerPercentile, stat.Empirical, finite, nil)
		b.Max = stat.Quantile(upperPercentile, stat.Empirical, finite, nil)
	}

	if b.Span() <= 0 {
		return Bounds{Min: b.Min - 0.5, Max: b.Max + 0.5}
	}

	margin := b.Span() * boundsMargin
	return Bounds{Min: b.Min - margin, Max: b.Max + margin}
}
