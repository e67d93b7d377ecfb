// Package masked implements reductions over values with a validity mask.
// Masked entries are excluded from both numerator and denominator, never
// replaced by zero.
package masked

import (
	"math"
	"slices"
)

// Median returns the median of the finite values, averaging the two middle
// values for an even count. It returns NaN when no value is finite.
func Median(values []float64) float64 {
	m, _ := MedianOf(values, nil)
	return m
}

// MedianOf returns the median of the finite values where valid is true (all
// values when valid is nil). ok is false when no value qualifies.
func MedianOf(values []float64, valid []bool) (median float64, ok bool) {
	buf := make([]float64, 0, len(values))
	for i, v := range values {
		if valid != nil && !valid[i] {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		buf = append(buf, v)
	}
	if len(buf) == 0 {
		return math.NaN(), false
	}

	slices.Sort(buf)
	mid := len(buf) / 2
	if len(buf)%2 == 1 {
		return buf[mid], true
	}
	return (buf[mid-1] + buf[mid]) / 2, true
}

// Sum returns the sum of the values where valid is true.
func Sum(values []float64, valid []bool) float64 {
	s := 0.0
	for i, v := range values {
		if valid[i] {
			s += v
		}
	}
	return s
}

// ArgMax returns the index of the largest value where valid is true, the
// first one on ties. It returns -1 when nothing is valid.
func ArgMax(values []float64, valid []bool) int {
	idx := -1
	for i, v := range values {
		if !valid[i] || math.IsNaN(v) {
			continue
		}
		if idx < 0 || v > values[idx] {
			idx = i
		}
	}
	return idx
}
