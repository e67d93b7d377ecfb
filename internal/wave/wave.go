// Package wave holds the fixed survey wavelength grid and the atmospheric
// differential refraction model evaluated on it.
package wave

import (
	"fmt"
	"math"

	"github.com/roman-kulish/ifu-extract/internal/poly"
)

const (
	// Start is the first wavelength of the grid, Angstrom.
	Start = 3470.0
	// Stop is the last wavelength of the grid, Angstrom.
	Stop = 5540.0
	// Length is the number of grid points.
	Length = 1036
)

// Step returns the grid spacing.
func Step() float64 { return (Stop - Start) / float64(Length-1) }

// Grid returns the fixed, strictly increasing wavelength grid.
func Grid() []float64 {
	return Linspace(Start, Stop, Length)
}

// Linspace returns n evenly spaced values over [start, stop]. Both endpoints
// are returned exactly.
func Linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{start}
	}

	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}

// ADR anchor points: wavelength (Angstrom) and refraction offset (arcsec).
var (
	adrWave   = []float64{3500, 4000, 4500, 5000, 5500}
	adrOffset = []float64{-0.74, -0.4, -0.08, 0.08, 0.20}

	adrCurve, adrErr = poly.Fit(adrWave, adrOffset, 3)
)

// ADR returns the refraction offsets projected onto the x and y axes for the
// given position angle in degrees.
func ADR(wavelengths []float64, angle float64) (x, y []float64, err error) {
	if adrErr != nil {
		return nil, nil, fmt.Errorf("fitting ADR anchors: %w", adrErr)
	}

	rad := angle * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)

	x = make([]float64, len(wavelengths))
	y = make([]float64, len(wavelengths))
	for i, w := range wavelengths {
		v := adrCurve.Eval(w)
		x[i] = c * v
		y[i] = s * v
	}
	return x, y, nil
}
