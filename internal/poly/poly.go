// Package poly fits and evaluates low-order polynomials by linear least
// squares. The abscissa is centered and scaled before fitting so that
// wavelength-sized inputs (thousands of Angstrom) stay well conditioned.
package poly

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrTooFewPoints is returned when a fit has fewer samples than it needs.
var ErrTooFewPoints = errors.New("too few points for polynomial fit")

// Polynomial is p(x) = Σ Coeffs[i]·t^i with t = (x - Shift) / Scale.
type Polynomial struct {
	Coeffs []float64
	Shift  float64
	Scale  float64
}

// Fit returns the least-squares polynomial of the given degree through (x, y).
func Fit(x, y []float64, degree int) (Polynomial, error) {
	if len(x) != len(y) {
		return Polynomial{}, fmt.Errorf("length mismatch: %d x values, %d y values", len(x), len(y))
	}
	if degree < 0 {
		return Polynomial{}, fmt.Errorf("negative degree %d", degree)
	}
	if len(x) < degree+1 {
		return Polynomial{}, fmt.Errorf("%w: %d points for degree %d", ErrTooFewPoints, len(x), degree)
	}

	shift := floats.Sum(x) / float64(len(x))
	scale := 0.0
	for _, v := range x {
		scale = math.Max(scale, math.Abs(v-shift))
	}
	if scale == 0 {
		scale = 1
	}

	a := mat.NewDense(len(x), degree+1, nil)
	for i, v := range x {
		t := (v - shift) / scale
		p := 1.0
		for j := 0; j <= degree; j++ {
			a.Set(i, j, p)
			p *= t
		}
	}
	b := mat.NewVecDense(len(y), append([]float64(nil), y...))

	var c mat.VecDense
	if err := c.SolveVec(a, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return Polynomial{}, fmt.Errorf("solving least squares: %w", err)
		}
	}

	coeffs := make([]float64, degree+1)
	for j := range coeffs {
		coeffs[j] = c.AtVec(j)
		if math.IsNaN(coeffs[j]) || math.IsInf(coeffs[j], 0) {
			return Polynomial{}, errors.New("solving least squares: non-finite coefficient")
		}
	}
	return Polynomial{Coeffs: coeffs, Shift: shift, Scale: scale}, nil
}

// Eval evaluates the polynomial at x.
func (p Polynomial) Eval(x float64) float64 {
	t := (x - p.Shift) / p.Scale
	v := 0.0
	for j := len(p.Coeffs) - 1; j >= 0; j-- {
		v = v*t + p.Coeffs[j]
	}
	return v
}

// EvalAll evaluates the polynomial at every x.
func (p Polynomial) EvalAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = p.Eval(x)
	}
	return out
}
