package poly

import (
	"fmt"
	"math"
)

// Smoother fits a polynomial trend through sparse samples and evaluates it on
// a dense abscissa. It refuses to fit (and never extrapolates) when fewer than
// MinPoints usable samples are available.
type Smoother struct {
	Degree    int
	MinPoints int
}

// DefaultSmoother is the cubic, five-point policy used across wavelength chunks.
var DefaultSmoother = Smoother{Degree: 3, MinPoints: 5}

// Smooth fits y(x) using the samples where valid is true (all samples when
// valid is nil) and y is finite, then evaluates the fit at every value of at.
func (s Smoother) Smooth(x, y []float64, valid []bool, at []float64) ([]float64, error) {
	if len(x) != len(y) || (valid != nil && len(valid) != len(x)) {
		return nil, fmt.Errorf("length mismatch: x=%d y=%d valid=%d", len(x), len(y), len(valid))
	}

	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if valid != nil && !valid[i] {
			continue
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}

	minPoints := max(s.MinPoints, s.Degree+1)
	if len(xs) < minPoints {
		return nil, fmt.Errorf("%w: %d usable of %d required", ErrTooFewPoints, len(xs), minPoints)
	}

	p, err := Fit(xs, ys, s.Degree)
	if err != nil {
		return nil, err
	}
	return p.EvalAll(at), nil
}
