package spectrum

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/ifu-extract/internal/masked"
)

// DefaultRelativeThreshold is the fraction of the median aggregate weight a
// wavelength needs to be valid.
const DefaultRelativeThreshold = 0.1

// Combiner performs optimal PSF-weighted extraction.
type Combiner struct {
	RelativeThreshold float64
}

// NewCombiner returns a Combiner with the default validity threshold.
func NewCombiner() Combiner {
	return Combiner{RelativeThreshold: DefaultRelativeThreshold}
}

// Combine collapses fiber spectra into one spectrum. All matrices are fibers ×
// wavelengths; mask entries of zero are left out of every sum.
//
//	flux  = Σ f·m·w / Σ m·w²
//	error = sqrt(Σ e²·m·w) / Σ m·w²
//
// A wavelength is valid only when Σ m·w² exceeds RelativeThreshold times its
// median over all wavelengths.
func (c Combiner) Combine(flux, errs, mask, weights *mat.Dense, wavelengths []float64) (Spectrum, error) {
	nf, nw := flux.Dims()
	for _, m := range []*mat.Dense{errs, mask, weights} {
		if r, col := m.Dims(); r != nf || col != nw {
			return Spectrum{}, fmt.Errorf("matrix is %dx%d, want %dx%d", r, col, nf, nw)
		}
	}
	if len(wavelengths) != nw {
		return Spectrum{}, fmt.Errorf("%d wavelengths for %d columns", len(wavelengths), nw)
	}

	num := make([]float64, nw)
	den := make([]float64, nw)
	e2 := make([]float64, nw)
	for i := 0; i < nf; i++ {
		for k := 0; k < nw; k++ {
			m := mask.At(i, k)
			if m == 0 {
				continue
			}
			w := weights.At(i, k)
			e := errs.At(i, k)
			num[k] += flux.At(i, k) * m * w
			den[k] += m * w * w
			e2[k] += e * e * m * w
		}
	}

	threshold := masked.Median(den) * c.RelativeThreshold
	s := Spectrum{
		Wavelengths: wavelengths,
		Flux:        make([]float64, nw),
		Error:       make([]float64, nw),
	}
	for k := 0; k < nw; k++ {
		if !(den[k] > threshold) || den[k] == 0 {
			s.Flux[k], s.Error[k] = math.NaN(), math.NaN()
			continue
		}
		s.Flux[k] = num[k] / den[k]
		s.Error[k] = math.Sqrt(e2[k]) / den[k]
	}
	return s, nil
}

// Combine runs the default Combiner.
func Combine(flux, errs, mask, weights *mat.Dense, wavelengths []float64) (Spectrum, error) {
	return NewCombiner().Combine(flux, errs, mask, weights, wavelengths)
}
