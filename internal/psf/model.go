package psf

import (
	"errors"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/ifu-extract/internal/poly"
)

// Model is the fitted source model of one extraction. It is read-only once
// built.
type Model struct {
	Flux    *mat.Dense // Input flux, unchanged
	Error   *mat.Dense // Input error, unchanged
	Mask    *mat.Dense // 1 valid, 0 masked
	Weights *mat.Dense // PSF weight per fiber and wavelength

	X []float64 // Centroid trajectory x(λ), arcsec
	Y []float64 // Centroid trajectory y(λ), arcsec

	XLoc        []float64 // Corrected fiber x, arcsec
	YLoc        []float64 // Corrected fiber y, arcsec
	Wavelengths []float64

	Chunks []ChunkFit

	// ZeroWeightFibers counts fibers with too few valid chunks for a weight fit.
	ZeroWeightFibers int
}

// Centroid returns the trajectory at wavelength index k.
func (m *Model) Centroid(k int) (x, y float64) {
	return m.X[k], m.Y[k]
}

// CentralCentroid returns the trajectory at the central wavelength.
func (m *Model) CentralCentroid() (x, y float64) {
	return m.Centroid(len(m.X) / 2)
}

// Smooth turns chunk estimates into a centroid trajectory and a weight array
// evaluated on the full wavelength grid.
func (f *Fitter) Smooth(obs Observation, fits []ChunkFit) (*Model, error) {
	if err := obs.validate(); err != nil {
		return nil, err
	}

	means := make([]float64, len(fits))
	cx := make([]float64, len(fits))
	cy := make([]float64, len(fits))
	defined := make([]bool, len(fits))
	for i, fit := range fits {
		means[i] = fit.Chunk.Mean
		cx[i], cy[i] = fit.X, fit.Y
		defined[i] = fit.Defined()
	}

	s := f.config.Smoother
	X, err := s.Smooth(means, cx, defined, obs.Wavelengths)
	if err != nil {
		return nil, fmt.Errorf("%w: centroid x: %v", ErrInsufficientData, err)
	}
	Y, err := s.Smooth(means, cy, defined, obs.Wavelengths)
	if err != nil {
		return nil, fmt.Errorf("%w: centroid y: %v", ErrInsufficientData, err)
	}

	nf, nw := len(obs.X), len(obs.Wavelengths)
	weights := mat.NewDense(nf, nw, nil)
	values := make([]float64, len(fits))
	valid := make([]bool, len(fits))
	zeroed := 0

	for i := 0; i < nf; i++ {
		for c, fit := range fits {
			values[c] = fit.Image[i]
			valid[c] = !fit.Masked[i]
		}

		w, err := s.Smooth(means, values, valid, obs.Wavelengths)
		if errors.Is(err, poly.ErrTooFewPoints) {
			zeroed++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("smoothing weights of fiber %d: %w", i, err)
		}
		weights.SetRow(i, w)
	}

	if zeroed > 0 {
		f.logger.Debug("fibers without weight fit", slog.Int("fibers", zeroed), slog.Int("total", nf))
	}

	mask := mat.NewDense(nf, nw, nil)
	for i := 0; i < nf; i++ {
		for k := 0; k < nw; k++ {
			if obs.Mask.At(i, k) != 0 {
				mask.Set(i, k, 1)
			}
		}
	}

	return &Model{
		Flux:             obs.Flux,
		Error:            obs.Error,
		Mask:             mask,
		Weights:          weights,
		X:                X,
		Y:                Y,
		XLoc:             obs.X,
		YLoc:             obs.Y,
		Wavelengths:      obs.Wavelengths,
		Chunks:           fits,
		ZeroWeightFibers: zeroed,
	}, nil
}
