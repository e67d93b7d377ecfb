// Package psf models a point source observed through a fiber bundle. It fits
// a Gaussian profile per wavelength chunk and smooths the chunk estimates
// across wavelength into a centroid trajectory and per-fiber weights.
package psf

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/ifu-extract/internal/poly"
)

// ErrInsufficientData is returned when too few chunks yield a centroid to
// build a trajectory.
var ErrInsufficientData = errors.New("insufficient data for source model")

// Config holds the tunables of the chunked fit.
type Config struct {
	Chunks             int           // Number of wavelength chunks
	NeighborhoodRadius float64       // Fit neighborhood around the peak fiber, arcsec
	InitialWidth       float64       // Seed profile width, arcsec
	Fit                FitOptions    // Profile fit bounds
	Smoother           poly.Smoother // Cross-chunk smoothing policy
}

// DefaultConfig returns the survey defaults.
func DefaultConfig() Config {
	return Config{
		Chunks:             11,
		NeighborhoodRadius: 3,
		InitialWidth:       1,
		Fit:                FitOptions{MaxIterations: 100, Tolerance: 1e-7},
		Smoother:           poly.DefaultSmoother,
	}
}

// Observation is the input of a fit. Matrices are fibers × wavelengths; a mask
// entry of zero excludes the sample.
type Observation struct {
	Flux        *mat.Dense
	Error       *mat.Dense
	Mask        *mat.Dense
	X           []float64 // Corrected fiber x, arcsec
	Y           []float64 // Corrected fiber y, arcsec
	Wavelengths []float64
}

func (o Observation) validate() error {
	nf, nw := len(o.X), len(o.Wavelengths)
	if len(o.Y) != nf {
		return fmt.Errorf("position length mismatch: x=%d y=%d", nf, len(o.Y))
	}
	matrices := []struct {
		name string
		m    *mat.Dense
	}{
		{"flux", o.Flux},
		{"error", o.Error},
		{"mask", o.Mask},
	}
	for _, v := range matrices {
		if v.m == nil {
			return fmt.Errorf("missing %s matrix", v.name)
		}
		if r, c := v.m.Dims(); r != nf || c != nw {
			return fmt.Errorf("%s matrix is %dx%d, want %dx%d", v.name, r, c, nf, nw)
		}
	}
	return nil
}

// Fitter builds source models.
type Fitter struct {
	config Config
	logger *slog.Logger
}

// WithConfig replaces the default configuration
func WithConfig(c Config) func(f *Fitter) {
	return func(f *Fitter) {
		f.config = c
	}
}

// WithLogger sets the logger for the fitter
func WithLogger(logger *slog.Logger) func(f *Fitter) {
	return func(f *Fitter) {
		f.logger = logger
	}
}

// NewFitter creates a Fitter with the default configuration and a discard logger
func NewFitter(options ...func(f *Fitter)) *Fitter {
	f := Fitter{
		config: DefaultConfig(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&f)
	}
	return &f
}

// Config returns the fitter configuration.
func (f *Fitter) Config() Config {
	return f.config
}

// Fit runs both stages: per-chunk estimation, then smoothing across chunks.
func (f *Fitter) Fit(obs Observation) (*Model, error) {
	fits, err := f.FitChunks(obs)
	if err != nil {
		return nil, err
	}
	return f.Smooth(obs, fits)
}
