// Package extract orchestrates a point-source extraction: it queries the
// fibers around a coordinate, masks bad data, registers the dither pattern
// and fits the source model.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/ifu-extract/internal/dither"
	"github.com/roman-kulish/ifu-extract/internal/fiber"
	"github.com/roman-kulish/ifu-extract/internal/masked"
	"github.com/roman-kulish/ifu-extract/internal/psf"
)

// ErrTooFewFibers is returned when the region around a coordinate holds fewer
// fibers than required. It is an expected outcome for sparse fields.
var ErrTooFewFibers = errors.New("too few fibers")

// Result is a successful extraction.
type Result struct {
	Target    fiber.Coordinate
	NumFibers int
	Transform dither.Transform
	TargetX   float64 // Target position in the corrected frame, arcsec
	TargetY   float64
	Model     *psf.Model
}

// Extractor runs extractions against a fiber provider. It is safe for
// concurrent use when the provider is.
type Extractor struct {
	provider    fiber.Provider
	wavelengths []float64
	config      Config
	logger      *slog.Logger
}

// WithConfig replaces the default configuration
func WithConfig(c Config) func(e *Extractor) {
	return func(e *Extractor) {
		e.config = c
	}
}

// WithLogger sets the logger for the extractor
func WithLogger(logger *slog.Logger) func(e *Extractor) {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// NewExtractor creates an Extractor with the default configuration and a
// discard logger
func NewExtractor(p fiber.Provider, wavelengths []float64, options ...func(e *Extractor)) (*Extractor, error) {
	e := Extractor{
		provider:    p,
		wavelengths: wavelengths,
		config:      DefaultConfig(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&e)
	}

	if err := e.config.Validate(); err != nil {
		return nil, err
	}
	if len(wavelengths) < e.config.PSF.Chunks {
		return nil, fmt.Errorf("%d wavelengths cannot be split into %d chunks", len(wavelengths), e.config.PSF.Chunks)
	}
	return &e, nil
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config {
	return e.config
}

// Wavelengths returns the wavelength grid.
func (e *Extractor) Wavelengths() []float64 {
	return e.wavelengths
}

// Extract models the point source at c. It returns ErrTooFewFibers for sparse
// regions, dither.ErrUndeterminedGeometry when the dither pattern cannot be
// registered and psf.ErrInsufficientData when no centroid trajectory can be
// built.
func (e *Extractor) Extract(ctx context.Context, c fiber.Coordinate) (*Result, error) {
	ids, err := e.provider.QueryRegion(ctx, c, e.config.SearchRadius/3600)
	if err != nil {
		return nil, fmt.Errorf("querying region: %w", err)
	}
	if len(ids) < e.config.MinFibers {
		return nil, fmt.Errorf("%w: %d of %d required", ErrTooFewFibers, len(ids), e.config.MinFibers)
	}

	set, err := e.provider.ReadFibers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reading fibers: %w", err)
	}

	obs, err := e.observation(set)
	if err != nil {
		return nil, err
	}

	x, y := set.Positions()
	ra, dec := set.SkyPositions()
	tr, err := dither.Register(set.Exposures(), x, y, ra, dec)
	if err != nil {
		return nil, fmt.Errorf("registering dither pattern: %w", err)
	}
	obs.X, obs.Y = tr.ApplyAll(ra, dec)
	tx, ty := tr.Apply(c.RA, c.Dec)

	fitter := psf.NewFitter(psf.WithConfig(e.config.PSF), psf.WithLogger(e.logger))
	model, err := fitter.Fit(obs)
	if err != nil {
		return nil, fmt.Errorf("fitting source model: %w", err)
	}

	e.logger.Debug("source modeled",
		slog.Int("fibers", len(set)),
		slog.Float64("targetX", tx),
		slog.Float64("targetY", ty),
		slog.Int("zeroWeightFibers", model.ZeroWeightFibers))

	return &Result{
		Target:    c,
		NumFibers: len(set),
		Transform: tr,
		TargetX:   tx,
		TargetY:   ty,
		Model:     model,
	}, nil
}

// observation stacks the fiber vectors into fibers × wavelengths matrices and
// builds the validity mask.
func (e *Extractor) observation(set fiber.Set) (psf.Observation, error) {
	nf, nw := len(set), len(e.wavelengths)
	obs := psf.Observation{
		Flux:        mat.NewDense(nf, nw, nil),
		Error:       mat.NewDense(nf, nw, nil),
		Mask:        mat.NewDense(nf, nw, nil),
		Wavelengths: e.wavelengths,
	}

	for i, f := range set {
		if len(f.Flux) != nw || len(f.Error) != nw || len(f.Amp2Amp) != nw || len(f.FiberToFiber) != nw {
			return psf.Observation{}, fmt.Errorf("fiber %d: vector length mismatch, want %d", i, nw)
		}
		obs.Flux.SetRow(i, f.Flux)
		obs.Error.SetRow(i, f.Error)

		row := Mask(f, e.config.MaskEpsilon, e.config.ThroughputThreshold)
		for k, ok := range row {
			if ok {
				obs.Mask.Set(i, k, 1)
			}
		}
	}
	return obs, nil
}

// Mask returns the per-wavelength validity of a fiber: the amplifier
// correction exceeds eps and the fiber's median throughput exceeds threshold.
func Mask(f fiber.Sample, eps, threshold float64) []bool {
	out := make([]bool, len(f.Amp2Amp))
	if !(masked.Median(f.FiberToFiber) > threshold) {
		return out
	}
	for k, v := range f.Amp2Amp {
		out[k] = v > eps
	}
	return out
}
