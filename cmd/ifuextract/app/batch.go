package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/ifu-extract/internal/cube"
	"github.com/roman-kulish/ifu-extract/internal/extract"
	"github.com/roman-kulish/ifu-extract/internal/fiber"
	"github.com/roman-kulish/ifu-extract/internal/psf"
	"github.com/roman-kulish/ifu-extract/internal/spectrum"
)

// Outcome classifies the extraction of one target.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"      // Spectrum extracted
	OutcomeSkipped Outcome = "skipped" // Not enough data around the target
	OutcomeFailed  Outcome = "failed"  // Extraction error
)

// TargetResult is the outcome of one target. Spectrum, Cube and Extraction
// are set only for OutcomeOK; Cube is nil when cubes are disabled.
type TargetResult struct {
	Order      int // Position in the target catalog
	Target     fiber.Target
	Outcome    Outcome
	Reason     string
	NumFibers  int
	Elapsed    time.Duration
	Spectrum   spectrum.Spectrum
	Cube       *cube.Cube
	Extraction *extract.Result
}

// classify maps an extraction error onto an outcome: a lack of data skips
// the target, anything else (dither.ErrUndeterminedGeometry included) fails
// it.
func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, extract.ErrTooFewFibers), errors.Is(err, psf.ErrInsufficientData):
		return OutcomeSkipped
	}
	return OutcomeFailed
}

// WithWorkers sets the number of targets processed concurrently
func WithWorkers(n int) func(*Batch) {
	return func(b *Batch) {
		b.workers = n
	}
}

// WithTimeout bounds the processing time of each target
func WithTimeout(d time.Duration) func(*Batch) {
	return func(b *Batch) {
		b.timeout = d
	}
}

// WithCombiner replaces the default spectrum combiner
func WithCombiner(c spectrum.Combiner) func(*Batch) {
	return func(b *Batch) {
		b.combiner = c
	}
}

// WithCubes enables cube resampling with the given offsets. adrX and adrY
// are used by extract.OffsetsADR only.
func WithCubes(r *cube.Resampler, mode extract.OffsetMode, adrX, adrY []float64) func(*Batch) {
	return func(b *Batch) {
		b.resampler = r
		b.offsets = mode
		b.adrX, b.adrY = adrX, adrY
	}
}

// WithResultHandler sets a function called with every target result as soon
// as it is available. It may be called concurrently; an error aborts the run.
func WithResultHandler(fn func(context.Context, *TargetResult) error) func(*Batch) {
	return func(b *Batch) {
		b.handler = fn
	}
}

// WithLogger sets the logger for the batch
func WithLogger(logger *slog.Logger) func(*Batch) {
	return func(b *Batch) {
		b.logger = logger
	}
}

// Batch extracts a list of targets. A failing target never aborts the run;
// only cancellation and result handler errors do.
type Batch struct {
	extractor *extract.Extractor
	combiner  spectrum.Combiner
	resampler *cube.Resampler
	offsets   extract.OffsetMode
	adrX      []float64
	adrY      []float64
	handler   func(context.Context, *TargetResult) error
	workers   int
	timeout   time.Duration
	logger    *slog.Logger
}

// NewBatch creates a sequential batch without cubes
func NewBatch(e *extract.Extractor, options ...func(*Batch)) *Batch {
	b := Batch{
		extractor: e,
		combiner:  spectrum.NewCombiner(),
		workers:   1,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&b)
	}
	if b.workers < 1 {
		b.workers = 1
	}

	return &b
}

// Run processes targets and returns their results in target order,
// independent of the number of workers.
func (b *Batch) Run(ctx context.Context, targets []fiber.Target) ([]*TargetResult, error) {
	results := make([]*TargetResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for i, t := range targets {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			r, err := b.process(gctx, i, t)
			if err != nil {
				return err
			}
			if b.handler != nil {
				if err = b.handler(gctx, r); err != nil {
					return fmt.Errorf("handling target %d: %w", i, err)
				}
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// process runs one target. The returned error is reserved for cancellation
// of the run; target failures are recorded in the result.
func (b *Batch) process(ctx context.Context, order int, t fiber.Target) (*TargetResult, error) {
	start := time.Now()
	logger := b.logger.With(
		slog.Int("target", order),
		slog.Int64("starID", t.StarID),
		slog.Float64("ra", t.Coordinate.RA),
		slog.Float64("dec", t.Coordinate.Dec))

	tctx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	r := &TargetResult{Order: order, Target: t}
	err := b.extract(tctx, r)
	r.Elapsed = time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		r.Outcome, r.Reason = classify(err), err.Error()
		r.Spectrum, r.Cube, r.Extraction = spectrum.Spectrum{}, nil, nil

		switch r.Outcome {
		case OutcomeSkipped:
			logger.Info("target skipped", slog.String("reason", r.Reason))
		default:
			logger.Warn("target failed", slog.String("error", r.Reason))
		}
		return r, nil
	}

	r.Outcome = OutcomeOK
	logger.Info("target extracted",
		slog.Int("fibers", r.NumFibers),
		slog.Int("validWavelengths", r.Spectrum.NumValid()),
		slog.Float64("medianSNR", r.Spectrum.MedianSNR()),
		slog.Duration("elapsed", r.Elapsed))
	return r, nil
}

func (b *Batch) extract(ctx context.Context, r *TargetResult) (err error) {
	if r.Extraction, err = b.extractor.Extract(ctx, r.Target.Coordinate); err != nil {
		return err
	}
	r.NumFibers = r.Extraction.NumFibers

	if r.Spectrum, err = r.Extraction.Spectrum(b.combiner); err != nil {
		return fmt.Errorf("combining spectrum: %w", err)
	}

	if b.resampler == nil {
		return nil
	}

	in, err := r.Extraction.CubeInput(b.offsets, b.adrX, b.adrY)
	if err != nil {
		return fmt.Errorf("preparing cube: %w", err)
	}
	if r.Cube, err = b.resampler.Resample(ctx, in); err != nil {
		return fmt.Errorf("resampling cube: %w", err)
	}
	return nil
}
