package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/roman-kulish/ifu-extract/internal/cube"
	"github.com/roman-kulish/ifu-extract/internal/extract"
	"github.com/roman-kulish/ifu-extract/internal/fiber"
	"github.com/roman-kulish/ifu-extract/internal/product"
	"github.com/roman-kulish/ifu-extract/internal/render"
	"github.com/roman-kulish/ifu-extract/internal/spectrum"
	"github.com/roman-kulish/ifu-extract/internal/storage"
	"github.com/roman-kulish/ifu-extract/internal/wave"
)

// Catalog is the fiber and target catalog an extraction run reads.
type Catalog interface {
	fiber.Provider
	fiber.TargetCatalog
}

// Run extracts every target of the configured catalog, writes the products
// and prints a summary to out.
func Run(ctx context.Context, config *Config, out io.Writer, logger *slog.Logger) error {
	if _, err := os.Stat(config.Catalog.Path); err != nil {
		return fmt.Errorf("opening catalog '%s': %w", config.Catalog.Path, err)
	}

	store := storage.NewSqliteStore(config.Catalog.Path)
	defer store.Close()

	if n, err := store.NumFibers(ctx); err == nil {
		logger.Info("catalog opened", slog.String("path", config.Catalog.Path), slog.String("fibers", humanize.Comma(n)))
	}

	return runExtraction(ctx, store, config, out, logger)
}

func runExtraction(ctx context.Context, catalog Catalog, config *Config, out io.Writer, logger *slog.Logger) error {
	runID := uuid.NewString()
	logger = logger.With(slog.String("run", runID))

	targets, err := catalog.Targets(ctx)
	if err != nil {
		return fmt.Errorf("reading targets: %w", err)
	}
	logger.Info("targets loaded", slog.String("count", humanize.Comma(int64(len(targets)))))

	wavelengths := wave.Grid()
	extractor, err := extract.NewExtractor(catalog, wavelengths,
		extract.WithConfig(config.ExtractConfig()),
		extract.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating extractor: %w", err)
	}

	writer, err := product.NewWriter(config.Output.Directory, product.WithLogger(logger))
	if err != nil {
		return err
	}

	products := newProductHandler(runID, writer, config.Output, logger)

	options := []func(*Batch){
		WithWorkers(config.Settings.Workers),
		WithTimeout(time.Duration(config.Extraction.Timeout)),
		WithCombiner(config.Combiner()),
		WithResultHandler(products.handle),
		WithLogger(logger),
	}
	if config.Cube.Enabled {
		resampler := cube.NewResampler(cube.WithConfig(config.CubeResampleConfig()), cube.WithLogger(logger))

		var adrX, adrY []float64
		if config.Cube.Offsets == extract.OffsetsADR {
			if adrX, adrY, err = wave.ADR(wavelengths, config.Cube.ADRAngle); err != nil {
				return err
			}
		}
		options = append(options, WithCubes(resampler, config.Cube.Offsets, adrX, adrY))
	}

	results, err := NewBatch(extractor, options...).Run(ctx, targets)
	if err != nil {
		return fmt.Errorf("running batch: %w", err)
	}

	if err = products.finish(wavelengths, results); err != nil {
		return fmt.Errorf("writing run products: %w", err)
	}

	t := tally(results)
	logger.Info("run complete",
		slog.Int("ok", t.OK),
		slog.Int("skipped", t.Skipped),
		slog.Int("failed", t.Failed),
		slog.String("output", writer.Dir()))

	return printSummary(out, runID, results)
}

// productHandler writes the per-target products as results arrive and the
// stacked products once the run is complete.
type productHandler struct {
	runID  string
	writer *product.Writer
	config OutputConfig
	logger *slog.Logger

	renderers sync.Pool
}

func newProductHandler(runID string, w *product.Writer, config OutputConfig, logger *slog.Logger) *productHandler {
	return &productHandler{
		runID:  runID,
		writer: w,
		config: config,
		logger: logger,
	}
}

func (p *productHandler) header(r *TargetResult) product.Header {
	return product.Header{
		RunID:     p.runID,
		Order:     r.Order,
		StarID:    r.Target.StarID,
		RA:        r.Target.Coordinate.RA,
		Dec:       r.Target.Coordinate.Dec,
		Magnitude: r.Target.Magnitude,
	}
}

func (p *productHandler) handle(_ context.Context, r *TargetResult) error {
	if r.Outcome != OutcomeOK {
		return nil
	}
	h := p.header(r)

	if p.config.Cubes && r.Cube != nil {
		if _, err := p.writer.Cube(r.Order, r.Cube, h); err != nil {
			return err
		}
	}
	if p.config.Models {
		if _, err := p.writer.Model(r.Order, r.Extraction.Model, h); err != nil {
			return err
		}
	}
	if p.config.Diagnostics {
		if err := p.diagnostics(r); err != nil {
			return err
		}
	}

	// The cube is no longer needed once written.
	r.Cube = nil
	return nil
}

func (p *productHandler) diagnostics(r *TargetResult) error {
	rd, _ := p.renderers.Get().(*render.Renderer)
	if rd == nil {
		var err error
		if rd, err = render.NewRenderer(p.config.Render); err != nil {
			return fmt.Errorf("creating renderer: %w", err)
		}
	}
	defer p.renderers.Put(rd)

	title := fmt.Sprintf("target %d, star %d, g=%.2f, %d fibers", r.Order, r.Target.StarID, r.Target.Magnitude, r.NumFibers)
	img, err := rd.Render(r.Cube, r.Spectrum, title)
	if err != nil {
		p.logger.Warn("diagnostics not rendered", slog.Int("target", r.Order), slog.String("error", err.Error()))
		return nil
	}

	_, err = p.writer.Diagnostics(r.Order, func(w io.Writer) error {
		return render.WritePNG(w, img)
	})
	return err
}

func (p *productHandler) finish(wavelengths []float64, results []*TargetResult) error {
	ok := slices.DeleteFunc(slices.Clone(results), func(r *TargetResult) bool {
		return r.Outcome != OutcomeOK
	})
	if len(ok) == 0 {
		p.logger.Warn("no spectra extracted, skipping stacked products")
		return nil
	}

	spectra := make([]spectrum.Spectrum, len(ok))
	starIDs := make([]int64, len(ok))
	records := make([]product.SpectrumRecord, len(ok))
	for i, r := range ok {
		spectra[i] = r.Spectrum
		starIDs[i] = r.Target.StarID
		records[i] = product.NewSpectrumRecord(p.header(r), r.NumFibers, r.Spectrum)
	}

	if p.config.Stacked {
		if err := p.writer.Stacked(wavelengths, spectra, starIDs); err != nil {
			return err
		}
	}
	if p.config.Table {
		if _, err := p.writer.Table(records); err != nil {
			return err
		}
	}
	return nil
}
