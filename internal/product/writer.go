package product

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/ifu-extract/internal/cube"
	"github.com/roman-kulish/ifu-extract/internal/psf"
	"github.com/roman-kulish/ifu-extract/internal/spectrum"
)

// File names of the products of a run. Per-target products carry the
// 0-based catalog order of the target.
const (
	cubeFileFormat   = "cube_%d.fits"
	modelFileFormat  = "model_%d.fits"
	diagFileFormat   = "diag_%d.png"
	SpectraFileName  = "allspec.fits"
	ErrorsFileName   = "allerror.fits"
	TableFileName    = "spectra.parquet"
	DirPermissions   = 0o755
	outputBufferSize = 1 << 20
)

// Writer writes the products of one run into a directory.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// WithLogger sets the logger for the writer
func WithLogger(logger *slog.Logger) func(w *Writer) {
	return func(w *Writer) {
		w.logger = logger
	}
}

// NewWriter creates dir if needed and returns a writer for it.
func NewWriter(dir string, options ...func(w *Writer)) (*Writer, error) {
	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	w := &Writer{
		dir:    dir,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(w)
	}
	return w, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Cube writes the resampled cube of target n.
func (w *Writer) Cube(n int, c *cube.Cube, h Header) (string, error) {
	return w.create(fmt.Sprintf(cubeFileFormat, n), func(out io.Writer) error {
		return WriteCube(out, c, h)
	})
}

// Model writes the source-model diagnostics of target n.
func (w *Writer) Model(n int, m *psf.Model, h Header) (string, error) {
	return w.create(fmt.Sprintf(modelFileFormat, n), func(out io.Writer) error {
		return WriteModel(out, m, h)
	})
}

// Diagnostics writes the image rendered by draw for target n.
func (w *Writer) Diagnostics(n int, draw func(io.Writer) error) (string, error) {
	return w.create(fmt.Sprintf(diagFileFormat, n), draw)
}

// Stacked writes the fluxes and the errors of spectra to the allspec and
// allerror files.
func (w *Writer) Stacked(wavelengths []float64, spectra []spectrum.Spectrum, starIDs []int64) error {
	flux := make([][]float64, len(spectra))
	errs := make([][]float64, len(spectra))
	for i, s := range spectra {
		flux[i], errs[i] = s.Flux, s.Error
	}

	files := []struct {
		name, ext string
		rows      [][]float64
	}{
		{name: SpectraFileName, ext: "SPECTRA", rows: flux},
		{name: ErrorsFileName, ext: "ERRORS", rows: errs},
	}
	for _, f := range files {
		if _, err := w.create(f.name, func(out io.Writer) error {
			return WriteStacked(out, f.ext, wavelengths, f.rows, starIDs)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Table writes the spectra table.
func (w *Writer) Table(records []SpectrumRecord) (string, error) {
	return w.create(TableFileName, func(out io.Writer) error {
		return WriteSpectraTable(out, records)
	})
}

func (w *Writer) create(name string, write func(io.Writer) error) (path string, err error) {
	path = filepath.Join(w.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", name, err)
	}
	defer closeWithError(f, &err)

	bw := bufio.NewWriterSize(f, outputBufferSize)
	if err = write(bw); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	if err = bw.Flush(); err != nil {
		return "", fmt.Errorf("flushing %s: %w", name, err)
	}

	if info, sErr := f.Stat(); sErr == nil {
		w.logger.Debug("product written", "file", path, "size", humanize.Bytes(uint64(info.Size())))
	}
	return path, nil
}
