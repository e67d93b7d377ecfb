// Package product writes extraction results to disk: FITS images for cubes,
// source-model diagnostics and stacked spectra, and a Parquet table of
// spectra.
package product

import (
	"errors"
	"fmt"
	"io"

	"github.com/astrogo/fitsio"
	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/ifu-extract/internal/cube"
	"github.com/roman-kulish/ifu-extract/internal/psf"
)

const (
	bitpixFloat32 = -32
	bitpixFloat64 = -64
)

// Header describes the target a product belongs to.
type Header struct {
	RunID     string
	Order     int // Position in the target catalog
	StarID    int64
	RA        float64
	Dec       float64
	Magnitude float64
}

func (h Header) cards() []fitsio.Card {
	return []fitsio.Card{
		{Name: "RUNID", Value: h.RunID, Comment: "extraction run"},
		{Name: "TARGET", Value: h.Order, Comment: "catalog order"},
		{Name: "STARID", Value: int(h.StarID)},
		{Name: "RA", Value: h.RA, Comment: "target right ascension, deg"},
		{Name: "DEC", Value: h.Dec, Comment: "target declination, deg"},
		{Name: "GMAG", Value: h.Magnitude},
	}
}

type hdu struct {
	name   string
	bitpix int
	dims   []int
	data   any
	cards  []fitsio.Card
}

func writeHDUs(w io.Writer, hdus ...hdu) (err error) {
	f, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("creating fits: %w", err)
	}
	defer closeWithError(f, &err)

	for _, h := range hdus {
		if err = writeImage(f, h); err != nil {
			return fmt.Errorf("writing %s: %w", h.name, err)
		}
	}
	return nil
}

func writeImage(f *fitsio.File, h hdu) (err error) {
	im := fitsio.NewImage(h.bitpix, h.dims)
	defer closeWithError(im, &err)

	cards := append([]fitsio.Card{{Name: "EXTNAME", Value: h.name}}, h.cards...)
	if err = im.Header().Append(cards...); err != nil {
		return fmt.Errorf("appending header: %w", err)
	}
	if err = im.Write(h.data); err != nil {
		return fmt.Errorf("writing data: %w", err)
	}
	return f.Write(im)
}

// WriteCube writes c as a single float32 image with NAXIS1 = x, NAXIS2 = y and
// NAXIS3 = wavelength, and the linear WCS of every axis.
func WriteCube(w io.Writer, c *cube.Cube, h Header) error {
	nx, ny, nw := c.Dims()
	wcs := c.WCS()

	cards := h.cards()
	for a := 0; a < 3; a++ {
		n := a + 1
		cards = append(cards,
			fitsio.Card{Name: fmt.Sprintf("CRVAL%d", n), Value: wcs.CRVAL[a]},
			fitsio.Card{Name: fmt.Sprintf("CRPIX%d", n), Value: wcs.CRPIX[a]},
			fitsio.Card{Name: fmt.Sprintf("CTYPE%d", n), Value: wcs.CTYPE[a]},
			fitsio.Card{Name: fmt.Sprintf("CDELT%d", n), Value: wcs.CDELT[a]},
		)
	}
	cards = append(cards, fitsio.Card{Name: "NEMPTY", Value: c.EmptySlices, Comment: "slices without fibers"})

	return writeHDUs(w, hdu{
		name:   "CUBE",
		bitpix: bitpixFloat32,
		dims:   []int{nx, ny, nw},
		data:   toFloat32(c.Data),
		cards:  cards,
	})
}

// WriteModel writes the diagnostic arrays of a source model, one HDU each:
// FLUX, ERROR, MASK and WEIGHTS (fiber × wavelength), XC and YC (centroid
// trajectory) and XLOC and YLOC (corrected fiber positions).
func WriteModel(w io.Writer, m *psf.Model, h Header) error {
	matrices := []struct {
		name string
		m    *mat.Dense
	}{
		{name: "FLUX", m: m.Flux},
		{name: "ERROR", m: m.Error},
		{name: "MASK", m: m.Mask},
		{name: "WEIGHTS", m: m.Weights},
	}
	vectors := []struct {
		name string
		v    []float64
	}{
		{name: "XC", v: m.X},
		{name: "YC", v: m.Y},
		{name: "XLOC", v: m.XLoc},
		{name: "YLOC", v: m.YLoc},
	}

	hdus := make([]hdu, 0, len(matrices)+len(vectors))
	for i, d := range matrices {
		r, c := d.m.Dims()
		im := hdu{
			name:   d.name,
			bitpix: bitpixFloat64,
			dims:   []int{c, r},
			data:   denseData(d.m),
		}
		if i == 0 {
			im.cards = append(h.cards(), fitsio.Card{Name: "NZEROW", Value: m.ZeroWeightFibers, Comment: "fibers without weights"})
		}
		hdus = append(hdus, im)
	}
	for _, d := range vectors {
		hdus = append(hdus, hdu{
			name:   d.name,
			bitpix: bitpixFloat64,
			dims:   []int{len(d.v)},
			data:   append([]float64(nil), d.v...),
		})
	}
	return writeHDUs(w, hdus...)
}

// WriteStacked writes rows (one spectrum per row, all on the wavelength
// grid) as a 2-D float32 image with the wavelength WCS on the first axis.
// Each row is labelled by a STAR<n> card.
func WriteStacked(w io.Writer, name string, wavelengths []float64, rows [][]float64, starIDs []int64) error {
	switch {
	case len(rows) == 0:
		return errors.New("no spectra")
	case len(rows) != len(starIDs):
		return fmt.Errorf("%d rows for %d stars", len(rows), len(starIDs))
	case len(wavelengths) < 2:
		return fmt.Errorf("wavelength grid of %d values", len(wavelengths))
	}

	data := make([]float32, 0, len(rows)*len(wavelengths))
	for i, r := range rows {
		if len(r) != len(wavelengths) {
			return fmt.Errorf("row %d has %d values for %d wavelengths", i, len(r), len(wavelengths))
		}
		data = append(data, toFloat32(r)...)
	}

	cards := []fitsio.Card{
		{Name: "CRVAL1", Value: wavelengths[0]},
		{Name: "CRPIX1", Value: 1.0},
		{Name: "CTYPE1", Value: "WAVE"},
		{Name: "CDELT1", Value: wavelengths[1] - wavelengths[0]},
	}
	for i, id := range starIDs {
		cards = append(cards, fitsio.Card{Name: fmt.Sprintf("STAR%d", i+1), Value: int(id)})
	}

	return writeHDUs(w, hdu{
		name:   name,
		bitpix: bitpixFloat32,
		dims:   []int{len(wavelengths), len(rows)},
		data:   data,
		cards:  cards,
	})
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

// denseData returns m in row-major order, which is the FITS order for an
// image with NAXIS1 = columns.
func denseData(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
