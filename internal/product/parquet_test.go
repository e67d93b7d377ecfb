package product

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/ifu-extract/internal/spectrum"
)

func TestWriter_Table(t *testing.T) {
	w, err := NewWriter(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)

	s := spectrum.Spectrum{
		Wavelengths: []float64{3470, 3472, 3474},
		Flux:        []float64{10, math.NaN(), 30},
		Error:       []float64{1, math.NaN(), 2},
	}
	records := []SpectrumRecord{
		NewSpectrumRecord(testHeader, 12, s),
		NewSpectrumRecord(Header{RunID: "run", Order: 5, StarID: 1002}, 7, s),
	}

	path, err := w.Table(records)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(w.Dir(), TableFileName), path)

	rows, err := parquet.ReadFile[SpectrumRecord](path)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, int32(2), rows[0].Order)
	assert.Equal(t, int64(1002), rows[1].StarID)
	assert.Equal(t, int32(12), rows[0].NumFibers)
	assert.InDelta(t, 12.5, rows[0].MedianSNR, 1e-12)
	require.Len(t, rows[0].Flux, 3)
	assert.Equal(t, float32(30), rows[0].Flux[2])
	assert.True(t, math.IsNaN(float64(rows[0].Error[1])))
}

func TestWriter_Products(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	wl := []float64{3470, 3472}
	spectra := []spectrum.Spectrum{
		{Wavelengths: wl, Flux: []float64{1, 2}, Error: []float64{.1, .2}},
	}
	require.NoError(t, w.Stacked(wl, spectra, []int64{1001}))

	for _, name := range []string{SpectraFileName, ErrorsFileName} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size())
	}

	path, err := w.Diagnostics(3, func(out io.Writer) error {
		_, err := out.Write([]byte("png"))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "diag_3.png"), path)
}
