package product

import (
	"bytes"
	"math"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/ifu-extract/internal/cube"
	"github.com/roman-kulish/ifu-extract/internal/psf"
)

var testHeader = Header{RunID: "run", Order: 2, StarID: 1001, RA: 150.1, Dec: 2.2, Magnitude: 21}

func openFITS(t *testing.T, p []byte) *fitsio.File {
	t.Helper()
	f, err := fitsio.Open(bytes.NewReader(p))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestWriteCube(t *testing.T) {
	c := cube.NewCube([]float64{-1, -0.75, -0.5}, []float64{2, 2.25}, []float64{3470, 3472, 3474, 3476})
	for i := range c.Data {
		c.Data[i] = float64(i)
	}
	c.Data[5] = math.NaN()

	var buf bytes.Buffer
	require.NoError(t, WriteCube(&buf, c, testHeader))

	f := openFITS(t, buf.Bytes())
	require.Len(t, f.HDUs(), 1)

	hdr := f.HDU(0).Header()
	assert.Equal(t, []int{3, 2, 4}, hdr.Axes())

	wcs := map[string]float64{
		"CRVAL1": -1, "CDELT1": 0.25,
		"CRVAL2": 2, "CDELT2": 0.25,
		"CRVAL3": 3470, "CDELT3": 2,
		"CRPIX3": 1,
	}
	for name, want := range wcs {
		card := hdr.Get(name)
		require.NotNil(t, card, name)
		assert.InDelta(t, want, card.Value, 1e-12, name)
	}
	assert.Equal(t, "pixel", hdr.Get("CTYPE3").Value)

	data := make([]float32, len(c.Data))
	require.NoError(t, f.HDU(0).(fitsio.Image).Read(&data))
	require.Len(t, data, len(c.Data))
	assert.EqualValues(t, c.At(1, 1, 2), data[(1*2+1)*3+2])
	assert.True(t, math.IsNaN(float64(data[5])))
}

func TestWriteModel(t *testing.T) {
	m := &psf.Model{
		Flux:    mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}),
		Error:   mat.NewDense(2, 3, []float64{.1, .2, .3, .4, .5, .6}),
		Mask:    mat.NewDense(2, 3, []float64{1, 1, 0, 1, 1, 1}),
		Weights: mat.NewDense(2, 3, []float64{.5, .5, .5, .25, .25, .25}),
		X:       []float64{0.1, 0.2, 0.3},
		Y:       []float64{-0.1, -0.2, -0.3},
		XLoc:    []float64{1, 2},
		YLoc:    []float64{3, 4},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteModel(&buf, m, testHeader))

	f := openFITS(t, buf.Bytes())
	require.Len(t, f.HDUs(), 8)

	names := make([]string, 0, 8)
	for _, h := range f.HDUs() {
		names = append(names, h.Name())
	}
	assert.Equal(t, []string{"FLUX", "ERROR", "MASK", "WEIGHTS", "XC", "YC", "XLOC", "YLOC"}, names)

	assert.Equal(t, []int{3, 2}, f.HDU(0).Header().Axes())

	flux := make([]float64, 6)
	require.NoError(t, f.HDU(0).(fitsio.Image).Read(&flux))
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, flux)

	yloc := make([]float64, 2)
	require.NoError(t, f.HDU(7).(fitsio.Image).Read(&yloc))
	assert.Equal(t, []float64{3, 4}, yloc)
}

func TestWriteStacked(t *testing.T) {
	w := []float64{3470, 3472, 3474}

	var buf bytes.Buffer
	require.NoError(t, WriteStacked(&buf, "SPECTRA", w, [][]float64{{1, 2, 3}, {4, math.NaN(), 6}}, []int64{7, 9}))

	f := openFITS(t, buf.Bytes())
	hdr := f.HDU(0).Header()
	assert.Equal(t, []int{3, 2}, hdr.Axes())
	assert.EqualValues(t, 9, hdr.Get("STAR2").Value)

	t.Run("errors", func(t *testing.T) {
		assert.Error(t, WriteStacked(&bytes.Buffer{}, "X", w, nil, nil))
		assert.Error(t, WriteStacked(&bytes.Buffer{}, "X", w, [][]float64{{1, 2}}, []int64{1}))
		assert.Error(t, WriteStacked(&bytes.Buffer{}, "X", w, [][]float64{{1, 2, 3}}, nil))
	})
}
