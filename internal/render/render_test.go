package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/ifu-extract/internal/cube"
	"github.com/roman-kulish/ifu-extract/internal/spectrum"
)

func TestPercentileBounds(t *testing.T) {
	testCases := []struct {
		name   string
		values []float64
		want   Bounds
	}{
		{"empty", nil, Bounds{Min: -0.5, Max: 0.5}},
		{"non-finite only", []float64{math.NaN(), math.Inf(1)}, Bounds{Min: -0.5, Max: 0.5}},
		{"constant", []float64{3, 3, 3}, Bounds{Min: 2.5, Max: 3.5}},
		{"small sample uses full range", []float64{0, 10, math.NaN(), 5}, Bounds{Min: -1, Max: 11}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := PercentileBounds(tc.values)
			assert.InDelta(t, tc.want.Min, got.Min, 1e-12)
			assert.InDelta(t, tc.want.Max, got.Max, 1e-12)
		})
	}

	t.Run("percentiles clip outliers", func(t *testing.T) {
		values := make([]float64, 100)
		for i := range values {
			values[i] = float64(i + 1)
		}
		values[99] = 1e6

		got := PercentileBounds(values)
		assert.Less(t, got.Max, 200.0)
		assert.Greater(t, got.Min, -10.0)
	})
}

func TestColorMapper(t *testing.T) {
	cm := NewColorMapperWithSize(GrayscaleTheme, Bounds{Min: 0, Max: 10}, 11)

	assert.Equal(t, GrayscaleTheme, cm.ThemeName())
	assert.Equal(t, color.RGBA{A: 255}, cm.Color(-5))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, cm.Color(50))
	assert.Equal(t, noDataColor, cm.Color(math.NaN()))

	for _, theme := range []ColorTheme{ClassicTheme, JungleTheme, ThermalTheme, MarineTheme, "enhanced"} {
		cm := NewColorMapper(theme, Bounds{Min: 0, Max: 1})
		for _, v := range []float64{0, 0.3, 0.6, 1} {
			_, _, _, a := cm.Color(v).RGBA()
			assert.EqualValues(t, 0xffff, a, "theme %s at %v", theme, v)
		}
	}
}

func TestRenderer_Render(t *testing.T) {
	r, err := NewRenderer(Config{PanelSize: 100, PlotWidth: 200})
	require.NoError(t, err)

	x := []float64{-1, 0, 1}
	c := cube.NewCube(x, x, []float64{3470, 3472})
	for i := range c.Data {
		c.Data[i] = float64(i % 9)
	}

	n := 50
	s := spectrum.Spectrum{
		Wavelengths: make([]float64, n),
		Flux:        make([]float64, n),
		Error:       make([]float64, n),
	}
	for k := 0; k < n; k++ {
		s.Wavelengths[k] = 3470 + 2*float64(k)
		s.Flux[k] = 10 + math.Sin(float64(k)/5)
		s.Error[k] = 1
	}
	s.Flux[20], s.Error[20] = math.NaN(), math.NaN()

	img, err := r.Render(c, s, "star 1001")
	require.NoError(t, err)

	size := img.Bounds().Size()
	assert.Equal(t, defaultMargin+100+defaultAxisMargin+200+defaultMargin, size.X)
	assert.Equal(t, defaultHeaderSize+100+defaultFooterSize, size.Y)

	// The top-left spaxel is the last row of the cube, which is brighter
	// than the first.
	top := img.RGBAAt(defaultMargin+5, defaultHeaderSize+5)
	bottom := img.RGBAAt(defaultMargin+5, defaultHeaderSize+95)
	assert.NotEqual(t, top, bottom)

	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, img))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	_, err = r.Render(nil, spectrum.Spectrum{}, "empty")
	assert.Error(t, err)
}

func TestDrawSpectrum_IsolatedPointsDrawNothing(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	r := &Renderer{config: DefaultConfig()}
	s := spectrum.Spectrum{
		Wavelengths: []float64{1, 2, 3},
		Flux:        []float64{math.NaN(), 1, math.NaN()},
		Error:       []float64{1, 1, 1},
	}
	r.drawSpectrum(img, img.Bounds(), s, Bounds{Min: 1, Max: 3}, Bounds{Min: 0, Max: 2})
	for _, p := range img.Pix {
		assert.Zero(t, p)
	}
}
