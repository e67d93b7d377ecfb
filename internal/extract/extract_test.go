package extract

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/ifu-extract/internal/cube"
	"github.com/roman-kulish/ifu-extract/internal/dither"
	"github.com/roman-kulish/ifu-extract/internal/fiber"
	"github.com/roman-kulish/ifu-extract/internal/psf"
	"github.com/roman-kulish/ifu-extract/internal/simulate"
	"github.com/roman-kulish/ifu-extract/internal/spectrum"
	"github.com/roman-kulish/ifu-extract/internal/wave"
)

const (
	fieldRA  = 210.5
	fieldDec = 51.2
)

// sevenFibers builds a single-exposure hexagon around the field center with
// an unrotated sky mapping, holding a constant Gaussian source.
func sevenFibers(g psf.Gaussian, nw int) fiber.Set {
	cosDec := math.Cos(fieldDec * math.Pi / 180)
	set := make(fiber.Set, 0, 7)
	for _, p := range simulate.HexPositions(1.5, 1) {
		f := fiber.Sample{
			IFUX:   p[0],
			IFUY:   p[1],
			RA:     fieldRA + p[1]/3600/cosDec,
			Dec:    fieldDec + p[0]/3600,
			ExpNum: 1,
		}
		v := g.Eval(p[0], p[1])
		for k := 0; k < nw; k++ {
			f.Flux = append(f.Flux, v)
			f.Error = append(f.Error, 0.1)
			f.FiberToFiber = append(f.FiberToFiber, 1)
			f.Amp2Amp = append(f.Amp2Amp, 1)
		}
		set = append(set, f)
	}
	return set
}

func TestExtract_SevenFiberPointSource(t *testing.T) {
	truth := psf.Gaussian{Amplitude: 100, X0: 0.3, Y0: -0.2, SigmaX: 1.2, SigmaY: 1.2}
	grid := wave.Grid()
	set := sevenFibers(truth, len(grid))
	catalog := fiber.NewMemoryCatalog(set, nil)

	e, err := NewExtractor(catalog, grid)
	require.NoError(t, err)

	target := fiber.Coordinate{RA: fieldRA, Dec: fieldDec}
	res, err := e.Extract(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, 7, res.NumFibers)
	// The fixture projects with the field declination, the registration with
	// the reference fiber's, so the target lands within the tangent-plane error.
	assert.InDelta(t, 0, res.TargetX, 1e-4)
	assert.InDelta(t, 0, res.TargetY, 1e-4)

	for k := range grid {
		x, y := res.Model.Centroid(k)
		if math.Abs(x-truth.X0) > 0.1 || math.Abs(y-truth.Y0) > 0.1 {
			t.Fatalf("centroid at %.0f = (%f, %f)", grid[k], x, y)
		}
	}

	s, err := res.Spectrum(spectrum.NewCombiner())
	require.NoError(t, err)

	injected := 0.0
	for _, f := range set {
		injected += f.Flux[0]
	}
	for k := range grid {
		require.True(t, s.Valid(k))
		if math.Abs(s.Flux[k]/injected-1) > 0.01 {
			t.Fatalf("flux at %.0f = %f, want %f within 1%%", grid[k], s.Flux[k], injected)
		}
	}
}

func TestExtract_Idempotent(t *testing.T) {
	grid := wave.Grid()
	obs, err := simulate.Generate(simulate.DefaultConfig(), grid)
	require.NoError(t, err)
	catalog := fiber.NewMemoryCatalog(obs.Fibers, obs.Targets)

	run := func() (spectrum.Spectrum, *cube.Cube) {
		e, err := NewExtractor(catalog, grid)
		require.NoError(t, err)
		res, err := e.Extract(context.Background(), obs.Targets[0].Coordinate)
		require.NoError(t, err)
		s, err := res.Spectrum(spectrum.NewCombiner())
		require.NoError(t, err)
		in, err := res.CubeInput(OffsetsCentroid, nil, nil)
		require.NoError(t, err)
		c, err := cube.NewResampler().Resample(context.Background(), in)
		require.NoError(t, err)
		return s, c
	}

	s1, c1 := run()
	s2, c2 := run()
	for k := range s1.Flux {
		if math.Float64bits(s1.Flux[k]) != math.Float64bits(s2.Flux[k]) ||
			math.Float64bits(s1.Error[k]) != math.Float64bits(s2.Error[k]) {
			t.Fatalf("spectrum differs at %d", k)
		}
	}
	for i := range c1.Data {
		if math.Float64bits(c1.Data[i]) != math.Float64bits(c2.Data[i]) {
			t.Fatalf("cube differs at %d", i)
		}
	}
}

func TestExtract_SimulatedField(t *testing.T) {
	grid := wave.Grid()
	cfg := simulate.DefaultConfig()
	obs, err := simulate.Generate(cfg, grid)
	require.NoError(t, err)
	catalog := fiber.NewMemoryCatalog(obs.Fibers, obs.Targets)

	e, err := NewExtractor(catalog, grid)
	require.NoError(t, err)

	res, err := e.Extract(context.Background(), obs.Targets[0].Coordinate)
	require.NoError(t, err)

	adrX, adrY, err := wave.ADR(grid, cfg.ADRAngle)
	require.NoError(t, err)
	src := cfg.Sources[0]
	for _, k := range []int{100, 518, 900} {
		x, y := res.Model.Centroid(k)
		assert.InDelta(t, src.X+adrX[k], x, 0.15, "x at %.0f", grid[k])
		assert.InDelta(t, src.Y+adrY[k], y, 0.15, "y at %.0f", grid[k])
	}

	s, err := res.Spectrum(spectrum.NewCombiner())
	require.NoError(t, err)
	assert.Greater(t, s.NumValid(), len(grid)*9/10)
	assert.Greater(t, s.MedianSNR(), 10.0)

	// The third catalog star lies outside the bundle.
	_, err = e.Extract(context.Background(), obs.Targets[2].Coordinate)
	assert.ErrorIs(t, err, ErrTooFewFibers)
}

func TestExtract_UndeterminedGeometry(t *testing.T) {
	grid := wave.Grid()
	set := sevenFibers(psf.Gaussian{Amplitude: 10, SigmaX: 1, SigmaY: 1}, len(grid))
	for i := 1; i < len(set); i++ {
		set[i].ExpNum = 2
	}

	e, err := NewExtractor(fiber.NewMemoryCatalog(set, nil), grid)
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), fiber.Coordinate{RA: fieldRA, Dec: fieldDec})
	assert.ErrorIs(t, err, dither.ErrUndeterminedGeometry)
}

func TestExtract_MaskedFibersAreExcluded(t *testing.T) {
	grid := wave.Grid()
	set := sevenFibers(psf.Gaussian{Amplitude: 10, SigmaX: 1, SigmaY: 1}, len(grid))
	for k := range set[2].FiberToFiber {
		set[2].FiberToFiber[k] = 0.3
	}
	set[3].Amp2Amp[10] = 1e-9

	e, err := NewExtractor(fiber.NewMemoryCatalog(set, nil), grid)
	require.NoError(t, err)
	res, err := e.Extract(context.Background(), fiber.Coordinate{RA: fieldRA, Dec: fieldDec})
	require.NoError(t, err)

	m := res.Model.Mask
	assert.Zero(t, m.At(2, 0))
	assert.Zero(t, m.At(3, 10))
	assert.Equal(t, 1.0, m.At(3, 11))
	assert.Equal(t, 1.0, m.At(0, 0))
}

type failingProvider struct{ fiber.Provider }

func (failingProvider) QueryRegion(context.Context, fiber.Coordinate, float64) ([]int64, error) {
	return nil, errors.New("catalog unavailable")
}

func TestExtract_ProviderErrorsPropagate(t *testing.T) {
	e, err := NewExtractor(failingProvider{}, wave.Grid())
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), fiber.Coordinate{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTooFewFibers)
}

func TestMask(t *testing.T) {
	f := fiber.Sample{
		Amp2Amp:      []float64{1, 1e-8, 2e-8, 0},
		FiberToFiber: []float64{0.6, 0.6, 0.4, math.NaN()},
	}
	assert.Equal(t, []bool{true, false, true, false}, Mask(f, 1e-8, 0.5))

	f.FiberToFiber = []float64{0.5, 0.5, 0.5, 0.5}
	assert.Equal(t, []bool{false, false, false, false}, Mask(f, 1e-8, 0.5))
}

func TestNewExtractor_Validation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SearchRadius = 0
	_, err := NewExtractor(fiber.NewMemoryCatalog(nil, nil), wave.Grid(), WithConfig(cfg))
	assert.Error(t, err)

	_, err = NewExtractor(fiber.NewMemoryCatalog(nil, nil), wave.Grid()[:5])
	assert.Error(t, err)
}

func TestResult_CubeInput(t *testing.T) {
	grid := wave.Grid()
	res := &Result{Model: &psf.Model{
		X:           make([]float64, len(grid)),
		Y:           make([]float64, len(grid)),
		Wavelengths: grid,
	}}
	for k := range grid {
		res.Model.X[k] = float64(k) * 0.001
		res.Model.Y[k] = 1
	}

	in, err := res.CubeInput(OffsetsCentroid, nil, nil)
	require.NoError(t, err)
	mid := len(grid) / 2
	assert.Equal(t, res.Model.X[mid], in.CenterX)
	assert.Zero(t, in.DX[mid])
	assert.InDelta(t, -float64(mid)*0.001, in.DX[0], 1e-12)
	assert.Zero(t, in.DY[0])

	adrX, adrY, err := wave.ADR(grid, 0)
	require.NoError(t, err)
	in, err = res.CubeInput(OffsetsADR, adrX, adrY)
	require.NoError(t, err)
	assert.Zero(t, in.DX[mid])
	assert.InDelta(t, adrX[0]-adrX[mid], in.DX[0], 1e-12)

	_, err = res.CubeInput(OffsetsADR, nil, nil)
	assert.Error(t, err)
	_, err = res.CubeInput("bogus", nil, nil)
	assert.Error(t, err)
}
