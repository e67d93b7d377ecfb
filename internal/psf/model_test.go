package psf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/ifu-extract/internal/wave"
)

// hexFibers returns a central fiber and a ring of six at the given pitch.
func hexFibers(pitch float64) (x, y []float64) {
	x, y = []float64{0}, []float64{0}
	for k := 0; k < 6; k++ {
		a := float64(k) * math.Pi / 3
		x = append(x, pitch*math.Cos(a))
		y = append(y, pitch*math.Sin(a))
	}
	return x, y
}

func pointSource(g Gaussian, x, y, wavelengths []float64) Observation {
	nf, nw := len(x), len(wavelengths)
	flux := mat.NewDense(nf, nw, nil)
	errs := mat.NewDense(nf, nw, nil)
	mask := mat.NewDense(nf, nw, nil)
	for i := 0; i < nf; i++ {
		v := g.Eval(x[i], y[i])
		for k := 0; k < nw; k++ {
			flux.Set(i, k, v)
			errs.Set(i, k, 0.1)
			mask.Set(i, k, 1)
		}
	}
	return Observation{Flux: flux, Error: errs, Mask: mask, X: x, Y: y, Wavelengths: wavelengths}
}

func TestFit_PointSourceOnSevenFibers(t *testing.T) {
	x, y := hexFibers(1.5)
	truth := Gaussian{Amplitude: 100, X0: 0.3, Y0: -0.2, SigmaX: 1.2, SigmaY: 1.2}
	obs := pointSource(truth, x, y, wave.Grid())

	m, err := NewFitter().Fit(obs)
	require.NoError(t, err)
	require.Len(t, m.Chunks, 11)

	for _, c := range m.Chunks {
		assert.Equal(t, StatusConverged, c.Status)
		assert.Equal(t, 0, c.Peak)
		assert.Equal(t, 7, c.Neighbors)
	}
	for k := range m.X {
		if math.Abs(m.X[k]-truth.X0) > 0.1 || math.Abs(m.Y[k]-truth.Y0) > 0.1 {
			t.Fatalf("centroid at %d = (%f, %f), want (%f, %f)", k, m.X[k], m.Y[k], truth.X0, truth.Y0)
		}
	}

	// Constant images give constant weights equal to the normalized profile.
	total := 0.0
	for i := range x {
		total += truth.Eval(x[i], y[i])
	}
	for i := range x {
		want := truth.Eval(x[i], y[i]) / total
		assert.InDelta(t, want, m.Weights.At(i, 0), 1e-9)
		assert.InDelta(t, want, m.Weights.At(i, len(m.Wavelengths)-1), 1e-9)
	}
	assert.Equal(t, 0, m.ZeroWeightFibers)
}

func TestFit_EmptyChunkIsSkipped(t *testing.T) {
	x, y := hexFibers(1.5)
	obs := pointSource(Gaussian{Amplitude: 50, X0: 0.1, Y0: 0.1, SigmaX: 1, SigmaY: 1}, x, y, wave.Grid())

	chunks, err := wave.Split(obs.Wavelengths, 11)
	require.NoError(t, err)
	for i := range x {
		for k := chunks[3].Start; k < chunks[3].End; k++ {
			obs.Mask.Set(i, k, 0)
		}
	}

	m, err := NewFitter().Fit(obs)
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, m.Chunks[3].Status)
	assert.Equal(t, -1, m.Chunks[3].Peak)
	assert.InDelta(t, 0.1, m.X[500], 0.05)

	// The masked chunk must not contribute a weight sample.
	for i := range x {
		assert.True(t, m.Chunks[3].Masked[i])
		assert.NotZero(t, m.Weights.At(i, 0))
	}
}

func TestFit_TooFewDefinedChunks(t *testing.T) {
	x, y := hexFibers(1.5)
	obs := pointSource(Gaussian{Amplitude: 50, SigmaX: 1, SigmaY: 1}, x, y, wave.Grid())

	chunks, err := wave.Split(obs.Wavelengths, 11)
	require.NoError(t, err)
	for _, c := range chunks[:7] {
		for i := range x {
			for k := c.Start; k < c.End; k++ {
				obs.Mask.Set(i, k, 0)
			}
		}
	}

	_, err = NewFitter().Fit(obs)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestFit_FiberWithFewValidChunksGetsZeroWeight(t *testing.T) {
	x, y := hexFibers(1.5)
	obs := pointSource(Gaussian{Amplitude: 80, SigmaX: 1.1, SigmaY: 1.1}, x, y, wave.Grid())

	chunks, err := wave.Split(obs.Wavelengths, 11)
	require.NoError(t, err)
	// Fiber 4 keeps exactly four valid chunks.
	for _, c := range chunks[4:] {
		for k := c.Start; k < c.End; k++ {
			obs.Mask.Set(4, k, 0)
		}
	}

	m, err := NewFitter().Fit(obs)
	require.NoError(t, err)
	assert.Equal(t, 1, m.ZeroWeightFibers)
	for k := range m.Wavelengths {
		if m.Weights.At(4, k) != 0 {
			t.Fatalf("fiber 4 weight at %d = %f, want 0", k, m.Weights.At(4, k))
		}
	}
	assert.NotZero(t, m.Weights.At(3, 0))
}

func TestFit_NonConvergenceFallsBackToWeightedCentroid(t *testing.T) {
	x, y := hexFibers(1.5)
	obs := pointSource(Gaussian{Amplitude: 80, X0: 0.4, SigmaX: 1.1, SigmaY: 1.1}, x, y, wave.Grid())

	cfg := DefaultConfig()
	cfg.Fit.MaxIterations = 0
	fits, err := NewFitter(WithConfig(cfg)).FitChunks(obs)
	require.NoError(t, err)

	var zs []float64
	for i := range x {
		zs = append(zs, obs.Flux.At(i, 0))
	}
	wx, wy := weightedCentroid(x, y, zs)
	for _, f := range fits {
		assert.Equal(t, StatusNotConverged, f.Status)
		assert.InDelta(t, wx, f.X, 1e-12)
		assert.InDelta(t, wy, f.Y, 1e-12)
		assert.Equal(t, 1.0, f.SigmaX)
	}
}

func TestFit_RejectsMismatchedShapes(t *testing.T) {
	x, y := hexFibers(1.5)
	obs := pointSource(Gaussian{Amplitude: 1, SigmaX: 1, SigmaY: 1}, x, y, wave.Grid())
	obs.Y = obs.Y[:3]

	_, err := NewFitter().Fit(obs)
	assert.Error(t, err)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "converged", StatusConverged.String())
	assert.Equal(t, "not-converged", StatusNotConverged.String())
	assert.Equal(t, "empty", StatusEmpty.String())
}
