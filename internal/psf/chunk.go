package psf

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/roman-kulish/ifu-extract/internal/masked"
	"github.com/roman-kulish/ifu-extract/internal/wave"
)

// Status reports how a chunk centroid was obtained.
type Status int

const (
	StatusConverged    Status = iota // Profile fit converged
	StatusNotConverged               // Fell back to the weighted centroid
	StatusEmpty                      // No usable fiber, centroid undefined
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusNotConverged:
		return "not-converged"
	case StatusEmpty:
		return "empty"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ChunkFit is the estimate for one wavelength chunk.
type ChunkFit struct {
	Chunk      wave.Chunk
	Status     Status
	Peak       int // Peak fiber index, -1 when undefined
	Neighbors  int // Fibers in the fit neighborhood
	Iterations int

	X, Y           float64 // Centroid, arcsec
	SigmaX, SigmaY float64 // Profile width, arcsec
	Amplitude      float64

	Image  []float64 // Per-fiber median flux normalized to unit masked sum
	Masked []bool    // Per-fiber: no valid sample in the chunk
}

// Defined reports whether the chunk has a centroid.
func (c ChunkFit) Defined() bool { return c.Status != StatusEmpty }

// FitChunks estimates the source centroid, width and normalized image in each
// wavelength chunk.
func (f *Fitter) FitChunks(obs Observation) ([]ChunkFit, error) {
	if err := obs.validate(); err != nil {
		return nil, err
	}
	chunks, err := wave.Split(obs.Wavelengths, f.config.Chunks)
	if err != nil {
		return nil, fmt.Errorf("splitting wavelengths: %w", err)
	}

	fits := make([]ChunkFit, len(chunks))
	for i, c := range chunks {
		fit, err := f.fitChunk(obs, c)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		fits[i] = fit

		f.logger.Debug("chunk fitted",
			slog.Int("chunk", i),
			slog.Float64("wavelength", c.Mean),
			slog.String("status", fit.Status.String()),
			slog.Int("neighbors", fit.Neighbors),
			slog.Float64("x", fit.X),
			slog.Float64("y", fit.Y))
	}
	return fits, nil
}

func (f *Fitter) fitChunk(obs Observation, c wave.Chunk) (ChunkFit, error) {
	nf := len(obs.X)
	raw := make([]float64, nf)
	valid := make([]bool, nf)

	values := make([]float64, c.Len())
	keep := make([]bool, c.Len())
	for i := 0; i < nf; i++ {
		for k := range values {
			values[k] = obs.Flux.At(i, c.Start+k)
			keep[k] = obs.Mask.At(i, c.Start+k) != 0
		}
		raw[i], valid[i] = masked.MedianOf(values, keep)
	}

	fit := ChunkFit{
		Chunk:  c,
		Status: StatusEmpty,
		Peak:   -1,
		Image:  make([]float64, nf),
		Masked: make([]bool, nf),
	}

	total := masked.Sum(raw, valid)
	usable := total != 0 && !math.IsNaN(total) && !math.IsInf(total, 0)
	for i := range raw {
		fit.Masked[i] = !valid[i] || !usable
		if !fit.Masked[i] {
			fit.Image[i] = raw[i] / total
		}
	}

	peak := masked.ArgMax(raw, valid)
	if peak < 0 {
		return fit, nil
	}
	fit.Peak = peak

	var xs, ys, zs []float64
	for i := range raw {
		if !valid[i] || math.Hypot(obs.X[i]-obs.X[peak], obs.Y[i]-obs.Y[peak]) >= f.config.NeighborhoodRadius {
			continue
		}
		xs = append(xs, obs.X[i])
		ys = append(ys, obs.Y[i])
		zs = append(zs, raw[i])
	}
	fit.Neighbors = len(zs)
	if len(zs) == 0 {
		return fit, nil
	}

	cx, cy := weightedCentroid(xs, ys, zs)
	if math.IsNaN(cx) || math.IsNaN(cy) {
		cx, cy = obs.X[peak], obs.Y[peak]
	}

	seed := Gaussian{
		Amplitude: raw[peak],
		X0:        cx,
		Y0:        cy,
		SigmaX:    f.config.InitialWidth,
		SigmaY:    f.config.InitialWidth,
	}

	res, err := FitGaussian(xs, ys, zs, seed, f.config.Fit)
	switch {
	case err == nil:
		fit.Status = StatusConverged
		fit.X, fit.Y = res.Gaussian.X0, res.Gaussian.Y0
		fit.SigmaX, fit.SigmaY = res.Gaussian.SigmaX, res.Gaussian.SigmaY
		fit.Amplitude = res.Gaussian.Amplitude
	case errors.Is(err, ErrNotConverged):
		fit.Status = StatusNotConverged
		fit.X, fit.Y = cx, cy
		fit.SigmaX, fit.SigmaY = seed.SigmaX, seed.SigmaY
		fit.Amplitude = seed.Amplitude
	default:
		return ChunkFit{}, err
	}
	fit.Iterations = res.Iterations
	return fit, nil
}

// weightedCentroid returns the z-weighted mean position, NaN when the weights
// sum to zero.
func weightedCentroid(x, y, z []float64) (cx, cy float64) {
	var sx, sy, sz float64
	for i := range z {
		sx += z[i] * x[i]
		sy += z[i] * y[i]
		sz += z[i]
	}
	if sz == 0 || math.IsNaN(sz) || math.IsInf(sz, 0) {
		return math.NaN(), math.NaN()
	}
	return sx / sz, sy / sz
}
