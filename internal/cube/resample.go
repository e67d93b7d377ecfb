package cube

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Config holds the resampling parameters. Lengths are in arcsec.
type Config struct {
	Scale          float64 // Pixel size
	SeeingFactor   float64 // Seeing FWHM
	FluxCorrection float64 // Multiplicative flux normalization
	BoxSize        float64 // Cube extent around the center
	FiberRadius    float64 // Fiber collecting radius
	MinFibers      int     // Fibers required to fill a slice
}

// DefaultConfig returns the survey defaults.
func DefaultConfig() Config {
	return Config{
		Scale:          0.25,
		SeeingFactor:   1.8,
		FluxCorrection: 1,
		BoxSize:        4,
		FiberRadius:    0.75,
		MinFibers:      5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case !(c.Scale > 0):
		return fmt.Errorf("cube scale must be positive, got %g", c.Scale)
	case c.SeeingFactor < 0:
		return fmt.Errorf("cube seeing factor must not be negative, got %g", c.SeeingFactor)
	case !(c.BoxSize > 0):
		return fmt.Errorf("cube box size must be positive, got %g", c.BoxSize)
	case !(c.FiberRadius > 0):
		return fmt.Errorf("fiber radius must be positive, got %g", c.FiberRadius)
	case c.MinFibers < 3:
		return fmt.Errorf("cube minimum fibers must be at least 3, got %d", c.MinFibers)
	}
	return nil
}

// Input is the resampler input. Flux and Mask are fibers × wavelengths; DX and
// DY hold the per-wavelength source offset subtracted from fiber positions.
type Input struct {
	CenterX, CenterY float64
	XLoc, YLoc       []float64
	Flux             *mat.Dense
	Mask             *mat.Dense
	DX, DY           []float64
	Wavelengths      []float64
}

func (in Input) validate() error {
	nf, nw := len(in.XLoc), len(in.Wavelengths)
	if len(in.YLoc) != nf {
		return fmt.Errorf("position length mismatch: x=%d y=%d", nf, len(in.YLoc))
	}
	if len(in.DX) != nw || len(in.DY) != nw {
		return fmt.Errorf("offset length mismatch: dx=%d dy=%d, want %d", len(in.DX), len(in.DY), nw)
	}
	for _, m := range []*mat.Dense{in.Flux, in.Mask} {
		if m == nil {
			return fmt.Errorf("missing flux or mask matrix")
		}
		if r, c := m.Dims(); r != nf || c != nw {
			return fmt.Errorf("matrix is %dx%d, want %dx%d", r, c, nf, nw)
		}
	}
	return nil
}

// Resampler builds cubes.
type Resampler struct {
	config Config
	logger *slog.Logger
}

// WithConfig replaces the default configuration
func WithConfig(c Config) func(r *Resampler) {
	return func(r *Resampler) {
		r.config = c
	}
}

// WithLogger sets the logger for the resampler
func WithLogger(logger *slog.Logger) func(r *Resampler) {
	return func(r *Resampler) {
		r.logger = logger
	}
}

// NewResampler creates a Resampler with the default configuration and a
// discard logger
func NewResampler(options ...func(r *Resampler)) *Resampler {
	r := Resampler{
		config: DefaultConfig(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&r)
	}
	return &r
}

// Axis returns the grid coordinates covering [center-box/2, center+box/2] at
// the given step, upper bound included.
func Axis(center, box, scale float64) []float64 {
	n := int(math.Floor(box/scale+1e-9)) + 1
	out := make([]float64, n)
	lo := center - box/2
	for i := range out {
		out[i] = lo + float64(i)*scale
	}
	return out
}

// Resample interpolates the fibers of every wavelength onto the grid, converts
// fiber flux to pixel flux and smooths the plane with a seeing-matched kernel.
// Wavelengths with fewer than MinFibers usable fibers, or whose fibers do not
// span an area, are left at zero.
func (r *Resampler) Resample(ctx context.Context, in Input) (*Cube, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := r.config.Validate(); err != nil {
		return nil, err
	}

	cfg := r.config
	xs := Axis(in.CenterX, cfg.BoxSize, cfg.Scale)
	ys := Axis(in.CenterY, cfg.BoxSize, cfg.Scale)
	c := NewCube(xs, ys, in.Wavelengths)
	nx, ny := len(xs), len(ys)

	kernel := GaussianKernel(cfg.SeeingFactor / cfg.Scale / 2.35)
	area := math.Pi * cfg.FiberRadius * cfg.FiberRadius
	factor := cfg.Scale * cfg.Scale / area * cfg.FluxCorrection

	nf := len(in.XLoc)
	sel := make([]bool, nf)
	var (
		prevSel []bool
		tri     *triangulation
		idx     []int
		values  []float64
	)
	plane := make([]float64, nx*ny)

	for k := range in.Wavelengths {
		if k%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		count := 0
		for i := 0; i < nf; i++ {
			v := in.Flux.At(i, k)
			sel[i] = !math.IsNaN(v) && !math.IsInf(v, 0) && in.Mask.At(i, k) != 0
			if sel[i] {
				count++
			}
		}
		if count < cfg.MinFibers {
			c.EmptySlices++
			continue
		}

		if tri == nil || !slices.Equal(sel, prevSel) {
			prevSel = append(prevSel[:0], sel...)
			idx = idx[:0]
			px := make([]float64, 0, count)
			py := make([]float64, 0, count)
			for i, ok := range sel {
				if ok {
					idx = append(idx, i)
					px = append(px, in.XLoc[i])
					py = append(py, in.YLoc[i])
				}
			}

			var err error
			if tri, err = triangulate(px, py); err != nil {
				r.logger.Debug("fibers do not span an area",
					slog.Int("wavelengthIndex", k),
					slog.Int("fibers", count))
				tri = nil
				c.EmptySlices++
				continue
			}
			values = make([]float64, len(idx))
		}

		for v, i := range idx {
			values[v] = in.Flux.At(i, k)
		}

		// Shifting the grid by +D is the same as shifting the fibers by -D.
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				plane[j*nx+i] = tri.interpolate(xs[i]+in.DX[k], ys[j]+in.DY[k], values) * factor
			}
		}
		copy(c.Slice(k), Convolve(plane, nx, ny, kernel))
	}

	if c.EmptySlices > 0 {
		r.logger.Debug("empty cube slices",
			slog.Int("slices", c.EmptySlices),
			slog.Int("total", len(in.Wavelengths)))
	}
	return c, nil
}
