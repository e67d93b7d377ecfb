// Package simulate generates synthetic dithered IFU observations of point
// sources. Output is deterministic for a given seed.
package simulate

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/roman-kulish/ifu-extract/internal/fiber"
	"github.com/roman-kulish/ifu-extract/internal/wave"
)

// Source is a point source placed in the dither-corrected frame.
type Source struct {
	StarID int64   `yaml:"starID"`
	X      float64 `yaml:"x"`    // Offset from the field center, arcsec
	Y      float64 `yaml:"y"`    // Offset from the field center, arcsec
	Flux   float64 `yaml:"flux"` // Continuum flux at 4500 Angstrom
}

// Config describes the simulated field.
type Config struct {
	Seed       uint64       `yaml:"seed"`
	RA         float64      `yaml:"ra"`       // Field center, degrees
	Dec        float64      `yaml:"dec"`      // Field center, degrees
	Rotation   float64      `yaml:"rotation"` // Focal plane to sky, degrees
	Pitch      float64      `yaml:"pitch"`    // Fiber spacing, arcsec
	Rings      int          `yaml:"rings"`    // Hexagonal rings around the central fiber
	Dithers    [][2]float64 `yaml:"dithers"`  // Per-exposure offsets, arcsec
	Seeing     float64      `yaml:"seeing"`   // PSF FWHM, arcsec
	Noise      float64      `yaml:"noise"`    // Per-sample flux error
	DeadFibers int          `yaml:"deadFibers"`
	AmpMasked  int          `yaml:"ampMasked"` // Fibers with a masked amplifier segment
	ADR        bool         `yaml:"adr"`       // Let sources drift with refraction
	ADRAngle   float64      `yaml:"adrAngle"`  // Degrees
	Sources    []Source     `yaml:"sources"`
}

// DefaultConfig returns a three-exposure field with two sources in the IFU and
// one catalog star outside of it.
func DefaultConfig() Config {
	return Config{
		Seed:       1,
		RA:         150.1,
		Dec:        2.2,
		Rotation:   37,
		Pitch:      2.5,
		Rings:      5,
		Dithers:    [][2]float64{{0, 0}, {1.27, -0.73}, {1.27, 0.73}},
		Seeing:     1.8,
		Noise:      0.05,
		DeadFibers: 3,
		AmpMasked:  4,
		ADR:        true,
		ADRAngle:   30,
		Sources: []Source{
			{StarID: 1001, X: 0.4, Y: -0.3, Flux: 40},
			{StarID: 1002, X: -7.5, Y: 6.5, Flux: 15},
			{StarID: 1003, X: 60, Y: 60, Flux: 20},
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case !(c.Pitch > 0):
		return fmt.Errorf("pitch must be positive, got %g", c.Pitch)
	case c.Rings < 1:
		return fmt.Errorf("rings must be positive, got %d", c.Rings)
	case len(c.Dithers) < 1:
		return errors.New("at least one dither position is required")
	case !(c.Seeing > 0):
		return fmt.Errorf("seeing must be positive, got %g", c.Seeing)
	case c.Noise < 0:
		return fmt.Errorf("noise must not be negative, got %g", c.Noise)
	case c.DeadFibers < 0 || c.AmpMasked < 0:
		return errors.New("dead and masked fiber counts must not be negative")
	}
	return nil
}

// Observation is a generated data set.
type Observation struct {
	Fibers      fiber.Set
	Targets     []fiber.Target
	Sources     []Source
	Wavelengths []float64
}

// Generate simulates the field on the given wavelength grid.
func Generate(cfg Config, wavelengths []float64) (*Observation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	rng := rand.New(src)
	noise := distuv.Normal{Mu: 0, Sigma: cfg.Noise, Src: src}
	throughput := distuv.Normal{Mu: 1, Sigma: 0.03, Src: src}

	base := HexPositions(cfg.Pitch, cfg.Rings)
	nw := len(wavelengths)

	var adrX, adrY []float64
	if cfg.ADR {
		var err error
		if adrX, adrY, err = wave.ADR(wavelengths, cfg.ADRAngle); err != nil {
			return nil, err
		}
	}

	sigma := cfg.Seeing / 2.355
	area := math.Pi * 0.75 * 0.75
	norm := area / (2 * math.Pi * sigma * sigma)

	shapes := make([][]float64, len(cfg.Sources))
	for s, source := range cfg.Sources {
		shapes[s] = continuum(source.Flux, wavelengths)
	}

	obs := &Observation{Sources: cfg.Sources, Wavelengths: wavelengths}
	for e, d := range cfg.Dithers {
		for _, p := range base {
			// Corrected frame position of this fiber in this exposure.
			cx, cy := p[0]+d[0], p[1]+d[1]
			ra, dec := cfg.sky(cx, cy)

			f := fiber.Sample{
				IFUX:         p[0],
				IFUY:         p[1],
				RA:           ra,
				Dec:          dec,
				ExpNum:       e + 1,
				Flux:         make([]float64, nw),
				Error:        make([]float64, nw),
				FiberToFiber: make([]float64, nw),
				Amp2Amp:      make([]float64, nw),
			}

			ftf := throughput.Rand()
			for k := 0; k < nw; k++ {
				v := 0.0
				for s, source := range cfg.Sources {
					sx, sy := source.X, source.Y
					if cfg.ADR {
						sx += adrX[k]
						sy += adrY[k]
					}
					r2 := (cx-sx)*(cx-sx) + (cy-sy)*(cy-sy)
					v += shapes[s][k] * norm * math.Exp(-r2/(2*sigma*sigma))
				}
				f.Flux[k] = v + noise.Rand()
				f.Error[k] = cfg.Noise
				f.FiberToFiber[k] = ftf
				f.Amp2Amp[k] = 1
			}
			obs.Fibers = append(obs.Fibers, f)
		}
	}

	for _, i := range rng.Perm(len(obs.Fibers))[:min(cfg.DeadFibers, len(obs.Fibers))] {
		for k := range obs.Fibers[i].FiberToFiber {
			obs.Fibers[i].FiberToFiber[k] = 0.1
		}
	}
	for _, i := range rng.Perm(len(obs.Fibers))[:min(cfg.AmpMasked, len(obs.Fibers))] {
		// One amplifier covers half of the spectral range.
		lo := 0
		if rng.IntN(2) == 1 {
			lo = nw / 2
		}
		for k := lo; k < lo+nw/2; k++ {
			obs.Fibers[i].Amp2Amp[k] = 0
		}
	}

	for i, source := range cfg.Sources {
		ra, dec := cfg.sky(source.X, source.Y)
		obs.Targets = append(obs.Targets, fiber.Target{
			ID:         int64(i + 1),
			StarID:     source.StarID,
			Coordinate: fiber.Coordinate{RA: ra, Dec: dec},
			Magnitude:  Magnitude(source.Flux),
		})
	}
	return obs, nil
}

// sky maps a corrected-frame position to sky coordinates on the tangent plane
// at the field center.
func (c Config) sky(x, y float64) (ra, dec float64) {
	theta := c.Rotation * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)

	dra := cos*y + sin*x
	ddec := -sin*y + cos*x
	return c.RA + dra/3600/math.Cos(c.Dec*math.Pi/180), c.Dec + ddec/3600
}

// HexPositions returns a hexagonal bundle layout: a central fiber and rings
// of fibers around it, in a fixed order.
func HexPositions(pitch float64, rings int) [][2]float64 {
	var out [][2]float64
	for q := -rings; q <= rings; q++ {
		lo, hi := max(-rings, -q-rings), min(rings, -q+rings)
		for r := lo; r <= hi; r++ {
			out = append(out, [2]float64{
				pitch * (float64(q) + float64(r)/2),
				pitch * float64(r) * math.Sqrt(3) / 2,
			})
		}
	}
	return out
}

// Magnitude converts a continuum flux into an AB-like magnitude.
func Magnitude(flux float64) float64 {
	if flux <= 0 {
		return math.NaN()
	}
	return 25 - 2.5*math.Log10(flux)
}

// continuum is a sloped continuum with an absorption line at H-beta.
func continuum(flux float64, wavelengths []float64) []float64 {
	out := make([]float64, len(wavelengths))
	for k, w := range wavelengths {
		line := 1 - 0.5*math.Exp(-(w-4861)*(w-4861)/(2*4*4))
		out[k] = flux * (1 + 0.3*(w-4500)/1000) * line
	}
	return out
}
