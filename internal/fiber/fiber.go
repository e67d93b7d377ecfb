package fiber

import (
	"context"
	"math"
)

// Column names of the fiber table. Providers are expected to expose at least
// these per-fiber vectors.
const (
	ColumnIFUX         = "ifux"
	ColumnIFUY         = "ifuy"
	ColumnRA           = "ra"
	ColumnDec          = "dec"
	ColumnFlux         = "calfib"
	ColumnError        = "calfibe"
	ColumnFiberToFiber = "fiber_to_fiber"
	ColumnAmp2Amp      = "Amp2Amp"
	ColumnExpNum       = "expnum"
)

// Coordinate is a position on the sky in degrees.
type Coordinate struct {
	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
}

// Separation returns the great-circle distance between c and o in degrees.
func (c Coordinate) Separation(o Coordinate) float64 {
	ra1, dec1 := deg2rad(c.RA), deg2rad(c.Dec)
	ra2, dec2 := deg2rad(o.RA), deg2rad(o.Dec)

	sdLat := math.Sin((dec2 - dec1) / 2)
	sdLon := math.Sin((ra2 - ra1) / 2)
	h := sdLat*sdLat + math.Cos(dec1)*math.Cos(dec2)*sdLon*sdLon
	return rad2deg(2 * math.Asin(math.Min(1, math.Sqrt(h))))
}

// Sample is a single fiber's contribution to one observation. The vectors are
// indexed by the fixed wavelength grid and must not be modified once read.
type Sample struct {
	IFUX   float64 // Focal-plane x, arcsec
	IFUY   float64 // Focal-plane y, arcsec
	RA     float64 // Sky position, degrees
	Dec    float64 // Sky position, degrees
	ExpNum int     // Exposure index (1-based)

	Flux         []float64 // Calibrated flux
	Error        []float64 // Flux error
	FiberToFiber []float64 // Fiber-to-fiber throughput
	Amp2Amp      []float64 // Adjacent-amplifier correction
}

// Set is an ordered collection of fibers returned by a region query. The order
// is the provider's order and is kept by every array derived from the set.
type Set []Sample

// Positions returns the focal-plane coordinates of all fibers.
func (s Set) Positions() (x, y []float64) {
	x = make([]float64, len(s))
	y = make([]float64, len(s))
	for i, f := range s {
		x[i], y[i] = f.IFUX, f.IFUY
	}
	return
}

// SkyPositions returns the sky coordinates of all fibers.
func (s Set) SkyPositions() (ra, dec []float64) {
	ra = make([]float64, len(s))
	dec = make([]float64, len(s))
	for i, f := range s {
		ra[i], dec[i] = f.RA, f.Dec
	}
	return
}

// Exposures returns the exposure index of all fibers.
func (s Set) Exposures() []int {
	exp := make([]int, len(s))
	for i, f := range s {
		exp[i] = f.ExpNum
	}
	return exp
}

// NumWavelengths returns the length of the per-fiber vectors, 0 for an empty set.
func (s Set) NumWavelengths() int {
	if len(s) == 0 {
		return 0
	}
	return len(s[0].Flux)
}

// Target is an entry of the star catalog iterated by the batch run.
type Target struct {
	ID         int64      `json:"id"`
	StarID     int64      `json:"starID"`
	Coordinate Coordinate `json:"coordinate"`
	Magnitude  float64    `json:"magnitude"` // g' magnitude
}

// Provider gives read-only access to the fiber table. Implementations must
// support concurrent use.
type Provider interface {
	// QueryRegion returns the ids of fibers within radius degrees of c.
	QueryRegion(ctx context.Context, c Coordinate, radius float64) ([]int64, error)

	// ReadFibers returns the fibers for ids, aligned to ids.
	ReadFibers(ctx context.Context, ids []int64) (Set, error)
}

// TargetCatalog lists the targets of a batch run in catalog order.
type TargetCatalog interface {
	Targets(ctx context.Context) ([]Target, error)
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }
