package extract

import (
	"fmt"

	"github.com/roman-kulish/ifu-extract/internal/psf"
)

// Config holds the extraction parameters.
type Config struct {
	SearchRadius        float64 // Region query radius, arcsec
	MinFibers           int     // Fibers required to attempt an extraction
	MaskEpsilon         float64 // Amp2Amp values at or below are masked
	ThroughputThreshold float64 // Fibers with median fiber_to_fiber at or below are masked

	PSF psf.Config
}

// DefaultConfig returns the survey defaults.
func DefaultConfig() Config {
	return Config{
		SearchRadius:        8,
		MinFibers:           5,
		MaskEpsilon:         1e-8,
		ThroughputThreshold: 0.5,
		PSF:                 psf.DefaultConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case !(c.SearchRadius > 0):
		return fmt.Errorf("search radius must be positive, got %g", c.SearchRadius)
	case c.MinFibers < 1:
		return fmt.Errorf("minimum fibers must be positive, got %d", c.MinFibers)
	case c.PSF.Chunks < 1:
		return fmt.Errorf("chunk count must be positive, got %d", c.PSF.Chunks)
	case !(c.PSF.NeighborhoodRadius > 0):
		return fmt.Errorf("neighborhood radius must be positive, got %g", c.PSF.NeighborhoodRadius)
	case !(c.PSF.InitialWidth > 0):
		return fmt.Errorf("initial width must be positive, got %g", c.PSF.InitialWidth)
	case c.PSF.Fit.MaxIterations < 1:
		return fmt.Errorf("fit iterations must be positive, got %d", c.PSF.Fit.MaxIterations)
	case c.PSF.Smoother.Degree < 0:
		return fmt.Errorf("smoothing degree must not be negative, got %d", c.PSF.Smoother.Degree)
	case c.PSF.Smoother.MinPoints < c.PSF.Smoother.Degree+1:
		return fmt.Errorf("smoothing needs at least %d points, got %d", c.PSF.Smoother.Degree+1, c.PSF.Smoother.MinPoints)
	}
	return nil
}
