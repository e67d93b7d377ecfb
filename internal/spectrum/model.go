package spectrum

import (
	"math"

	"github.com/roman-kulish/ifu-extract/internal/masked"
)

// Spectrum is a point-source spectrum extracted on the fixed wavelength grid.
// Wavelengths without sufficient fiber coverage hold NaN in both Flux and Error.
type Spectrum struct {
	Wavelengths []float64 `json:"wavelengths"` // Wavelength grid in Angstrom
	Flux        []float64 `json:"flux"`        // Optimally weighted flux
	Error       []float64 `json:"error"`       // Propagated flux error
}

// Len returns the number of wavelength samples.
func (s Spectrum) Len() int {
	return len(s.Flux)
}

// Valid reports whether wavelength index k carries a value.
func (s Spectrum) Valid(k int) bool {
	return !math.IsNaN(s.Flux[k]) && !math.IsNaN(s.Error[k])
}

// NumValid returns the number of valid wavelengths.
func (s Spectrum) NumValid() int {
	n := 0
	for k := range s.Flux {
		if s.Valid(k) {
			n++
		}
	}
	return n
}

// MedianSNR returns the median flux-to-error ratio over valid wavelengths
// with a positive error, NaN when there is none.
func (s Spectrum) MedianSNR() float64 {
	snr := make([]float64, 0, len(s.Flux))
	for k := range s.Flux {
		if s.Valid(k) && s.Error[k] > 0 {
			snr = append(snr, s.Flux[k]/s.Error[k])
		}
	}
	return masked.Median(snr)
}
