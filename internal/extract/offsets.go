package extract

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/ifu-extract/internal/cube"
	"github.com/roman-kulish/ifu-extract/internal/spectrum"
)

// OffsetMode selects the per-wavelength source offset used to build a cube.
type OffsetMode string

const (
	OffsetsCentroid OffsetMode = "centroid" // Fitted centroid trajectory
	OffsetsADR      OffsetMode = "adr"      // Refraction model
)

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *OffsetMode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	switch v := OffsetMode(s); v {
	case OffsetsCentroid, OffsetsADR:
		*m = v
		return nil
	case "":
		*m = OffsetsCentroid
		return nil
	default:
		return fmt.Errorf("invalid cube offsets %q, expected %q or %q", s, OffsetsCentroid, OffsetsADR)
	}
}

// Spectrum combines the modeled fibers into a spectrum.
func (r *Result) Spectrum(c spectrum.Combiner) (spectrum.Spectrum, error) {
	m := r.Model
	return c.Combine(m.Flux, m.Error, m.Mask, m.Weights, m.Wavelengths)
}

// CubeInput prepares the resampler input centered on the source at the
// central wavelength. In ADR mode adrX and adrY supply the offsets, relative
// to their central value.
func (r *Result) CubeInput(mode OffsetMode, adrX, adrY []float64) (cube.Input, error) {
	m := r.Model
	nw := len(m.Wavelengths)
	mid := nw / 2
	cx, cy := m.CentralCentroid()

	in := cube.Input{
		CenterX:     cx,
		CenterY:     cy,
		XLoc:        m.XLoc,
		YLoc:        m.YLoc,
		Flux:        m.Flux,
		Mask:        m.Mask,
		DX:          make([]float64, nw),
		DY:          make([]float64, nw),
		Wavelengths: m.Wavelengths,
	}

	switch mode {
	case OffsetsCentroid, "":
		for k := 0; k < nw; k++ {
			in.DX[k] = m.X[k] - cx
			in.DY[k] = m.Y[k] - cy
		}
	case OffsetsADR:
		if len(adrX) != nw || len(adrY) != nw {
			return cube.Input{}, fmt.Errorf("ADR offsets have %d/%d values, want %d", len(adrX), len(adrY), nw)
		}
		for k := 0; k < nw; k++ {
			in.DX[k] = adrX[k] - adrX[mid]
			in.DY[k] = adrY[k] - adrY[mid]
		}
	default:
		return cube.Input{}, fmt.Errorf("unknown offset mode %q", mode)
	}
	return in, nil
}
