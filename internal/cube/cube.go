// Package cube resamples fiber spectra onto a regular spatial grid, producing
// a (wavelength, y, x) data cube around a source.
package cube

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/ifu-extract/internal/masked"
)

// Cube is a data cube indexed (wavelength, y, x).
type Cube struct {
	X           []float64 // Grid x axis, arcsec
	Y           []float64 // Grid y axis, arcsec
	Wavelengths []float64
	Data        []float64 // len(Wavelengths) × len(Y) × len(X), x fastest

	// EmptySlices counts wavelengths left at zero for lack of fibers.
	EmptySlices int
}

// NewCube allocates a zero cube on the given axes.
func NewCube(x, y, wavelengths []float64) *Cube {
	return &Cube{
		X:           x,
		Y:           y,
		Wavelengths: wavelengths,
		Data:        make([]float64, len(wavelengths)*len(y)*len(x)),
	}
}

// Dims returns the cube shape as (x, y, wavelength) lengths.
func (c *Cube) Dims() (nx, ny, nw int) {
	return len(c.X), len(c.Y), len(c.Wavelengths)
}

// At returns the value at wavelength k, row j, column i.
func (c *Cube) At(k, j, i int) float64 {
	return c.Data[(k*len(c.Y)+j)*len(c.X)+i]
}

// Slice returns the plane at wavelength k, sharing storage with the cube.
func (c *Cube) Slice(k int) []float64 {
	n := len(c.X) * len(c.Y)
	return c.Data[k*n : (k+1)*n]
}

// Mesh returns the 2-D coordinate grids, each len(Y) × len(X).
func (c *Cube) Mesh() (xg, yg *mat.Dense) {
	nx, ny := len(c.X), len(c.Y)
	xg = mat.NewDense(ny, nx, nil)
	yg = mat.NewDense(ny, nx, nil)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			xg.Set(j, i, c.X[i])
			yg.Set(j, i, c.Y[j])
		}
	}
	return xg, yg
}

// WhiteLight collapses the cube along wavelength with a median over the
// finite values of each spaxel.
func (c *Cube) WhiteLight() []float64 {
	nx, ny, nw := c.Dims()
	out := make([]float64, nx*ny)
	buf := make([]float64, 0, nw)
	for p := range out {
		buf = buf[:0]
		for k := 0; k < nw; k++ {
			v := c.Data[k*nx*ny+p]
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				buf = append(buf, v)
			}
		}
		out[p] = masked.Median(buf)
	}
	return out
}

// WCS is the linear pixel-to-world mapping of the cube axes, ordered x, y,
// wavelength. Reference pixels are 1-based.
type WCS struct {
	CRVAL [3]float64
	CRPIX [3]float64
	CDELT [3]float64
	CTYPE [3]string
}

// WCS returns the mapping anchored at the first pixel of each axis.
func (c *Cube) WCS() WCS {
	w := WCS{
		CRVAL: [3]float64{first(c.X), first(c.Y), first(c.Wavelengths)},
		CRPIX: [3]float64{1, 1, 1},
		CDELT: [3]float64{step(c.X), step(c.Y), step(c.Wavelengths)},
		CTYPE: [3]string{"pixel", "pixel", "pixel"},
	}
	return w
}

// World returns the world coordinate of 0-based pixel p on axis a.
func (w WCS) World(a int, p float64) float64 {
	return w.CRVAL[a] + (p+1-w.CRPIX[a])*w.CDELT[a]
}

func first(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

func step(v []float64) float64 {
	if len(v) < 2 {
		return 0
	}
	return v[1] - v[0]
}
