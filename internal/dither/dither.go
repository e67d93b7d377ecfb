// Package dither registers the focal-plane frame of a multi-exposure fiber
// set against the sky, so that fibers of every dither position and the target
// share one coordinate frame.
package dither

import (
	"errors"
	"fmt"
	"math"
)

// ReferenceExposure is the exposure whose fibers anchor the registration.
const ReferenceExposure = 1

// ErrUndeterminedGeometry is returned when the set does not contain two
// distinct reference-exposure fibers.
var ErrUndeterminedGeometry = errors.New("undetermined dither geometry")

// Transform maps sky coordinates into the dither-corrected focal plane. It is
// a rotation by Theta about the reference fiber followed by a translation to
// the reference fiber's focal-plane position.
type Transform struct {
	Theta  float64 // Rotation, radians, in [-2π, 2π]
	RefX   float64 // Reference fiber focal-plane x, arcsec
	RefY   float64 // Reference fiber focal-plane y, arcsec
	RefRA  float64 // Reference fiber RA, degrees
	RefDec float64 // Reference fiber Dec, degrees
}

// Register solves the transform from the first two fibers of the reference
// exposure, in input order.
func Register(exp []int, x, y, ra, dec []float64) (Transform, error) {
	n := len(exp)
	if len(x) != n || len(y) != n || len(ra) != n || len(dec) != n {
		return Transform{}, fmt.Errorf("length mismatch: exp=%d x=%d y=%d ra=%d dec=%d",
			n, len(x), len(y), len(ra), len(dec))
	}

	ref := make([]int, 0, 2)
	for i, e := range exp {
		if e == ReferenceExposure {
			ref = append(ref, i)
			if len(ref) == 2 {
				break
			}
		}
	}
	if len(ref) < 2 {
		return Transform{}, fmt.Errorf("%w: %d fibers in exposure %d", ErrUndeterminedGeometry, len(ref), ReferenceExposure)
	}
	s0, s1 := ref[0], ref[1]

	t := Transform{RefX: x[s0], RefY: y[s0], RefRA: ra[s0], RefDec: dec[s0]}

	// Focal-plane vector in (y, x) order, sky vector in (ra, dec) order.
	fy, fx := y[s1]-y[s0], x[s1]-x[s0]
	dra, ddec := t.offset(ra[s1], dec[s1])
	if (fx == 0 && fy == 0) || (dra == 0 && ddec == 0) {
		return Transform{}, fmt.Errorf("%w: reference fibers coincide", ErrUndeterminedGeometry)
	}

	t.Theta = polarAngle(fx, fy) - polarAngle(ddec, dra)
	return t, nil
}

// Apply maps a sky coordinate into the corrected focal plane.
func (t Transform) Apply(ra, dec float64) (x, y float64) {
	dra, ddec := t.offset(ra, dec)
	c, s := math.Cos(t.Theta), math.Sin(t.Theta)

	// The rotated (ra, dec) pair lands on the (y, x) axes.
	y = c*dra - s*ddec + t.RefY
	x = s*dra + c*ddec + t.RefX
	return x, y
}

// ApplyAll maps every sky coordinate into the corrected focal plane.
func (t Transform) ApplyAll(ra, dec []float64) (x, y []float64) {
	x = make([]float64, len(ra))
	y = make([]float64, len(ra))
	for i := range ra {
		x[i], y[i] = t.Apply(ra[i], dec[i])
	}
	return x, y
}

// offset returns the tangent-plane displacement from the reference fiber in
// arcsec.
func (t Transform) offset(ra, dec float64) (dra, ddec float64) {
	cosDec := math.Cos(t.RefDec * math.Pi / 180)
	return (ra - t.RefRA) * cosDec * 3600, (dec - t.RefDec) * 3600
}

// polarAngle returns atan2(b, a) normalized to [0, 2π).
func polarAngle(b, a float64) float64 {
	ang := math.Atan2(b, a)
	if ang < 0 {
		ang += 2 * math.Pi
	}
	return ang
}
