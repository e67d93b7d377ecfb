package dither

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skyFor places focal-plane positions on the sky so that Register must recover
// theta and the reference anchor.
func skyFor(theta, ra0, dec0 float64, x0, y0 float64, x, y []float64) (ra, dec []float64) {
	c, s := math.Cos(theta), math.Sin(theta)
	cosDec := math.Cos(dec0 * math.Pi / 180)

	ra = make([]float64, len(x))
	dec = make([]float64, len(x))
	for i := range x {
		dy, dx := y[i]-y0, x[i]-x0
		dra := c*dy + s*dx
		ddec := -s*dy + c*dx
		ra[i] = ra0 + dra/3600/cosDec
		dec[i] = dec0 + ddec/3600
	}
	return ra, dec
}

func TestRegister_RecoversRotationAndPositions(t *testing.T) {
	testCases := []struct {
		name  string
		theta float64
	}{
		{"identity", 0},
		{"small", 0.2},
		{"quarter turn", math.Pi / 2},
		{"negative", -2.5},
	}

	x := []float64{-1.2, 3.4, 0.5, -7.0, 2.2, 10.1}
	y := []float64{4.0, -2.5, 1.1, 6.3, -8.8, 0.0}
	exp := []int{2, 1, 3, 1, 1, 2}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// First exposure-1 fiber is index 1.
			ra, dec := skyFor(tc.theta, 150.1, 2.3, x[1], y[1], x, y)

			tr, err := Register(exp, x, y, ra, dec)
			require.NoError(t, err)

			assert.InDelta(t, math.Cos(tc.theta), math.Cos(tr.Theta), 1e-9)
			assert.InDelta(t, math.Sin(tc.theta), math.Sin(tr.Theta), 1e-9)
			assert.Equal(t, x[1], tr.RefX)
			assert.Equal(t, y[1], tr.RefY)

			gx, gy := tr.ApplyAll(ra, dec)
			assert.InDeltaSlice(t, x, gx, 1e-7)
			assert.InDeltaSlice(t, y, gy, 1e-7)
		})
	}
}

func TestRegister_TargetSharesFrame(t *testing.T) {
	x := []float64{0, 1.5, 3}
	y := []float64{0, 2.5, -1}
	exp := []int{1, 1, 2}
	ra, dec := skyFor(1.1, 35, -4, 0, 0, append(x, 0.7), append(y, -0.4))

	tr, err := Register(exp, x, y, ra[:3], dec[:3])
	require.NoError(t, err)

	tx, ty := tr.Apply(ra[3], dec[3])
	assert.InDelta(t, 0.7, tx, 1e-7)
	assert.InDelta(t, -0.4, ty, 1e-7)
}

func TestRegister_Undetermined(t *testing.T) {
	testCases := []struct {
		name string
		exp  []int
		x, y []float64
	}{
		{"no reference fibers", []int{2, 3, 2}, []float64{0, 1, 2}, []float64{0, 1, 2}},
		{"single reference fiber", []int{2, 1, 3}, []float64{0, 1, 2}, []float64{0, 1, 2}},
		{"coincident reference fibers", []int{1, 1, 3}, []float64{1, 1, 2}, []float64{1, 1, 2}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ra := []float64{10, 10.001, 10.002}
			dec := []float64{20, 20.001, 20.002}
			if tc.name == "coincident reference fibers" {
				ra[1], dec[1] = ra[0], dec[0]
			}

			_, err := Register(tc.exp, tc.x, tc.y, ra, dec)
			assert.ErrorIs(t, err, ErrUndeterminedGeometry)
		})
	}
}

func TestRegister_LengthMismatch(t *testing.T) {
	_, err := Register([]int{1, 1}, []float64{0, 1}, []float64{0}, []float64{0, 1}, []float64{0, 1})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUndeterminedGeometry)
}
