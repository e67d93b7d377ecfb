package masked

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedianOf(t *testing.T) {
	testCases := []struct {
		name   string
		values []float64
		valid  []bool
		want   float64
		ok     bool
	}{
		{"odd", []float64{5, 1, 3}, nil, 3, true},
		{"even averages middle pair", []float64{4, 1, 3, 2}, nil, 2.5, true},
		{"masked excluded", []float64{100, 1, 2, 3}, []bool{false, true, true, true}, 2, true},
		{"masked not zero-filled", []float64{-5, 10, 20}, []bool{false, true, true}, 15, true},
		{"non-finite skipped", []float64{math.NaN(), 1, math.Inf(1), 3}, nil, 2, true},
		{"all masked", []float64{1, 2}, []bool{false, false}, math.NaN(), false},
		{"empty", nil, nil, math.NaN(), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := MedianOf(tc.values, tc.valid)
			assert.Equal(t, tc.ok, ok)
			if !tc.ok {
				assert.True(t, math.IsNaN(got))
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMedianOf_DoesNotReorderInput(t *testing.T) {
	values := []float64{3, 1, 2}
	Median(values)
	assert.Equal(t, []float64{3, 1, 2}, values)
}

func TestArgMax(t *testing.T) {
	assert.Equal(t, 2, ArgMax([]float64{1, 9, 5, 3}, []bool{true, false, true, true}))
	assert.Equal(t, 0, ArgMax([]float64{7, 7}, []bool{true, true}))
	assert.Equal(t, -1, ArgMax([]float64{1, 2}, []bool{false, false}))
}

func TestSum(t *testing.T) {
	assert.Equal(t, 4.0, Sum([]float64{1, 100, 3}, []bool{true, false, true}))
}
