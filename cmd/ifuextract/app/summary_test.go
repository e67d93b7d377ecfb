package app

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/ifu-extract/internal/fiber"
	"github.com/roman-kulish/ifu-extract/internal/spectrum"
)

func TestPrintSummary(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	results := []*TargetResult{
		{
			Order:     0,
			Target:    fiber.Target{StarID: 1001, Coordinate: fiber.Coordinate{RA: 150.1, Dec: 2.2}, Magnitude: 18.25},
			Outcome:   OutcomeOK,
			NumFibers: 1234,
			Spectrum: spectrum.Spectrum{
				Wavelengths: []float64{3470, 3472, 3474},
				Flux:        []float64{10, 20, math.NaN()},
				Error:       []float64{1, 2, math.NaN()},
			},
		},
		{
			Order:   1,
			Target:  fiber.Target{StarID: 1002},
			Outcome: OutcomeSkipped,
			Reason:  "too few fibers: 2 within 8 arcsec",
		},
		{
			Order:   2,
			Target:  fiber.Target{StarID: 1003},
			Outcome: OutcomeFailed,
			Reason:  strings.Repeat("x", 100),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, "run-1", results))

	out := buf.String()
	assert.Contains(t, out, "1001")
	assert.Contains(t, out, "150.100000")
	assert.Contains(t, out, "1,234")
	assert.Contains(t, out, "2/3")
	assert.Contains(t, out, "too few fibers")
	assert.NotContains(t, out, strings.Repeat("x", 50))
	assert.Contains(t, out, "run run-1: 3 targets, 1 ok, 1 skipped, 1 failed")
}

func TestTally(t *testing.T) {
	results := []*TargetResult{
		{Outcome: OutcomeOK},
		{Outcome: OutcomeOK},
		{Outcome: OutcomeSkipped},
		{Outcome: OutcomeFailed},
	}
	assert.Equal(t, Tally{OK: 2, Skipped: 1, Failed: 1}, tally(results))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, 5, len([]rune(truncate("ääääääää", 5))))
}
