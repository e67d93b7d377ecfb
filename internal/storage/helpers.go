package storage

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/roman-kulish/ifu-extract/internal/fiber"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// rollbackWithError rolls back a transaction that was not committed. The
// rollback of a committed transaction returns sql.ErrTxDone and is not an error.
func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func encodeVector(v []float64) []byte {
	p := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(float32(f)))
	}
	return p
}

func decodeVector(p []byte) ([]float64, error) {
	if len(p)%4 != 0 {
		return nil, fmt.Errorf("vector blob of %d bytes is not a float32 array", len(p))
	}
	v := make([]float64, len(p)/4)
	for i := range v {
		v[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(p[4*i:])))
	}
	return v, nil
}

func toFiberData(shot string, f fiber.Sample) *fiberData {
	return &fiberData{
		Shot:         shot,
		IFUX:         f.IFUX,
		IFUY:         f.IFUY,
		RA:           f.RA,
		Dec:          f.Dec,
		ExpNum:       f.ExpNum,
		Flux:         encodeVector(f.Flux),
		Error:        encodeVector(f.Error),
		FiberToFiber: encodeVector(f.FiberToFiber),
		Amp2Amp:      encodeVector(f.Amp2Amp),
	}
}

func (d *fiberData) toSample() (s fiber.Sample, err error) {
	s = fiber.Sample{
		IFUX:   d.IFUX,
		IFUY:   d.IFUY,
		RA:     d.RA,
		Dec:    d.Dec,
		ExpNum: d.ExpNum,
	}

	vectors := []struct {
		name string
		src  []byte
		dst  *[]float64
	}{
		{name: "calfib", src: d.Flux, dst: &s.Flux},
		{name: "calfibe", src: d.Error, dst: &s.Error},
		{name: "fiber_to_fiber", src: d.FiberToFiber, dst: &s.FiberToFiber},
		{name: "amp2amp", src: d.Amp2Amp, dst: &s.Amp2Amp},
	}
	for _, v := range vectors {
		if *v.dst, err = decodeVector(v.src); err != nil {
			return fiber.Sample{}, fmt.Errorf("fiber %d %s: %w", d.ID, v.name, err)
		}
	}
	return s, nil
}

func (d *targetData) toTarget() fiber.Target {
	return fiber.Target{
		ID:         d.ID,
		StarID:     d.StarID,
		Coordinate: fiber.Coordinate{RA: d.RA, Dec: d.Dec},
		Magnitude:  d.GMag,
	}
}

// raDecBox returns the declination band and right ascension band that
// contain every point within radius degrees of c. The RA band spans the whole
// circle when it would wrap or the cap reaches a pole.
func raDecBox(c fiber.Coordinate, radius float64) (decLo, decHi, raLo, raHi float64) {
	decLo, decHi = c.Dec-radius, c.Dec+radius
	raLo, raHi = 0, 360

	if decLo <= -90 || decHi >= 90 {
		return
	}
	cos := math.Min(math.Cos(decLo*math.Pi/180), math.Cos(decHi*math.Pi/180))
	dra := 1.01 * radius / cos
	if c.RA-dra < 0 || c.RA+dra > 360 {
		return
	}
	return decLo, decHi, c.RA - dra, c.RA + dra
}
