package product

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/roman-kulish/ifu-extract/internal/spectrum"
)

// SpectrumRecord is one row of the spectra table.
type SpectrumRecord struct {
	RunID     string    `parquet:"run_id,dict,snappy"`
	Order     int32     `parquet:"target,snappy"`
	StarID    int64     `parquet:"star_id,snappy"`
	RA        float64   `parquet:"ra,snappy"`
	Dec       float64   `parquet:"dec,snappy"`
	Magnitude float64   `parquet:"gmag,snappy"`
	NumFibers int32     `parquet:"num_fibers,snappy"`
	MedianSNR float64   `parquet:"median_snr,snappy"`
	Flux      []float32 `parquet:"flux,list,snappy"`
	Error     []float32 `parquet:"error,list,snappy"`
}

// NewSpectrumRecord builds the table row for the spectrum of one target.
func NewSpectrumRecord(h Header, numFibers int, s spectrum.Spectrum) SpectrumRecord {
	return SpectrumRecord{
		RunID:     h.RunID,
		Order:     int32(h.Order),
		StarID:    h.StarID,
		RA:        h.RA,
		Dec:       h.Dec,
		Magnitude: h.Magnitude,
		NumFibers: int32(numFibers),
		MedianSNR: s.MedianSNR(),
		Flux:      toFloat32(s.Flux),
		Error:     toFloat32(s.Error),
	}
}

// WriteSpectraTable writes records as a Parquet file.
func WriteSpectraTable(w io.Writer, records []SpectrumRecord) (err error) {
	writer := parquet.NewGenericWriter[SpectrumRecord](w)
	defer closeWithError(writer, &err)

	if _, err = writer.Write(records); err != nil {
		return fmt.Errorf("writing spectra: %w", err)
	}
	return nil
}
