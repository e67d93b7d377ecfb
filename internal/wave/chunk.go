package wave

import "fmt"

// Chunk is a contiguous slice [Start, End) of the wavelength axis.
type Chunk struct {
	Start int
	End   int
	Mean  float64 // Representative wavelength
}

// Len returns the number of wavelength samples in the chunk.
func (c Chunk) Len() int { return c.End - c.Start }

// Split partitions wavelengths into n contiguous chunks. When the length is
// not divisible by n, the leading chunks are one element longer.
func Split(wavelengths []float64, n int) ([]Chunk, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid chunk count %d", n)
	}
	if n > len(wavelengths) {
		return nil, fmt.Errorf("chunk count %d exceeds %d wavelengths", n, len(wavelengths))
	}

	size, extra := len(wavelengths)/n, len(wavelengths)%n
	chunks := make([]Chunk, n)

	start := 0
	for i := range chunks {
		end := start + size
		if i < extra {
			end++
		}

		sum := 0.0
		for _, w := range wavelengths[start:end] {
			sum += w
		}
		chunks[i] = Chunk{Start: start, End: end, Mean: sum / float64(end-start)}
		start = end
	}
	return chunks, nil
}
