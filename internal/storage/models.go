package storage

// fiberData is a row of the fibers table. The spectral vectors are stored as
// little-endian float32 blobs.
type fiberData struct {
	ID           int64
	Shot         string
	IFUX         float64
	IFUY         float64
	RA           float64
	Dec          float64
	ExpNum       int
	Flux         []byte
	Error        []byte
	FiberToFiber []byte
	Amp2Amp      []byte
}

type targetData struct {
	ID     int64
	StarID int64
	RA     float64
	Dec    float64
	GMag   float64
}
