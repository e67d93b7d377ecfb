package cube

import "math"

// Kernel is a square, odd-sized, unit-sum convolution kernel.
type Kernel struct {
	Size   int
	Values []float64 // row-major Size × Size
}

// GaussianKernel samples a circular Gaussian of the given standard deviation
// (pixels) at pixel centers on a grid of 8σ rounded up to odd, normalized to
// unit sum. A non-positive σ yields the identity kernel.
func GaussianKernel(sigma float64) Kernel {
	if !(sigma > 0) {
		return Kernel{Size: 1, Values: []float64{1}}
	}

	size := int(math.Ceil(8 * sigma))
	if size%2 == 0 {
		size++
	}

	half := size / 2
	values := make([]float64, size*size)
	sum := 0.0
	for j := 0; j < size; j++ {
		for i := 0; i < size; i++ {
			dx, dy := float64(i-half), float64(j-half)
			v := math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
			values[j*size+i] = v
			sum += v
		}
	}
	for i := range values {
		values[i] /= sum
	}
	return Kernel{Size: size, Values: values}
}

// Convolve convolves the nx × ny plane with k. Pixels outside the plane take
// the value of the nearest edge pixel. NaN pixels are treated as missing: each
// output is the kernel-weighted mean of the finite pixels it covers, NaN when
// it covers none.
func Convolve(plane []float64, nx, ny int, k Kernel) []float64 {
	out := make([]float64, len(plane))
	half := k.Size / 2

	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			var top, bot float64
			for kj := 0; kj < k.Size; kj++ {
				sj := clamp(j+half-kj, 0, ny-1)
				for ki := 0; ki < k.Size; ki++ {
					v := plane[sj*nx+clamp(i+half-ki, 0, nx-1)]
					if math.IsNaN(v) {
						continue
					}
					w := k.Values[kj*k.Size+ki]
					top += w * v
					bot += w
				}
			}
			if bot == 0 {
				out[j*nx+i] = math.NaN()
				continue
			}
			out[j*nx+i] = top / bot
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
