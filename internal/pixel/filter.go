package pixel

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/window"
)

// bandpass designs a linear phase windowed-sinc bandpass with unit gain at
// centre. Frequencies are in Hz.
func bandpass(taps int, lo, hi, centre, fs float64, w Window) ([]float64, error) {
	if taps < 3 {
		return nil, fmt.Errorf("filter needs at least 3 taps, got %d", taps)
	}
	if taps%2 == 0 {
		taps++
	}
	if !(lo > 0) || !(hi > lo) || hi >= fs/2 {
		return nil, fmt.Errorf("passband %g-%g Hz not inside (0, %g)", lo, hi, fs/2)
	}

	h := make([]float64, taps)
	for i := range h {
		h[i] = 1
	}
	switch w {
	case Blackman, "":
		window.Blackman(h)
	case Hamming:
		window.Hamming(h)
	case Hann:
		window.Hann(h)
	default:
		return nil, fmt.Errorf("unknown filter window %q", w)
	}

	m := (taps - 1) / 2
	fl, fh := lo/fs, hi/fs
	for i := range h {
		k := float64(i - m)
		h[i] *= 2*fh*sinc(2*fh*k) - 2*fl*sinc(2*fl*k)
	}

	var g complex128
	for i, v := range h {
		g += complex(v, 0) * cmplx.Exp(complex(0, -2*math.Pi*centre/fs*float64(i)))
	}
	gain := cmplx.Abs(g)
	if gain == 0 {
		return nil, fmt.Errorf("filter has no gain at %g Hz", centre)
	}
	for i := range h {
		h[i] /= gain
	}
	return h, nil
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

// convolveSame filters x with the symmetric kernel h centred on each
// sample, so the output is aligned with the input. Samples outside x are
// zero.
func convolveSame(dst, x, h []float64) {
	m := len(h) / 2
	n := len(x)
	for i := range dst {
		var sum float64
		lo := max(0, m-i)
		hi := min(len(h), n-i+m)
		for k := lo; k < hi; k++ {
			sum += h[k] * x[i+k-m]
		}
		dst[i] = sum
	}
}
