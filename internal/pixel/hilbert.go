package pixel

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// hilbert computes analytic signals of a fixed length. It keeps FFT work
// buffers and is not safe for concurrent use.
type hilbert struct {
	n    int
	fwd  *fourier.FFT
	inv  *fourier.CmplxFFT
	half []complex128
	full []complex128
}

func newHilbert(n int) *hilbert {
	return &hilbert{
		n:    n,
		fwd:  fourier.NewFFT(n),
		inv:  fourier.NewCmplxFFT(n),
		half: make([]complex128, n/2+1),
		full: make([]complex128, n),
	}
}

// analytic returns x + i·H(x). Negative frequencies are removed, positive
// ones doubled; DC and, for even n, the Nyquist bin are kept as is.
func (h *hilbert) analytic(dst []complex128, x []float64) []complex128 {
	h.fwd.Coefficients(h.half, x)
	for k := range h.full {
		h.full[k] = 0
	}
	h.full[0] = h.half[0]
	for k := 1; k < len(h.half); k++ {
		if h.n%2 == 0 && k == h.n/2 {
			h.full[k] = h.half[k]
		} else {
			h.full[k] = 2 * h.half[k]
		}
	}
	dst = h.inv.Sequence(dst, h.full)
	scale := complex(1/float64(h.n), 0)
	for i := range dst {
		dst[i] *= scale
	}
	return dst
}

// instFreq writes the instantaneous frequency in Hz of the analytic signal z
// into dst: the unwrapped phase differentiated with central differences
// (one-sided at the ends) and scaled by fs/2π.
func instFreq(dst []float64, z []complex128, fs float64) {
	n := len(z)
	phase := make([]float64, n)
	var offset float64
	prev := 0.0
	for i, v := range z {
		p := math.Atan2(imag(v), real(v))
		if i > 0 {
			d := p - prev
			switch {
			case d > math.Pi:
				offset -= 2 * math.Pi * math.Ceil((d-math.Pi)/(2*math.Pi))
			case d < -math.Pi:
				offset += 2 * math.Pi * math.Ceil((-d-math.Pi)/(2*math.Pi))
			}
		}
		prev = p
		phase[i] = p + offset
	}

	k := fs / (2 * math.Pi)
	if n == 1 {
		dst[0] = 0
		return
	}
	dst[0] = (phase[1] - phase[0]) * k
	dst[n-1] = (phase[n-1] - phase[n-2]) * k
	for i := 1; i < n-1; i++ {
		dst[i] = (phase[i+1] - phase[i-1]) / 2 * k
	}
}
