package calibration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// ratioTol is the relative tolerance for treating a frequency ratio as an
// integer.
const ratioTol = 1e-9

// ResampleError reports a frequency ratio that cannot be resampled exactly.
type ResampleError struct {
	From, To float64
	Length   int
}

func (e *ResampleError) Error() string {
	return fmt.Sprintf("calibration: cannot resample %d points from %g Hz to %g Hz: ratio is not an integer factor",
		e.Length, e.From, e.To)
}

// Resample moves spectrum, sampled over 0..from, onto 0..to. The spectrum is
// taken to the time domain, Fourier resampled by the integer ratio between
// the two frequencies and transformed back. Upsampling needs to/from to be an
// integer; downsampling needs from/to to be an integer dividing len(spectrum).
func Resample(spectrum []complex128, from, to float64) ([]complex128, []float64, error) {
	n := len(spectrum)
	if n < 2 || !(from > 0) || !(to > 0) {
		return nil, nil, fmt.Errorf("calibration: resample needs at least 2 points and positive frequencies")
	}
	m, ok := resampledLen(n, from, to)
	if !ok {
		return nil, nil, &ResampleError{From: from, To: to, Length: n}
	}

	src := fourier.NewCmplxFFT(n)
	x := src.Sequence(nil, spectrum)
	for i := range x {
		x[i] /= complex(float64(n), 0)
	}

	y := fourierResample(src, x, m)
	out := fourier.NewCmplxFFT(m).Coefficients(nil, y)
	return out, floats.Span(make([]float64, m), 0, to), nil
}

func resampledLen(n int, from, to float64) (int, bool) {
	if to >= from {
		r := to / from
		l := math.Round(r)
		if math.Abs(r-l) > ratioTol*r {
			return 0, false
		}
		return n * int(l), true
	}
	r := from / to
	l := math.Round(r)
	if math.Abs(r-l) > ratioTol*r || n%int(l) != 0 {
		return 0, false
	}
	return n / int(l), true
}

// fourierResample changes the length of the periodic sequence x to m by
// zero padding or truncating its spectrum. The Nyquist bin of an even
// length spectrum is split on upsampling and folded on downsampling so the
// operation is reversible.
func fourierResample(fft *fourier.CmplxFFT, x []complex128, m int) []complex128 {
	n := len(x)
	if m == n {
		return append([]complex128(nil), x...)
	}
	X := fft.Coefficients(nil, x)
	Y := make([]complex128, m)

	k := min(n, m)
	nyq := k/2 + 1
	copy(Y[:nyq], X[:nyq])
	if neg := k - nyq; neg > 0 {
		copy(Y[m-neg:], X[n-neg:])
	}

	if k%2 == 0 {
		h := k / 2
		if m < n {
			Y[h] += X[n-h]
		} else {
			Y[h] *= 0.5
			Y[m-h] = Y[h]
		}
	}

	y := fourier.NewCmplxFFT(m).Sequence(nil, Y)
	scale := complex(1/float64(n), 0)
	for i := range y {
		y[i] *= scale
	}
	return y
}
