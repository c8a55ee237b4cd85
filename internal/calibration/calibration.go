// Package calibration builds instrument transfer functions: normalization,
// frequency axes, Fourier-domain resampling and persistence in a scan store.
package calibration

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"trefm-analyzer/internal/params"
)

// DefaultOffset keeps the normalized transfer function strictly positive so
// it can be used as a divisor.
const DefaultOffset = 0.0016

// DefaultSampleFreq is the resampling target used when none is configured.
const DefaultSampleFreq = 10e6

// ErrConstantWaveform is returned when a waveform cannot be min-max scaled.
var ErrConstantWaveform = errors.New("calibration: waveform is constant")

// Options controls calibration.
type Options struct {
	PSDFreq    float64 // Upper edge of the thermal tune spectrum (Hz)
	SampleFreq float64 // Resampling target (Hz), 0 skips resampling
	Offset     float64 // Added after scaling by Q
	Lift       float64 // Lift height injected into the parameter table
}

// DefaultOptions returns the standard calibration settings.
func DefaultOptions() Options {
	return Options{
		PSDFreq:    params.DefaultPSDFreq,
		SampleFreq: DefaultSampleFreq,
		Offset:     DefaultOffset,
		Lift:       params.DefaultLift,
	}
}

// WithPSDFreq returns a copy with the spectrum upper edge changed.
func (o Options) WithPSDFreq(hz float64) Options {
	o.PSDFreq = hz
	return o
}

// WithSampleFreq returns a copy with the resampling target changed.
func (o Options) WithSampleFreq(hz float64) Options {
	o.SampleFreq = hz
	return o
}

// WithOffset returns a copy with the normalization offset changed.
func (o Options) WithOffset(offset float64) Options {
	o.Offset = offset
	return o
}

// TransferFunction is a calibrated instrument frequency response.
type TransferFunction struct {
	Raw           []float64    // Reference waveform as measured
	Freq          []float64    // Frequency axis of Raw, 0..PSDFreq
	Norm          []float64    // Q-scaled, offset normalized response
	Resampled     []complex128 // Norm resampled to SampleFreq, nil if not resampled
	ResampledFreq []float64    // Frequency axis of Resampled, 0..SampleFreq
	Params        params.Parameters
	PSDFreq       float64
	SampleFreq    float64
	Offset        float64
}

// Calibrate normalizes raw by the quality factor Q from p and builds its
// frequency axis. The PSDFreq parameter, when present, overrides opts.
func Calibrate(raw []float64, p params.Parameters, opts Options) (*TransferFunction, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("calibration: waveform has %d samples, need at least 2", len(raw))
	}
	q, err := p.Get(params.KeyQ)
	if err != nil {
		return nil, err
	}
	psd := p.GetOr(params.KeyPSDFreq, opts.PSDFreq)
	if !(psd > 0) {
		return nil, fmt.Errorf("calibration: psd frequency %g must be positive", psd)
	}

	lo, hi := floats.Min(raw), floats.Max(raw)
	if hi == lo {
		return nil, ErrConstantWaveform
	}

	norm := make([]float64, len(raw))
	for i, v := range raw {
		norm[i] = q*(v-lo)/(hi-lo) + opts.Offset
	}

	return &TransferFunction{
		Raw:     append([]float64(nil), raw...),
		Freq:    floats.Span(make([]float64, len(raw)), 0, psd),
		Norm:    norm,
		Params:  p,
		PSDFreq: psd,
		Offset:  opts.Offset,
	}, nil
}

// ResampleTo resamples the normalized response to sampleFreq and stores the
// result on tf.
func (tf *TransferFunction) ResampleTo(sampleFreq float64) error {
	spectrum := make([]complex128, len(tf.Norm))
	for i, v := range tf.Norm {
		spectrum[i] = complex(v, 0)
	}
	out, freq, err := Resample(spectrum, tf.PSDFreq, sampleFreq)
	if err != nil {
		return err
	}
	tf.Resampled, tf.ResampledFreq, tf.SampleFreq = out, freq, sampleFreq
	return nil
}

// CalibrateTransferFunction loads the parameter table at paramsPath, calibrates
// waveform against it with the spectrum ending at psdFreq and, when
// opts.SampleFreq is set, resamples the result.
func CalibrateTransferFunction(waveform []float64, paramsPath string, psdFreq float64, opts Options) (*TransferFunction, error) {
	opts.PSDFreq = psdFreq
	p, err := params.Load(paramsPath, params.LoadOptions{PSDFreq: psdFreq, Lift: opts.Lift})
	if err != nil {
		return nil, err
	}
	tf, err := Calibrate(waveform, p, opts)
	if err != nil {
		return nil, err
	}
	if opts.SampleFreq > 0 {
		if err := tf.ResampleTo(opts.SampleFreq); err != nil {
			return nil, err
		}
	}
	return tf, nil
}
