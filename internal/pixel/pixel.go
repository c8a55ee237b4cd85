// Package pixel extracts time-to-first-peak and frequency shift from a single
// trEFM pixel signal using a Hilbert-transform instantaneous frequency.
package pixel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"trefm-analyzer/internal/params"
)

// flatTol is the peak-to-peak span, relative to the mean level, under which
// a trace counts as flat.
const flatTol = 1e-12

// Result is the outcome of analysing one pixel.
type Result struct {
	TFP   float64   // Seconds from trigger to event onset, 0 if no event
	Shift float64   // Steady state frequency change in Hz, 0 if no event
	Trace []float64 // Instantaneous frequency relative to the pre-trigger baseline
}

// Analyzer analyses pixel signals for one acquisition. It reuses internal
// buffers, so each goroutine needs its own Analyzer.
type Analyzer struct {
	acq  params.Acquisition
	opts Options

	n      int // Samples per averaged trace
	edge   int
	taps   []float64
	hilb   *hilbert
	avg    []float64
	work   []float64
	z      []complex128
	freq   []float64
	search [2]int // Event search window [start, end)
	hold   int    // Samples an excursion must persist
}

// New prepares an Analyzer for acq.
func New(acq params.Acquisition, opts Options) (*Analyzer, error) {
	if err := acq.Validate(); err != nil {
		return nil, err
	}
	n := acq.PntsPerAvg
	if acq.Trigger < 0 || acq.Trigger >= n {
		return nil, &InvalidTriggerError{Trigger: acq.Trigger, Length: n}
	}
	if n < 4 {
		return nil, fmt.Errorf("%w: pnts_per_avg %d is too short to analyse", params.ErrInvalid, n)
	}

	a := &Analyzer{
		acq:  acq,
		opts: opts,
		n:    n,
		hilb: newHilbert(n),
		avg:  make([]float64, n),
		work: make([]float64, n),
		z:    make([]complex128, n),
		freq: make([]float64, n),
	}

	a.edge = int(opts.EdgeFraction * float64(n))
	a.edge = max(0, min(a.edge, n/4))

	if opts.Filter {
		if !(acq.DriveFreq > 0) {
			return nil, &params.ParseError{Key: params.KeyDriveFreq, Err: params.ErrMissingKey}
		}
		half := opts.Bandwidth / 2 * acq.DriveFreq
		taps, err := bandpass(opts.Taps, acq.DriveFreq-half, acq.DriveFreq+half, acq.DriveFreq, acq.SamplingRate, opts.Window)
		if err != nil {
			return nil, fmt.Errorf("pixel: %w", err)
		}
		a.taps = taps
	}

	end := n - a.edge
	if acq.ROI > 0 {
		end = min(end, acq.Trigger+int(math.Round(acq.ROI*acq.SamplingRate)))
	}
	a.search = [2]int{acq.Trigger, max(end, acq.Trigger)}

	a.hold = 1
	if acq.DriveFreq > 0 {
		a.hold = max(1, int(math.Round(opts.HoldPeriods*acq.SamplingRate/acq.DriveFreq)))
	}
	return a, nil
}

// Len returns the averaged trace length.
func (a *Analyzer) Len() int {
	return a.n
}

// Options returns the analysis options.
func (a *Analyzer) Options() Options {
	return a.opts
}

// Analyze computes tFP and frequency shift for one raw pixel signal. Signals
// holding several consecutive traces are averaged first; a trailing partial
// trace is ignored. A flat signal yields zero results without error.
func (a *Analyzer) Analyze(signal []float64) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = Result{}, analysisErrorf("recovered: %v", r)
		}
	}()

	if len(signal) < a.n {
		return Result{}, analysisErrorf("signal has %d samples, need %d", len(signal), a.n)
	}
	for i, v := range signal {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}, analysisErrorf("non-finite sample %g at %d", v, i)
		}
	}

	a.average(signal)

	mean := stat.Mean(a.avg, nil)
	if floats.Max(a.avg)-floats.Min(a.avg) <= flatTol*math.Abs(mean) {
		return Result{Trace: make([]float64, a.n)}, nil
	}

	floats.AddConst(-mean, a.avg)
	x := a.avg
	if a.taps != nil {
		convolveSame(a.work, a.avg, a.taps)
		x = a.work
	}
	if a.edge > 0 {
		window.Tukey{Alpha: 2 * float64(a.edge) / float64(a.n-1)}.Transform(x)
	}

	a.hilb.analytic(a.z, x)
	instFreq(a.freq, a.z, a.acq.SamplingRate)

	trace := make([]float64, a.n)
	copy(trace, a.freq)
	base, sigma := a.baseline(trace)
	floats.AddConst(-base, trace)
	for _, v := range trace {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}, analysisErrorf("instantaneous frequency is not finite")
		}
	}

	res.Trace = trace
	res.TFP, res.Shift = a.detect(trace, sigma)
	return res, nil
}

// average folds every whole trace in signal into a.avg.
func (a *Analyzer) average(signal []float64) {
	segs := len(signal) / a.n
	copy(a.avg, signal[:a.n])
	for s := 1; s < segs; s++ {
		floats.Add(a.avg, signal[s*a.n:(s+1)*a.n])
	}
	if segs > 1 {
		floats.Scale(1/float64(segs), a.avg)
	}
}

// baseline returns the mean and standard deviation of the pre-trigger
// frequency, skipping the tapered edge when there is room.
func (a *Analyzer) baseline(freq []float64) (mean, std float64) {
	t := a.acq.Trigger
	lo := a.edge
	if t-lo < 2 {
		lo = 0
	}
	switch {
	case t-lo >= 2:
		return stat.MeanStdDev(freq[lo:t], nil)
	case t-lo == 1:
		return freq[lo], 0
	default:
		return freq[t], 0
	}
}

// detect locates the event in the baseline-subtracted trace. Only
// excursions lasting a.hold samples count; the instantaneous frequency of a
// noisy signal has single-sample spikes well above the baseline spread.
func (a *Analyzer) detect(delta []float64, sigma float64) (tfp, shift float64) {
	start, end := a.search[0], a.search[1]
	if end-start < 1 {
		return 0, 0
	}
	win := delta[start:end]
	hold := min(a.hold, len(win))

	peak := sustainedPeak(win, hold)
	if peak == 0 || math.Abs(peak) <= a.opts.NoiseK*sigma || math.Abs(peak) < a.opts.MinExcursion {
		return 0, 0
	}

	sign := math.Copysign(1, peak)
	level := a.opts.OnsetFraction * math.Abs(peak)
	onset := 0
	for i := range win {
		if reaches(win[i:min(len(win), i+hold)], sign, level) {
			onset = i
			break
		}
	}

	// Interpolate the crossing between the onset and the preceding sample.
	t := float64(onset)
	if onset > 0 {
		prev := sign * win[onset-1]
		cur := sign * win[onset]
		if cur > prev {
			t = float64(onset-1) + (level-prev)/(cur-prev)
		}
	}

	steady := max(1, int(math.Round(a.opts.SteadyFraction*float64(len(win)))))
	shift = stat.Mean(win[len(win)-steady:], nil)
	return t / a.acq.SamplingRate, shift
}

// sustainedPeak returns the largest excursion of either sign that every
// sample of some hold-long run of win reaches.
func sustainedPeak(win []float64, hold int) float64 {
	var up, down float64
	for i := 0; i+hold <= len(win); i++ {
		run := win[i : i+hold]
		up = math.Max(up, floats.Min(run))
		down = math.Min(down, floats.Max(run))
	}
	if up >= -down {
		return up
	}
	return down
}

// reaches reports whether every sample of run is at least level in the
// direction of sign.
func reaches(run []float64, sign, level float64) bool {
	for _, v := range run {
		if sign*v < level {
			return false
		}
	}
	return true
}
