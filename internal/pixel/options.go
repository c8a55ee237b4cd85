package pixel

// Window selects the taper applied to the FIR filter taps.
type Window string

const (
	Blackman Window = "blackman"
	Hamming  Window = "hamming"
	Hann     Window = "hann"
)

// Options controls pixel analysis.
type Options struct {
	// Bandpass FIR around the drive frequency. Disable for signals that
	// were filtered before they were stored.
	Filter    bool
	Taps      int     // Odd; even values are rounded up
	Bandwidth float64 // Passband width as a fraction of drive_freq
	Window    Window

	// Fraction of the trace at each end tapered before the Hilbert
	// transform and excluded from baseline and event search.
	EdgeFraction float64

	// Event detection
	NoiseK         float64 // Peak must exceed NoiseK baseline standard deviations
	MinExcursion   float64 // ...and this absolute value in Hz
	OnsetFraction  float64 // Onset is where the excursion first reaches this fraction of the peak
	SteadyFraction float64 // Shift is the mean of this trailing fraction of the search window
	HoldPeriods    float64 // Drive periods an excursion must persist to count
}

// DefaultOptions returns the standard analysis settings.
func DefaultOptions() Options {
	return Options{
		Filter:    true,
		Taps:      31,
		Bandwidth: 0.5, // drive ±25%, wide enough for any realistic shift
		Window:    Blackman,

		EdgeFraction: 0.05,

		NoiseK:         5,
		MinExcursion:   1, // Hz
		OnsetFraction:  0.5,
		SteadyFraction: 0.25,
		HoldPeriods:    1,
	}
}

// WithoutFilter returns a copy that skips the FIR stage.
func (o Options) WithoutFilter() Options {
	o.Filter = false
	return o
}

// WithFilter returns a copy with the FIR stage configured.
func (o Options) WithFilter(taps int, bandwidth float64, w Window) Options {
	o.Filter = true
	o.Taps = taps
	o.Bandwidth = bandwidth
	o.Window = w
	return o
}

// WithDetection returns a copy with custom event detection thresholds.
func (o Options) WithDetection(noiseK, minExcursion, onsetFraction float64) Options {
	o.NoiseK = noiseK
	o.MinExcursion = minExcursion
	o.OnsetFraction = onsetFraction
	return o
}
