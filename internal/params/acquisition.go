package params

import (
	"fmt"
	"math"
)

// Acquisition is the typed view of the parameters every analysis stage needs.
type Acquisition struct {
	NumRows       int
	NumCols       int
	PntsPerPixel  int
	PntsPerAvg    int
	SamplingRate  float64 // Hz
	Trigger       int     // Sample index of the trigger within one averaged trace
	DriveFreq     float64 // Hz, 0 if unknown
	TotalTime     float64 // Seconds covered by one averaged trace
	FastScanSize  float64 // Metres
	SlowScanSize  float64 // Metres
	Recombination bool
	ROI           float64 // Seconds after trigger to search, 0 = whole trace
}

// Acquisition decodes and validates the typed acquisition view.
func (p Parameters) Acquisition() (Acquisition, error) {
	var a Acquisition
	var err error

	if a.NumRows, err = p.Int(KeyNumRows); err != nil {
		return a, err
	}
	if a.NumCols, err = p.Int(KeyNumCols); err != nil {
		return a, err
	}
	if a.PntsPerPixel, err = p.Int(KeyPntsPerPixel); err != nil {
		return a, err
	}
	if a.PntsPerAvg, err = p.Int(KeyPntsPerAvg); err != nil {
		return a, err
	}
	if a.SamplingRate, err = p.Get(KeySamplingRate); err != nil {
		return a, err
	}

	switch {
	case p.Has(KeyTriggerSample):
		if a.Trigger, err = p.Int(KeyTriggerSample); err != nil {
			return a, err
		}
	case p.Has(KeyTrigger):
		t, _ := p.Get(KeyTrigger)
		a.Trigger = int(math.Round(t * a.SamplingRate))
	default:
		return a, &ParseError{Key: KeyTrigger, Err: ErrMissingKey}
	}

	a.DriveFreq = p.GetOr(KeyDriveFreq, 0)
	a.FastScanSize = p.GetOr(KeyFastScanSize, 0)
	a.SlowScanSize = p.GetOr(KeySlowScanSize, 0)
	a.Recombination = p.GetOr(KeyRecombination, 0) != 0
	a.ROI = p.GetOr(KeyROI, 0)

	if err := a.Validate(); err != nil {
		return a, err
	}

	a.TotalTime = p.GetOr(KeyTotalTime, float64(a.PntsPerAvg)/a.SamplingRate)
	return a, nil
}

// Validate checks the acquisition invariants.
func (a Acquisition) Validate() error {
	switch {
	case a.NumRows <= 0 || a.NumCols <= 0:
		return fmt.Errorf("%w: map size %dx%d", ErrInvalid, a.NumRows, a.NumCols)
	case a.PntsPerAvg <= 0:
		return fmt.Errorf("%w: pnts_per_avg %d", ErrInvalid, a.PntsPerAvg)
	case a.PntsPerAvg > a.PntsPerPixel:
		return fmt.Errorf("%w: pnts_per_avg %d exceeds pnts_per_pixel %d", ErrInvalid, a.PntsPerAvg, a.PntsPerPixel)
	case !(a.SamplingRate > 0):
		return fmt.Errorf("%w: sampling_rate %g", ErrInvalid, a.SamplingRate)
	case a.ROI < 0:
		return fmt.Errorf("%w: roi %g", ErrInvalid, a.ROI)
	}
	return nil
}

// Pixels returns the number of pixels in the map.
func (a Acquisition) Pixels() int {
	return a.NumRows * a.NumCols
}

// Averages returns how many whole traces each raw pixel signal holds.
func (a Acquisition) Averages() int {
	return a.PntsPerPixel / a.PntsPerAvg
}

// SamplePeriod returns the time between samples in seconds.
func (a Acquisition) SamplePeriod() float64 {
	return 1 / a.SamplingRate
}
