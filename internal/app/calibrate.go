package app

import (
	"trefm-analyzer/internal/calibration"
)

// Calibrate builds a transfer function from a reference waveform file and a
// parameter table and stores it in the open container. An existing
// calibration is replaced only when overwrite is set.
func (s *State) Calibrate(waveformPath, paramsPath string, opts calibration.Options, overwrite bool) (*calibration.TransferFunction, error) {
	f, err := s.File()
	if err != nil {
		return nil, err
	}
	if !overwrite && f.Exists(calibration.Group) {
		return nil, calibration.ErrCalibrationExists
	}

	wave, err := calibration.LoadWaveform(waveformPath)
	if err != nil {
		return nil, err
	}
	tf, err := calibration.CalibrateTransferFunction(wave, paramsPath, opts.PSDFreq, opts)
	if err != nil {
		return nil, err
	}
	if err := calibration.Save(f, tf, overwrite); err != nil {
		return nil, err
	}

	s.Metrics.CalibrationSaved()
	s.Emit(EventCalibrationSaved, tf)
	return tf, nil
}
