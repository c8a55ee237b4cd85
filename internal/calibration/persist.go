package calibration

import (
	"errors"
	"fmt"
	"log"

	"trefm-analyzer/internal/params"
	"trefm-analyzer/internal/store"
)

// Group is where a calibration lives in a scan store.
const Group = "/Transfer_Function"

// Dataset names under Group.
const (
	dsRaw           = "TF"
	dsFreq          = "Freq"
	dsNorm          = "TFnorm"
	dsResampled     = "TFnorm_resampled"
	dsResampledFreq = "Freq_resampled"

	attrOffset     = "offset"
	attrSampleFreq = "sample_freq"
)

// ErrCalibrationExists is returned by Save when a calibration is already
// stored and overwrite was not requested.
var ErrCalibrationExists = errors.New("calibration: transfer function already stored")

// Save writes tf under Group. An existing calibration is replaced only when
// overwrite is set; the old data cannot be recovered.
func Save(f *store.File, tf *TransferFunction, overwrite bool) error {
	if f.Exists(Group) {
		if !overwrite {
			return fmt.Errorf("%w at %s", ErrCalibrationExists, Group)
		}
		log.Printf("Calibration: WARNING replacing existing %s in %s, previous calibration is lost", Group, f.Filename())
		if err := f.Delete(Group); err != nil {
			return fmt.Errorf("remove old calibration: %w", err)
		}
	}

	if err := f.CreateGroup(Group); err != nil {
		return err
	}
	if err := f.SetAttrs(Group, tf.Params.Attributes()); err != nil {
		return err
	}

	type dataset struct {
		name  string
		a     store.Array
		attrs map[string]any
	}
	writes := []dataset{
		{dsRaw, store.Vector(tf.Raw), nil},
		{dsFreq, store.Vector(tf.Freq), nil},
		{dsNorm, store.Vector(tf.Norm), map[string]any{attrOffset: tf.Offset}},
	}
	if tf.Resampled != nil {
		writes = append(writes,
			dataset{dsResampled, store.ComplexVector(tf.Resampled), map[string]any{attrSampleFreq: tf.SampleFreq}},
			dataset{dsResampledFreq, store.Vector(tf.ResampledFreq), nil},
		)
	}
	for _, w := range writes {
		if _, err := f.WriteArray(Group, w.name, w.a, w.attrs); err != nil {
			return fmt.Errorf("write %s: %w", w.name, err)
		}
	}

	log.Printf("Calibration: saved %d-point transfer function to %s", len(tf.Raw), Group)
	return nil
}

// Load reads the calibration stored under Group.
func Load(f *store.File) (*TransferFunction, error) {
	if _, err := f.Group(Group); err != nil {
		return nil, err
	}
	attrs, err := f.Attrs(Group)
	if err != nil {
		return nil, err
	}
	p := params.FromAttributes(attrs)
	tf := &TransferFunction{Params: p, PSDFreq: p.GetOr(params.KeyPSDFreq, 0)}

	for _, r := range []struct {
		name string
		dst  *[]float64
	}{
		{dsRaw, &tf.Raw},
		{dsFreq, &tf.Freq},
		{dsNorm, &tf.Norm},
	} {
		a, err := f.ReadArray(Group, r.name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", r.name, err)
		}
		*r.dst = a.Data
	}
	if na, err := f.Attrs(Group + "/" + dsNorm); err == nil {
		tf.Offset, _ = na[attrOffset].(float64)
	}

	if !f.Exists(Group + "/" + dsResampled) {
		return tf, nil
	}
	rs, err := f.ReadArray(Group, dsResampled)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dsResampled, err)
	}
	rf, err := f.ReadArray(Group, dsResampledFreq)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dsResampledFreq, err)
	}
	tf.Resampled, tf.ResampledFreq = rs.Cmplx, rf.Data
	if ra, err := f.Attrs(Group + "/" + dsResampled); err == nil {
		tf.SampleFreq, _ = ra[attrSampleFreq].(float64)
	}
	return tf, nil
}
