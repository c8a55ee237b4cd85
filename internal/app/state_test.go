package app

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"trefm-analyzer/internal/calibration"
	"trefm-analyzer/internal/params"
	"trefm-analyzer/internal/pipeline"
	"trefm-analyzer/internal/store"
)

const fs = 1e6

func stepSignal(n, step int) []float64 {
	out := make([]float64, n)
	phase := 0.0
	for i := range out {
		out[i] = math.Sin(phase)
		f := 100e3
		if step > 0 && i >= step {
			f = 90e3
		}
		phase += 2 * math.Pi * f / fs
	}
	return out
}

// scanFile writes a 2x2 scan to /FF_Group/FF_Raw with its parameters on the
// group, the way acquisition software lays it out.
func scanFile(t *testing.T) (string, []int) {
	t.Helper()
	steps := []int{0, 300, 450, 0}
	path := filepath.Join(t.TempDir(), "scan.db")
	f, err := store.Create(path)
	require.NoError(t, err)
	defer f.Close()

	raw := mat.NewDense(len(steps), 1000, nil)
	for k, s := range steps {
		raw.SetRow(k, stepSignal(1000, s))
	}
	_, err = f.WriteArray("/FF_Group", "FF_Raw", store.FromDense(raw), map[string]any{"num_rows": 2})
	require.NoError(t, err)
	require.NoError(t, f.SetAttrs("/FF_Group", map[string]any{
		params.KeyNumRows:       2,
		params.KeyNumCols:       2,
		params.KeyPntsPerPixel:  1000,
		params.KeyPntsPerAvg:    800,
		params.KeyTriggerSample: 100,
		params.KeySamplingRate:  fs,
		params.KeyDriveFreq:     100e3,
		params.KeyFastScanSize:  2e-6,
		params.KeySlowScanSize:  1e-6,
		"operator":              "lab",
	}))
	return path, steps
}

func openState(t *testing.T, path string) *State {
	t.Helper()
	s := NewState()
	require.NoError(t, s.Open(store.PathSource(path)))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLocateRawPriority(t *testing.T) {
	path, _ := scanFile(t)
	f, err := store.Open(path)
	require.NoError(t, err)
	_, err = f.WriteArray("/Other", "FF_Raw", store.Vector([]float64{1}), map[string]any{params.KeyTrigger: 1e-4})
	require.NoError(t, err)
	_, err = f.WriteArray("/X", "avg", store.Vector([]float64{1}), map[string]any{params.KeyTrigger: 1e-4})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s := openState(t, path)

	got, err := s.LocateRaw("", "")
	require.NoError(t, err)
	assert.Equal(t, "/Other/FF_Raw", got)

	got, err = s.LocateRaw("/FF_Group/FF_Raw", "avg")
	require.NoError(t, err)
	assert.Equal(t, "/FF_Group/FF_Raw", got)

	got, err = s.LocateRaw("", "avg")
	require.NoError(t, err)
	assert.Equal(t, "/X/avg", got)
	assert.Equal(t, "/X/avg", s.RawPath)

	_, err = s.LocateRaw("", "nothing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.LocateRaw("/FF_Group", "")
	assert.ErrorContains(t, err, "is a group")
}

func TestLocateRawParameters(t *testing.T) {
	path, _ := scanFile(t)
	s := openState(t, path)

	var loaded params.Parameters
	s.On(EventParamsLoaded, func(data interface{}) { loaded = data.(params.Parameters) })

	_, err := s.LocateRaw("/FF_Group/FF_Raw", "")
	require.NoError(t, err)

	// No trigger on the dataset: the group's parameters are used.
	p := s.Parameters()
	assert.Equal(t, 800.0, p.GetOr(params.KeyPntsPerAvg, 0))
	assert.Equal(t, 100.0, p.GetOr(params.KeyTriggerSample, 0))
	assert.Equal(t, p.Keys(), loaded.Keys())

	f, err := s.File()
	require.NoError(t, err)
	require.NoError(t, f.SetAttrs("/FF_Group/FF_Raw", map[string]any{params.KeyTrigger: 2e-4}))

	_, err = s.LocateRaw("/FF_Group/FF_Raw", "")
	require.NoError(t, err)
	p = s.Parameters()
	assert.False(t, p.Has(params.KeyPntsPerAvg))
	assert.Equal(t, 2e-4, p.GetOr(params.KeyTrigger, 0))
}

func TestNoFile(t *testing.T) {
	s := NewState()
	_, err := s.LocateRaw("", "")
	assert.ErrorIs(t, err, ErrNoFile)
	_, err = s.Process(context.Background(), DefaultProcessOptions())
	assert.ErrorIs(t, err, ErrNoFile)
	assert.NoError(t, s.Close())
}

func TestProcessSavesResults(t *testing.T) {
	path, _ := scanFile(t)
	s := openState(t, path)
	_, err := s.LocateRaw("", "")
	require.NoError(t, err)

	var rows int
	var complete *pipeline.Output
	var saved *Results
	s.On(EventRowProcessed, func(interface{}) { rows++ })
	s.On(EventProcessingComplete, func(data interface{}) { complete = data.(*pipeline.Output) })
	s.On(EventResultsSaved, func(data interface{}) { saved = data.(*Results) })

	res, err := s.Process(context.Background(), DefaultProcessOptions())
	require.NoError(t, err)
	assert.Equal(t, "/FF_Group/processed_000", res.Group)
	assert.Equal(t, 2, rows)
	assert.Same(t, res.Output, complete)
	assert.Same(t, res, saved)

	tfp := res.Output.TFP
	assert.Equal(t, 0.0, tfp.At(0, 0))
	assert.InDelta(t, 200e-6, tfp.At(0, 1), 0.5/fs)
	assert.InDelta(t, 350e-6, tfp.At(1, 0), 0.5/fs)

	f, err := s.File()
	require.NoError(t, err)
	for _, name := range []string{"inst_freq", "tfp", "shift", "tfp_fixed", "shift_fixed", "tfp_mask"} {
		assert.True(t, f.Exists(res.Group+"/"+name), name)
	}

	stored, err := f.ReadArray(res.Group, "tfp")
	require.NoError(t, err)
	m, err := stored.Dense()
	require.NoError(t, err)
	assert.True(t, mat.Equal(tfp, m))

	inst, err := f.ReadArray(res.Group, "inst_freq")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 800}, inst.Shape)

	attrs, err := f.Attrs(res.Group + "/inst_freq")
	require.NoError(t, err)
	assert.Equal(t, "Frequency", attrs["quantity"])
	assert.Equal(t, "Hz", attrs["units"])
	assert.Equal(t, []float64{0, 2e-6}, attrs["position_x"])
	assert.Len(t, attrs["spectral_time"], 800)
	assert.Equal(t, 800.0, attrs[params.KeyPntsPerAvg])

	group, err := f.Attrs(res.Group)
	require.NoError(t, err)
	assert.Equal(t, "lab", group["operator"])
	assert.Equal(t, res.RunID, group["run_id"])
	_, err = uuid.Parse(res.RunID)
	assert.NoError(t, err)
	assert.Contains(t, group, "timestamp")

	mask, err := f.ReadArray(res.Group, "tfp_mask")
	require.NoError(t, err)
	assert.Equal(t, []int{len(res.Mask), 2}, mask.Shape)

	again, err := s.Process(context.Background(), DefaultProcessOptions())
	require.NoError(t, err)
	assert.Equal(t, "/FF_Group/processed_001", again.Group)
	assert.NotEqual(t, res.RunID, again.RunID)
}

func TestProcessCancelledIsNotSaved(t *testing.T) {
	path, _ := scanFile(t)
	s := openState(t, path)
	_, err := s.LocateRaw("", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Process(ctx, DefaultProcessOptions())
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, []int{0, 1}, res.Output.Missing)

	f, err := s.File()
	require.NoError(t, err)
	assert.False(t, f.Exists("/FF_Group/processed_000"))
}

func TestProcessRejectsMismatchedRaw(t *testing.T) {
	path, _ := scanFile(t)
	s := openState(t, path)
	f, err := s.File()
	require.NoError(t, err)
	require.NoError(t, f.SetAttrs("/FF_Group", map[string]any{params.KeyPntsPerPixel: 900, params.KeyPntsPerAvg: 900}))

	_, err = s.LocateRaw("", "")
	require.NoError(t, err)
	_, err = s.Process(context.Background(), DefaultProcessOptions())
	assert.ErrorContains(t, err, "points per pixel")
}

func TestProcessWithoutLocate(t *testing.T) {
	path, _ := scanFile(t)
	s := openState(t, path)
	_, err := s.Process(context.Background(), DefaultProcessOptions())
	assert.ErrorContains(t, err, "no raw dataset")
}

func TestCalibrate(t *testing.T) {
	path, _ := scanFile(t)
	dir := t.TempDir()
	paramsPath := filepath.Join(dir, "params.txt")
	require.NoError(t, os.WriteFile(paramsPath, []byte("Export\n\tInitial\nQ\t100\n"), 0o644))
	wavePath := filepath.Join(dir, "tune.txt")
	var body []byte
	for i := 0; i < 32; i++ {
		v := math.Exp(-math.Pow(float64(i-16)/4, 2))
		body = append(body, []byte(strconv.FormatFloat(v, 'g', -1, 64)+"\n")...)
	}
	require.NoError(t, os.WriteFile(wavePath, body, 0o644))

	s := openState(t, path)
	var events int
	s.On(EventCalibrationSaved, func(interface{}) { events++ })

	tf, err := s.Calibrate(wavePath, paramsPath, calibration.DefaultOptions(), false)
	require.NoError(t, err)
	assert.Len(t, tf.Resampled, 320)
	assert.Equal(t, 1, events)

	f, err := s.File()
	require.NoError(t, err)
	loaded, err := calibration.Load(f)
	require.NoError(t, err)
	assert.Equal(t, tf.Norm, loaded.Norm)

	_, err = s.Calibrate(wavePath, paramsPath, calibration.DefaultOptions(), false)
	assert.ErrorIs(t, err, calibration.ErrCalibrationExists)

	_, err = s.Calibrate(wavePath, paramsPath, calibration.DefaultOptions().WithOffset(0.01), true)
	require.NoError(t, err)
	assert.Equal(t, 2, events)
}

func TestOpenReplacesFile(t *testing.T) {
	a, _ := scanFile(t)
	b, _ := scanFile(t)
	s := openState(t, a)
	_, err := s.LocateRaw("", "")
	require.NoError(t, err)

	require.NoError(t, s.Open(store.PathSource(b)))
	assert.Empty(t, s.RawPath)
	f, err := s.File()
	require.NoError(t, err)
	assert.Equal(t, b, f.Filename())
}
