package pipeline

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"trefm-analyzer/internal/metrics"
	"trefm-analyzer/internal/params"
	"trefm-analyzer/internal/pixel"
)

const fs = 1e6

func stepSignal(n, step int) []float64 {
	out := make([]float64, n)
	phase := 0.2
	for i := range out {
		out[i] = math.Sin(phase)
		f := 100e3
		if i >= step {
			f = 90e3
		}
		phase += 2 * math.Pi * f / fs
	}
	return out
}

func scanParams(rows, cols int) params.Parameters {
	return params.New(map[string]float64{
		params.KeyNumRows:       float64(rows),
		params.KeyNumCols:       float64(cols),
		params.KeyPntsPerPixel:  1000,
		params.KeyPntsPerAvg:    800,
		params.KeyTriggerSample: 100,
		params.KeySamplingRate:  fs,
		params.KeyDriveFreq:     100e3,
	})
}

// memRows serves rows from a (rows*cols, ppp) matrix.
func memRows(raw *mat.Dense, cols int) RowProviderFunc {
	return func(ctx context.Context, i int) (*mat.Dense, error) {
		_, c := raw.Dims()
		return mat.DenseCopyOf(raw.Slice(i*cols, (i+1)*cols, 0, c)), nil
	}
}

// stepScan builds a scan where pixel k has its step at steps[k], 0 meaning a
// flat signal.
func stepScan(steps []int) *mat.Dense {
	raw := mat.NewDense(len(steps), 1000, nil)
	for k, s := range steps {
		if s > 0 {
			raw.SetRow(k, stepSignal(1000, s))
		}
	}
	return raw
}

func TestProcessEndToEnd(t *testing.T) {
	steps := []int{0, 300, 450, 0}
	out, err := Process(context.Background(), scanParams(2, 2), memRows(stepScan(steps), 2), DefaultOptions())
	require.NoError(t, err)

	r, c := out.TFP.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	r, c = out.InstFreq.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 800, c)

	assert.Equal(t, 0.0, out.TFP.At(0, 0))
	assert.Equal(t, 0.0, out.TFP.At(1, 1))
	assert.InDelta(t, 200e-6, out.TFP.At(0, 1), 1/fs)
	assert.InDelta(t, 350e-6, out.TFP.At(1, 0), 1/fs)

	assert.Equal(t, 0.0, out.Shift.At(0, 0))
	assert.InDelta(t, -10e3, out.Shift.At(0, 1), 500)
	assert.InDelta(t, -10e3, out.Shift.At(1, 0), 500)

	assert.Empty(t, out.RowErrors)
	assert.Empty(t, out.Missing)
	assert.Equal(t, make([]float64, 800), mat.Row(nil, 0, out.InstFreq))
}

func TestProcessIsolatesRowFailures(t *testing.T) {
	raw := stepScan([]int{300, 300, 300, 300, 300, 300})
	base := memRows(raw, 2)
	readErr := errors.New("sensor glitch")
	rows := RowProviderFunc(func(ctx context.Context, i int) (*mat.Dense, error) {
		if i == 1 {
			return nil, readErr
		}
		return base(ctx, i)
	})

	m := metrics.New()
	opts := DefaultOptions()
	opts.Metrics = m
	out, err := Process(context.Background(), scanParams(3, 2), rows, opts)
	require.NoError(t, err)

	require.Contains(t, out.RowErrors, 1)
	assert.ErrorIs(t, out.RowErrors[1], readErr)
	assert.True(t, math.IsNaN(out.TFP.At(1, 0)))
	assert.True(t, math.IsNaN(out.Shift.At(1, 1)))
	assert.Empty(t, out.Missing)

	for _, i := range []int{0, 2} {
		assert.InDelta(t, 200e-6, out.TFP.At(i, 0), 1/fs)
		assert.InDelta(t, 200e-6, out.TFP.At(i, 1), 1/fs)
	}

	expected := `
# HELP trefm_row_failures_total Scan rows that failed as a whole
# TYPE trefm_row_failures_total counter
trefm_row_failures_total 1
# HELP trefm_rows_total Scan rows analysed
# TYPE trefm_rows_total counter
trefm_rows_total 2
# HELP trefm_pixels_total Pixels analysed
# TYPE trefm_pixels_total counter
trefm_pixels_total 4
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"trefm_rows_total", "trefm_row_failures_total", "trefm_pixels_total"))
}

func TestProcessCancellation(t *testing.T) {
	raw := stepScan([]int{300, 400, 300, 400, 300, 400, 300, 400})
	base := memRows(raw, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rows := RowProviderFunc(func(c context.Context, i int) (*mat.Dense, error) {
		if i == 1 {
			cancel()
		}
		return base(c, i)
	})

	out, err := Process(ctx, scanParams(4, 2), rows, DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, out)

	assert.Equal(t, []int{2, 3}, out.Missing)
	for _, i := range []int{0, 1} {
		assert.InDelta(t, 200e-6, out.TFP.At(i, 0), 1/fs, "row %d", i)
		assert.InDelta(t, 300e-6, out.TFP.At(i, 1), 1/fs, "row %d", i)
	}
	for _, i := range []int{2, 3} {
		assert.True(t, math.IsNaN(out.TFP.At(i, 0)), "row %d", i)
	}
}

func TestProcessAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	rows := RowProviderFunc(func(context.Context, int) (*mat.Dense, error) {
		calls++
		return nil, errors.New("unreachable")
	})
	out, err := Process(ctx, scanParams(2, 2), rows, DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
	assert.Equal(t, []int{0, 1}, out.Missing)
}

func TestProcessWorkersMatchSequential(t *testing.T) {
	steps := []int{250, 0, 300, 350, 0, 400, 450, 500, 300, 0, 600, 200}
	raw := stepScan(steps)

	seq, err := Process(context.Background(), scanParams(6, 2), memRows(raw, 2), DefaultOptions())
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Workers = 4
	par, err := Process(context.Background(), scanParams(6, 2), memRows(raw, 2), opts)
	require.NoError(t, err)

	assert.True(t, mat.Equal(seq.TFP, par.TFP))
	assert.True(t, mat.Equal(seq.Shift, par.Shift))
	assert.True(t, mat.Equal(seq.InstFreq, par.InstFreq))
}

func TestProcessObserverIsSerialized(t *testing.T) {
	raw := stepScan([]int{300, 300, 300, 300, 300, 300, 300, 300, 300, 300})

	var seen []int
	var done []int
	opts := DefaultOptions()
	opts.Workers = 3
	opts.Observer = Observers{
		ObserverFunc(func(ev RowEvent) {
			// Unsynchronised on purpose: calls must never overlap.
			seen = append(seen, ev.Index)
			done = append(done, ev.Done)
			assert.Equal(t, 5, ev.Total)
			assert.Len(t, ev.TFP, 2)
		}),
		LogObserver{},
	}
	_, err := Process(context.Background(), scanParams(5, 2), memRows(raw, 2), opts)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4}, seen)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, done)
}

func TestProcessSetupErrors(t *testing.T) {
	rows := memRows(stepScan([]int{0, 0}), 2)

	bad := scanParams(1, 2).With(params.KeyTriggerSample, 900)
	_, err := Process(context.Background(), bad, rows, DefaultOptions())
	var te *pixel.InvalidTriggerError
	assert.ErrorAs(t, err, &te)

	missing := params.New(map[string]float64{params.KeyNumRows: 1})
	_, err = Process(context.Background(), missing, rows, DefaultOptions())
	var pe *params.ParseError
	assert.ErrorAs(t, err, &pe)
}
