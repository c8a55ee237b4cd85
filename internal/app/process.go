package app

import (
	"context"
	"fmt"
	"log"
	"path"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"trefm-analyzer/internal/badpixel"
	"trefm-analyzer/internal/params"
	"trefm-analyzer/internal/pipeline"
	"trefm-analyzer/internal/store"
	"trefm-analyzer/pkg/grid"
)

// ProcessOptions controls Process.
type ProcessOptions struct {
	Pipeline          pipeline.Options
	BadPixelThreshold float64 // <= 0 uses badpixel.DefaultThreshold
}

// DefaultProcessOptions returns sequential processing with default analysis.
func DefaultProcessOptions() ProcessOptions {
	return ProcessOptions{
		Pipeline:          pipeline.DefaultOptions(),
		BadPixelThreshold: badpixel.DefaultThreshold,
	}
}

// Results describes a saved processing run.
type Results struct {
	Output   *pipeline.Output
	TFPFixed *mat.Dense
	ShiftFix *mat.Dense
	Mask     []grid.Cell // Cells corrected in the tFP map
	Group    string      // processed_NNN group holding the datasets
	RunID    string
}

// Process runs the pipeline over the located raw dataset and saves the
// results. A cancelled run is not saved; its partial output is returned with
// the context error.
func (s *State) Process(ctx context.Context, opts ProcessOptions) (*Results, error) {
	f, err := s.File()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	rawPath, parms := s.RawPath, s.params
	s.mu.RUnlock()
	if rawPath == "" {
		return nil, fmt.Errorf("no raw dataset located")
	}

	acq, err := parms.Acquisition()
	if err != nil {
		return nil, err
	}
	rows, err := store.NewRawRows(f, rawPath, acq.NumRows, acq.NumCols)
	if err != nil {
		return nil, err
	}
	if rows.PointsPerPixel() != acq.PntsPerPixel {
		return nil, fmt.Errorf("%s has %d points per pixel, parameters say %d", rawPath, rows.PointsPerPixel(), acq.PntsPerPixel)
	}

	popts := opts.Pipeline
	if popts.Metrics == nil {
		popts.Metrics = s.Metrics
	}
	emit := pipeline.ObserverFunc(func(ev pipeline.RowEvent) { s.Emit(EventRowProcessed, ev) })
	if popts.Observer != nil {
		popts.Observer = pipeline.Observers{popts.Observer, emit}
	} else {
		popts.Observer = emit
	}

	log.Printf("Process: %s, %d x %d pixels, %d points per pixel", rawPath, acq.NumRows, acq.NumCols, acq.PntsPerPixel)
	out, err := pipeline.Process(ctx, parms, rows, popts)
	if err != nil {
		if out != nil {
			return &Results{Output: out}, err
		}
		return nil, err
	}
	if len(out.RowErrors) > 0 {
		log.Printf("Process: %d of %d rows failed", len(out.RowErrors), acq.NumRows)
	}
	s.Emit(EventProcessingComplete, out)

	return s.SaveResults(out, opts.BadPixelThreshold)
}

// SaveResults writes out to a new processed_NNN group beside the raw
// dataset: the instantaneous frequency with its axes, the tFP and shift maps,
// their bad-pixel corrected versions and the tFP correction mask.
func (s *State) SaveResults(out *pipeline.Output, threshold float64) (*Results, error) {
	f, err := s.File()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	rawPath, parms := s.RawPath, s.params
	s.mu.RUnlock()
	if rawPath == "" {
		return nil, fmt.Errorf("no raw dataset located")
	}
	if threshold <= 0 {
		threshold = badpixel.DefaultThreshold
	}

	parent := path.Dir(rawPath)
	group, err := f.CreateIndexedGroup(parent, "processed")
	if err != nil {
		return nil, err
	}

	res := &Results{Output: out, Group: group, RunID: uuid.NewString()}
	res.TFPFixed, res.Mask = badpixel.Correct(out.TFP, threshold)
	res.ShiftFix, _ = badpixel.Correct(out.Shift, threshold)
	if len(res.Mask) > 0 {
		log.Printf("Process: corrected %d bad pixels in tFP", len(res.Mask))
	}

	acq := out.Acquisition
	instAttrs := parms.Attributes()
	instAttrs["quantity"] = "Frequency"
	instAttrs["units"] = "Hz"
	instAttrs["position_names"] = "X,Y"
	instAttrs["position_units"] = "m,m"
	instAttrs["position_x"] = linspace(0, parms.GetOr(params.KeyFastScanSize, 0), acq.NumCols)
	instAttrs["position_y"] = linspace(0, parms.GetOr(params.KeySlowScanSize, 0), acq.NumRows)
	instAttrs["spectral_names"] = "Time"
	instAttrs["spectral_units"] = "s"
	instAttrs["spectral_time"] = linspace(0, acq.TotalTime, acq.PntsPerAvg)
	instAttrs["source"] = rawPath

	if _, err := f.WriteArray(group, "inst_freq", store.FromDense(out.InstFreq), instAttrs); err != nil {
		return nil, fmt.Errorf("write inst_freq: %w", err)
	}
	if err := f.CopyAttrs(group, parent); err != nil {
		return nil, err
	}

	maps := []struct {
		name string
		m    mat.Matrix
	}{
		{"tfp", out.TFP},
		{"shift", out.Shift},
		{"tfp_fixed", res.TFPFixed},
		{"shift_fixed", res.ShiftFix},
	}
	for _, d := range maps {
		if _, err := f.WriteArray(group, d.name, store.FromDense(d.m), nil); err != nil {
			return nil, fmt.Errorf("write %s: %w", d.name, err)
		}
	}
	if _, err := f.WriteArray(group, "tfp_mask", maskArray(res.Mask), map[string]any{"threshold": threshold}); err != nil {
		return nil, fmt.Errorf("write tfp_mask: %w", err)
	}

	err = f.SetAttrs(group, map[string]any{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"run_id":      res.RunID,
		"failed_rows": len(out.RowErrors),
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Process: saved results to %s", group)
	s.Emit(EventResultsSaved, res)
	return res, nil
}

// maskArray stores cells as an (n, 2) array of (row, col).
func maskArray(cells []grid.Cell) store.Array {
	data := make([]float64, 0, 2*len(cells))
	for _, c := range cells {
		data = append(data, float64(c.Row), float64(c.Col))
	}
	return store.NewArray([]int{len(cells), 2}, data)
}

func linspace(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}
