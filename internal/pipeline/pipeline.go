// Package pipeline runs trEFM analysis over every row of a scan.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"trefm-analyzer/internal/imagemap"
	"trefm-analyzer/internal/line"
	"trefm-analyzer/internal/metrics"
	"trefm-analyzer/internal/params"
	"trefm-analyzer/internal/pixel"
)

// RowProvider supplies raw scan rows as (num_cols, pnts_per_pixel) matrices.
type RowProvider interface {
	Row(ctx context.Context, i int) (*mat.Dense, error)
}

// RowProviderFunc adapts a function to RowProvider.
type RowProviderFunc func(ctx context.Context, i int) (*mat.Dense, error)

// Row calls f.
func (f RowProviderFunc) Row(ctx context.Context, i int) (*mat.Dense, error) {
	return f(ctx, i)
}

// Options controls a processing run.
type Options struct {
	Pixel    pixel.Options
	Workers  int              // Rows analysed concurrently, <= 1 is sequential
	Observer Observer         // Receives one event per finished row, may be nil
	Metrics  *metrics.Metrics // May be nil
}

// DefaultOptions returns sequential processing with default pixel analysis.
func DefaultOptions() Options {
	return Options{Pixel: pixel.DefaultOptions(), Workers: 1}
}

// Output holds the maps produced by a run. Rows that were never processed
// because the run was cancelled are listed in Missing and are NaN.
type Output struct {
	Acquisition params.Acquisition
	TFP         *mat.Dense // (num_rows, num_cols), seconds
	Shift       *mat.Dense // (num_rows, num_cols), Hz
	InstFreq    *mat.Dense // (num_rows*num_cols, pnts_per_avg), Hz
	RowErrors   map[int]error
	Missing     []int
}

// Process analyses every row supplied by rows. Parameter and analyzer setup
// errors are returned immediately. A row that cannot be read or analysed is
// recorded in Output.RowErrors, left NaN, and processing continues. When ctx
// is cancelled no further rows are started; the partial output is returned
// together with the context error.
func Process(ctx context.Context, p params.Parameters, rows RowProvider, opts Options) (*Output, error) {
	acq, err := p.Acquisition()
	if err != nil {
		return nil, err
	}

	workers := max(1, opts.Workers)
	workers = min(workers, acq.NumRows)
	pool := make(chan *line.Analyzer, workers)
	for w := 0; w < workers; w++ {
		la, err := line.New(acq, opts.Pixel)
		if err != nil {
			return nil, err
		}
		pool <- la
	}

	r := &run{
		acq:     acq,
		rows:    rows,
		asm:     imagemap.New(acq.NumRows, acq.NumCols, acq.PntsPerAvg),
		metrics: opts.Metrics,
		errs:    make(map[int]error),
		events:  make(chan RowEvent, workers),
	}

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		done := 0
		for ev := range r.events {
			done++
			ev.Done, ev.Total = done, acq.NumRows
			if opts.Observer != nil {
				opts.Observer.RowDone(ev)
			}
		}
	}()

	if workers == 1 {
		la := <-pool
		for i := 0; i < acq.NumRows; i++ {
			if ctx.Err() != nil {
				break
			}
			r.row(ctx, la, i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(workers)
		for i := 0; i < acq.NumRows; i++ {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				la := <-pool
				defer func() { pool <- la }()
				r.row(ctx, la, i)
				return nil
			})
		}
		g.Wait()
	}

	close(r.events)
	<-consumed

	out := &Output{
		Acquisition: acq,
		TFP:         r.asm.TFP(),
		Shift:       r.asm.Shift(),
		InstFreq:    r.asm.InstFreq(),
		RowErrors:   r.errs,
		Missing:     r.asm.Missing(),
	}
	if err := ctx.Err(); err != nil {
		log.Printf("Pipeline: stopped after %d of %d rows: %v", acq.NumRows-len(out.Missing), acq.NumRows, err)
		return out, err
	}
	opts.Metrics.RunComplete(time.Now())
	return out, nil
}

// run is the shared state of one Process call.
type run struct {
	acq     params.Acquisition
	rows    RowProvider
	asm     *imagemap.Assembler
	metrics *metrics.Metrics
	events  chan RowEvent

	mu   sync.Mutex
	errs map[int]error
}

func (r *run) row(ctx context.Context, la *line.Analyzer, i int) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()

	res, err := r.analyze(ctx, la, i)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return
		}
		log.Printf("Line %d: failed: %v", i, err)
		r.asm.Fail(i)
		r.mu.Lock()
		r.errs[i] = err
		r.mu.Unlock()
		r.metrics.RowFailed()
		r.events <- RowEvent{Index: i, Err: err, Elapsed: time.Since(start)}
		return
	}

	r.metrics.RowDone(r.acq.NumCols, len(res.Failed), time.Since(start))
	r.events <- RowEvent{
		Index:   i,
		TFP:     append([]float64(nil), res.TFP...),
		Shift:   append([]float64(nil), res.Shift...),
		Failed:  res.Failed,
		Elapsed: time.Since(start),
	}
}

func (r *run) analyze(ctx context.Context, la *line.Analyzer, i int) (*line.Result, error) {
	raw, err := r.rows.Row(ctx, i)
	if err != nil {
		return nil, fmt.Errorf("read row: %w", err)
	}
	res, err := la.AnalyzeRow(i, raw)
	if err != nil {
		return nil, err
	}
	if err := r.asm.Place(res); err != nil {
		return nil, err
	}
	return res, nil
}
