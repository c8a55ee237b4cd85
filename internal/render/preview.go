package render

import (
	"log"
	"math"

	"gonum.org/v1/gonum/mat"

	"trefm-analyzer/internal/pipeline"
)

// Preview is a pipeline observer that keeps its own copy of the tFP map and
// rewrites a TIFF as rows complete. Process serializes observer calls, so
// Preview needs no locking while a run is in progress.
type Preview struct {
	path  string
	every int
	tfp   *mat.Dense
	dirty int
	err   error
}

// NewPreview returns a preview of a rows×cols scan written to path after
// every `every` rows (at least 1).
func NewPreview(path string, rows, cols, every int) *Preview {
	m := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, math.NaN())
		}
	}
	return &Preview{path: path, every: max(1, every), tfp: m}
}

// RowDone records the row and rewrites the image when due.
func (p *Preview) RowDone(ev pipeline.RowEvent) {
	r, c := p.tfp.Dims()
	if ev.Index < 0 || ev.Index >= r || (ev.Err == nil && len(ev.TFP) != c) {
		return
	}
	if ev.Err == nil {
		p.tfp.SetRow(ev.Index, ev.TFP)
	}
	p.dirty++
	if p.dirty >= p.every || ev.Done == ev.Total {
		p.Flush()
	}
}

// Flush writes the current map. Write failures are logged and the first one
// is kept for Err.
func (p *Preview) Flush() {
	p.dirty = 0
	if err := WriteTIFF(p.path, Gray16(p.tfp)); err != nil {
		log.Printf("Preview: %v", err)
		if p.err == nil {
			p.err = err
		}
	}
}

// Map returns the tFP values received so far. Rows not yet seen are NaN.
func (p *Preview) Map() *mat.Dense { return mat.DenseCopyOf(p.tfp) }

// Err returns the first write error.
func (p *Preview) Err() error { return p.err }
