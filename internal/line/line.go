// Package line runs pixel analysis across one scan row.
package line

import (
	"errors"
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/mat"

	"trefm-analyzer/internal/params"
	"trefm-analyzer/internal/pixel"
)

// Result holds the outputs for one scan row, in column order.
type Result struct {
	Index    int
	TFP      []float64
	Shift    []float64
	InstFreq *mat.Dense // (cols, pnts_per_avg)
	Failed   []int      // Columns whose analysis failed; their values are NaN
}

// Analyzer analyses whole rows. Like pixel.Analyzer it is not safe for
// concurrent use.
type Analyzer struct {
	pix  *pixel.Analyzer
	cols int
	ppp  int
	buf  []float64
}

// New prepares a row analyzer for acq.
func New(acq params.Acquisition, opts pixel.Options) (*Analyzer, error) {
	pix, err := pixel.New(acq, opts)
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		pix:  pix,
		cols: acq.NumCols,
		ppp:  acq.PntsPerPixel,
		buf:  make([]float64, acq.PntsPerPixel),
	}, nil
}

// AnalyzeRow analyses raw, a (cols, pnts_per_pixel) matrix holding one signal
// per column of scan row index. A pixel that fails is logged, recorded in
// Result.Failed and given NaN tFP and shift with a zero trace; the rest of
// the row is still analysed. A wrongly shaped row fails as a whole.
func (l *Analyzer) AnalyzeRow(index int, raw mat.Matrix) (*Result, error) {
	r, c := raw.Dims()
	if r != l.cols || c != l.ppp {
		return nil, fmt.Errorf("line %d: raw data is %dx%d, want %dx%d", index, r, c, l.cols, l.ppp)
	}

	res := &Result{
		Index:    index,
		TFP:      make([]float64, l.cols),
		Shift:    make([]float64, l.cols),
		InstFreq: mat.NewDense(l.cols, l.pix.Len(), nil),
	}
	for j := 0; j < l.cols; j++ {
		mat.Row(l.buf, j, raw)
		pr, err := l.pix.Analyze(l.buf)
		if err != nil {
			var ae *pixel.AnalysisError
			if !errors.As(err, &ae) {
				return nil, fmt.Errorf("line %d pixel %d: %w", index, j, err)
			}
			log.Printf("Line %d: pixel %d failed: %v", index, j, err)
			res.TFP[j], res.Shift[j] = math.NaN(), math.NaN()
			res.Failed = append(res.Failed, j)
			continue
		}
		res.TFP[j], res.Shift[j] = pr.TFP, pr.Shift
		res.InstFreq.SetRow(j, pr.Trace)
	}
	return res, nil
}
