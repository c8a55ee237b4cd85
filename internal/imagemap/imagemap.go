// Package imagemap assembles per-row analysis results into full scan maps.
package imagemap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"trefm-analyzer/internal/line"
)

// Assembler collects row results into tFP and shift maps and the
// instantaneous frequency matrix. Rows that were never placed stay NaN.
// Place may be called concurrently for different rows.
type Assembler struct {
	rows, cols, points int

	tfp    *mat.Dense
	shift  *mat.Dense
	inst   *mat.Dense
	placed []bool
}

// New creates an assembler for a rows x cols scan with traces of the given
// number of points.
func New(rows, cols, points int) *Assembler {
	a := &Assembler{
		rows:   rows,
		cols:   cols,
		points: points,
		tfp:    nanDense(rows, cols),
		shift:  nanDense(rows, cols),
		inst:   mat.NewDense(rows*cols, points, nil),
		placed: make([]bool, rows),
	}
	return a
}

func nanDense(r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = math.NaN()
	}
	return mat.NewDense(r, c, data)
}

// Place writes the result for row res.Index.
func (a *Assembler) Place(res *line.Result) error {
	i := res.Index
	if i < 0 || i >= a.rows {
		return fmt.Errorf("imagemap: row %d outside [0, %d)", i, a.rows)
	}
	if len(res.TFP) != a.cols || len(res.Shift) != a.cols {
		return fmt.Errorf("imagemap: row %d has %d columns, want %d", i, len(res.TFP), a.cols)
	}
	if r, c := res.InstFreq.Dims(); r != a.cols || c != a.points {
		return fmt.Errorf("imagemap: row %d trace matrix is %dx%d, want %dx%d", i, r, c, a.cols, a.points)
	}

	a.tfp.SetRow(i, res.TFP)
	a.shift.SetRow(i, res.Shift)
	a.inst.Slice(i*a.cols, (i+1)*a.cols, 0, a.points).(*mat.Dense).Copy(res.InstFreq)
	a.placed[i] = true
	return nil
}

// Fail marks row i as failed: its map entries are NaN and its traces zero.
func (a *Assembler) Fail(i int) {
	if i < 0 || i >= a.rows {
		return
	}
	for j := 0; j < a.cols; j++ {
		a.tfp.Set(i, j, math.NaN())
		a.shift.Set(i, j, math.NaN())
	}
	a.inst.Slice(i*a.cols, (i+1)*a.cols, 0, a.points).(*mat.Dense).Zero()
	a.placed[i] = true
}

// Missing returns the rows that were neither placed nor failed.
func (a *Assembler) Missing() []int {
	var out []int
	for i, ok := range a.placed {
		if !ok {
			out = append(out, i)
		}
	}
	return out
}

// TFP returns the tFP map (rows, cols).
func (a *Assembler) TFP() *mat.Dense { return a.tfp }

// Shift returns the frequency shift map (rows, cols).
func (a *Assembler) Shift() *mat.Dense { return a.shift }

// InstFreq returns the instantaneous frequency matrix (rows*cols, points).
func (a *Assembler) InstFreq() *mat.Dense { return a.inst }

// RowStats returns the mean and standard deviation of the finite entries of
// row i of m. Both are NaN when the row has none.
func RowStats(m mat.Matrix, i int) (mean, std float64) {
	_, c := m.Dims()
	row := make([]float64, c)
	for j := range row {
		row[j] = m.At(i, j)
	}
	return Stats(row)
}

// Stats returns the mean and population standard deviation of the finite
// values in vals.
func Stats(vals []float64) (mean, std float64) {
	finite := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	switch len(finite) {
	case 0:
		return math.NaN(), math.NaN()
	case 1:
		return finite[0], 0
	}
	return stat.PopMeanStdDev(finite, nil)
}

// Assemble builds the tFP and shift maps from complete row results. Every
// row in [0, rows) must be present exactly once.
func Assemble(rows, cols, points int, results []*line.Result) (tfp, shift, inst *mat.Dense, err error) {
	a := New(rows, cols, points)
	seen := make([]bool, rows)
	for _, r := range results {
		if err := a.Place(r); err != nil {
			return nil, nil, nil, err
		}
		if seen[r.Index] {
			return nil, nil, nil, fmt.Errorf("imagemap: row %d placed twice", r.Index)
		}
		seen[r.Index] = true
	}
	if m := a.Missing(); len(m) > 0 {
		return nil, nil, nil, fmt.Errorf("imagemap: %d rows missing, first %d", len(m), m[0])
	}
	return a.TFP(), a.Shift(), a.InstFreq(), nil
}
