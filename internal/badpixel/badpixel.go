// Package badpixel finds and replaces statistical outliers in scan maps.
package badpixel

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"trefm-analyzer/pkg/grid"
)

// DefaultThreshold is the outlier threshold in robust standard deviations.
const DefaultThreshold = 2

// madScale converts a median absolute deviation to a normal standard deviation.
const madScale = 1.4826

// maxPasses bounds the correction loop.
const maxPasses = 64

// Correct returns a copy of m with outliers replaced, and the cells that were
// replaced in row-major order.
//
// A cell is an outlier when it is not finite or when it differs from the
// median of its 8-neighbourhood by more than threshold times the
// neighbourhood's MAD-derived standard deviation. Border cells use edge
// replication. Outliers are replaced by the median of their neighbours that
// are not outliers themselves. Passes repeat until a pass changes nothing,
// so correcting the result again leaves it unchanged.
func Correct(m mat.Matrix, threshold float64) (*mat.Dense, []grid.Cell) {
	r, c := m.Dims()
	size := grid.Size{Rows: r, Cols: c}
	cur := mat.DenseCopyOf(m)
	next := mat.DenseCopyOf(m)
	flags := make([]bool, size.Len())
	replaced := make(map[grid.Cell]bool)
	vals := make([]float64, 0, 8)

	for pass := 0; pass < maxPasses; pass++ {
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				cell := grid.NewCell(i, j)
				flags[cell.Index(c)] = isOutlier(cur, size, cell, threshold, vals[:0])
			}
		}

		changed := false
		next.Copy(cur)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				cell := grid.NewCell(i, j)
				if !flags[cell.Index(c)] {
					continue
				}
				vals = vals[:0]
				for _, n := range size.Neighbors(cell) {
					if n == cell || flags[n.Index(c)] {
						continue
					}
					if v := cur.At(n.Row, n.Col); finite(v) {
						vals = append(vals, v)
					}
				}
				if len(vals) == 0 {
					continue
				}
				v := median(vals)
				if v != cur.At(i, j) {
					next.Set(i, j, v)
					replaced[cell] = true
					changed = true
				}
			}
		}
		cur, next = next, cur
		if !changed {
			break
		}
	}

	mask := make([]grid.Cell, 0, len(replaced))
	for cell := range replaced {
		mask = append(mask, cell)
	}
	grid.SortCells(mask)
	return cur, mask
}

func isOutlier(m *mat.Dense, size grid.Size, cell grid.Cell, threshold float64, vals []float64) bool {
	v := m.At(cell.Row, cell.Col)
	if !finite(v) {
		return true
	}
	for _, n := range size.Neighbors(cell) {
		if nv := m.At(n.Row, n.Col); finite(nv) {
			vals = append(vals, nv)
		}
	}
	if len(vals) < 2 {
		return false
	}
	med := median(vals)
	dev := make([]float64, len(vals))
	for i, x := range vals {
		dev[i] = math.Abs(x - med)
	}
	sigma := madScale * median(dev)
	d := math.Abs(v - med)
	return d > threshold*sigma && d > 1e-12*math.Max(1, math.Abs(med))
}

// median sorts vals in place and returns the middle value, averaging the two
// middle values for even lengths.
func median(vals []float64) float64 {
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
