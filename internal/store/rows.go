package store

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// RawRows reads scan rows from a raw dataset of shape
// (num_rows*num_cols, pnts_per_pixel), one pixel signal per dataset row.
type RawRows struct {
	file *File
	path string
	rows int
	cols int
	ppp  int
}

// NewRawRows checks the dataset at p against the scan geometry.
func NewRawRows(f *File, p string, rows, cols int) (*RawRows, error) {
	info, err := f.Info(p)
	if err != nil {
		return nil, err
	}
	if info.Kind != KindDataset || info.DType != Float64 || len(info.Shape) != 2 {
		return nil, fmt.Errorf("store: %s is not a 2-d float dataset", info.Path)
	}
	if rows <= 0 || cols <= 0 || info.Shape[1] == 0 {
		return nil, fmt.Errorf("store: %s cannot hold a %dx%d scan", info.Path, rows, cols)
	}
	if info.Shape[0] != rows*cols {
		return nil, fmt.Errorf("store: %s has %d signals, scan is %dx%d", info.Path, info.Shape[0], rows, cols)
	}
	return &RawRows{file: f, path: info.Path, rows: rows, cols: cols, ppp: info.Shape[1]}, nil
}

// Path returns the dataset path.
func (r *RawRows) Path() string {
	return r.path
}

// Len returns the number of scan rows.
func (r *RawRows) Len() int {
	return r.rows
}

// PointsPerPixel returns the raw signal length.
func (r *RawRows) PointsPerPixel() int {
	return r.ppp
}

// Row returns scan row i as a (cols, pnts_per_pixel) matrix.
func (r *RawRows) Row(ctx context.Context, i int) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i < 0 || i >= r.rows {
		return nil, fmt.Errorf("store: row %d out of range [0, %d)", i, r.rows)
	}
	a, err := r.file.ReadRows(r.path, i*r.cols, r.cols)
	if err != nil {
		return nil, err
	}
	return mat.NewDense(r.cols, r.ppp, a.Data), nil
}
