package store

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DType identifies the element type of a dataset.
type DType string

const (
	Float64    DType = "float64"
	Complex128 DType = "complex128"
)

// Array is an N-dimensional row-major array. Exactly one of Data or Cmplx is
// populated, according to DType.
type Array struct {
	DType DType
	Shape []int
	Data  []float64
	Cmplx []complex128
}

// NewArray wraps float data with the given shape.
func NewArray(shape []int, data []float64) Array {
	return Array{DType: Float64, Shape: append([]int(nil), shape...), Data: data}
}

// Vector wraps a 1-D float slice.
func Vector(data []float64) Array {
	return NewArray([]int{len(data)}, data)
}

// ComplexVector wraps a 1-D complex slice.
func ComplexVector(data []complex128) Array {
	return Array{DType: Complex128, Shape: []int{len(data)}, Cmplx: data}
}

// FromDense wraps a matrix as a 2-D array. The matrix data is copied.
func FromDense(m mat.Matrix) Array {
	r, c := m.Dims()
	return NewArray([]int{r, c}, mat.DenseCopyOf(m).RawMatrix().Data)
}

// Len returns the number of elements.
func (a Array) Len() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// RowLen returns the number of elements per leading-dimension row.
func (a Array) RowLen() int {
	n := 1
	for _, d := range a.Shape[1:] {
		n *= d
	}
	return n
}

// Rows returns the size of the leading dimension.
func (a Array) Rows() int {
	if len(a.Shape) == 0 {
		return 0
	}
	return a.Shape[0]
}

// Dense returns a 2-D float array as a matrix. 1-D arrays become a single row.
func (a Array) Dense() (*mat.Dense, error) {
	if a.DType != Float64 {
		return nil, fmt.Errorf("store: %s array is not real", a.DType)
	}
	switch len(a.Shape) {
	case 1:
		return mat.NewDense(1, a.Shape[0], a.Data), nil
	case 2:
		return mat.NewDense(a.Shape[0], a.Shape[1], a.Data), nil
	}
	return nil, fmt.Errorf("store: cannot view %d-d array as a matrix", len(a.Shape))
}

func (a Array) validate() error {
	if len(a.Shape) == 0 {
		return fmt.Errorf("store: array has no shape")
	}
	for _, d := range a.Shape {
		if d < 0 {
			return fmt.Errorf("store: negative dimension in shape %v", a.Shape)
		}
	}
	switch a.DType {
	case Float64:
		if len(a.Data) != a.Len() {
			return fmt.Errorf("store: shape %v needs %d values, got %d", a.Shape, a.Len(), len(a.Data))
		}
	case Complex128:
		if len(a.Cmplx) != a.Len() {
			return fmt.Errorf("store: shape %v needs %d values, got %d", a.Shape, a.Len(), len(a.Cmplx))
		}
	default:
		return fmt.Errorf("store: unknown dtype %q", a.DType)
	}
	return nil
}

// width returns the number of float64 words per element.
func (d DType) width() int {
	if d == Complex128 {
		return 2
	}
	return 1
}
