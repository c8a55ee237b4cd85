package badpixel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"trefm-analyzer/pkg/grid"
)

func plane(rows, cols int) *mat.Dense {
	m := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, float64(2*i+3*j))
		}
	}
	return m
}

func isBorder(c grid.Cell, rows, cols int) bool {
	return c.Row == 0 || c.Col == 0 || c.Row == rows-1 || c.Col == cols-1
}

func TestCorrectReplacesSpikes(t *testing.T) {
	m := plane(10, 10)
	m.Set(4, 4, 120)
	m.Set(0, 0, -50)
	m.Set(9, 5, math.NaN())
	m.Set(6, 2, math.Inf(-1))

	fixed, mask := Correct(m, DefaultThreshold)

	assert.Equal(t, 20.0, fixed.At(4, 4))
	assert.Equal(t, 18.0, fixed.At(6, 2))
	assert.False(t, math.IsNaN(fixed.At(9, 5)))
	assert.InDelta(t, 0, fixed.At(0, 0), 5)

	assert.Contains(t, mask, grid.NewCell(0, 0))
	assert.Contains(t, mask, grid.NewCell(4, 4))
	assert.Contains(t, mask, grid.NewCell(9, 5))
	assert.Contains(t, mask, grid.NewCell(6, 2))

	inMask := make(map[grid.Cell]bool)
	for _, c := range mask {
		inMask[c] = true
	}
	orig := plane(10, 10)
	for i := 1; i < 9; i++ {
		for j := 1; j < 9; j++ {
			c := grid.NewCell(i, j)
			if inMask[c] {
				continue
			}
			assert.Equal(t, orig.At(i, j), fixed.At(i, j), "cell %v", c)
		}
	}
	for _, c := range mask {
		spike := c == grid.NewCell(4, 4) || c == grid.NewCell(6, 2)
		assert.True(t, spike || isBorder(c, 10, 10), "unexpected cell %v", c)
	}

	// Input is untouched.
	assert.Equal(t, 120.0, m.At(4, 4))
}

func TestCorrectMaskIsSorted(t *testing.T) {
	m := plane(8, 8)
	m.Set(5, 1, 500)
	m.Set(2, 6, -500)
	m.Set(2, 3, 300)

	_, mask := Correct(m, DefaultThreshold)
	require.Len(t, mask, 3)
	assert.Equal(t, []grid.Cell{{Row: 2, Col: 3}, {Row: 2, Col: 6}, {Row: 5, Col: 1}}, mask)
}

func TestCorrectIsIdempotent(t *testing.T) {
	m := mat.NewDense(7, 12, nil)
	for i := 0; i < 7; i++ {
		for j := 0; j < 12; j++ {
			// Deterministic texture.
			m.Set(i, j, math.Sin(float64(i)*0.3)+math.Cos(float64(j)*0.2)+0.01*math.Sin(float64(7*i+13*j)))
		}
	}
	m.Set(3, 5, 10)
	m.Set(0, 11, -10)
	m.Set(6, 0, math.NaN())

	for _, threshold := range []float64{1, 2, 3} {
		once, _ := Correct(m, threshold)
		twice, mask := Correct(once, threshold)
		assert.True(t, mat.Equal(once, twice), "threshold %g", threshold)
		assert.Empty(t, mask, "threshold %g", threshold)
	}
}

func TestCorrectIsDeterministic(t *testing.T) {
	m := plane(6, 9)
	m.Set(2, 2, 99)
	m.Set(3, 7, -99)

	a, ma := Correct(m, 2)
	b, mb := Correct(m, 2)
	assert.True(t, mat.Equal(a, b))
	assert.Equal(t, ma, mb)
}

func TestCorrectCleanPlaneInterior(t *testing.T) {
	m := plane(5, 5)
	fixed, mask := Correct(m, DefaultThreshold)
	for _, c := range mask {
		assert.True(t, isBorder(c, 5, 5), "interior cell %v flagged", c)
	}
	for i := 1; i < 4; i++ {
		for j := 1; j < 4; j++ {
			assert.Equal(t, m.At(i, j), fixed.At(i, j))
		}
	}
}

func TestCorrectUnfixableNaN(t *testing.T) {
	m := mat.NewDense(1, 1, []float64{math.NaN()})
	fixed, mask := Correct(m, 2)
	assert.True(t, math.IsNaN(fixed.At(0, 0)))
	assert.Empty(t, mask)

	c := mat.NewDense(2, 2, []float64{4, 4, 4, 4})
	fixed, mask = Correct(c, 2)
	assert.True(t, mat.Equal(c, fixed))
	assert.Empty(t, mask)
}
