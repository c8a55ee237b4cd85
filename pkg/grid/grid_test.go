package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeighborsInterior(t *testing.T) {
	s := Size{Rows: 3, Cols: 3}
	got := s.Neighbors(NewCell(1, 1))
	assert.NotContains(t, got[:], NewCell(1, 1))
	assert.ElementsMatch(t, []Cell{
		{0, 0}, {0, 1}, {0, 2},
		{1, 0}, {1, 2},
		{2, 0}, {2, 1}, {2, 2},
	}, got[:])
}

func TestNeighborsReplicateEdges(t *testing.T) {
	s := Size{Rows: 3, Cols: 4}
	got := s.Neighbors(NewCell(0, 0))
	assert.ElementsMatch(t, []Cell{
		{0, 0}, {0, 0}, {0, 1},
		{0, 0}, {0, 1},
		{1, 0}, {1, 0}, {1, 1},
	}, got[:])
}

func TestSizeHelpers(t *testing.T) {
	s := Size{Rows: 2, Cols: 5}
	assert.Equal(t, 10, s.Len())
	assert.True(t, s.Contains(NewCell(1, 4)))
	assert.False(t, s.Contains(NewCell(2, 0)))
	assert.False(t, s.Contains(NewCell(0, -1)))
	assert.Equal(t, NewCell(1, 0), s.Clamp(NewCell(7, -3)))
	assert.Equal(t, 9, NewCell(1, 4).Index(s.Cols))
}

func TestSortCells(t *testing.T) {
	cells := []Cell{{2, 1}, {0, 5}, {2, 0}, {0, 1}}
	SortCells(cells)
	assert.Equal(t, []Cell{{0, 1}, {0, 5}, {2, 0}, {2, 1}}, cells)
}
