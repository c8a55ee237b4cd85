// Package grid provides integer cell coordinates for row-major scan maps.
package grid

import "sort"

// Cell addresses one pixel of a scan map.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// NewCell creates a new Cell.
func NewCell(row, col int) Cell {
	return Cell{Row: row, Col: col}
}

// Index returns the row-major linear index of the cell in a map with cols columns.
func (c Cell) Index(cols int) int {
	return c.Row*cols + c.Col
}

// Size is the extent of a scan map.
type Size struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// Contains returns true if the cell lies inside the map.
func (s Size) Contains(c Cell) bool {
	return c.Row >= 0 && c.Row < s.Rows && c.Col >= 0 && c.Col < s.Cols
}

// Clamp returns the nearest cell inside the map (edge replication).
func (s Size) Clamp(c Cell) Cell {
	return Cell{Row: clamp(c.Row, 0, s.Rows-1), Col: clamp(c.Col, 0, s.Cols-1)}
}

// Len returns the number of cells in the map.
func (s Size) Len() int {
	return s.Rows * s.Cols
}

// Neighbors returns the 8-neighbourhood of c with edge replication, so border
// cells repeat their nearest in-map neighbour. The centre cell is excluded
// unless replication maps an out-of-range offset back onto it.
func (s Size) Neighbors(c Cell) [8]Cell {
	var out [8]Cell
	n := 0
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			out[n] = s.Clamp(Cell{Row: c.Row + dr, Col: c.Col + dc})
			n++
		}
	}
	return out
}

// SortCells orders cells row-major in place.
func SortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Row != cells[j].Row {
			return cells[i].Row < cells[j].Row
		}
		return cells[i].Col < cells[j].Col
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
