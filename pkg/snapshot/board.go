package snapshot

import (
	"github.com/pacroyale/viewer/pkg/felt"
)

// DefaultGridSize is the side of the square board
const DefaultGridSize = 23

// Cell is the type of one board square
type Cell uint8

const (
	CellEmpty Cell = iota
	CellWall
	CellPellet
	CellPowerPellet
)

func (c Cell) String() string {
	switch c {
	case CellWall:
		return "wall"
	case CellPellet:
		return "pellet"
	case CellPowerPellet:
		return "power_pellet"
	default:
		return "empty"
	}
}

// cellFromScalar maps a raw scalar to a Cell, failing closed to Empty
func cellFromScalar(s string) Cell {
	v, err := felt.Int(s)
	if err != nil || v < 0 || v > int64(CellPowerPellet) {
		return CellEmpty
	}
	return Cell(v)
}

// Board is one decoded map snapshot. It is never mutated after decoding.
type Board struct {
	size  int
	cells []Cell
}

// NewBoard builds a board of side size from cells in row-major order.
// Missing cells read as Empty and extra cells are ignored.
func NewBoard(size int, cells []Cell) Board {
	n := size * size
	if len(cells) > n {
		cells = cells[:n]
	}
	cp := make([]Cell, len(cells))
	copy(cp, cells)
	return Board{size: size, cells: cp}
}

// Size returns the side of the board
func (b Board) Size() int { return b.size }

// Len returns the number of cells on the board (Size²)
func (b Board) Len() int { return b.size * b.size }

// Index returns the cell index of (x, y), or -1 when outside the board
func (b Board) Index(x, y int) int {
	if x < 0 || y < 0 || x >= b.size || y >= b.size {
		return -1
	}
	return y*b.size + x
}

// CellAt returns the cell at index, Empty when out of range
func (b Board) CellAt(index int) Cell {
	if index < 0 || index >= len(b.cells) {
		return CellEmpty
	}
	return b.cells[index]
}

// At returns the cell at (x, y), Empty when out of range
func (b Board) At(x, y int) Cell {
	return b.CellAt(b.Index(x, y))
}

// Cells returns a copy of the board padded to Size² cells
func (b Board) Cells() []Cell {
	out := make([]Cell, b.Len())
	copy(out, b.cells)
	return out
}

// Count returns how many cells hold c
func (b Board) Count(c Cell) int {
	n := 0
	for i := 0; i < b.Len(); i++ {
		if b.CellAt(i) == c {
			n++
		}
	}
	return n
}
