// Package game holds the board state and move validation rules. It has no
// knowledge of transports, buses or players; the engine drives it.
package game

import "errors"

// Size is the board side length.
const Size = 3

// Symbol identifies a player mark on the board. The zero value marks an
// empty cell.
type Symbol string

const (
	Empty Symbol = ""
	X     Symbol = "X"
	O     Symbol = "O"
)

// Opponent returns the other playing symbol.
func (s Symbol) Opponent() Symbol {
	if s == X {
		return O
	}
	return X
}

// Move is one requested placement.
type Move struct {
	Player Symbol
	Row    int
	Col    int
}

// Board is the 3x3 grid. Cells hold Empty, X or O.
type Board [Size][Size]Symbol

// Recoverable rule violations; reported to the offending player and retried.
var (
	ErrNotYourTurn  = errors.New("not your turn")
	ErrCellOccupied = errors.New("cell occupied")
	ErrGameOver     = errors.New("game over")
)

// ErrOutOfBounds indicates a protocol or caller bug, not a user mistake.
// It is never retried.
var ErrOutOfBounds = errors.New("move out of bounds")

// lines enumerates the eight winning lines as cell coordinates.
var lines = [8][3][2]int{
	{{0, 0}, {0, 1}, {0, 2}},
	{{1, 0}, {1, 1}, {1, 2}},
	{{2, 0}, {2, 1}, {2, 2}},
	{{0, 0}, {1, 0}, {2, 0}},
	{{0, 1}, {1, 1}, {2, 1}},
	{{0, 2}, {1, 2}, {2, 2}},
	{{0, 0}, {1, 1}, {2, 2}},
	{{2, 0}, {1, 1}, {0, 2}},
}

// Winner returns the symbol completing a line, or Empty when no line is
// complete.
func (b *Board) Winner() Symbol {
	for _, l := range lines {
		first := b[l[0][0]][l[0][1]]
		if first != Empty && first == b[l[1][0]][l[1][1]] && first == b[l[2][0]][l[2][1]] {
			return first
		}
	}
	return Empty
}

// Full reports whether every cell is occupied.
func (b *Board) Full() bool {
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b[r][c] == Empty {
				return false
			}
		}
	}
	return true
}

// Available returns the coordinates of all empty cells in row-major order.
func (b *Board) Available() [][2]int {
	var cells [][2]int
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b[r][c] == Empty {
				cells = append(cells, [2]int{r, c})
			}
		}
	}
	return cells
}

// InBounds reports whether the coordinates address a cell on the grid.
func InBounds(row, col int) bool {
	return row >= 0 && row < Size && col >= 0 && col < Size
}

// Validate checks a move against the current board without applying it.
// ErrOutOfBounds is checked before occupancy so that a malformed request
// never reads the grid.
func (b *Board) Validate(m Move) error {
	if !InBounds(m.Row, m.Col) {
		return ErrOutOfBounds
	}
	if b[m.Row][m.Col] != Empty {
		return ErrCellOccupied
	}
	if b.Winner() != Empty {
		return ErrGameOver
	}
	return nil
}

// Apply validates and places the move.
func (b *Board) Apply(m Move) error {
	if err := b.Validate(m); err != nil {
		return err
	}
	b[m.Row][m.Col] = m.Player
	return nil
}
