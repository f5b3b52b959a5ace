package engine

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var (
	ErrBoardFull    = errors.New("no free cell left on board")
	ErrOutOfBounds  = errors.New("position out of bounds")
	ErrCellOccupied = errors.New("cell is occupied")
	ErrCellEmpty    = errors.New("cell is empty")
)

// Board stores which tank occupies which cell. It knows nothing about tank
// stats; occupants are referenced by tank id.
type Board interface {
	Cols() int
	Rows() int

	RandomFreeCell(rng *rand.Rand) (Position, error)
	Place(id string, p Position) error
	Clear(p Position)
	MoveOccupant(from, to Position) error

	Occupant(p Position) (string, bool)
	InBounds(p Position) bool
	Occupied(p Position) bool
	WithinRange(origin, target Position, radius int) bool

	Snapshot() BoardSnapshot
}

// BoardSnapshot is the serialized board: Cells[y][x] holds the occupant id or ""
type BoardSnapshot struct {
	Cols  int        `json:"cols"`
	Rows  int        `json:"rows"`
	Cells [][]string `json:"cells"`
}

// Grid is the in-memory Board implementation
type Grid struct {
	cols  int
	rows  int
	cells [][]string
}

// NewGrid creates an empty cols x rows board
func NewGrid(cols, rows int) *Grid {
	cells := make([][]string, rows)
	for y := range cells {
		cells[y] = make([]string, cols)
	}
	return &Grid{cols: cols, rows: rows, cells: cells}
}

// GridFromSnapshot rebuilds a grid from its serialized form
func GridFromSnapshot(s BoardSnapshot) (*Grid, error) {
	if s.Cols <= 0 || s.Rows <= 0 {
		return nil, fmt.Errorf("invalid board dimensions %dx%d", s.Cols, s.Rows)
	}
	if len(s.Cells) != s.Rows {
		return nil, fmt.Errorf("board snapshot has %d rows, expected %d", len(s.Cells), s.Rows)
	}
	g := NewGrid(s.Cols, s.Rows)
	for y, row := range s.Cells {
		if len(row) != s.Cols {
			return nil, fmt.Errorf("board snapshot row %d has %d cells, expected %d", y, len(row), s.Cols)
		}
		copy(g.cells[y], row)
	}
	return g, nil
}

func (g *Grid) Cols() int { return g.cols }
func (g *Grid) Rows() int { return g.rows }

// RandomFreeCell picks uniformly among the unoccupied cells
func (g *Grid) RandomFreeCell(rng *rand.Rand) (Position, error) {
	var free []Position
	for y, row := range g.cells {
		for x, id := range row {
			if id == "" {
				free = append(free, Position{X: x, Y: y})
			}
		}
	}
	if len(free) == 0 {
		return Position{}, ErrBoardFull
	}
	return free[rng.IntN(len(free))], nil
}

// Place puts a tank id on an empty cell
func (g *Grid) Place(id string, p Position) error {
	if !g.InBounds(p) {
		return fmt.Errorf("%w: %s", ErrOutOfBounds, p)
	}
	if g.cells[p.Y][p.X] != "" {
		return fmt.Errorf("%w: %s", ErrCellOccupied, p)
	}
	g.cells[p.Y][p.X] = id
	return nil
}

// Clear empties a cell; out of bounds positions are ignored
func (g *Grid) Clear(p Position) {
	if g.InBounds(p) {
		g.cells[p.Y][p.X] = ""
	}
}

// MoveOccupant moves whatever occupies from onto the empty cell to
func (g *Grid) MoveOccupant(from, to Position) error {
	if !g.InBounds(from) || !g.InBounds(to) {
		return fmt.Errorf("%w: %s -> %s", ErrOutOfBounds, from, to)
	}
	id := g.cells[from.Y][from.X]
	if id == "" {
		return fmt.Errorf("%w: %s", ErrCellEmpty, from)
	}
	if g.cells[to.Y][to.X] != "" {
		return fmt.Errorf("%w: %s", ErrCellOccupied, to)
	}
	g.cells[to.Y][to.X] = id
	g.cells[from.Y][from.X] = ""
	return nil
}

// Occupant returns the id of the tank on p
func (g *Grid) Occupant(p Position) (string, bool) {
	if !g.InBounds(p) {
		return "", false
	}
	id := g.cells[p.Y][p.X]
	return id, id != ""
}

func (g *Grid) InBounds(p Position) bool {
	return p.X >= 0 && p.X < g.cols && p.Y >= 0 && p.Y < g.rows
}

func (g *Grid) Occupied(p Position) bool {
	_, ok := g.Occupant(p)
	return ok
}

// WithinRange uses Chebyshev distance: diagonal steps count as one
func (g *Grid) WithinRange(origin, target Position, radius int) bool {
	return ChebyshevDistance(origin, target) <= radius
}

// Snapshot copies the occupancy grid
func (g *Grid) Snapshot() BoardSnapshot {
	cells := make([][]string, g.rows)
	for y, row := range g.cells {
		cells[y] = append([]string(nil), row...)
	}
	return BoardSnapshot{Cols: g.cols, Rows: g.rows, Cells: cells}
}

// ChebyshevDistance is the number of king moves between two positions
func ChebyshevDistance(from, to Position) int {
	dx := abs(from.X - to.X)
	dy := abs(from.Y - to.Y)
	if dx > dy {
		return dx
	}
	return dy
}

// abs returns the absolute value of x
func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// clamp limits v to [0, size-1]
func clamp(v, size int) int {
	return max(0, min(size-1, v))
}
