package engine

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func TestGrid_PlaceAndOccupant(t *testing.T) {
	g := NewGrid(4, 3)

	if g.Cols() != 4 || g.Rows() != 3 {
		t.Fatalf("Expected 4x3 grid, got %dx%d", g.Cols(), g.Rows())
	}

	if err := g.Place("a", Position{X: 3, Y: 2}); err != nil {
		t.Fatalf("Failed to place: %v", err)
	}
	if id, ok := g.Occupant(Position{X: 3, Y: 2}); !ok || id != "a" {
		t.Errorf("Expected occupant a, got %q (%v)", id, ok)
	}

	if err := g.Place("b", Position{X: 3, Y: 2}); !errors.Is(err, ErrCellOccupied) {
		t.Errorf("Expected ErrCellOccupied, got %v", err)
	}
	if err := g.Place("b", Position{X: 4, Y: 0}); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Expected ErrOutOfBounds, got %v", err)
	}

	if _, ok := g.Occupant(Position{X: -1, Y: 0}); ok {
		t.Error("Out of bounds cell should have no occupant")
	}

	g.Clear(Position{X: 3, Y: 2})
	if g.Occupied(Position{X: 3, Y: 2}) {
		t.Error("Cell should be empty after Clear")
	}
	g.Clear(Position{X: 10, Y: 10}) // ignored
}

func TestGrid_MoveOccupant(t *testing.T) {
	g := NewGrid(3, 3)
	_ = g.Place("a", Position{X: 0, Y: 0})
	_ = g.Place("b", Position{X: 1, Y: 1})

	if err := g.MoveOccupant(Position{X: 0, Y: 0}, Position{X: 1, Y: 1}); !errors.Is(err, ErrCellOccupied) {
		t.Errorf("Expected ErrCellOccupied, got %v", err)
	}
	if err := g.MoveOccupant(Position{X: 2, Y: 2}, Position{X: 2, Y: 1}); !errors.Is(err, ErrCellEmpty) {
		t.Errorf("Expected ErrCellEmpty, got %v", err)
	}
	if err := g.MoveOccupant(Position{X: 0, Y: 0}, Position{X: 0, Y: 3}); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Expected ErrOutOfBounds, got %v", err)
	}

	if err := g.MoveOccupant(Position{X: 0, Y: 0}, Position{X: 0, Y: 1}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if g.Occupied(Position{X: 0, Y: 0}) {
		t.Error("Source cell should be empty")
	}
	if id, _ := g.Occupant(Position{X: 0, Y: 1}); id != "a" {
		t.Errorf("Expected a at (0,1), got %q", id)
	}
}

func TestGrid_WithinRange(t *testing.T) {
	g := NewGrid(10, 10)
	origin := Position{X: 5, Y: 5}

	tests := []struct {
		target Position
		radius int
		want   bool
	}{
		{Position{X: 5, Y: 5}, 0, true},
		{Position{X: 6, Y: 6}, 1, true},
		{Position{X: 7, Y: 6}, 1, false},
		{Position{X: 7, Y: 3}, 2, true},
		{Position{X: 2, Y: 5}, 2, false},
	}

	for _, tt := range tests {
		if got := g.WithinRange(origin, tt.target, tt.radius); got != tt.want {
			t.Errorf("WithinRange(%s, %s, %d) = %v, want %v", origin, tt.target, tt.radius, got, tt.want)
		}
	}
}

func TestGrid_RandomFreeCell(t *testing.T) {
	g := NewGrid(2, 2)
	rng := rand.New(rand.NewPCG(7, 7))

	seen := make(map[Position]bool)
	for i := 0; i < 4; i++ {
		p, err := g.RandomFreeCell(rng)
		if err != nil {
			t.Fatalf("Unexpected error on cell %d: %v", i, err)
		}
		if seen[p] {
			t.Fatalf("Cell %s returned twice", p)
		}
		seen[p] = true
		if err := g.Place("t", p); err != nil {
			t.Fatalf("Failed to place on free cell: %v", err)
		}
	}

	if _, err := g.RandomFreeCell(rng); !errors.Is(err, ErrBoardFull) {
		t.Errorf("Expected ErrBoardFull, got %v", err)
	}
}

func TestGrid_SnapshotIsCopy(t *testing.T) {
	g := NewGrid(3, 2)
	_ = g.Place("a", Position{X: 2, Y: 1})

	snap := g.Snapshot()
	if snap.Cols != 3 || snap.Rows != 2 || snap.Cells[1][2] != "a" {
		t.Fatalf("Unexpected snapshot: %+v", snap)
	}

	snap.Cells[1][2] = "mutated"
	if id, _ := g.Occupant(Position{X: 2, Y: 1}); id != "a" {
		t.Error("Mutating snapshot changed the grid")
	}

	restored, err := GridFromSnapshot(g.Snapshot())
	if err != nil {
		t.Fatalf("Failed to restore: %v", err)
	}
	if id, _ := restored.Occupant(Position{X: 2, Y: 1}); id != "a" {
		t.Errorf("Restored grid lost occupant, got %q", id)
	}
}

func TestGridFromSnapshot_Invalid(t *testing.T) {
	tests := []struct {
		name string
		snap BoardSnapshot
	}{
		{"zero size", BoardSnapshot{}},
		{"row count mismatch", BoardSnapshot{Cols: 2, Rows: 2, Cells: [][]string{{"", ""}}}},
		{"col count mismatch", BoardSnapshot{Cols: 2, Rows: 1, Cells: [][]string{{""}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := GridFromSnapshot(tt.snap); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		v, size, want int
	}{
		{-5, 5, 0},
		{0, 5, 0},
		{4, 5, 4},
		{5, 5, 4},
		{100, 5, 4},
	}

	for _, tt := range tests {
		if got := clamp(tt.v, tt.size); got != tt.want {
			t.Errorf("clamp(%d, %d) = %d, want %d", tt.v, tt.size, got, tt.want)
		}
	}
}
