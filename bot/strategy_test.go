package main

import (
	"testing"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/service"
)

// boardView places tanks on a cols x rows board
func boardView(cols, rows int, tanks ...engine.TankState) *service.BoardView {
	cells := make([][]string, rows)
	for y := range cells {
		cells[y] = make([]string, cols)
	}
	for _, t := range tanks {
		cells[t.Position.Y][t.Position.X] = t.ID
	}
	return &service.BoardView{
		MatchID: "m",
		Board:   engine.BoardSnapshot{Cols: cols, Rows: rows, Cells: cells},
		Tanks:   tanks,
	}
}

func tank(id string, x, y, life, actions, reach int) engine.TankState {
	return engine.TankState{ID: id, Position: engine.Position{X: x, Y: y}, Life: life, Actions: actions, Range: reach}
}

func TestStrategy_ShootsWeakestInRange(t *testing.T) {
	view := boardView(5, 5,
		tank("me", 0, 0, 3, 1, 2),
		tank("strong", 2, 2, 3, 0, 2),
		tank("weak", 1, 0, 1, 0, 2),
		tank("far", 4, 4, 1, 0, 2),
	)

	req, ok := NewStrategy("me").Next(view)
	if !ok {
		t.Fatal("Expected an action")
	}
	if req.Kind != engine.KindShoot || *req.Destination != (engine.Position{X: 1, Y: 0}) {
		t.Errorf("Expected shoot at (1,0), got %s %v", req.Kind, req.Destination)
	}
}

func TestStrategy_PrefersRicherTargetOnTie(t *testing.T) {
	view := boardView(5, 5,
		tank("me", 2, 2, 3, 1, 2),
		tank("poor", 0, 0, 2, 0, 2),
		tank("rich", 4, 4, 2, 5, 2),
	)

	req, ok := NewStrategy("me").Next(view)
	if !ok || req.Kind != engine.KindShoot {
		t.Fatalf("Expected shoot, got %v %v", req, ok)
	}
	if *req.Destination != (engine.Position{X: 4, Y: 4}) {
		t.Errorf("Expected to shoot the tank holding more actions, got %s", req.Destination)
	}
}

func TestStrategy_HealsOnLastLife(t *testing.T) {
	view := boardView(6, 6,
		tank("me", 0, 0, 1, 3, 1),
		tank("enemy", 5, 5, 3, 0, 2),
	)

	req, ok := NewStrategy("me").Next(view)
	if !ok {
		t.Fatal("Expected an action")
	}
	if req.Kind != engine.KindHeal || *req.Destination != (engine.Position{X: 0, Y: 0}) {
		t.Errorf("Expected self heal, got %s %v", req.Kind, req.Destination)
	}
}

func TestStrategy_UpgradesWhenOneShort(t *testing.T) {
	view := boardView(6, 6,
		tank("me", 0, 0, 3, 3, 2),
		tank("enemy", 3, 0, 3, 0, 2),
	)

	req, ok := NewStrategy("me").Next(view)
	if !ok || req.Kind != engine.KindUpgrade {
		t.Errorf("Expected upgrade, got %v %v", req, ok)
	}
}

func TestStrategy_MovesTowardNearestEnemy(t *testing.T) {
	view := boardView(6, 6,
		tank("me", 0, 0, 3, 1, 1),
		tank("enemy", 4, 4, 3, 0, 2),
	)

	req, ok := NewStrategy("me").Next(view)
	if !ok {
		t.Fatal("Expected an action")
	}
	if req.Kind != engine.KindMove || *req.Destination != (engine.Position{X: 1, Y: 1}) {
		t.Errorf("Expected move to (1,1), got %s %v", req.Kind, req.Destination)
	}
}

func TestStrategy_GoesForCloserHeart(t *testing.T) {
	view := boardView(7, 7,
		tank("me", 2, 2, 3, 1, 1),
		tank("enemy", 6, 6, 3, 0, 2),
	)
	heart := engine.Position{X: 0, Y: 2}
	view.Heart = &heart

	req, ok := NewStrategy("me").Next(view)
	if !ok {
		t.Fatal("Expected an action")
	}
	if req.Kind != engine.KindMove || *req.Destination != (engine.Position{X: 1, Y: 2}) {
		t.Errorf("Expected move to (1,2), got %s %v", req.Kind, req.Destination)
	}
}

func TestStrategy_Waits(t *testing.T) {
	tests := []struct {
		name string
		view *service.BoardView
	}{
		{"no actions", boardView(5, 5, tank("me", 0, 0, 3, 0, 2), tank("e", 1, 1, 3, 0, 2))},
		{"defeated", boardView(5, 5, tank("me", 0, 0, 0, 2, 2), tank("e", 1, 1, 3, 0, 2))},
		{"no enemies", boardView(5, 5, tank("me", 0, 0, 3, 2, 2), tank("e", 1, 1, 0, 0, 2))},
		{"not on board", boardView(5, 5, tank("e", 1, 1, 3, 0, 2))},
		{"blocked diagonal", boardView(5, 5, tank("me", 0, 0, 3, 1, 1), tank("wall", 1, 1, 0, 0, 1), tank("e", 3, 3, 3, 0, 1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if req, ok := NewStrategy("me").Next(tt.view); ok {
				t.Errorf("Expected to wait, got %s %v", req.Kind, req.Destination)
			}
		})
	}
}

func TestWon(t *testing.T) {
	won := boardView(3, 3, tank("me", 0, 0, 1, 0, 2), tank("e", 2, 2, 0, 0, 2))
	if !Won(won, "me") {
		t.Error("Expected me to have won")
	}

	alone := boardView(3, 3, tank("me", 0, 0, 3, 0, 2))
	if Won(alone, "me") {
		t.Error("A lone tank has not won anything yet")
	}

	ongoing := boardView(3, 3, tank("me", 0, 0, 3, 0, 2), tank("e", 2, 2, 1, 0, 2))
	if Won(ongoing, "me") {
		t.Error("Match is still ongoing")
	}
}

func TestDistance(t *testing.T) {
	a := engine.Position{X: 1, Y: 1}
	if d := distance(a, engine.Position{X: 4, Y: 2}); d != 3 {
		t.Errorf("Expected 3, got %d", d)
	}
	if d := distance(a, a); d != 0 {
		t.Errorf("Expected 0, got %d", d)
	}
}
