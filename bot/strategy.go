package main

import (
	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/service"
)

// Strategy picks one tank's next action from a board view. Priorities:
//  1. shoot the weakest enemy in range
//  2. heal itself when down to its last life
//  3. upgrade when one more range point would reach the nearest enemy
//  4. step toward the heart if it is no further than the nearest enemy
//  5. step toward the nearest enemy
type Strategy struct {
	tankID string
}

// NewStrategy creates a strategy for tankID
func NewStrategy(tankID string) *Strategy {
	return &Strategy{tankID: tankID}
}

// Next returns the action to take, or false when the tank should wait
func (s *Strategy) Next(view *service.BoardView) (engine.ActionRequest, bool) {
	me, ok := findTank(view.Tanks, s.tankID)
	if !ok || me.Life <= 0 || me.Actions <= 0 {
		return engine.ActionRequest{}, false
	}

	grid, err := engine.GridFromSnapshot(view.Board)
	if err != nil {
		return engine.ActionRequest{}, false
	}

	enemies := livingEnemies(view.Tanks, s.tankID)
	if len(enemies) == 0 {
		return engine.ActionRequest{}, false
	}

	if target, ok := weakestInRange(grid, me, enemies); ok {
		return request(engine.KindShoot, target.Position), true
	}

	if me.Life == 1 && me.Actions >= engine.HealCost {
		return request(engine.KindHeal, me.Position), true
	}

	nearest := nearestEnemy(me, enemies)
	if me.Actions >= engine.UpgradeCost && distance(me.Position, nearest.Position) == me.Range+1 {
		return engine.ActionRequest{Kind: engine.KindUpgrade}, true
	}

	goal := nearest.Position
	if view.Heart != nil && distance(me.Position, *view.Heart) <= distance(me.Position, nearest.Position) {
		goal = *view.Heart
	}

	step, ok := stepToward(grid, me.Position, goal)
	if !ok {
		return engine.ActionRequest{}, false
	}
	return request(engine.KindMove, step), true
}

// Won reports whether tankID is the last tank standing
func Won(view *service.BoardView, tankID string) bool {
	me, ok := findTank(view.Tanks, tankID)
	return ok && me.Life > 0 && len(livingEnemies(view.Tanks, tankID)) == 0 && len(view.Tanks) > 1
}

func request(kind engine.ActionKind, at engine.Position) engine.ActionRequest {
	return engine.ActionRequest{Kind: kind, Destination: &at}
}

func findTank(tanks []engine.TankState, id string) (engine.TankState, bool) {
	for _, t := range tanks {
		if t.ID == id {
			return t, true
		}
	}
	return engine.TankState{}, false
}

func livingEnemies(tanks []engine.TankState, id string) []engine.TankState {
	var enemies []engine.TankState
	for _, t := range tanks {
		if t.ID != id && t.Life > 0 {
			enemies = append(enemies, t)
		}
	}
	return enemies
}

// weakestInRange prefers the lowest life, then the most actions since the
// killer inherits them
func weakestInRange(grid *engine.Grid, me engine.TankState, enemies []engine.TankState) (engine.TankState, bool) {
	var best engine.TankState
	found := false
	for _, e := range enemies {
		if !grid.WithinRange(me.Position, e.Position, me.Range) {
			continue
		}
		if !found || e.Life < best.Life || (e.Life == best.Life && e.Actions > best.Actions) {
			best = e
			found = true
		}
	}
	return best, found
}

func nearestEnemy(me engine.TankState, enemies []engine.TankState) engine.TankState {
	nearest := enemies[0]
	for _, e := range enemies[1:] {
		if distance(me.Position, e.Position) < distance(me.Position, nearest.Position) {
			nearest = e
		}
	}
	return nearest
}

// stepToward picks the free neighbouring cell that gets closest to goal. It
// only moves when that strictly reduces the distance.
func stepToward(grid *engine.Grid, from, goal engine.Position) (engine.Position, bool) {
	best := from
	bestDist := distance(from, goal)
	bestTaxi := taxicab(from, goal)

	for dy := -engine.MoveRadius; dy <= engine.MoveRadius; dy++ {
		for dx := -engine.MoveRadius; dx <= engine.MoveRadius; dx++ {
			p := engine.Position{X: from.X + dx, Y: from.Y + dy}
			if p == from || !grid.InBounds(p) || grid.Occupied(p) {
				continue
			}
			d, taxi := distance(p, goal), taxicab(p, goal)
			if d < bestDist || (d == bestDist && taxi < bestTaxi && best != from) {
				best, bestDist, bestTaxi = p, d, taxi
			}
		}
	}

	return best, best != from
}

// distance matches the board's range metric: the larger axis difference
func distance(a, b engine.Position) int {
	return max(abs(a.X-b.X), abs(a.Y-b.Y))
}

func taxicab(a, b engine.Position) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
