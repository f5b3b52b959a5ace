// Package engine provides the core rules of Tank Tactics.
//
// The engine package implements:
//   - The action resolver: entry gate, destination clamping and the
//     validate-and-commit logic for MOVE, SHOOT, GIVE_ACTION, UPGRADE and HEAL
//   - Tank state and its action point budget
//   - The board (cell occupancy, bounds and Chebyshev range queries)
//   - The match context that owns board, tanks, heart pickup and audit log
//   - Rules validation and match snapshots for persistence
//
// Core Types:
//
// Match is the unit of serialization: every operation on a match takes its
// lock, so two actions in the same match never interleave. Tanks are
// addressed by id and never reference their match. Action is a closed sum
// type (Move, Shoot, GiveAction, Upgrade, Heal); ActionRequest is its wire form.
//
// Usage:
//
//	match, err := engine.NewMatch("m1", engine.DefaultRules())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	tank, err := match.CreateTank("alice", "Alice", "")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	record, ok := match.Resolve(tank.ID, engine.Move{To: engine.Position{X: 3, Y: 4}})
//	if !ok {
//		// rejected: nothing changed and nothing was recorded
//	}
//
// Game Rules:
//
// Tanks start with 3 life, range 2 and no action points. MOVE, SHOOT and
// GIVE_ACTION cost one point, UPGRADE and HEAL cost three. Shooting a tank
// down to zero life transfers its remaining action points to the shooter.
// Defeated tanks stay on the board and can no longer act.
package engine
