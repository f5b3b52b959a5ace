package engine

import (
	"fmt"
	"strings"
)

// ActionKind labels a resolvable action in requests, results and the audit log
type ActionKind string

const (
	KindMove       ActionKind = "move"
	KindShoot      ActionKind = "shoot"
	KindGiveAction ActionKind = "give-action"
	KindUpgrade    ActionKind = "upgrade"
	KindHeal       ActionKind = "heal"

	// Action costs
	MoveCost       = 1
	ShootCost      = 1
	GiveActionCost = 1
	UpgradeCost    = 3
	HealCost       = 3

	// MoveRadius is the reach of a single MOVE, independent of the tank's range
	MoveRadius = 1

	// Tank defaults
	DefaultLife    = 3
	DefaultRange   = 2
	DefaultActions = 0

	// Validation constants
	DefaultCols  = 20
	DefaultRows  = 20
	MinBoardSize = 2
	MaxBoardSize = 100
)

// Position represents x,y coordinates on the board
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// String renders the position as (x,y)
func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// ParseActionKind accepts the canonical labels as well as the upper-case
// and underscore spellings clients tend to send (MOVE, GIVE_ACTION).
func ParseActionKind(s string) (ActionKind, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	switch ActionKind(normalized) {
	case KindMove, KindShoot, KindGiveAction, KindUpgrade, KindHeal:
		return ActionKind(normalized), nil
	case "giveaction":
		return KindGiveAction, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownActionKind, s)
}

// Cost returns the action point cost of the kind
func (k ActionKind) Cost() int {
	switch k {
	case KindUpgrade:
		return UpgradeCost
	case KindHeal:
		return HealCost
	case KindMove:
		return MoveCost
	case KindShoot:
		return ShootCost
	case KindGiveAction:
		return GiveActionCost
	}
	return 0
}

// Targeted reports whether the kind carries a destination cell
func (k ActionKind) Targeted() bool {
	return k != KindUpgrade
}
