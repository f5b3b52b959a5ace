package engine

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownActionKind  = errors.New("unknown action kind")
	ErrMissingDestination = errors.New("action requires a destination")
)

// Action is one of Move, Shoot, GiveAction, Upgrade or Heal.
// The set is closed; Resolve dispatches on the concrete type.
type Action interface {
	Kind() ActionKind
	isAction()
}

// Move relocates the acting tank to an adjacent free cell
type Move struct {
	To Position
}

// Shoot removes one life from the tank occupying At
type Shoot struct {
	At Position
}

// GiveAction transfers one action point to the tank occupying To
type GiveAction struct {
	To Position
}

// Upgrade increases the acting tank's range by one
type Upgrade struct{}

// Heal adds one life to the tank occupying At, which may be the actor itself
type Heal struct {
	At Position
}

func (Move) Kind() ActionKind       { return KindMove }
func (Shoot) Kind() ActionKind      { return KindShoot }
func (GiveAction) Kind() ActionKind { return KindGiveAction }
func (Upgrade) Kind() ActionKind    { return KindUpgrade }
func (Heal) Kind() ActionKind       { return KindHeal }

func (Move) isAction()       {}
func (Shoot) isAction()      {}
func (GiveAction) isAction() {}
func (Upgrade) isAction()    {}
func (Heal) isAction()       {}

// ActionRequest is the wire form of an action as sent by clients
type ActionRequest struct {
	Kind        ActionKind `json:"kind"`
	Destination *Position  `json:"destination,omitempty"`
}

// Action converts the request into its typed variant
func (r ActionRequest) Action() (Action, error) {
	kind, err := ParseActionKind(string(r.Kind))
	if err != nil {
		return nil, err
	}

	if kind == KindUpgrade {
		return Upgrade{}, nil
	}

	if r.Destination == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingDestination, kind)
	}
	dest := *r.Destination

	switch kind {
	case KindMove:
		return Move{To: dest}, nil
	case KindShoot:
		return Shoot{At: dest}, nil
	case KindGiveAction:
		return GiveAction{To: dest}, nil
	case KindHeal:
		return Heal{At: dest}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownActionKind, r.Kind)
}

// ActionRecord is returned for an applied action. Destination is the clamped
// target cell and Affected is the state of the other tank after the effect.
type ActionRecord struct {
	Seq         int64      `json:"seq"`
	Kind        ActionKind `json:"kind"`
	Destination *Position  `json:"destination,omitempty"`
	Affected    *TankState `json:"affected,omitempty"`
}
