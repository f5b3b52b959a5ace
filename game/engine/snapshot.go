package engine

import (
	"fmt"
	"time"
)

// MatchSnapshot is the durable form of a match. It is written on every
// state change and is enough, together with the action log, to restore the
// match after a restart.
type MatchSnapshot struct {
	ID        string        `json:"id"`
	Rules     Rules         `json:"rules"`
	Board     BoardSnapshot `json:"board"`
	Tanks     []TankState   `json:"tanks"`
	Heart     *Position     `json:"heart,omitempty"`
	Seq       int64         `json:"seq"`
	CreatedAt time.Time     `json:"created_at"`
	TakenAt   time.Time     `json:"taken_at"`
}

func (m *Match) snapshotLocked() MatchSnapshot {
	s := MatchSnapshot{
		ID:        m.id,
		Rules:     m.rules,
		Board:     m.board.Snapshot(),
		Tanks:     m.tankStatesLocked(),
		Seq:       m.seq,
		CreatedAt: m.createdAt,
		TakenAt:   m.now(),
	}
	if m.heart != nil {
		h := *m.heart
		s.Heart = &h
	}
	return s
}

// RestoreMatch rebuilds a match from a snapshot and its action log. Every
// tank must sit on the board cell its state claims.
func RestoreMatch(s MatchSnapshot, log []ActionLogEntry, opts ...MatchOption) (*Match, error) {
	m, err := NewMatch(s.ID, &s.Rules, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to restore match %s: %w", s.ID, err)
	}

	grid, err := GridFromSnapshot(s.Board)
	if err != nil {
		return nil, fmt.Errorf("failed to restore board of match %s: %w", s.ID, err)
	}
	m.board = grid

	for _, ts := range s.Tanks {
		if occupant, ok := grid.Occupant(ts.Position); !ok || occupant != ts.ID {
			return nil, fmt.Errorf("tank %s is not at %s on the restored board", ts.ID, ts.Position)
		}
		if _, dup := m.tanks[ts.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrTankExists, ts.ID)
		}
		m.tanks[ts.ID] = tankFromState(ts)
		m.order = append(m.order, ts.ID)
	}

	if s.Heart != nil {
		h := *s.Heart
		m.heart = &h
	}
	if !s.CreatedAt.IsZero() {
		m.createdAt = s.CreatedAt
	}

	m.log = append([]ActionLogEntry(nil), log...)
	m.seq = s.Seq
	if n := len(log); n > 0 && log[n-1].Seq > m.seq {
		m.seq = log[n-1].Seq
	}

	return m, nil
}
