package engine

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"
)

// recordingSink captures everything a match hands to its sink
type recordingSink struct {
	mu        sync.Mutex
	entries   []ActionLogEntry
	snapshots []MatchSnapshot
}

func (s *recordingSink) ActionCommitted(e ActionLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func (s *recordingSink) SnapshotTaken(snap MatchSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), len(s.snapshots)
}

var testEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func createTestRules(cols, rows int) *Rules {
	return &Rules{
		Name:              "test",
		Description:       "Rules for engine tests",
		Cols:              cols,
		Rows:              rows,
		StartingLife:      DefaultLife,
		StartingRange:     DefaultRange,
		StartingActions:   DefaultActions,
		DailyActionPoints: 1,
		HeartPickups:      true,
	}
}

func newTestMatch(t *testing.T, cols, rows int) (*Match, *recordingSink) {
	t.Helper()

	sink := &recordingSink{}
	m, err := NewMatch("test-match", createTestRules(cols, rows),
		WithSink(sink),
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithClock(func() time.Time { return testEpoch }),
	)
	if err != nil {
		t.Fatalf("Failed to create match: %v", err)
	}
	return m, sink
}

// placeTank puts a tank with explicit stats on a chosen cell
func placeTank(t *testing.T, m *Match, id string, pos Position, life, actions, reach int) {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.board.Place(id, pos); err != nil {
		t.Fatalf("Failed to place tank %s at %s: %v", id, pos, err)
	}
	m.tanks[id] = &Tank{
		id:       id,
		position: pos,
		life:     life,
		actions:  actions,
		reach:    reach,
		name:     id,
	}
	m.order = append(m.order, id)
}

func mustTankState(t *testing.T, m *Match, id string) TankState {
	t.Helper()
	s, ok := m.Tank(id)
	if !ok {
		t.Fatalf("Tank %s not found", id)
	}
	return s
}
