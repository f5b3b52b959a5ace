package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/wricardo/tank-tactics/game/engine"
)

func createTestRules() *engine.Rules {
	rules := engine.DefaultRules()
	rules.Name = "test"
	rules.Cols = 5
	rules.Rows = 5
	return rules
}

// playedMatch returns a match with two tanks and a couple of committed actions
func playedMatch(t *testing.T, id string, opts ...engine.MatchOption) *engine.Match {
	t.Helper()

	match, err := engine.NewMatch(id, createTestRules(), opts...)
	if err != nil {
		t.Fatalf("Failed to create match: %v", err)
	}
	if _, err := match.CreateTank("alice", "Alice", ""); err != nil {
		t.Fatalf("Failed to create tank: %v", err)
	}
	if _, err := match.CreateTank("bob", "Bob", ""); err != nil {
		t.Fatalf("Failed to create tank: %v", err)
	}
	match.GrantActionPoints(6)
	if _, ok := match.Resolve("alice", engine.Upgrade{}); !ok {
		t.Fatal("Expected upgrade to apply")
	}
	if _, ok := match.Resolve("bob", engine.Upgrade{}); !ok {
		t.Fatal("Expected upgrade to apply")
	}
	return match
}

// memoryStore is an in-memory MatchPersistence that can be told to fail
type memoryStore struct {
	mu        sync.Mutex
	snapshots map[string]engine.MatchSnapshot
	actions   map[string][]engine.ActionLogEntry
	failures  int
	calls     int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		snapshots: make(map[string]engine.MatchSnapshot),
		actions:   make(map[string][]engine.ActionLogEntry),
	}
}

var errStoreDown = errors.New("store unavailable")

func (s *memoryStore) fail() error {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errStoreDown
	}
	return nil
}

func (s *memoryStore) SaveSnapshot(ctx context.Context, snapshot engine.MatchSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	s.snapshots[snapshot.ID] = snapshot
	return nil
}

func (s *memoryStore) AppendActions(ctx context.Context, matchID string, entries []engine.ActionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	s.actions[matchID] = dedupeActions(append(s.actions[matchID], entries...))
	return nil
}

func (s *memoryStore) Load(ctx context.Context, id string) (*engine.MatchSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &snap, nil
}

func (s *memoryStore) LoadActions(ctx context.Context, id string) ([]engine.ActionLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.ActionLogEntry(nil), s.actions[id]...), nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.snapshots, id)
	delete(s.actions, id)
	return nil
}

func (s *memoryStore) ListAll(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memoryStore) Exists(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.snapshots[id]
	return ok
}

func (s *memoryStore) snapshot(id string) (engine.MatchSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[id]
	return snap, ok
}

func (s *memoryStore) actionCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions[id])
}
