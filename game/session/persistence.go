package session

import (
	"cmp"
	"context"
	"slices"

	"github.com/wricardo/tank-tactics/game/engine"
)

// MatchPersistence stores match snapshots and their action logs. Snapshots
// are keyed by match id and overwritten in place; appending an action that
// is already stored (same match and seq) is a no-op.
type MatchPersistence interface {
	// SaveSnapshot writes the latest state of a match
	SaveSnapshot(ctx context.Context, snapshot engine.MatchSnapshot) error

	// AppendActions adds audit entries to a match's log
	AppendActions(ctx context.Context, matchID string, entries []engine.ActionLogEntry) error

	// Load retrieves the latest snapshot of a match
	Load(ctx context.Context, id string) (*engine.MatchSnapshot, error)

	// LoadActions returns the action log of a match in seq order
	LoadActions(ctx context.Context, id string) ([]engine.ActionLogEntry, error)

	// Delete removes the snapshot and log of a match
	Delete(ctx context.Context, id string) error

	// ListAll returns all persisted match IDs
	ListAll(ctx context.Context) ([]string, error)

	// Exists checks if a match exists in storage
	Exists(ctx context.Context, id string) bool
}

// dedupeActions orders entries by seq and keeps the first of each seq
func dedupeActions(entries []engine.ActionLogEntry) []engine.ActionLogEntry {
	slices.SortStableFunc(entries, func(a, b engine.ActionLogEntry) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	out := entries[:0]
	var last int64
	for _, e := range entries {
		if e.Seq <= last {
			continue
		}
		out = append(out, e)
		last = e.Seq
	}
	return out
}
