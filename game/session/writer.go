package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/inconshreveable/log15/v3"
	"github.com/jpillora/backoff"
	"go.uber.org/multierr"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/logging"
)

const (
	defaultMaxAttempts = 5
	shutdownTimeout    = 5 * time.Second
)

// Writer is the durability queue between matches and storage. It implements
// engine.Sink: matches enqueue while holding their lock and a single Run
// goroutine writes in the background. Snapshots of the same match coalesce
// to the newest one; audit entries keep commit order. A write that still
// fails after the retry budget is logged and dropped. Gameplay state is never
// rolled back because of storage.
type Writer struct {
	store  MatchPersistence
	logger log15.Logger

	mu        sync.Mutex
	snapshots map[string]engine.MatchSnapshot
	actions   map[string][]engine.ActionLogEntry
	order     []string
	wake      chan struct{}

	// What reached storage per match: the seq of the last stored snapshot,
	// matches being written right now and matches that lost a write
	stored   map[string]int64
	inflight map[string]bool
	dropped  map[string]bool

	// drainMu keeps concurrent Flush and Run drains from reordering appends
	drainMu sync.Mutex

	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
}

// WriterOption configures a Writer
type WriterOption func(*Writer)

// WithRetry sets the attempt budget and backoff bounds for each write
func WithRetry(attempts int, min, max time.Duration) WriterOption {
	return func(w *Writer) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
		w.minBackoff = min
		w.maxBackoff = max
	}
}

// WithWriterLogger sets the logger
func WithWriterLogger(logger log15.Logger) WriterOption {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWriter creates a writer in front of store
func NewWriter(store MatchPersistence, opts ...WriterOption) *Writer {
	w := &Writer{
		store:       store,
		logger:      logging.Discard(),
		snapshots:   make(map[string]engine.MatchSnapshot),
		actions:     make(map[string][]engine.ActionLogEntry),
		wake:        make(chan struct{}, 1),
		stored:      make(map[string]int64),
		inflight:    make(map[string]bool),
		dropped:     make(map[string]bool),
		maxAttempts: defaultMaxAttempts,
		minBackoff:  50 * time.Millisecond,
		maxBackoff:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.New("component", "writer")
	return w
}

// ActionCommitted queues an audit entry
func (w *Writer) ActionCommitted(entry engine.ActionLogEntry) {
	w.mu.Lock()
	w.touchLocked(entry.MatchID)
	w.actions[entry.MatchID] = append(w.actions[entry.MatchID], entry)
	w.mu.Unlock()
	w.signal()
}

// SnapshotTaken queues a snapshot, replacing any older one of the same match
func (w *Writer) SnapshotTaken(snapshot engine.MatchSnapshot) {
	w.mu.Lock()
	w.touchLocked(snapshot.ID)
	w.snapshots[snapshot.ID] = snapshot
	w.mu.Unlock()
	w.signal()
}

// Forget drops queued work of a deleted match. It waits for a drain in
// progress, so once it returns no write of the match is left to land.
func (w *Writer) Forget(matchID string) {
	w.drainMu.Lock()
	defer w.drainMu.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.snapshots, matchID)
	delete(w.actions, matchID)
	delete(w.stored, matchID)
	delete(w.dropped, matchID)
	for i, id := range w.order {
		if id == matchID {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

// Durable reports whether everything the writer was handed for a match is in
// storage and covers seq. A match the writer never saw came from storage and
// counts as durable.
func (w *Writer) Durable(matchID string, seq int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, queued := w.snapshots[matchID]; queued {
		return false
	}
	if _, queued := w.actions[matchID]; queued {
		return false
	}
	if w.inflight[matchID] || w.dropped[matchID] {
		return false
	}
	stored, seen := w.stored[matchID]
	return !seen || stored >= seq
}

// MarkSaved records that the full state of a match up to seq was written
// outside the queue, which makes up for earlier dropped writes
func (w *Writer) MarkSaved(matchID string, seq int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.dropped, matchID)
	if seq > w.stored[matchID] {
		w.stored[matchID] = seq
	}
}

// Pending returns the number of matches with queued work
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order)
}

// Run writes queued work until ctx is done, then flushes what is left
func (w *Writer) Run(ctx context.Context) error {
	// In-flight writes finish even when ctx is cancelled mid-retry
	writeCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(writeCtx, shutdownTimeout)
			err := w.drain(flushCtx)
			cancel()
			if err != nil {
				w.logger.Error("final flush incomplete", "err", err)
			}
			return nil
		case <-w.wake:
			_ = w.drain(writeCtx)
		}
	}
}

// Flush synchronously writes everything queued so far
func (w *Writer) Flush(ctx context.Context) error {
	return w.drain(ctx)
}

type batch struct {
	matchID  string
	actions  []engine.ActionLogEntry
	snapshot *engine.MatchSnapshot
}

func (w *Writer) drain(ctx context.Context) error {
	w.drainMu.Lock()
	defer w.drainMu.Unlock()

	var errs error
	for _, b := range w.take() {
		lost := false
		if len(b.actions) > 0 {
			err := w.retry(ctx, func() error {
				return w.store.AppendActions(ctx, b.matchID, b.actions)
			})
			if err != nil {
				lost = true
				w.logger.Error("dropping action log entries", "match", b.matchID, "count", len(b.actions), "err", err)
				errs = multierr.Append(errs, fmt.Errorf("append actions of %s: %w", b.matchID, err))
			}
		}
		if b.snapshot != nil {
			err := w.retry(ctx, func() error {
				return w.store.SaveSnapshot(ctx, *b.snapshot)
			})
			if err != nil {
				lost = true
				w.logger.Error("dropping snapshot", "match", b.matchID, "seq", b.snapshot.Seq, "err", err)
				errs = multierr.Append(errs, fmt.Errorf("save snapshot of %s: %w", b.matchID, err))
			}
		}
		w.settle(b, lost)
	}
	return errs
}

// settle records the outcome of a written batch
func (w *Writer) settle(b batch, lost bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.inflight, b.matchID)
	if lost {
		w.dropped[b.matchID] = true
		return
	}
	if b.snapshot == nil {
		return
	}
	if prev, seen := w.stored[b.matchID]; !seen || b.snapshot.Seq > prev {
		w.stored[b.matchID] = b.snapshot.Seq
	}
}

// take swaps out all queued work in first-queued order
func (w *Writer) take() []batch {
	w.mu.Lock()
	defer w.mu.Unlock()

	batches := make([]batch, 0, len(w.order))
	for _, id := range w.order {
		b := batch{matchID: id, actions: w.actions[id]}
		if s, ok := w.snapshots[id]; ok {
			b.snapshot = &s
		}
		w.inflight[id] = true
		batches = append(batches, b)
	}
	w.order = nil
	w.snapshots = make(map[string]engine.MatchSnapshot)
	w.actions = make(map[string][]engine.ActionLogEntry)
	return batches
}

func (w *Writer) retry(ctx context.Context, op func() error) error {
	b := &backoff.Backoff{
		Min:    w.minBackoff,
		Max:    w.maxBackoff,
		Factor: 2,
		Jitter: true,
	}

	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == w.maxAttempts {
			break
		}
		wait := b.Duration()
		w.logger.Warn("storage write failed, retrying", "attempt", attempt, "wait", wait, "err", err)
		select {
		case <-ctx.Done():
			return multierr.Append(err, ctx.Err())
		case <-time.After(wait):
		}
	}
	return err
}

func (w *Writer) touchLocked(matchID string) {
	_, hasSnap := w.snapshots[matchID]
	_, hasActions := w.actions[matchID]
	if !hasSnap && !hasActions {
		w.order = append(w.order, matchID)
	}
}

func (w *Writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}
