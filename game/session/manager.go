package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inconshreveable/log15/v3"
	"go.uber.org/multierr"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/service"
	"github.com/wricardo/tank-tactics/logging"
)

var (
	ErrSessionNotFound      = service.ErrMatchNotFound
	ErrSessionAlreadyExists = errors.New("session already exists")
)

const evictSaveTimeout = 5 * time.Second

// forgetter is implemented by sinks that queue work per match
type forgetter interface {
	Forget(matchID string)
}

// durableSink is implemented by sinks that know whether a match's committed
// state reached storage
type durableSink interface {
	Durable(matchID string, seq int64) bool
	MarkSaved(matchID string, seq int64)
}

// Manager handles match session lifecycle
type Manager struct {
	sessions    map[string]*service.Session
	persistence MatchPersistence
	sink        engine.Sink
	logger      log15.Logger
	mu          sync.RWMutex
}

// Option configures a Manager
type Option func(*Manager)

// WithPersistence restores matches from p and deletes them there
func WithPersistence(p MatchPersistence) Option {
	return func(m *Manager) { m.persistence = p }
}

// WithSink routes every match's audit entries and snapshots to s
func WithSink(s engine.Sink) Option {
	return func(m *Manager) { m.sink = s }
}

// WithLogger sets the logger
func WithLogger(logger log15.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a new session manager
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*service.Session),
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.New("component", "sessions")
	return m
}

// Create starts a new match with the given ID and rules. An empty ID gets a
// fresh UUID.
func (m *Manager) Create(id string, rules *engine.Rules) (*service.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	key := normalizeID(id)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[key]; exists {
		return nil, ErrSessionAlreadyExists
	}

	match, err := engine.NewMatch(key, rules, m.matchOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}

	now := time.Now()
	sess := &service.Session{
		ID:             key,
		Match:          match,
		RulesetName:    rules.Name,
		CreatedAt:      match.CreatedAt(),
		LastAccessedAt: now,
	}
	m.sessions[key] = sess

	// An empty match is durable from the start
	if m.sink != nil {
		m.sink.SnapshotTaken(match.Snapshot())
	}

	return copySession(sess), nil
}

// Get retrieves a session, restoring it from persistence when it is not in memory
func (m *Manager) Get(id string) (*service.Session, error) {
	key := normalizeID(id)

	m.mu.RLock()
	sess, exists := m.sessions[key]
	var copied *service.Session
	if exists {
		copied = copySession(sess)
	}
	m.mu.RUnlock()

	// A closed match is on its way out of memory; load the stored one instead
	if exists && !copied.Match.Closed() {
		return copied, nil
	}

	if m.persistence == nil {
		return nil, ErrSessionNotFound
	}

	ctx := context.Background()
	if !m.persistence.Exists(ctx, key) {
		return nil, ErrSessionNotFound
	}

	restored, err := m.restore(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted match: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another caller may have restored it first
	if existing, ok := m.sessions[key]; ok && !existing.Match.Closed() {
		return copySession(existing), nil
	}
	m.sessions[key] = restored
	m.logger.Debug("match restored", "match", key)
	return copySession(restored), nil
}

// List returns all in-memory sessions
func (m *Manager) List() []*service.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*service.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		result = append(result, copySession(sess))
	}
	return result
}

// Delete removes a session from memory and storage
func (m *Manager) Delete(id string) error {
	key := normalizeID(id)

	m.mu.Lock()
	sess, inMemory := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()

	// Callers still holding the match must not queue new writes for it
	if inMemory {
		sess.Match.Close()
	}
	if f, ok := m.sink.(forgetter); ok {
		f.Forget(key)
	}

	if m.persistence != nil {
		ctx := context.Background()
		if m.persistence.Exists(ctx, key) {
			if err := m.persistence.Delete(ctx, key); err != nil {
				return fmt.Errorf("failed to delete persisted match: %w", err)
			}
			return nil
		}
	}

	if !inMemory {
		return ErrSessionNotFound
	}
	return nil
}

// UpdateLastAccessed updates the last accessed time for a session
func (m *Manager) UpdateLastAccessed(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.sessions[normalizeID(id)]
	if !exists {
		return ErrSessionNotFound
	}
	sess.LastAccessedAt = time.Now()
	return nil
}

// Save synchronously writes one session's snapshot and full log
func (m *Manager) Save(id string) error {
	if m.persistence == nil {
		return nil // No persistence configured
	}

	m.mu.RLock()
	sess, exists := m.sessions[normalizeID(id)]
	m.mu.RUnlock()
	if !exists {
		return ErrSessionNotFound
	}

	return m.save(context.Background(), sess)
}

// CleanupExpiredSessions evicts sessions idle for longer than maxAge from
// memory. Their persisted state stays and is restored on the next Get. A
// match whose latest state is not in storage yet is written synchronously
// first, and stays in memory when that fails too.
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.RLock()
	var idle []*service.Session
	for _, sess := range m.sessions {
		if sess.LastAccessedAt.Before(cutoff) {
			idle = append(idle, sess)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, sess := range idle {
		if !sess.Match.CloseIf(m.evictable(sess.ID)) {
			continue
		}

		m.mu.Lock()
		if m.sessions[sess.ID] == sess {
			delete(m.sessions, sess.ID)
			removed++
		}
		m.mu.Unlock()
	}

	if removed > 0 {
		m.logger.Info("evicted idle matches", "count", removed, "max_age", maxAge)
	}
	return removed
}

// evictable decides, under the match lock, whether a match can leave memory
// without losing committed state
func (m *Manager) evictable(id string) func(engine.MatchSnapshot, []engine.ActionLogEntry) bool {
	return func(snapshot engine.MatchSnapshot, log []engine.ActionLogEntry) bool {
		if m.persistence == nil {
			return true // Nothing to restore from; eviction ends the match
		}

		tracked, ok := m.sink.(durableSink)
		if ok && tracked.Durable(id, snapshot.Seq) {
			return true
		}

		ctx, cancel := context.WithTimeout(context.Background(), evictSaveTimeout)
		defer cancel()
		if err := m.write(ctx, snapshot, log); err != nil {
			m.logger.Warn("keeping idle match in memory, state not stored", "match", id, "seq", snapshot.Seq, "err", err)
			return false
		}
		if ok {
			tracked.MarkSaved(id, snapshot.Seq)
		}
		return true
	}
}

// RunCleanup evicts idle sessions every interval until ctx is done
func (m *Manager) RunCleanup(ctx context.Context, interval, maxAge time.Duration) error {
	if interval <= 0 || maxAge <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.CleanupExpiredSessions(maxAge)
		}
	}
}

// Count returns the number of in-memory sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// LoadPersistedSessions loads all persisted matches into memory
func (m *Manager) LoadPersistedSessions(ctx context.Context) error {
	if m.persistence == nil {
		return nil // No persistence configured
	}

	ids, err := m.persistence.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list persisted matches: %w", err)
	}

	loaded := 0
	for _, id := range ids {
		key := normalizeID(id)

		m.mu.RLock()
		_, exists := m.sessions[key]
		m.mu.RUnlock()
		if exists {
			continue
		}

		sess, err := m.restore(ctx, key)
		if err != nil {
			m.logger.Warn("failed to load persisted match", "match", id, "err", err)
			continue
		}

		m.mu.Lock()
		if _, exists := m.sessions[key]; !exists {
			m.sessions[key] = sess
			loaded++
		}
		m.mu.Unlock()
	}

	if loaded > 0 {
		m.logger.Info("loaded persisted matches", "count", loaded)
	}
	return nil
}

// SaveAllSessions writes every in-memory session and reports all failures
func (m *Manager) SaveAllSessions(ctx context.Context) error {
	if m.persistence == nil {
		return nil // No persistence configured
	}

	m.mu.RLock()
	sessions := make([]*service.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.RUnlock()

	var errs error
	for _, sess := range sessions {
		if err := m.save(ctx, sess); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("save match %s: %w", sess.ID, err))
		}
	}
	return errs
}

func (m *Manager) save(ctx context.Context, sess *service.Session) error {
	snapshot := sess.Match.Snapshot()
	return m.write(ctx, snapshot, sess.Match.ActionLog())
}

// write stores a snapshot with its log. Entries already stored are skipped
// by the persistence layer.
func (m *Manager) write(ctx context.Context, snapshot engine.MatchSnapshot, log []engine.ActionLogEntry) error {
	// Log first: a snapshot never points past the stored log
	if err := m.persistence.AppendActions(ctx, snapshot.ID, log); err != nil {
		return err
	}
	return m.persistence.SaveSnapshot(ctx, snapshot)
}

func (m *Manager) restore(ctx context.Context, id string) (*service.Session, error) {
	snapshot, err := m.persistence.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	log, err := m.persistence.LoadActions(ctx, id)
	if err != nil {
		return nil, err
	}

	match, err := engine.RestoreMatch(*snapshot, log, m.matchOptions()...)
	if err != nil {
		return nil, err
	}

	return &service.Session{
		ID:             id,
		Match:          match,
		RulesetName:    snapshot.Rules.Name,
		CreatedAt:      match.CreatedAt(),
		LastAccessedAt: time.Now(),
	}, nil
}

func (m *Manager) matchOptions() []engine.MatchOption {
	if m.sink == nil {
		return nil
	}
	return []engine.MatchOption{engine.WithSink(m.sink)}
}

// copySession hands out a copy so callers never race on LastAccessedAt
func copySession(s *service.Session) *service.Session {
	c := *s
	return &c
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
