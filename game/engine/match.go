package engine

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

var (
	ErrTankExists    = errors.New("tank already exists")
	ErrInvalidTankID = errors.New("tank id is required")
	ErrMatchClosed   = errors.New("match closed")
)

// Sink receives audit entries and state snapshots as they are committed.
// It is called while the match lock is held, so implementations must only
// enqueue and never block on I/O.
type Sink interface {
	ActionCommitted(entry ActionLogEntry)
	SnapshotTaken(snapshot MatchSnapshot)
}

type noopSink struct{}

func (noopSink) ActionCommitted(ActionLogEntry) {}
func (noopSink) SnapshotTaken(MatchSnapshot)    {}

// ActionLogEntry is the audit record of one committed action
type ActionLogEntry struct {
	Seq         int64      `json:"seq"`
	MatchID     string     `json:"match_id"`
	ActorID     string     `json:"actor_id"`
	Kind        ActionKind `json:"kind"`
	Destination *Position  `json:"destination,omitempty"`
	Affected    *TankState `json:"affected,omitempty"`
	At          time.Time  `json:"at"`
}

// Match owns a board and the tanks placed on it. All state transitions of a
// match happen under its mutex, which makes the match the serialization
// point for every action resolved against it.
type Match struct {
	mu sync.Mutex

	id        string
	rules     Rules
	board     Board
	tanks     map[string]*Tank
	order     []string
	heart     *Position
	log       []ActionLogEntry
	seq       int64
	createdAt time.Time
	closed    bool

	rng  *rand.Rand
	now  func() time.Time
	sink Sink
}

// MatchOption configures a Match
type MatchOption func(*Match)

// WithSink routes audit entries and snapshots to s
func WithSink(s Sink) MatchOption {
	return func(m *Match) {
		if s != nil {
			m.sink = s
		}
	}
}

// WithRand sets the random source used for cell selection
func WithRand(r *rand.Rand) MatchOption {
	return func(m *Match) {
		if r != nil {
			m.rng = r
		}
	}
}

// WithClock overrides time.Now for audit timestamps
func WithClock(now func() time.Time) MatchOption {
	return func(m *Match) {
		if now != nil {
			m.now = now
		}
	}
}

// WithBoard replaces the default grid with a custom board implementation
func WithBoard(b Board) MatchOption {
	return func(m *Match) {
		if b != nil {
			m.board = b
		}
	}
}

// NewMatch creates an empty match with the given rules
func NewMatch(id string, rules *Rules, opts ...MatchOption) (*Match, error) {
	if id == "" {
		return nil, fmt.Errorf("match id is required")
	}
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}

	m := &Match{
		id:    id,
		rules: *rules,
		tanks: make(map[string]*Tank),
		rng:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
		now:   time.Now,
		sink:  noopSink{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.board == nil {
		m.board = NewGrid(rules.Cols, rules.Rows)
	}
	m.createdAt = m.now()

	return m, nil
}

// ID returns the match identifier
func (m *Match) ID() string {
	return m.id
}

// Rules returns a copy of the match rules
func (m *Match) Rules() Rules {
	return m.rules
}

// CreatedAt returns when the match was created
func (m *Match) CreatedAt() time.Time {
	return m.createdAt
}

// CreateTank places a new tank with default stats on a random free cell and
// hands a snapshot of the match to the sink.
func (m *Match) CreateTank(ownerID, name, picture string) (TankState, error) {
	if ownerID == "" {
		return TankState{}, ErrInvalidTankID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return TankState{}, ErrMatchClosed
	}
	if _, exists := m.tanks[ownerID]; exists {
		return TankState{}, fmt.Errorf("%w: %s", ErrTankExists, ownerID)
	}

	pos, err := m.board.RandomFreeCell(m.rng)
	if err != nil {
		return TankState{}, err
	}

	tank := newTank(ownerID, name, picture, pos, &m.rules)
	if err := m.board.Place(tank.id, pos); err != nil {
		return TankState{}, fmt.Errorf("failed to place tank: %w", err)
	}
	m.tanks[tank.id] = tank
	m.order = append(m.order, tank.id)

	m.sink.SnapshotTaken(m.snapshotLocked())

	return tank.State(), nil
}

// Resolve validates and applies an action on behalf of the tank with the
// given id. It returns false when the action is not legal, in which case no
// state changed and nothing was recorded. Resolving for a tank that is not
// part of the match is a caller bug and panics. A closed match rejects
// every action.
func (m *Match) Resolve(tankID string, action Action) (ActionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ActionRecord{}, false
	}

	tank := m.mustTank(tankID)
	record, ok := m.resolveLocked(tank, action)
	if ok {
		record.Seq = m.seq
		m.sink.SnapshotTaken(m.snapshotLocked())
	}
	return record, ok
}

// Close stops the match from accepting changes. Reads keep working.
func (m *Match) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// CloseIf closes the match when ok accepts its current state. ok runs under
// the match lock and must not keep log.
func (m *Match) CloseIf(ok func(snapshot MatchSnapshot, log []ActionLogEntry) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return true
	}
	if !ok(m.snapshotLocked(), m.log) {
		return false
	}
	m.closed = true
	return true
}

// Closed reports whether the match stopped accepting changes
func (m *Match) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Tank returns the state of one tank
func (m *Match) Tank(id string) (TankState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tanks[id]
	if !ok {
		return TankState{}, false
	}
	return t.State(), true
}

// Tanks returns all tanks in join order
func (m *Match) Tanks() []TankState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tankStatesLocked()
}

// Roster returns the public view of all tanks in join order
func (m *Match) Roster() []PublicView {
	m.mu.Lock()
	defer m.mu.Unlock()

	roster := make([]PublicView, 0, len(m.order))
	for _, id := range m.order {
		roster = append(roster, m.tanks[id].PublicView())
	}
	return roster
}

// Alive returns the number of tanks with life left
func (m *Match) Alive() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	alive := 0
	for _, t := range m.tanks {
		if !t.Defeated() {
			alive++
		}
	}
	return alive
}

// Heart returns the current heart pickup location, if any
func (m *Match) Heart() (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.heart == nil {
		return Position{}, false
	}
	return *m.heart, true
}

// SpawnHeart drops a heart pickup on a random free cell, replacing any
// previous one.
func (m *Match) SpawnHeart() (Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Position{}, ErrMatchClosed
	}
	pos, err := m.board.RandomFreeCell(m.rng)
	if err != nil {
		return Position{}, err
	}
	m.heart = &pos
	m.sink.SnapshotTaken(m.snapshotLocked())
	return pos, nil
}

// ClearHeart removes the heart pickup
func (m *Match) ClearHeart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearHeartLocked()
}

func (m *Match) clearHeartLocked() {
	m.heart = nil
}

// GrantActionPoints gives every living tank n action points, or the ruleset's
// daily amount when n <= 0. It returns how many tanks received points; a
// closed match grants nothing.
func (m *Match) GrantActionPoints(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0
	}
	if n <= 0 {
		n = m.rules.DailyActionPoints
	}
	if n <= 0 {
		return 0
	}

	granted := 0
	for _, id := range m.order {
		t := m.tanks[id]
		if t.Defeated() {
			continue
		}
		t.actions += n
		granted++
	}
	if granted > 0 {
		m.sink.SnapshotTaken(m.snapshotLocked())
	}
	return granted
}

// ActionLog returns a copy of the audit log in commit order
func (m *Match) ActionLog() []ActionLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ActionLogEntry(nil), m.log...)
}

// BoardSnapshot returns the serialized board
func (m *Match) BoardSnapshot() BoardSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.board.Snapshot()
}

// Snapshot returns the full serializable state of the match
func (m *Match) Snapshot() MatchSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// recordAction appends an audit entry and forwards it to the sink
func (m *Match) recordAction(actor *Tank, kind ActionKind, dest *Position, affected *Tank) {
	m.seq++
	entry := ActionLogEntry{
		Seq:     m.seq,
		MatchID: m.id,
		ActorID: actor.id,
		Kind:    kind,
		At:      m.now(),
	}
	if dest != nil {
		d := *dest
		entry.Destination = &d
	}
	if affected != nil {
		s := affected.State()
		entry.Affected = &s
	}
	m.log = append(m.log, entry)
	m.sink.ActionCommitted(entry)
}

func (m *Match) mustTank(id string) *Tank {
	t, ok := m.tanks[id]
	if !ok {
		panic(fmt.Sprintf("engine: tank %q does not belong to match %s", id, m.id))
	}
	if occupant, ok := m.board.Occupant(t.position); !ok || occupant != t.id {
		panic(fmt.Sprintf("engine: tank %q is not on the board of match %s at %s", id, m.id, t.position))
	}
	return t
}

func (m *Match) tankStatesLocked() []TankState {
	states := make([]TankState, 0, len(m.order))
	for _, id := range m.order {
		states = append(states, m.tanks[id].State())
	}
	return states
}
