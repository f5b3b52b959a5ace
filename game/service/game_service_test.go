package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/service"
)

// MockSessionManager implements service.SessionManager for testing
type MockSessionManager struct {
	mu       sync.Mutex
	sessions map[string]*service.Session
	// stale is handed out once by Get, like a lookup that raced an eviction
	stale map[string]*service.Session
}

func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{
		sessions: make(map[string]*service.Session),
		stale:    make(map[string]*service.Session),
	}
}

func (m *MockSessionManager) Create(id string, rules *engine.Rules) (*service.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Generate ID if empty (mimics real session manager behavior)
	if id == "" {
		id = fmt.Sprintf("test_%d", len(m.sessions)+1)
	}

	if _, exists := m.sessions[id]; exists {
		return nil, errors.New("session already exists")
	}

	match, err := engine.NewMatch(id, rules)
	if err != nil {
		return nil, err
	}

	session := &service.Session{
		ID:             id,
		Match:          match,
		RulesetName:    rules.Name,
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
	}

	m.sessions[id] = session
	return session, nil
}

func (m *MockSessionManager) Get(id string) (*service.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.stale[id]; ok {
		delete(m.stale, id)
		copied := *old
		return &copied, nil
	}

	session, exists := m.sessions[id]
	if !exists {
		return nil, service.ErrMatchNotFound
	}
	copied := *session
	return &copied, nil
}

// closeUnderNextGet closes the live match and makes the next Get return it.
// With restore set the match is replaced by a copy rebuilt from its
// snapshot, as after an eviction; otherwise it is gone, as after a delete.
func (m *MockSessionManager) closeUnderNextGet(t *testing.T, id string, restore bool) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.sessions[id]
	old.Match.Close()
	m.stale[id] = old
	delete(m.sessions, id)

	if !restore {
		return
	}
	match, err := engine.RestoreMatch(old.Match.Snapshot(), old.Match.ActionLog())
	if err != nil {
		t.Fatalf("Failed to restore match: %v", err)
	}
	fresh := *old
	fresh.Match = match
	m.sessions[id] = &fresh
}

func (m *MockSessionManager) List() []*service.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*service.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		copied := *session
		result = append(result, &copied)
	}
	return result
}

func (m *MockSessionManager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; !exists {
		return service.ErrMatchNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *MockSessionManager) UpdateLastAccessed(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, exists := m.sessions[id]; exists {
		session.LastAccessedAt = time.Now()
		return nil
	}
	return service.ErrMatchNotFound
}

func (m *MockSessionManager) Save(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; !exists {
		return service.ErrMatchNotFound
	}
	return nil
}

// MockRulesetManager implements service.RulesetManager for testing
type MockRulesetManager struct {
	rulesets map[string]*engine.Rules
}

func NewMockRulesetManager() *MockRulesetManager {
	defaultRules := engine.DefaultRules()

	tiny := engine.DefaultRules()
	tiny.Name = "tiny"
	tiny.Description = "Two by two arena where every cell is in range"
	tiny.Cols = 2
	tiny.Rows = 2

	noHearts := engine.DefaultRules()
	noHearts.Name = "no-hearts"
	noHearts.HeartPickups = false

	return &MockRulesetManager{
		rulesets: map[string]*engine.Rules{
			"classic":   defaultRules,
			"tiny":      tiny,
			"no-hearts": noHearts,
		},
	}
}

func (m *MockRulesetManager) LoadRuleset(name string) (*engine.Rules, error) {
	rules, exists := m.rulesets[name]
	if !exists {
		return nil, service.ErrRulesetNotFound
	}
	return rules, nil
}

func (m *MockRulesetManager) ListRulesets() ([]*service.RulesetInfo, error) {
	result := make([]*service.RulesetInfo, 0, len(m.rulesets))
	for name, rules := range m.rulesets {
		result = append(result, &service.RulesetInfo{
			Filename:    name + ".json",
			RulesetID:   name,
			Name:        rules.Name,
			Description: rules.Description,
			Cols:        rules.Cols,
			Rows:        rules.Rows,
		})
	}
	return result, nil
}

func (m *MockRulesetManager) GetDefault() *engine.Rules {
	return m.rulesets["classic"]
}

func (m *MockRulesetManager) SaveRuleset(name string, rules *engine.Rules) error {
	if err := engine.ValidateRules(rules); err != nil {
		return err
	}
	m.rulesets[name] = rules
	return nil
}

func newTestService() (service.GameService, *MockSessionManager) {
	sessions := NewMockSessionManager()
	return service.NewGameService(sessions, NewMockRulesetManager(), nil), sessions
}

// Test cases
func TestGameService_CreateMatch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	tests := []struct {
		name        string
		rulesetName string
		wantRules   string
		wantErr     bool
	}{
		{
			name:        "create with default ruleset",
			rulesetName: "",
			wantRules:   "classic",
		},
		{
			name:        "create with named ruleset",
			rulesetName: "tiny",
			wantRules:   "tiny",
		},
		{
			name:        "create with unknown ruleset",
			rulesetName: "nonexistent",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := svc.CreateMatch(ctx, tt.rulesetName)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CreateMatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, service.ErrRulesetNotFound) {
					t.Errorf("Expected ErrRulesetNotFound, got %v", err)
				}
				return
			}
			if info.ID == "" {
				t.Error("Expected match ID to be set")
			}
			if info.RulesetName != tt.wantRules {
				t.Errorf("Expected ruleset %s, got %s", tt.wantRules, info.RulesetName)
			}
			if len(info.Tanks) != 0 || info.Alive != 0 {
				t.Errorf("New match should be empty, got %+v", info)
			}
		})
	}
}

func TestGameService_MatchNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	if _, err := svc.GetMatch(ctx, "missing"); !errors.Is(err, service.ErrMatchNotFound) {
		t.Errorf("GetMatch: expected ErrMatchNotFound, got %v", err)
	}
	if _, err := svc.JoinMatch(ctx, "missing", service.JoinRequest{OwnerID: "a"}); !errors.Is(err, service.ErrMatchNotFound) {
		t.Errorf("JoinMatch: expected ErrMatchNotFound, got %v", err)
	}
	req := engine.ActionRequest{Kind: engine.KindUpgrade}
	if _, err := svc.ApplyAction(ctx, "missing", "a", req); !errors.Is(err, service.ErrMatchNotFound) {
		t.Errorf("ApplyAction: expected ErrMatchNotFound, got %v", err)
	}
	if _, err := svc.GetBoard(ctx, "missing"); !errors.Is(err, service.ErrMatchNotFound) {
		t.Errorf("GetBoard: expected ErrMatchNotFound, got %v", err)
	}
	if err := svc.DeleteMatch(ctx, "missing"); !errors.Is(err, service.ErrMatchNotFound) {
		t.Errorf("DeleteMatch: expected ErrMatchNotFound, got %v", err)
	}
}

func TestGameService_JoinMatchIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	info, err := svc.CreateMatch(ctx, "")
	if err != nil {
		t.Fatalf("Failed to create match: %v", err)
	}

	first, err := svc.JoinMatch(ctx, info.ID, service.JoinRequest{OwnerID: "alice", Name: "Alice"})
	if err != nil {
		t.Fatalf("Failed to join: %v", err)
	}
	if !first.Created {
		t.Error("First join should create a tank")
	}
	if first.Tank.Life != 3 || first.Tank.Range != 2 || first.Tank.Actions != 0 {
		t.Errorf("Unexpected starting stats: %+v", first.Tank)
	}

	second, err := svc.JoinMatch(ctx, info.ID, service.JoinRequest{OwnerID: "alice", Name: "Someone else"})
	if err != nil {
		t.Fatalf("Failed to rejoin: %v", err)
	}
	if second.Created {
		t.Error("Second join should return the existing tank")
	}
	if second.Tank != first.Tank {
		t.Errorf("Expected same tank, got %+v vs %+v", second.Tank, first.Tank)
	}

	if _, err := svc.JoinMatch(ctx, info.ID, service.JoinRequest{OwnerID: "  "}); !errors.Is(err, service.ErrInvalidAction) {
		t.Errorf("Expected ErrInvalidAction for blank owner, got %v", err)
	}

	roster, err := svc.ListTanks(ctx, info.ID)
	if err != nil {
		t.Fatalf("Failed to list tanks: %v", err)
	}
	if len(roster) != 1 || roster[0].Name != "Alice" {
		t.Errorf("Unexpected roster: %+v", roster)
	}
}

func TestGameService_ApplyAction(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	info, err := svc.CreateMatch(ctx, "tiny")
	if err != nil {
		t.Fatalf("Failed to create match: %v", err)
	}
	alice, _ := svc.JoinMatch(ctx, info.ID, service.JoinRequest{OwnerID: "alice"})
	bob, _ := svc.JoinMatch(ctx, info.ID, service.JoinRequest{OwnerID: "bob"})

	shoot := engine.ActionRequest{Kind: engine.KindShoot, Destination: &bob.Tank.Position}

	// No action points yet: rejected, not an error
	result, err := svc.ApplyAction(ctx, info.ID, "alice", shoot)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Applied {
		t.Error("Expected rejection without action points")
	}
	if result.Record != nil {
		t.Error("Rejected action should carry no record")
	}
	if result.Actor != alice.Tank {
		t.Errorf("Rejected action changed the actor: %+v", result.Actor)
	}

	grant, err := svc.GrantActionPoints(ctx, info.ID, 2)
	if err != nil {
		t.Fatalf("Failed to grant: %v", err)
	}
	if grant.Granted != 2 || grant.Amount != 2 {
		t.Errorf("Unexpected grant result: %+v", grant)
	}

	result, err = svc.ApplyAction(ctx, info.ID, "alice", shoot)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.Applied {
		t.Fatal("Expected shot to apply on a 2x2 board")
	}
	if result.Actor.Actions != 1 {
		t.Errorf("Expected 1 action left, got %d", result.Actor.Actions)
	}
	if result.Record == nil || result.Record.Affected == nil || result.Record.Affected.Life != 2 {
		t.Errorf("Expected affected bob with life 2, got %+v", result.Record)
	}

	history, err := svc.GetActionLog(ctx, info.ID, service.HistoryOptions{})
	if err != nil {
		t.Fatalf("Failed to get log: %v", err)
	}
	if history.TotalActions != 1 || history.Actions[0].ActorID != "alice" {
		t.Errorf("Unexpected history: %+v", history)
	}
}

func TestGameService_ApplyActionErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	info, _ := svc.CreateMatch(ctx, "")
	_, _ = svc.JoinMatch(ctx, info.ID, service.JoinRequest{OwnerID: "alice"})

	tests := []struct {
		name    string
		tankID  string
		req     engine.ActionRequest
		wantErr error
	}{
		{"unknown kind", "alice", engine.ActionRequest{Kind: "teleport"}, service.ErrInvalidAction},
		{"missing destination", "alice", engine.ActionRequest{Kind: engine.KindMove}, service.ErrInvalidAction},
		{"unknown tank", "bob", engine.ActionRequest{Kind: engine.KindUpgrade}, service.ErrTankNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ApplyAction(ctx, info.ID, tt.tankID, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGameService_SpawnHeart(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	info, _ := svc.CreateMatch(ctx, "")
	pos, err := svc.SpawnHeart(ctx, info.ID)
	if err != nil {
		t.Fatalf("Failed to spawn heart: %v", err)
	}

	board, err := svc.GetBoard(ctx, info.ID)
	if err != nil {
		t.Fatalf("Failed to get board: %v", err)
	}
	if board.Heart == nil || *board.Heart != *pos {
		t.Errorf("Expected heart at %s on the board, got %v", pos, board.Heart)
	}

	disabled, _ := svc.CreateMatch(ctx, "no-hearts")
	if _, err := svc.SpawnHeart(ctx, disabled.ID); !errors.Is(err, service.ErrInvalidAction) {
		t.Errorf("Expected ErrInvalidAction when hearts are disabled, got %v", err)
	}
}

func TestGameService_GetActionLog(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	info, _ := svc.CreateMatch(ctx, "")
	_, _ = svc.JoinMatch(ctx, info.ID, service.JoinRequest{OwnerID: "alice"})
	_, _ = svc.GrantActionPoints(ctx, info.ID, 30)

	// Ten upgrades at three points each
	for i := 0; i < 10; i++ {
		result, err := svc.ApplyAction(ctx, info.ID, "alice", engine.ActionRequest{Kind: engine.KindUpgrade})
		if err != nil || !result.Applied {
			t.Fatalf("Upgrade %d failed: %v", i, err)
		}
	}

	tests := []struct {
		name        string
		opts        service.HistoryOptions
		wantCount   int
		wantFirst   int64
		wantPages   int
		wantNext    bool
		wantPrev    bool
		wantPageLen int
	}{
		{
			name:        "default newest first",
			opts:        service.HistoryOptions{},
			wantCount:   10,
			wantFirst:   10,
			wantPages:   1,
			wantPageLen: 20,
		},
		{
			name:        "ascending second page",
			opts:        service.HistoryOptions{Page: 2, Limit: 4, Order: "asc"},
			wantCount:   4,
			wantFirst:   5,
			wantPages:   3,
			wantNext:    true,
			wantPrev:    true,
			wantPageLen: 4,
		},
		{
			name:        "descending last page",
			opts:        service.HistoryOptions{Page: 3, Limit: 4, Order: "desc"},
			wantCount:   2,
			wantFirst:   2,
			wantPages:   3,
			wantPrev:    true,
			wantPageLen: 4,
		},
		{
			name:        "page past the end",
			opts:        service.HistoryOptions{Page: 9, Limit: 4},
			wantCount:   0,
			wantPages:   3,
			wantPrev:    true,
			wantPageLen: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.GetActionLog(ctx, info.ID, tt.opts)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(resp.Actions) != tt.wantCount {
				t.Fatalf("Expected %d actions, got %d", tt.wantCount, len(resp.Actions))
			}
			if tt.wantCount > 0 && resp.Actions[0].Seq != tt.wantFirst {
				t.Errorf("Expected first seq %d, got %d", tt.wantFirst, resp.Actions[0].Seq)
			}
			if resp.TotalActions != 10 {
				t.Errorf("Expected 10 total actions, got %d", resp.TotalActions)
			}
			if resp.TotalPages != tt.wantPages {
				t.Errorf("Expected %d pages, got %d", tt.wantPages, resp.TotalPages)
			}
			if resp.HasNext != tt.wantNext || resp.HasPrevious != tt.wantPrev {
				t.Errorf("Expected next=%v prev=%v, got next=%v prev=%v", tt.wantNext, tt.wantPrev, resp.HasNext, resp.HasPrevious)
			}
			if resp.PageSize != tt.wantPageLen {
				t.Errorf("Expected page size %d, got %d", tt.wantPageLen, resp.PageSize)
			}
		})
	}
}

func TestGameService_ListAndDeleteMatches(t *testing.T) {
	ctx := context.Background()
	svc, sessions := newTestService()

	for i := 0; i < 3; i++ {
		if _, err := svc.CreateMatch(ctx, ""); err != nil {
			t.Fatalf("Failed to create match: %v", err)
		}
	}

	matches, err := svc.ListMatches(ctx)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("Expected 3 matches, got %d", len(matches))
	}

	if err := svc.DeleteMatch(ctx, matches[0].ID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if len(sessions.List()) != 2 {
		t.Errorf("Expected 2 matches after delete, got %d", len(sessions.List()))
	}
}

func TestGameService_Rulesets(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	custom := engine.DefaultRules()
	custom.Name = "custom"
	custom.Cols = 8
	if err := svc.SaveRuleset(ctx, "custom", custom); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	loaded, err := svc.LoadRuleset(ctx, "custom")
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if loaded.Cols != 8 {
		t.Errorf("Expected 8 cols, got %d", loaded.Cols)
	}

	list, err := svc.ListRulesets(ctx)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(list) != 4 {
		t.Errorf("Expected 4 rulesets, got %d", len(list))
	}
}

func TestGameService_ConcurrentActionsAcrossMatches(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	var ids []string
	for i := 0; i < 4; i++ {
		info, _ := svc.CreateMatch(ctx, "")
		_, _ = svc.JoinMatch(ctx, info.ID, service.JoinRequest{OwnerID: "solo"})
		_, _ = svc.GrantActionPoints(ctx, info.ID, 30)
		ids = append(ids, info.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for j := 0; j < 5; j++ {
			wg.Add(1)
			go func(matchID string) {
				defer wg.Done()
				_, _ = svc.ApplyAction(ctx, matchID, "solo", engine.ActionRequest{Kind: engine.KindUpgrade})
			}(id)
		}
	}
	wg.Wait()

	for _, id := range ids {
		tank, err := svc.GetTank(ctx, id, "solo")
		if err != nil {
			t.Fatalf("Failed to get tank: %v", err)
		}
		if tank.Range != 7 || tank.Actions != 15 {
			t.Errorf("Match %s: expected range 7 and 15 actions, got range %d actions %d", id, tank.Range, tank.Actions)
		}
	}
}

func TestGameService_RetriesOnEvictedMatch(t *testing.T) {
	ctx := context.Background()
	svc, sessions := newTestService()

	info, _ := svc.CreateMatch(ctx, "")
	if _, err := svc.JoinMatch(ctx, info.ID, service.JoinRequest{OwnerID: "alice"}); err != nil {
		t.Fatalf("Failed to join: %v", err)
	}
	if _, err := svc.GrantActionPoints(ctx, info.ID, 4); err != nil {
		t.Fatalf("Failed to grant: %v", err)
	}

	sessions.closeUnderNextGet(t, info.ID, true)
	result, err := svc.ApplyAction(ctx, info.ID, "alice", engine.ActionRequest{Kind: engine.KindUpgrade})
	if err != nil {
		t.Fatalf("ApplyAction failed: %v", err)
	}
	if !result.Applied || result.Record.Seq != 1 {
		t.Fatalf("Expected the upgrade to apply on the live match, got %+v", result)
	}

	tank, err := svc.GetTank(ctx, info.ID, "alice")
	if err != nil {
		t.Fatalf("GetTank failed: %v", err)
	}
	if tank.Range != 3 || tank.Actions != 1 {
		t.Errorf("Expected range 3 and 1 action, got range %d and %d actions", tank.Range, tank.Actions)
	}

	sessions.closeUnderNextGet(t, info.ID, true)
	granted, err := svc.GrantActionPoints(ctx, info.ID, 2)
	if err != nil || granted.Granted != 1 {
		t.Errorf("Expected the grant to reach the live match, got %+v (%v)", granted, err)
	}
}

func TestGameService_DeletedUnderRequest(t *testing.T) {
	ctx := context.Background()
	svc, sessions := newTestService()

	info, _ := svc.CreateMatch(ctx, "")
	_, _ = svc.JoinMatch(ctx, info.ID, service.JoinRequest{OwnerID: "alice"})
	_, _ = svc.GrantActionPoints(ctx, info.ID, 4)

	sessions.closeUnderNextGet(t, info.ID, false)
	_, err := svc.ApplyAction(ctx, info.ID, "alice", engine.ActionRequest{Kind: engine.KindUpgrade})
	if !errors.Is(err, service.ErrMatchNotFound) {
		t.Errorf("Expected ErrMatchNotFound, got %v", err)
	}
}
