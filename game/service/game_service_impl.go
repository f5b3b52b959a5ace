package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/inconshreveable/log15/v3"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/logging"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions SessionManager
	rulesets RulesetManager
	logger   log15.Logger
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionManager, rulesets RulesetManager, logger log15.Logger) GameService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &gameServiceImpl{
		sessions: sessions,
		rulesets: rulesets,
		logger:   logger.New("component", "service"),
	}
}

// CreateMatch creates a new match using the named ruleset, or the default one
func (s *gameServiceImpl) CreateMatch(ctx context.Context, rulesetName string) (*MatchInfo, error) {
	var rules *engine.Rules
	if rulesetName != "" {
		loaded, err := s.rulesets.LoadRuleset(rulesetName)
		if err != nil {
			if errors.Is(err, ErrRulesetNotFound) {
				return nil, s.rulesetNotFound(rulesetName)
			}
			return nil, fmt.Errorf("failed to load ruleset %s: %w", rulesetName, err)
		}
		rules = loaded
	} else {
		rules = s.rulesets.GetDefault()
	}

	sess, err := s.sessions.Create("", rules)
	if err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}

	s.logger.Info("match created", "match", sess.ID, "ruleset", sess.RulesetName)
	return matchInfo(sess), nil
}

// GetMatch retrieves match information
func (s *gameServiceImpl) GetMatch(ctx context.Context, matchID string) (*MatchInfo, error) {
	sess, err := s.session(matchID)
	if err != nil {
		return nil, err
	}
	return matchInfo(sess), nil
}

// ListMatches returns all live matches
func (s *gameServiceImpl) ListMatches(ctx context.Context) ([]*MatchInfo, error) {
	sessions := s.sessions.List()
	result := make([]*MatchInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, matchInfo(sess))
	}
	return result, nil
}

// DeleteMatch removes a match and its persisted state
func (s *gameServiceImpl) DeleteMatch(ctx context.Context, matchID string) error {
	if err := s.sessions.Delete(matchID); err != nil {
		if errors.Is(err, ErrMatchNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete match %s: %w", matchID, err)
	}
	s.logger.Info("match deleted", "match", matchID)
	return nil
}

// JoinMatch places a tank for the owner. Joining twice returns the existing tank.
func (s *gameServiceImpl) JoinMatch(ctx context.Context, matchID string, req JoinRequest) (*JoinResult, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner_id is required", ErrInvalidAction)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = ownerID
	}

	var result *JoinResult
	err := s.onLiveMatch(matchID, func(sess *Session) error {
		if existing, ok := sess.Match.Tank(ownerID); ok {
			result = &JoinResult{Tank: existing, Created: false}
			return nil
		}

		tank, err := sess.Match.CreateTank(ownerID, name, req.Picture)
		if errors.Is(err, engine.ErrTankExists) {
			// Lost a race against a concurrent join of the same owner
			existing, _ := sess.Match.Tank(ownerID)
			result = &JoinResult{Tank: existing, Created: false}
			return nil
		}
		if err != nil {
			return err
		}
		result = &JoinResult{Tank: tank, Created: true}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMatchNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create tank: %w", err)
	}
	if !result.Created {
		return result, nil
	}

	s.logger.Info("tank joined", "match", matchID, "tank", ownerID, "position", result.Tank.Position)
	return result, nil
}

// GetTank returns the full state of one tank
func (s *gameServiceImpl) GetTank(ctx context.Context, matchID, tankID string) (*engine.TankState, error) {
	sess, err := s.session(matchID)
	if err != nil {
		return nil, err
	}
	tank, ok := sess.Match.Tank(tankID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTankNotFound, tankID)
	}
	return &tank, nil
}

// ListTanks returns the public roster of a match
func (s *gameServiceImpl) ListTanks(ctx context.Context, matchID string) ([]engine.PublicView, error) {
	sess, err := s.session(matchID)
	if err != nil {
		return nil, err
	}
	return sess.Match.Roster(), nil
}

// ApplyAction resolves one action for a tank. Malformed requests are errors;
// illegal actions come back with Applied set to false.
func (s *gameServiceImpl) ApplyAction(ctx context.Context, matchID, tankID string, req engine.ActionRequest) (*ActionResult, error) {
	action, err := req.Action()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}

	var (
		record  engine.ActionRecord
		applied bool
		actor   engine.TankState
	)
	err = s.onLiveMatch(matchID, func(sess *Session) error {
		// Tanks are never removed from a match, so the check cannot go stale
		if _, ok := sess.Match.Tank(tankID); !ok {
			return fmt.Errorf("%w: %s", ErrTankNotFound, tankID)
		}
		record, applied = sess.Match.Resolve(tankID, action)
		actor, _ = sess.Match.Tank(tankID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &ActionResult{
		Applied: applied,
		Actor:   actor,
	}
	if applied {
		result.Record = &record
		result.Message = fmt.Sprintf("%s applied", action.Kind())
		s.logger.Info("action applied", "match", matchID, "tank", tankID, "kind", action.Kind())
	} else {
		result.Message = fmt.Sprintf("%s rejected", action.Kind())
		s.logger.Debug("action rejected", "match", matchID, "tank", tankID, "kind", action.Kind())
	}
	return result, nil
}

// GrantActionPoints hands out action points to every living tank in a match
func (s *gameServiceImpl) GrantActionPoints(ctx context.Context, matchID string, amount int) (*GrantResult, error) {
	var granted int
	err := s.onLiveMatch(matchID, func(sess *Session) error {
		if amount <= 0 {
			amount = sess.Match.Rules().DailyActionPoints
		}
		granted = sess.Match.GrantActionPoints(amount)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("action points granted", "match", matchID, "amount", amount, "tanks", granted)
	return &GrantResult{Amount: amount, Granted: granted}, nil
}

// SpawnHeart drops a heart pickup on the board
func (s *gameServiceImpl) SpawnHeart(ctx context.Context, matchID string) (*engine.Position, error) {
	var pos engine.Position
	err := s.onLiveMatch(matchID, func(sess *Session) error {
		if !sess.Match.Rules().HeartPickups {
			return fmt.Errorf("%w: heart pickups are disabled for this match", ErrInvalidAction)
		}
		spawned, err := sess.Match.SpawnHeart()
		if err != nil {
			return err
		}
		pos = spawned
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMatchNotFound) || errors.Is(err, ErrInvalidAction) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to spawn heart: %w", err)
	}

	s.logger.Info("heart spawned", "match", matchID, "position", pos)
	return &pos, nil
}

// GetBoard returns the board with every tank's stats
func (s *gameServiceImpl) GetBoard(ctx context.Context, matchID string) (*BoardView, error) {
	sess, err := s.session(matchID)
	if err != nil {
		return nil, err
	}

	snap := sess.Match.Snapshot()
	return &BoardView{
		MatchID: snap.ID,
		Board:   snap.Board,
		Tanks:   snap.Tanks,
		Heart:   snap.Heart,
	}, nil
}

// GetActionLog returns a page of the audit log
func (s *gameServiceImpl) GetActionLog(ctx context.Context, matchID string, opts HistoryOptions) (*HistoryResponse, error) {
	sess, err := s.session(matchID)
	if err != nil {
		return nil, err
	}

	history := sess.Match.ActionLog()
	total := len(history)

	// Apply defaults
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultHistoryLimit
	}
	if opts.Limit > maxHistoryLimit {
		opts.Limit = maxHistoryLimit
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := min(start+opts.Limit, total)

	actions := []engine.ActionLogEntry{}
	if start < total {
		if opts.Order == "desc" {
			// Most recent first
			for i := total - 1 - start; i >= total-end; i-- {
				actions = append(actions, history[i])
			}
		} else {
			actions = append(actions, history[start:end]...)
		}
	}

	return &HistoryResponse{
		Actions:      actions,
		TotalActions: total,
		Page:         opts.Page,
		PageSize:     opts.Limit,
		TotalPages:   totalPages,
		HasNext:      opts.Page < totalPages,
		HasPrevious:  opts.Page > 1,
	}, nil
}

// ListRulesets returns available rulesets
func (s *gameServiceImpl) ListRulesets(ctx context.Context) ([]*RulesetInfo, error) {
	return s.rulesets.ListRulesets()
}

// LoadRuleset loads a specific ruleset
func (s *gameServiceImpl) LoadRuleset(ctx context.Context, name string) (*engine.Rules, error) {
	return s.rulesets.LoadRuleset(name)
}

// SaveRuleset saves a ruleset to disk
func (s *gameServiceImpl) SaveRuleset(ctx context.Context, name string, rules *engine.Rules) error {
	return s.rulesets.SaveRuleset(name, rules)
}

// session fetches a live match and marks it as accessed
func (s *gameServiceImpl) session(matchID string) (*Session, error) {
	sess, err := s.sessions.Get(matchID)
	if err != nil {
		if errors.Is(err, ErrMatchNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
		}
		return nil, fmt.Errorf("failed to load match %s: %w", matchID, err)
	}
	if err := s.sessions.UpdateLastAccessed(matchID); err != nil {
		// Evicted between the lookup and the touch; a second Get restores it
		s.logger.Debug("match left memory during lookup", "match", matchID, "err", err)
		return s.sessions.Get(matchID)
	}
	return sess, nil
}

// onLiveMatch runs op against a match. When the match was closed under op,
// because it was evicted or deleted meanwhile, op ran against a stale copy
// and runs once more on a fresh lookup.
func (s *gameServiceImpl) onLiveMatch(matchID string, op func(*Session) error) error {
	for attempt := 0; attempt < 2; attempt++ {
		sess, err := s.session(matchID)
		if err != nil {
			return err
		}
		err = op(sess)
		if !sess.Match.Closed() {
			return err
		}
		s.logger.Debug("match closed under request, retrying", "match", matchID)
	}
	return fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
}

// rulesetNotFound lists the available rulesets to help the caller
func (s *gameServiceImpl) rulesetNotFound(name string) error {
	available, err := s.rulesets.ListRulesets()
	if err == nil && len(available) > 0 {
		ids := make([]string, 0, len(available))
		for _, r := range available {
			ids = append(ids, r.RulesetID)
		}
		return fmt.Errorf("%w: '%s'. Available rulesets: %v", ErrRulesetNotFound, name, ids)
	}
	return fmt.Errorf("%w: '%s'. Use /api/rulesets to list available rulesets", ErrRulesetNotFound, name)
}

func matchInfo(sess *Session) *MatchInfo {
	snap := sess.Match.Snapshot()

	alive := 0
	for _, t := range snap.Tanks {
		if t.Life > 0 {
			alive++
		}
	}

	return &MatchInfo{
		ID:             sess.ID,
		RulesetName:    sess.RulesetName,
		Rules:          snap.Rules,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		Tanks:          sess.Match.Roster(),
		Alive:          alive,
		Heart:          snap.Heart,
		ActionCount:    snap.Seq,
	}
}
