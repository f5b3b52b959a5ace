package service

import (
	"context"
	"errors"
	"time"

	"github.com/wricardo/tank-tactics/game/engine"
)

var (
	ErrMatchNotFound   = errors.New("match not found")
	ErrTankNotFound    = errors.New("tank not found")
	ErrInvalidAction   = errors.New("invalid action")
	ErrRulesetNotFound = errors.New("ruleset not found")
)

// GameService defines all match-related operations
type GameService interface {
	// Match Management
	CreateMatch(ctx context.Context, rulesetName string) (*MatchInfo, error)
	GetMatch(ctx context.Context, matchID string) (*MatchInfo, error)
	ListMatches(ctx context.Context) ([]*MatchInfo, error)
	DeleteMatch(ctx context.Context, matchID string) error

	// Tanks
	JoinMatch(ctx context.Context, matchID string, req JoinRequest) (*JoinResult, error)
	GetTank(ctx context.Context, matchID, tankID string) (*engine.TankState, error)
	ListTanks(ctx context.Context, matchID string) ([]engine.PublicView, error)

	// Gameplay
	ApplyAction(ctx context.Context, matchID, tankID string, req engine.ActionRequest) (*ActionResult, error)
	GrantActionPoints(ctx context.Context, matchID string, amount int) (*GrantResult, error)
	SpawnHeart(ctx context.Context, matchID string) (*engine.Position, error)

	// Match State
	GetBoard(ctx context.Context, matchID string) (*BoardView, error)
	GetActionLog(ctx context.Context, matchID string, opts HistoryOptions) (*HistoryResponse, error)

	// Rulesets
	ListRulesets(ctx context.Context) ([]*RulesetInfo, error)
	LoadRuleset(ctx context.Context, name string) (*engine.Rules, error)
	SaveRuleset(ctx context.Context, name string, rules *engine.Rules) error
}

// SessionManager defines match session storage operations
type SessionManager interface {
	Create(id string, rules *engine.Rules) (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
}

// RulesetManager handles ruleset loading
type RulesetManager interface {
	LoadRuleset(name string) (*engine.Rules, error)
	ListRulesets() ([]*RulesetInfo, error)
	GetDefault() *engine.Rules
	SaveRuleset(name string, rules *engine.Rules) error
}

// Session represents a live match
type Session struct {
	ID             string
	Match          *engine.Match
	RulesetName    string
	CreatedAt      time.Time
	LastAccessedAt time.Time
}
