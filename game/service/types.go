package service

import (
	"time"

	"github.com/wricardo/tank-tactics/game/engine"
)

// MatchInfo provides information about a match
type MatchInfo struct {
	ID             string              `json:"id"`
	RulesetName    string              `json:"ruleset_name"`
	Rules          engine.Rules        `json:"rules"`
	CreatedAt      time.Time           `json:"created_at"`
	LastAccessedAt time.Time           `json:"last_accessed_at"`
	Tanks          []engine.PublicView `json:"tanks"`
	Alive          int                 `json:"alive"`
	Heart          *engine.Position    `json:"heart,omitempty"`
	ActionCount    int64               `json:"action_count"`
}

// JoinRequest asks for a tank in a match. OwnerID identifies the player and
// becomes the tank id.
type JoinRequest struct {
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// JoinResult is returned by JoinMatch. Created is false when the owner
// already had a tank in the match.
type JoinResult struct {
	Tank    engine.TankState `json:"tank"`
	Created bool             `json:"created"`
}

// ActionResult contains the outcome of one action. A rejected action is not
// an error: Applied is false and the actor is unchanged.
type ActionResult struct {
	Applied bool                 `json:"applied"`
	Record  *engine.ActionRecord `json:"record,omitempty"`
	Actor   engine.TankState     `json:"actor"`
	Message string               `json:"message"`
}

// GrantResult reports a round of action point distribution
type GrantResult struct {
	Amount  int `json:"amount"`
	Granted int `json:"granted"`
}

// BoardView is the full board with every tank's stats
type BoardView struct {
	MatchID string               `json:"match_id"`
	Board   engine.BoardSnapshot `json:"board"`
	Tanks   []engine.TankState   `json:"tanks"`
	Heart   *engine.Position     `json:"heart,omitempty"`
}

// HistoryOptions configures action log retrieval
type HistoryOptions struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Order string `json:"order"` // "asc" or "desc"
}

// HistoryResponse contains a page of the action log
type HistoryResponse struct {
	Actions      []engine.ActionLogEntry `json:"actions"`
	TotalActions int                     `json:"total_actions"`
	Page         int                     `json:"page"`
	PageSize     int                     `json:"page_size"`
	TotalPages   int                     `json:"total_pages"`
	HasNext      bool                    `json:"has_next"`
	HasPrevious  bool                    `json:"has_previous"`
}

// RulesetInfo provides information about a ruleset file
type RulesetInfo struct {
	Filename    string `json:"filename"`
	RulesetID   string `json:"ruleset_id"` // The identifier to use for match creation
	Name        string `json:"name"`
	Description string `json:"description"`
	Cols        int    `json:"cols"`
	Rows        int    `json:"rows"`
}
