package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var ErrInvalidRules = errors.New("invalid rules")

// Rules holds the per-match settings loaded from a ruleset file
type Rules struct {
	Name              string `json:"name" yaml:"name"`
	Description       string `json:"description" yaml:"description"`
	Cols              int    `json:"cols" yaml:"cols"`
	Rows              int    `json:"rows" yaml:"rows"`
	StartingLife      int    `json:"starting_life" yaml:"starting_life"`
	StartingRange     int    `json:"starting_range" yaml:"starting_range"`
	StartingActions   int    `json:"starting_actions" yaml:"starting_actions"`
	DailyActionPoints int    `json:"daily_action_points" yaml:"daily_action_points"`
	HeartPickups      bool   `json:"heart_pickups" yaml:"heart_pickups"`
}

// DefaultRules returns the classic settings: 20x20 board, life 3, range 2, no
// starting actions and one action point per day.
func DefaultRules() *Rules {
	return &Rules{
		Name:              "classic",
		Description:       "Classic tank tactics on a 20x20 board",
		Cols:              DefaultCols,
		Rows:              DefaultRows,
		StartingLife:      DefaultLife,
		StartingRange:     DefaultRange,
		StartingActions:   DefaultActions,
		DailyActionPoints: 1,
		HeartPickups:      true,
	}
}

// ValidateRules validates a ruleset for correctness and playability
func ValidateRules(r *Rules) error {
	if r == nil {
		return fmt.Errorf("%w: rules cannot be nil", ErrInvalidRules)
	}

	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRules)
	}

	if r.Cols < MinBoardSize || r.Cols > MaxBoardSize {
		return fmt.Errorf("%w: cols must be between %d and %d, got %d", ErrInvalidRules, MinBoardSize, MaxBoardSize, r.Cols)
	}
	if r.Rows < MinBoardSize || r.Rows > MaxBoardSize {
		return fmt.Errorf("%w: rows must be between %d and %d, got %d", ErrInvalidRules, MinBoardSize, MaxBoardSize, r.Rows)
	}

	if r.StartingLife < 1 {
		return fmt.Errorf("%w: starting_life must be positive, got %d", ErrInvalidRules, r.StartingLife)
	}
	if r.StartingRange < 1 {
		return fmt.Errorf("%w: starting_range must be positive, got %d", ErrInvalidRules, r.StartingRange)
	}
	if r.StartingActions < 0 {
		return fmt.Errorf("%w: starting_actions cannot be negative, got %d", ErrInvalidRules, r.StartingActions)
	}
	if r.DailyActionPoints < 0 {
		return fmt.Errorf("%w: daily_action_points cannot be negative, got %d", ErrInvalidRules, r.DailyActionPoints)
	}

	return nil
}

// LoadRules loads a ruleset from a JSON file
func LoadRules(filename string) (*Rules, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var rules Rules
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file '%s': %w", filename, err)
	}

	if err := ValidateRules(&rules); err != nil {
		return nil, err
	}

	return &rules, nil
}
