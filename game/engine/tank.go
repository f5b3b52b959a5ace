package engine

// Tank is one combat unit. Its fields are only written by the match that
// owns it, through resolved actions.
type Tank struct {
	id       string
	position Position
	life     int
	actions  int
	reach    int
	name     string
	picture  string
}

// TankState is a value copy of a tank, used for results, snapshots and the API
type TankState struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	Life     int      `json:"life"`
	Actions  int      `json:"actions"`
	Range    int      `json:"range"`
	Name     string   `json:"name"`
	Picture  string   `json:"picture"`
}

// PublicView is the projection of a tank that is safe to show other players
type PublicView struct {
	ID      string `json:"id"`
	Picture string `json:"picture"`
	Name    string `json:"name"`
}

func newTank(id, name, picture string, pos Position, rules *Rules) *Tank {
	return &Tank{
		id:       id,
		position: pos,
		life:     rules.StartingLife,
		actions:  rules.StartingActions,
		reach:    rules.StartingRange,
		name:     name,
		picture:  picture,
	}
}

func tankFromState(s TankState) *Tank {
	return &Tank{
		id:       s.ID,
		position: s.Position,
		life:     s.Life,
		actions:  s.Actions,
		reach:    s.Range,
		name:     s.Name,
		picture:  s.Picture,
	}
}

func (t *Tank) ID() string         { return t.id }
func (t *Tank) Position() Position { return t.position }
func (t *Tank) Life() int          { return t.life }
func (t *Tank) Actions() int       { return t.actions }
func (t *Tank) Range() int         { return t.reach }
func (t *Tank) Name() string       { return t.name }
func (t *Tank) Picture() string    { return t.picture }

// Defeated reports whether the tank has no life left. Defeated tanks stay on
// the board but can no longer act.
func (t *Tank) Defeated() bool {
	return t.life <= 0
}

// PublicView returns the id, picture and name of the tank
func (t *Tank) PublicView() PublicView {
	return PublicView{
		ID:      t.id,
		Picture: t.picture,
		Name:    t.name,
	}
}

// State returns a copy of all tank fields
func (t *Tank) State() TankState {
	return TankState{
		ID:       t.id,
		Position: t.position,
		Life:     t.life,
		Actions:  t.actions,
		Range:    t.reach,
		Name:     t.name,
		Picture:  t.picture,
	}
}

// ConsumeActionPoints deducts n action points without any floor check.
// Callers gate on the budget beforehand.
func (t *Tank) ConsumeActionPoints(n int) {
	t.actions -= n
}

// defeat zeroes the tank's remaining actions once its life is gone
func (t *Tank) defeat() {
	t.actions = 0
}
