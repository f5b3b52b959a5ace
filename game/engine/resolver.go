package engine

// resolveLocked is the action state machine. Every branch either validates
// and commits fully or returns false without touching any state.
func (m *Match) resolveLocked(t *Tank, action Action) (ActionRecord, bool) {
	// Exhausted or defeated tanks cannot act at all
	if t.actions <= 0 || t.life <= 0 {
		return ActionRecord{}, false
	}

	switch a := action.(type) {
	case Move:
		return m.move(t, m.clampToBoard(a.To))
	case Shoot:
		return m.shoot(t, m.clampToBoard(a.At))
	case GiveAction:
		return m.giveAction(t, m.clampToBoard(a.To))
	case Upgrade:
		return m.upgrade(t)
	case Heal:
		return m.heal(t, m.clampToBoard(a.At))
	}

	return ActionRecord{}, false
}

// clampToBoard redirects an out of board cell to the nearest boundary cell
func (m *Match) clampToBoard(p Position) Position {
	return Position{
		X: clamp(p.X, m.board.Cols()),
		Y: clamp(p.Y, m.board.Rows()),
	}
}

func (m *Match) move(t *Tank, dest Position) (ActionRecord, bool) {
	if !m.board.InBounds(dest) || m.board.Occupied(dest) {
		return ActionRecord{}, false
	}
	if !m.board.WithinRange(t.position, dest, MoveRadius) {
		return ActionRecord{}, false
	}

	if err := m.board.MoveOccupant(t.position, dest); err != nil {
		// Occupancy was checked above, so the board disagrees with the match
		panic("engine: board rejected validated move: " + err.Error())
	}

	if m.heart != nil && *m.heart == dest {
		t.life++
		m.clearHeartLocked()
	}
	t.position = dest

	m.recordAction(t, KindMove, &dest, nil)
	t.ConsumeActionPoints(MoveCost)

	return ActionRecord{Kind: KindMove, Destination: &dest}, true
}

func (m *Match) shoot(t *Tank, dest Position) (ActionRecord, bool) {
	target, ok := m.otherLivingTarget(t, dest)
	if !ok {
		return ActionRecord{}, false
	}

	target.life = max(0, target.life-1)
	if target.life == 0 {
		// The killer inherits whatever the victim had left, before paying for the shot
		t.actions += target.actions
		target.defeat()
	}

	m.recordAction(t, KindShoot, &dest, target)
	t.ConsumeActionPoints(ShootCost)

	affected := target.State()
	return ActionRecord{Kind: KindShoot, Destination: &dest, Affected: &affected}, true
}

func (m *Match) giveAction(t *Tank, dest Position) (ActionRecord, bool) {
	target, ok := m.otherLivingTarget(t, dest)
	if !ok {
		return ActionRecord{}, false
	}

	target.actions++

	m.recordAction(t, KindGiveAction, &dest, target)
	t.ConsumeActionPoints(GiveActionCost)

	affected := target.State()
	return ActionRecord{Kind: KindGiveAction, Destination: &dest, Affected: &affected}, true
}

func (m *Match) upgrade(t *Tank) (ActionRecord, bool) {
	if t.actions < UpgradeCost {
		return ActionRecord{}, false
	}

	t.reach++

	m.recordAction(t, KindUpgrade, nil, nil)
	t.ConsumeActionPoints(UpgradeCost)

	return ActionRecord{Kind: KindUpgrade}, true
}

// heal does not check that the occupant is alive: a defeated tank can be
// healed back to one life, though it keeps zero actions.
func (m *Match) heal(t *Tank, dest Position) (ActionRecord, bool) {
	if !m.board.InBounds(dest) {
		return ActionRecord{}, false
	}
	id, occupied := m.board.Occupant(dest)
	if !occupied {
		return ActionRecord{}, false
	}
	if !m.board.WithinRange(t.position, dest, t.reach) {
		return ActionRecord{}, false
	}
	if t.actions < HealCost {
		return ActionRecord{}, false
	}

	if dest == t.position {
		t.life++
		m.recordAction(t, KindHeal, nil, nil)
		t.ConsumeActionPoints(HealCost)
		return ActionRecord{Kind: KindHeal, Destination: &dest}, true
	}

	target := m.occupantTank(id)
	target.life++

	m.recordAction(t, KindHeal, &dest, target)
	t.ConsumeActionPoints(HealCost)

	affected := target.State()
	return ActionRecord{Kind: KindHeal, Destination: &dest, Affected: &affected}, true
}

// otherLivingTarget checks the shared SHOOT / GIVE_ACTION preconditions:
// dest is on the board, occupied by a living tank other than t, within t's range.
func (m *Match) otherLivingTarget(t *Tank, dest Position) (*Tank, bool) {
	id, occupied := m.board.Occupant(dest)
	if !occupied || !m.board.InBounds(dest) {
		return nil, false
	}
	if dest == t.position {
		return nil, false
	}
	if !m.board.WithinRange(t.position, dest, t.reach) {
		return nil, false
	}
	target := m.occupantTank(id)
	if target.life <= 0 {
		return nil, false
	}
	return target, true
}

func (m *Match) occupantTank(id string) *Tank {
	target, ok := m.tanks[id]
	if !ok {
		panic("engine: board references unknown tank " + id)
	}
	return target
}
