// Command analyze prints a human-readable report about stored matches: the
// board, each tank's stats, who can currently hit whom, and a tally of the
// action log (kills, damage, points given away).
//
//	analyze [--data-dir matches] [--storage file|sqlite] [match-id ...]
//
// With no match ids every stored match is analyzed.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/tank-tactics/game/config"
	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ff8844")).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444466")).
			Padding(0, 1)

	aliveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00ff88")).
			Bold(true)

	deadStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Strikethrough(true)

	heartStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ff4444")).
			Bold(true)

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#444444"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffcc00"))
)

// Threat is one tank having another within its range
type Threat struct {
	Shooter string
	Target  string
}

// Analysis summarizes one stored match
type Analysis struct {
	Snapshot     engine.MatchSnapshot
	Alive        int
	Defeated     int
	Leader       string
	ActionCounts map[engine.ActionKind]int
	Kills        map[string]int
	Damage       map[string]int
	PointsGiven  map[string]int
	Threats      []Threat
}

// analyzeMatch derives an Analysis from a snapshot and its action log
func analyzeMatch(snap engine.MatchSnapshot, log []engine.ActionLogEntry) (*Analysis, error) {
	grid, err := engine.GridFromSnapshot(snap.Board)
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", snap.ID, err)
	}

	a := &Analysis{
		Snapshot:     snap,
		ActionCounts: make(map[engine.ActionKind]int),
		Kills:        make(map[string]int),
		Damage:       make(map[string]int),
		PointsGiven:  make(map[string]int),
	}

	var leader *engine.TankState
	for i := range snap.Tanks {
		t := &snap.Tanks[i]
		if t.Life <= 0 {
			a.Defeated++
			continue
		}
		a.Alive++
		if leader == nil || t.Life > leader.Life || (t.Life == leader.Life && t.Actions > leader.Actions) {
			leader = t
		}
	}
	if leader != nil {
		a.Leader = leader.ID
	}

	for _, shooter := range snap.Tanks {
		if shooter.Life <= 0 {
			continue
		}
		for _, target := range snap.Tanks {
			if target.ID == shooter.ID || target.Life <= 0 {
				continue
			}
			if grid.WithinRange(shooter.Position, target.Position, shooter.Range) {
				a.Threats = append(a.Threats, Threat{Shooter: shooter.ID, Target: target.ID})
			}
		}
	}

	for _, e := range log {
		a.ActionCounts[e.Kind]++
		switch e.Kind {
		case engine.KindShoot:
			a.Damage[e.ActorID]++
			if e.Affected != nil && e.Affected.Life <= 0 {
				a.Kills[e.ActorID]++
			}
		case engine.KindGiveAction:
			a.PointsGiven[e.ActorID]++
		}
	}

	return a, nil
}

// tankLabels assigns each tank a board letter in join order: upper case
// while alive, lower case once defeated
func tankLabels(tanks []engine.TankState) map[string]string {
	labels := make(map[string]string, len(tanks))
	for i, t := range tanks {
		base := 'a'
		if t.Life > 0 {
			base = 'A'
		}
		labels[t.ID] = string(base + rune(i%26))
	}
	return labels
}

// renderBoard draws the board one styled character per cell
func renderBoard(snap engine.MatchSnapshot) string {
	labels := tankLabels(snap.Tanks)
	alive := make(map[string]bool, len(snap.Tanks))
	for _, t := range snap.Tanks {
		alive[t.ID] = t.Life > 0
	}

	var rows []string
	for y, row := range snap.Board.Cells {
		cells := make([]string, 0, len(row))
		for x, id := range row {
			switch {
			case id != "" && alive[id]:
				cells = append(cells, aliveStyle.Render(labels[id]))
			case id != "":
				cells = append(cells, deadStyle.Render(labels[id]))
			case snap.Heart != nil && *snap.Heart == (engine.Position{X: x, Y: y}):
				cells = append(cells, heartStyle.Render("+"))
			default:
				cells = append(cells, emptyStyle.Render("."))
			}
		}
		rows = append(rows, strings.Join(cells, " "))
	}
	return strings.Join(rows, "\n")
}

// renderTanks lists every tank with its stats and log tallies
func renderTanks(a *Analysis) string {
	labels := tankLabels(a.Snapshot.Tanks)

	var b strings.Builder
	fmt.Fprintf(&b, "%-3s %-16s %-9s %4s %7s %5s %5s %6s %5s\n", "", "TANK", "AT", "LIFE", "ACTIONS", "RANGE", "KILLS", "DAMAGE", "GIVEN")
	for _, t := range a.Snapshot.Tanks {
		line := fmt.Sprintf("%-3s %-16s %-9s %4d %7d %5d %5d %6d %5d",
			labels[t.ID], t.ID, t.Position.String(), t.Life, t.Actions, t.Range, a.Kills[t.ID], a.Damage[t.ID], a.PointsGiven[t.ID])
		if t.Life <= 0 {
			line = deadStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderReport assembles the full report for one match
func renderReport(a *Analysis) string {
	snap := a.Snapshot

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("=== Match %s (%s) ===", snap.ID, snap.Rules.Name)) + "\n")
	fmt.Fprintf(&b, "Board: %dx%d  Tanks: %d alive, %d defeated  Actions logged: %d\n",
		snap.Board.Cols, snap.Board.Rows, a.Alive, a.Defeated, snap.Seq)
	if snap.Heart != nil {
		fmt.Fprintf(&b, "Heart at %s\n", snap.Heart)
	}
	if a.Leader != "" {
		fmt.Fprintf(&b, "Leader: %s\n", a.Leader)
	}
	if a.Alive == 1 && a.Defeated > 0 {
		b.WriteString(aliveStyle.Render(fmt.Sprintf("Winner: %s", a.Leader)) + "\n")
	}

	b.WriteString(panelStyle.Render(renderBoard(snap)) + "\n")

	if len(snap.Tanks) > 0 {
		b.WriteString(renderTanks(a) + "\n")
	}

	if len(a.ActionCounts) > 0 {
		kinds := make([]string, 0, len(a.ActionCounts))
		for kind, n := range a.ActionCounts {
			kinds = append(kinds, fmt.Sprintf("%s=%d", kind, n))
		}
		sort.Strings(kinds)
		fmt.Fprintf(&b, "Actions: %s\n", strings.Join(kinds, " "))
	}

	if len(a.Threats) > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("⚠️  %d tanks in firing range:", len(a.Threats))) + "\n")
		for _, th := range a.Threats {
			fmt.Fprintf(&b, "   %s can hit %s\n", th.Shooter, th.Target)
		}
	} else if a.Alive > 1 {
		b.WriteString("✅ No tank can currently hit another\n")
	}

	return b.String()
}

// openStore opens the persistence backend holding the matches
func openStore(storage, dataDir string) (session.MatchPersistence, func() error, error) {
	if storage == config.StorageSQLite {
		db, err := session.OpenSQLite(filepath.Join(dataDir, "matches.db"))
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	}

	fp, err := session.NewFilePersistence(dataDir)
	if err != nil {
		return nil, nil, err
	}
	return fp, func() error { return nil }, nil
}

// analyzeStored loads a match from store and renders its report
func analyzeStored(ctx context.Context, store session.MatchPersistence, id string) (string, error) {
	snap, err := store.Load(ctx, id)
	if err != nil {
		return "", err
	}
	log, err := store.LoadActions(ctx, id)
	if err != nil {
		return "", err
	}

	a, err := analyzeMatch(*snap, log)
	if err != nil {
		return "", err
	}
	return renderReport(a), nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	dataDir := cmd.String("data-dir")

	store, closeStore, err := openStore(cmd.String("storage"), dataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeStore()

	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		ids, err = store.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("list matches: %w", err)
		}
		sort.Strings(ids)
	}

	if len(ids) == 0 {
		fmt.Printf("No matches stored in %s\n", dataDir)
		return nil
	}

	for _, id := range ids {
		report, err := analyzeStored(ctx, store, id)
		if err != nil {
			fmt.Printf("\nError analyzing %s: %v\n", id, err)
			continue
		}
		fmt.Println()
		fmt.Print(report)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:      "analyze",
		Usage:     "Report on stored Tank Tactics matches",
		ArgsUsage: "[match-id ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-dir", Value: "matches", Usage: "Directory holding stored matches"},
			&cli.StringFlag{Name: "storage", Value: config.StorageFile, Usage: "Storage backend: file or sqlite"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}
}
