// Command bot plays one tank through the REST API. It joins (or creates) a
// match and spends the tank's action points turn by turn using a simple
// greedy strategy, then exits. Run it again after the next grant.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/inconshreveable/log15/v3"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/tank-tactics/game/service"
	"github.com/wricardo/tank-tactics/logging"
)

// Summary reports what one play session did
type Summary struct {
	Turns    int
	Applied  int
	Rejected int
	Won      bool
}

// play spends the joined tank's action points until the strategy has nothing
// to do, maxTurns is reached or ctx is done
func play(ctx context.Context, client *Client, strategy *Strategy, maxTurns int, delay time.Duration, logger log15.Logger) (*Summary, error) {
	summary := &Summary{}

	for summary.Turns < maxTurns {
		view, err := client.Board(ctx)
		if err != nil {
			return summary, err
		}
		if Won(view, client.tankID) {
			summary.Won = true
			return summary, nil
		}

		req, ok := strategy.Next(view)
		if !ok {
			logger.Info("nothing to do")
			return summary, nil
		}

		result, err := client.Act(ctx, req)
		if err != nil {
			return summary, err
		}
		summary.Turns++

		if !result.Applied {
			// Another player acted since the board was read; retry with a fresh view
			summary.Rejected++
			logger.Warn("action rejected", "kind", req.Kind, "message", result.Message)
			if summary.Rejected > 3 {
				return summary, nil
			}
			continue
		}

		summary.Applied++
		logger.Info("action applied", "kind", req.Kind, "destination", req.Destination, "actions_left", result.Actor.Actions)

		if delay > 0 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return summary, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger := logging.New(logging.Options{
		Format: cmd.String("log-format"),
		Debug:  cmd.Bool("v"),
	}, "app", "bot")

	client := NewClient(cmd.String("url"))

	matchID := cmd.String("match")
	if matchID == "" {
		info, err := client.CreateMatch(ctx, cmd.String("ruleset"))
		if err != nil {
			return err
		}
		matchID = info.ID
		logger.Info("match created", "match", matchID, "ruleset", info.RulesetName)
	}

	joined, err := client.Join(ctx, matchID, service.JoinRequest{
		OwnerID: cmd.String("owner"),
		Name:    cmd.String("name"),
	})
	if err != nil {
		return err
	}
	logger.Info("playing", "match", matchID, "tank", joined.Tank.ID, "at", joined.Tank.Position.String(),
		"life", joined.Tank.Life, "actions", joined.Tank.Actions, "new", joined.Created)

	summary, err := play(ctx, client, NewStrategy(joined.Tank.ID), cmd.Int("max-turns"), cmd.Duration("delay"), logger)
	if err != nil {
		return err
	}

	logger.Info("done", "turns", summary.Turns, "applied", summary.Applied, "rejected", summary.Rejected, "won", summary.Won)
	if summary.Won {
		fmt.Printf("🎉 %s is the last tank standing in %s\n", joined.Tank.ID, matchID)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "bot",
		Usage: "Play one tank through the Tank Tactics REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "Game server URL"},
			&cli.StringFlag{Name: "match", Usage: "Match to join (default: create one)"},
			&cli.StringFlag{Name: "ruleset", Usage: "Ruleset for a new match"},
			&cli.StringFlag{Name: "owner", Value: "bot", Usage: "Owner id of the tank"},
			&cli.StringFlag{Name: "name", Value: "Bot", Usage: "Display name of the tank"},
			&cli.IntFlag{Name: "max-turns", Value: 100, Usage: "Maximum actions to submit"},
			&cli.DurationFlag{Name: "delay", Usage: "Delay between actions"},
			&cli.StringFlag{Name: "log-format", Value: "terminal", Usage: "Log format: logfmt, json or terminal"},
			&cli.BoolFlag{Name: "v", Usage: "Verbose output"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "bot: %v\n", err)
		os.Exit(1)
	}
}
