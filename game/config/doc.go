// Package config provides ruleset and process configuration for Tank Tactics.
//
// The config package handles:
//   - Loading rulesets from JSON and YAML files
//   - Ruleset validation, caching and listing
//   - Default ruleset management
//   - Process settings read from the environment
//
// Ruleset Format:
//
// Rulesets are stored in the configs directory as JSON (.json) or YAML
// (.yaml, .yml). Each ruleset defines the board size, the starting stats of
// new tanks, the daily action point grant and whether heart pickups spawn.
//
//	name: skirmish
//	cols: 10
//	rows: 10
//	starting_life: 3
//	starting_range: 2
//	starting_actions: 1
//	daily_action_points: 2
//	heart_pickups: true
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	rules, err := manager.LoadRuleset("skirmish")
//	defaultRules := manager.GetDefault()
//	available, err := manager.ListRulesets()
//
// When no classic ruleset exists the first valid file becomes the default,
// and with an empty directory the built-in engine.DefaultRules are used.
//
// Settings:
//
// LoadSettings reads TANKS_* variables (host, port, directories, storage
// backend, log options, session TTL) and the NGROK_* tunnel variables.
package config
