// Package mcp exposes Tank Tactics to AI agents over the Model Context
// Protocol.
//
// The client is thin: every tool call becomes a REST request against a
// running server, and the JSON answer is rendered as text. Tool arguments
// are coerced with spf13/cast, so numbers may arrive as JSON numbers or as
// strings.
//
// MCP Tools:
//   - create_match: Create a match from a ruleset
//   - list_matches: List active matches
//   - join_match: Get a tank in a match
//   - act: Move, shoot, give-action, upgrade or heal
//   - board: Render the board and every tank's stats
//   - action_log: Page through committed actions
//   - grant_action_points: Hand out action points
//   - list_rulesets: List rulesets
//   - game_instructions: Full rules text
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	if err := server.ServeStdio(client.GetMCPServer()); err != nil {
//		log.Fatal(err)
//	}
package mcp
