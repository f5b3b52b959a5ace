// Package service provides the business logic layer for Tank Tactics.
//
// The service package implements:
//   - Multi-match management
//   - Ruleset selection
//   - Joining players to matches
//   - Action dispatch and result reporting
//   - Action point grants and heart spawns
//   - Paginated action history
//
// Core Interfaces:
//
// GameService is the main service interface used by the HTTP, WebSocket and
// MCP transports. SessionManager stores matches and RulesetManager loads
// rulesets; both are implemented outside this package.
//
// Rejected actions are not errors: ApplyAction reports them with
// Applied=false so the caller can tell a turn that did nothing from a
// request that could not be understood.
//
// Usage:
//
//	sessions := session.NewManager()
//	rulesets, _ := config.NewManager("configs")
//	svc := service.NewGameService(sessions, rulesets, logger)
//
//	info, err := svc.CreateMatch(ctx, "classic")
//	joined, err := svc.JoinMatch(ctx, info.ID, service.JoinRequest{OwnerID: "alice"})
//	result, err := svc.ApplyAction(ctx, info.ID, "alice", engine.ActionRequest{Kind: "upgrade"})
package service
