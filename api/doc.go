// Package api provides HTTP REST API handlers for Tank Tactics.
//
// Endpoints:
//
// Matches:
//   - POST /api/matches - Create a match ({"ruleset": "classic"}, body optional)
//   - GET /api/matches - List matches (?sort=created|accessed&order=asc|desc&limit=N)
//   - GET /api/matches/{id} - Get match info
//   - DELETE /api/matches/{id} - Delete a match and its stored state
//   - GET /api/matches/{id}/board - Full board with every tank's stats
//
// Tanks:
//   - POST /api/matches/{id}/tanks - Join ({"owner_id": "...", "name": "...", "picture": "..."})
//   - GET /api/matches/{id}/tanks - Public roster
//   - GET /api/matches/{id}/tanks/{tank} - One tank's stats
//   - POST /api/matches/{id}/tanks/{tank}/actions - Perform an action
//
// Administration:
//   - GET /api/matches/{id}/actions - Action log (?page=N&limit=N&order=asc|desc)
//   - POST /api/matches/{id}/grant - Grant action points ({"amount": N}, body optional)
//   - POST /api/matches/{id}/heart - Spawn a heart pickup
//
// Rulesets:
//   - GET /api/rulesets - List rulesets
//   - POST /api/rulesets - Save a ruleset
//   - GET /api/rulesets/{name} - Get one ruleset
//
// Other:
//   - GET /ws?match={id} - WebSocket event stream
//   - GET /health - Liveness check
//
// Actions:
//
//	{"kind": "shoot", "destination": {"x": 3, "y": 4}}
//
// kind is one of move, shoot, give-action, upgrade and heal. Upgrade takes no
// destination; out-of-board destinations are clamped to the nearest edge.
//
// Status Codes:
//
// A legal request for an illegal action answers 200 with "applied": false
// and leaves the tank untouched. Unknown matches, tanks and rulesets answer
// 404, malformed requests 400 and a full board 409. Errors are JSON:
//
//	{"error": "match not found: abc"}
package api
