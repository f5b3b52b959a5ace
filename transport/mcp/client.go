package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Tank Tactics",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Tank Tactics - MCP Interface

This is a thin client that proxies all requests to the REST API server.

GAME OBJECTIVE:
Be the last tank with life left. Tanks spend action points to move, shoot,
give points away, upgrade their range or heal.

AVAILABLE TOOLS:
- create_match: Create a new match from a ruleset
- list_matches: List matches
- join_match: Get a tank in a match (idempotent per owner)
- act: Perform an action with your tank - requires intent explanation
- board: Show the board and every tank's stats
- action_log: View committed actions
- grant_action_points: Hand out action points to every living tank
- list_rulesets: List available rulesets
- game_instructions: Get the full rules

NOTE: The 'intent' parameter on act serves as rubber duck debugging - explain your reasoning!`),
	)

	c.registerTools()
}

func matchIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Match ID",
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Match management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_match",
		Description: "Create a new match with optional ruleset selection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"ruleset": map[string]interface{}{
					"type":        "string",
					"description": "Ruleset to use (optional, defaults to classic)",
				},
			},
		},
	}, c.handleCreateMatch)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_matches",
		Description: "List all active matches",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListMatches)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "join_match",
		Description: "Join a match. Returns your existing tank if you already joined.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"match_id": matchIDProperty(),
				"owner_id": map[string]interface{}{
					"type":        "string",
					"description": "Your player ID; it becomes your tank ID",
				},
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Display name (optional)",
				},
				"picture": map[string]interface{}{
					"type":        "string",
					"description": "Picture URL (optional)",
				},
			},
			Required: []string{"match_id", "owner_id"},
		},
	}, c.handleJoinMatch)

	// Gameplay
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "act",
		Description: "Perform one action with a tank: move, shoot, give-action, upgrade or heal",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"match_id": matchIDProperty(),
				"tank_id": map[string]interface{}{
					"type":        "string",
					"description": "Acting tank ID",
				},
				"kind": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"move", "shoot", "give-action", "upgrade", "heal"},
					"description": "Action kind",
				},
				"x": map[string]interface{}{
					"type":        "integer",
					"description": "Destination column (not used by upgrade)",
				},
				"y": map[string]interface{}{
					"type":        "integer",
					"description": "Destination row (not used by upgrade)",
				},
				"intent": map[string]interface{}{
					"type":        "string",
					"description": "Explain why you are taking this action",
				},
			},
			Required: []string{"match_id", "tank_id", "kind", "intent"},
		},
	}, c.handleAct)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "board",
		Description: "Show the board with every tank's position, life, actions and range",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"match_id": matchIDProperty(),
			},
			Required: []string{"match_id"},
		},
	}, c.handleBoard)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "action_log",
		Description: "View committed actions of a match with pagination",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"match_id": matchIDProperty(),
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "Page number (default 1)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Entries per page (default 20, max 100)",
				},
				"order": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"asc", "desc"},
					"description": "Sort order (default desc)",
				},
			},
			Required: []string{"match_id"},
		},
	}, c.handleActionLog)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "grant_action_points",
		Description: "Give every living tank action points (defaults to the ruleset's daily amount)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"match_id": matchIDProperty(),
				"amount": map[string]interface{}{
					"type":        "integer",
					"description": "Points per tank (optional)",
				},
			},
			Required: []string{"match_id"},
		},
	}, c.handleGrant)

	// Rulesets
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rulesets",
		Description: "List available rulesets",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListRulesets)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Get the complete rules of Tank Tactics",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGameInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

// requiredString reads a non-empty string argument
func requiredString(args map[string]interface{}, key string) (string, error) {
	v := strings.TrimSpace(cast.ToString(args[key]))
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// Tool handlers

func (c *Client) handleCreateMatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	body := map[string]string{}
	if ruleset := cast.ToString(args["ruleset"]); ruleset != "" {
		body["ruleset"] = ruleset
	}

	var match service.MatchInfo
	if err := c.apiCall(ctx, "POST", "/api/matches", body, &match); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created match: %s\nRuleset: %s\nBoard: %dx%d\n",
		match.ID, match.RulesetName, match.Rules.Cols, match.Rules.Rows)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListMatches(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count   int                 `json:"count"`
		Matches []service.MatchInfo `json:"matches"`
	}

	if err := c.apiCall(ctx, "GET", "/api/matches", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Active Matches (%d):\n\n", response.Count)
	for _, m := range response.Matches {
		result += fmt.Sprintf("- %s (Ruleset: %s, Tanks: %d, Alive: %d, Created: %s)\n",
			m.ID, m.RulesetName, len(m.Tanks), m.Alive, m.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleJoinMatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	matchID, err := requiredString(args, "match_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ownerID, err := requiredString(args, "owner_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := service.JoinRequest{
		OwnerID: ownerID,
		Name:    cast.ToString(args["name"]),
		Picture: cast.ToString(args["picture"]),
	}

	var joined service.JoinResult
	if err := c.apiCall(ctx, "POST", fmt.Sprintf("/api/matches/%s/tanks", url.PathEscape(matchID)), body, &joined); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	verb := "Joined"
	if !joined.Created {
		verb = "Already in"
	}
	result := fmt.Sprintf("%s match %s\n\n%s", verb, matchID, formatTank(joined.Tank))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleAct(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	matchID, err := requiredString(args, "match_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tankID, err := requiredString(args, "tank_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := engine.ParseActionKind(cast.ToString(args["kind"]))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// Intent parameter serves as rubber duck debugging - we don't need to process it further
	_ = args["intent"]

	req := engine.ActionRequest{Kind: kind}
	if kind.Targeted() {
		x, errX := cast.ToIntE(args["x"])
		y, errY := cast.ToIntE(args["y"])
		if args["x"] == nil || args["y"] == nil || errX != nil || errY != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s needs integer x and y", kind)), nil
		}
		req.Destination = &engine.Position{X: x, Y: y}
	}

	var result service.ActionResult
	path := fmt.Sprintf("/api/matches/%s/tanks/%s/actions", url.PathEscape(matchID), url.PathEscape(tankID))
	if err := c.apiCall(ctx, "POST", path, req, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatActionResult(&result)), nil
}

func (c *Client) handleBoard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	matchID, err := requiredString(arguments(request), "match_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var board service.BoardView
	if err := c.apiCall(ctx, "GET", fmt.Sprintf("/api/matches/%s/board", url.PathEscape(matchID)), nil, &board); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatBoard(&board)), nil
}

func (c *Client) handleActionLog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	matchID, err := requiredString(args, "match_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	params := url.Values{}
	if page := cast.ToInt(args["page"]); page > 0 {
		params.Set("page", cast.ToString(page))
	}
	if limit := cast.ToInt(args["limit"]); limit > 0 {
		params.Set("limit", cast.ToString(limit))
	}
	if order := cast.ToString(args["order"]); order != "" {
		params.Set("order", order)
	}

	path := fmt.Sprintf("/api/matches/%s/actions", url.PathEscape(matchID))
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var history service.HistoryResponse
	if err := c.apiCall(ctx, "GET", path, nil, &history); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatHistory(&history)), nil
}

func (c *Client) handleGrant(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	matchID, err := requiredString(args, "match_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]int{}
	if args["amount"] != nil {
		amount, err := cast.ToIntE(args["amount"])
		if err != nil {
			return mcp.NewToolResultError("amount must be an integer"), nil
		}
		body["amount"] = amount
	}

	var grant service.GrantResult
	if err := c.apiCall(ctx, "POST", fmt.Sprintf("/api/matches/%s/grant", url.PathEscape(matchID)), body, &grant); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Granted %d action point(s) to %d tank(s)", grant.Amount, grant.Granted)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListRulesets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var rulesets []service.RulesetInfo
	if err := c.apiCall(ctx, "GET", "/api/rulesets", nil, &rulesets); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := "Available Rulesets:\n\n"
	for _, r := range rulesets {
		result += fmt.Sprintf("• %s\n  %s\n  Board: %dx%d\n\n", r.RulesetID, r.Description, r.Cols, r.Rows)
	}

	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(gameInstructions), nil
}

const gameInstructions = `TANK TACTICS RULES

Every tank sits on its own cell of a rectangular board and starts with 3 life,
range 2 and no action points. Action points arrive in periodic grants to every
living tank. A tank with no life is defeated: it stays on the board but can no
longer act.

DISTANCE:
Distance is measured in king moves: diagonal steps count as one.

ACTIONS (cost in action points):
- move (1): step to an empty adjacent cell, including diagonals. Moving onto a
  heart pickup gains 1 life.
- shoot (1): hit a living tank within range for 1 damage. The tank that lands
  the killing shot takes all of the victim's action points.
- give-action (1): hand one action point to a living tank within range. The
  receiver gains one point; the giver pays one.
- upgrade (3): increase your range by 1.
- heal (3): restore 1 life to yourself, or to a tank within range. Healing a
  defeated tank brings it back with 1 life.

An action that breaks a rule is rejected and costs nothing. Coordinates off the
board are moved to the nearest edge before the rules are checked.`

// Formatting helpers

func formatTank(t engine.TankState) string {
	return fmt.Sprintf("Tank %s (%s)\nPosition: %s\nLife: %d  Actions: %d  Range: %d\n",
		t.ID, t.Name, t.Position, t.Life, t.Actions, t.Range)
}

func formatActionResult(result *service.ActionResult) string {
	var b strings.Builder
	if result.Applied {
		b.WriteString("✓ " + result.Message + "\n")
		if rec := result.Record; rec != nil {
			if rec.Destination != nil {
				b.WriteString(fmt.Sprintf("Destination: %s\n", rec.Destination))
			}
			if rec.Affected != nil {
				b.WriteString(fmt.Sprintf("Affected: %s life=%d actions=%d range=%d\n",
					rec.Affected.ID, rec.Affected.Life, rec.Affected.Actions, rec.Affected.Range))
			}
		}
	} else {
		b.WriteString("✗ " + result.Message + " (no action points spent)\n")
	}
	b.WriteString("\n" + formatTank(result.Actor))
	return b.String()
}

// formatBoard draws the grid with one letter per tank in roster order
func formatBoard(board *service.BoardView) string {
	letters := make(map[string]byte, len(board.Tanks))
	for i, t := range board.Tanks {
		letters[t.ID] = tankLetter(i, t.Life > 0)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Match %s (%dx%d)\n\n", board.MatchID, board.Board.Cols, board.Board.Rows))
	for y, row := range board.Board.Cells {
		for x, id := range row {
			switch {
			case id != "":
				b.WriteByte(letters[id])
			case board.Heart != nil && board.Heart.X == x && board.Heart.Y == y:
				b.WriteByte('+')
			default:
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}

	b.WriteString("\nTanks (lower case = defeated, + = heart):\n")
	for i, t := range board.Tanks {
		b.WriteString(fmt.Sprintf("%c %s at %s life=%d actions=%d range=%d\n",
			tankLetter(i, t.Life > 0), t.ID, t.Position, t.Life, t.Actions, t.Range))
	}
	return b.String()
}

func tankLetter(i int, alive bool) byte {
	base := byte('a')
	if alive {
		base = 'A'
	}
	return base + byte(i%26)
}

func formatHistory(history *service.HistoryResponse) string {
	result := fmt.Sprintf("Action Log (Page %d/%d) - Total: %d\n\n",
		history.Page, history.TotalPages, history.TotalActions)

	for _, e := range history.Actions {
		line := fmt.Sprintf("#%d %s %s", e.Seq, e.ActorID, e.Kind)
		if e.Destination != nil {
			line += " -> " + e.Destination.String()
		}
		if e.Affected != nil {
			line += fmt.Sprintf(" [%s life=%d]", e.Affected.ID, e.Affected.Life)
		}
		result += line + "\n"
	}

	return result
}
