package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/inconshreveable/log15/v3"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/service"
	"github.com/wricardo/tank-tactics/logging"
	"github.com/wricardo/tank-tactics/transport/websocket"
)

// Server represents the REST API server
type Server struct {
	service service.GameService
	hub     *websocket.Hub
	router  *mux.Router
	logger  log15.Logger
}

// NewServer creates a new API server. hub may be nil, in which case no
// events are broadcast and /ws is not served.
func NewServer(gameService service.GameService, hub *websocket.Hub, logger log15.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		service: gameService,
		hub:     hub,
		router:  mux.NewRouter(),
		logger:  logger.New("component", "api"),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Matches
	api.HandleFunc("/matches", s.handleCreateMatch).Methods("POST")
	api.HandleFunc("/matches", s.handleListMatches).Methods("GET")
	api.HandleFunc("/matches/{id}", s.handleGetMatch).Methods("GET")
	api.HandleFunc("/matches/{id}", s.handleDeleteMatch).Methods("DELETE")
	api.HandleFunc("/matches/{id}/board", s.handleGetBoard).Methods("GET")

	// Tanks
	api.HandleFunc("/matches/{id}/tanks", s.handleJoinMatch).Methods("POST")
	api.HandleFunc("/matches/{id}/tanks", s.handleListTanks).Methods("GET")
	api.HandleFunc("/matches/{id}/tanks/{tank}", s.handleGetTank).Methods("GET")
	api.HandleFunc("/matches/{id}/tanks/{tank}/actions", s.handleAction).Methods("POST")

	// Match administration
	api.HandleFunc("/matches/{id}/actions", s.handleGetActionLog).Methods("GET")
	api.HandleFunc("/matches/{id}/grant", s.handleGrant).Methods("POST")
	api.HandleFunc("/matches/{id}/heart", s.handleSpawnHeart).Methods("POST")

	// Rulesets
	api.HandleFunc("/rulesets", s.handleListRulesets).Methods("GET")
	api.HandleFunc("/rulesets", s.handleCreateRuleset).Methods("POST")
	api.HandleFunc("/rulesets/{name}", s.handleGetRuleset).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.hub != nil {
		s.router.HandleFunc("/ws", s.handleWebSocket)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps service errors onto status codes
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrMatchNotFound),
		errors.Is(err, service.ErrTankNotFound),
		errors.Is(err, service.ErrRulesetNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidAction),
		errors.Is(err, engine.ErrInvalidRules):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrBoardFull):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	respondError(w, status, err.Error())
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) broadcast(matchID, event string, data interface{}) {
	if s.hub != nil {
		s.hub.BroadcastEvent(hubKey(matchID), event, data)
	}
}

// hubKey matches the normalization match ids get on creation
func hubKey(matchID string) string {
	return strings.ToLower(strings.TrimSpace(matchID))
}

// Match Handlers

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ruleset string `json:"ruleset,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	match, err := s.service.CreateMatch(r.Context(), req.Ruleset)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, match)
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := s.service.ListMatches(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "accessed" (default)
	order := query.Get("order")    // "asc", "desc" (default: "desc")
	limitStr := query.Get("limit") // number of matches to return

	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}

	sort.Slice(matches, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = matches[i].CreatedAt, matches[j].CreatedAt
		} else {
			ti, tj = matches[i].LastAccessedAt, matches[j].LastAccessedAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	total := len(matches)
	limit := total
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < total {
			limit = l
		}
	}
	matches = matches[:limit]

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(matches),
		"total":   total,
		"matches": matches,
		"sort":    sortBy,
		"order":   order,
	})
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["id"]

	match, err := s.service.GetMatch(r.Context(), matchID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, match)
}

func (s *Server) handleDeleteMatch(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["id"]

	if err := s.service.DeleteMatch(r.Context(), matchID); err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.broadcast(matchID, websocket.EventMatchDeleted, nil)
	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Match %s deleted", matchID),
	})
}

func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["id"]

	board, err := s.service.GetBoard(r.Context(), matchID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, board)
}

// Tank Handlers

func (s *Server) handleJoinMatch(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["id"]

	var req service.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.service.JoinMatch(r.Context(), matchID, req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
		s.broadcast(matchID, websocket.EventTankJoined, engine.PublicView{
			ID:      result.Tank.ID,
			Name:    result.Tank.Name,
			Picture: result.Tank.Picture,
		})
	}

	respondJSON(w, status, result)
}

func (s *Server) handleListTanks(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["id"]

	tanks, err := s.service.ListTanks(r.Context(), matchID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(tanks),
		"tanks": tanks,
	})
}

func (s *Server) handleGetTank(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	tank, err := s.service.GetTank(r.Context(), vars["id"], vars["tank"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, tank)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	matchID, tankID := vars["id"], vars["tank"]

	var req engine.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.service.ApplyAction(r.Context(), matchID, tankID, req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	if result.Applied {
		// Broadcasts can overtake each other; seq restores audit order
		s.broadcast(matchID, websocket.EventAction, map[string]interface{}{
			"seq":    result.Record.Seq,
			"actor":  tankID,
			"record": result.Record,
		})
	}

	s.logger.Debug("action",
		"match", matchID, "tank", tankID, "kind", req.Kind,
		"applied", result.Applied, "actions_left", result.Actor.Actions)

	respondJSON(w, http.StatusOK, result)
}

// Match Administration Handlers

func (s *Server) handleGetActionLog(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["id"]

	opts := service.HistoryOptions{
		Page:  1,
		Limit: 20,
		Order: "desc",
	}

	query := r.URL.Query()
	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			opts.Page = p
		}
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			opts.Limit = l
		}
	}

	if order := query.Get("order"); order == "asc" || order == "desc" {
		opts.Order = order
	}

	history, err := s.service.GetActionLog(r.Context(), matchID, opts)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["id"]

	var req struct {
		Amount int `json:"amount,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Amount < 0 {
		respondError(w, http.StatusBadRequest, "amount must not be negative")
		return
	}

	result, err := s.service.GrantActionPoints(r.Context(), matchID, req.Amount)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.broadcast(matchID, websocket.EventActionsGranted, result)
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSpawnHeart(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["id"]

	pos, err := s.service.SpawnHeart(r.Context(), matchID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.broadcast(matchID, websocket.EventHeartSpawned, pos)
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"heart": pos,
	})
}

// Ruleset Handlers

func (s *Server) handleListRulesets(w http.ResponseWriter, r *http.Request) {
	rulesets, err := s.service.ListRulesets(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rulesets)
}

func (s *Server) handleGetRuleset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	name = strings.TrimSuffix(name, filepath.Ext(name))

	rules, err := s.service.LoadRuleset(r.Context(), name)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rules)
}

func (s *Server) handleCreateRuleset(w http.ResponseWriter, r *http.Request) {
	var rules engine.Rules
	if err := json.NewDecoder(r.Body).Decode(&rules); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := engine.ValidateRules(&rules); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.service.SaveRuleset(r.Context(), rules.Name, &rules); err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save ruleset: %v", err))
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":    "Ruleset saved successfully",
		"ruleset_id": rules.Name,
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	matchID := r.URL.Query().Get("match")
	if matchID == "" {
		http.Error(w, "match parameter required", http.StatusBadRequest)
		return
	}

	// Verify the match exists
	if _, err := s.service.GetMatch(r.Context(), matchID); err != nil {
		http.Error(w, "Invalid match", http.StatusNotFound)
		return
	}

	s.hub.ServeWS(w, r, hubKey(matchID))
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
