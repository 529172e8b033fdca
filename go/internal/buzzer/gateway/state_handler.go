package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/buzzer/go/internal/buzzer"
)

// StateResponse is served on GET /api/state
type StateResponse struct {
	State   buzzer.State    `json:"state"`
	Players []buzzer.Player `json:"players"`
}

type ResetResponse struct {
	Status string       `json:"status"`
	State  buzzer.State `json:"state"`
}

type BuzzResponse struct {
	Admitted bool         `json:"admitted"`
	State    buzzer.State `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// StateHandler serves the contest over plain HTTP.
type StateHandler struct {
	contest             Contest
	connectionManager   *ConnectionManager
	allowSimulatedPress bool
}

// NewStateHandler creates a new state handler
func NewStateHandler(contest Contest, cm *ConnectionManager, allowSimulatedPress bool) *StateHandler {
	return &StateHandler{
		contest:             contest,
		connectionManager:   cm,
		allowSimulatedPress: allowSimulatedPress,
	}
}

// HandleGetState handles GET /api/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StateResponse{
		State:   h.contest.CurrentState(),
		Players: h.contest.Players(),
	})
}

// HandleReset handles POST /reset. The response is written after the reset
// has been applied and its event queued for observers.
func (h *StateHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	evt, err := h.connectionManager.RequestReset(r.Context(), nil, adminToken(r))
	if err != nil {
		if errors.Is(err, ErrResetNotAllowed) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
			return
		}
		log.Error().Err(err).Msg("reset failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "reset failed"})
		return
	}

	writeJSON(w, http.StatusOK, ResetResponse{Status: "ok", State: evt.State})
}

// HandleSimulatedBuzz handles POST /api/players/{id}/buzz
func (h *StateHandler) HandleSimulatedBuzz(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "player id must be an integer"})
		return
	}

	admitted, err := h.connectionManager.SubmitBuzz(nil, buzzer.PlayerID(id))
	if err != nil {
		if errors.Is(err, buzzer.ErrInvalidPlayerID) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "buzz failed"})
		return
	}

	writeJSON(w, http.StatusOK, BuzzResponse{Admitted: admitted, State: h.contest.CurrentState()})
}

func (h *StateHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", h.HandleGetState)
	mux.HandleFunc("POST /reset", h.HandleReset)
	mux.HandleFunc("GET /health", h.HandleHealth)
	if h.allowSimulatedPress {
		mux.HandleFunc("POST /api/players/{id}/buzz", h.HandleSimulatedBuzz)
	}
}

// adminToken reads the token from Authorization: Bearer or X-Admin-Token.
func adminToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.Header.Get("X-Admin-Token")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
