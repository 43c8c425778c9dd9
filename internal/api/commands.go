package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/switchboard/internal/auth"
	"github.com/dennisdiepolder/monti/switchboard/internal/command"
	"github.com/dennisdiepolder/monti/switchboard/internal/routing"
	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// Commander executes operator commands
type Commander interface {
	Execute(ctx context.Context, caller *auth.Claims, req types.CommandRequest) types.CommandResult
}

// StateReader exposes the routing engine's read side
type StateReader interface {
	Snapshot() types.Snapshot
	GetCall(callID string) (*types.Call, bool)
	Stats() routing.Stats
}

// CommandHandler is the REST face of the command gateway
type CommandHandler struct {
	commands Commander
	state    StateReader
	logger   zerolog.Logger
}

// NewCommandHandler creates a new CommandHandler
func NewCommandHandler(commands Commander, state StateReader, logger zerolog.Logger) *CommandHandler {
	return &CommandHandler{
		commands: commands,
		state:    state,
		logger:   logger.With().Str("component", "commands").Logger(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *CommandHandler) run(w http.ResponseWriter, r *http.Request, req types.CommandRequest) {
	claims, _ := auth.GetUserFromContext(r.Context())
	result := h.commands.Execute(r.Context(), claims, req)
	writeJSON(w, command.StatusCode(result.Rejection), result)
}

// HandleCommand handles POST /api/commands
func (h *CommandHandler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var req types.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	req.Type = "command"
	h.run(w, r, req)
}

// ForceEndCall handles POST /api/agents/{agentId}/calls/{callId}/end
func (h *CommandHandler) ForceEndCall(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	callID := chi.URLParam(r, "callId")
	if agentID == "" || callID == "" {
		http.Error(w, "agentId and callId are required", http.StatusBadRequest)
		return
	}

	h.logger.Info().
		Str("agent_id", agentID).
		Str("call_id", callID).
		Msg("force-ending call via API")
	h.run(w, r, types.CommandRequest{Type: "command", Op: types.OpHangup, CallID: callID, AgentID: agentID})
}

// GetSnapshot handles GET /api/snapshot
func (h *CommandHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.Snapshot())
}

// GetCall handles GET /api/calls/{callId}
func (h *CommandHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	call, ok := h.state.GetCall(callID)
	if !ok {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// GetEngineStats handles GET /internal/engine/stats
func (h *CommandHandler) GetEngineStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.Stats())
}
