package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/switchboard/internal/cache"
	"github.com/dennisdiepolder/monti/switchboard/internal/routing"
	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// Roster is the agent-roster side of the routing engine
type Roster interface {
	RegisterAgents(entries []cache.RosterEntry) []types.Agent
	SetAgentActive(agentID string, active bool) (types.Agent, error)
}

// RosterHandler handles the roster registration endpoint
type RosterHandler struct {
	roster Roster
	logger zerolog.Logger
}

// NewRosterHandler creates a new RosterHandler
func NewRosterHandler(roster Roster, logger zerolog.Logger) *RosterHandler {
	return &RosterHandler{
		roster: roster,
		logger: logger.With().Str("component", "roster").Logger(),
	}
}

// LoadRosterFile reads a JSON array of roster entries
func LoadRosterFile(path string) ([]cache.RosterEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}
	var roster []cache.RosterEntry
	if err := json.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("parse roster file %s: %w", path, err)
	}
	return roster, nil
}

// HandleRoster handles POST /internal/agents/roster
func (h *RosterHandler) HandleRoster(w http.ResponseWriter, r *http.Request) {
	var roster []cache.RosterEntry
	if err := json.NewDecoder(r.Body).Decode(&roster); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	for _, entry := range roster {
		if entry.AgentID == "" {
			http.Error(w, "agentId is required for every entry", http.StatusBadRequest)
			return
		}
	}

	agents := h.roster.RegisterAgents(roster)
	h.logger.Info().Int("registered", len(agents)).Msg("roster received")

	writeJSON(w, http.StatusOK, map[string]int{"registered": len(agents)})
}

// Enable handles POST /api/agents/{agentId}/enable
func (h *RosterHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// Disable handles POST /api/agents/{agentId}/disable
func (h *RosterHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *RosterHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	agentID := chi.URLParam(r, "agentId")
	agent, err := h.roster.SetAgentActive(agentID, active)
	if err != nil {
		if routing.IsKind(err, routing.KindAgentNotFound) {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to change agent status")
		http.Error(w, "failed to change agent status", http.StatusInternalServerError)
		return
	}

	h.logger.Info().Str("agent_id", agentID).Bool("active", active).Msg("agent status changed")
	writeJSON(w, http.StatusOK, agent.Summarize())
}
