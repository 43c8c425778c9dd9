package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/switchboard/internal/auth"
	"github.com/dennisdiepolder/monti/switchboard/internal/storage"
	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// HistoryHandler serves archived call records
type HistoryHandler struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(store storage.Store, logger zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		store:  store,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// dateParam returns the validated ?date=YYYY-MM-DD value
func dateParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, "date query parameter is required (YYYY-MM-DD)", http.StatusBadRequest)
		return "", false
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return "", false
	}
	return date, true
}

// GetDay returns every call archived on a date
// GET /api/calls/history?date=YYYY-MM-DD
func (h *HistoryHandler) GetDay(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}

	records, err := h.store.GetCallRecords(date)
	if err != nil {
		h.logger.Error().Err(err).Str("date", date).Msg("failed to get call records")
		http.Error(w, "failed to retrieve calls", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []types.CallRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetAgentCalls returns call records for the given agent on a specific date
// GET /api/agents/{agentId}/calls?date=YYYY-MM-DD
func (h *HistoryHandler) GetAgentCalls(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}
	// Agents only see their own history
	if user, ok := auth.GetUserFromContext(r.Context()); !ok || !user.CanActFor(agentID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	date, ok := dateParam(w, r)
	if !ok {
		return
	}

	records, err := h.store.GetAgentCallsByDate(agentID, date)
	if err != nil {
		h.logger.Error().Err(err).
			Str("agent_id", agentID).
			Str("date", date).
			Msg("failed to get agent calls")
		http.Error(w, "failed to retrieve calls", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []types.CallRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
