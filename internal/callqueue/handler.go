package callqueue

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// QueueHandler serves queue statistics
type QueueHandler struct {
	queue  *Queue
	logger zerolog.Logger
}

// NewQueueHandler creates a new QueueHandler
func NewQueueHandler(queue *Queue, logger zerolog.Logger) *QueueHandler {
	return &QueueHandler{
		queue:  queue,
		logger: logger,
	}
}

// HandleStats returns call queue statistics
// GET /internal/queue/stats
func (h *QueueHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"stats":   h.queue.Stats(time.Now()),
		"waiting": h.queue.Waiting(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode queue stats")
	}
}
