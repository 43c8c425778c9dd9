package callgen

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// configView is Config on the wire, durations in seconds
type configView struct {
	CallsPerMin     float64 `json:"callsPerMin"`
	MinDurationSecs float64 `json:"minDurationSecs"`
	MaxDurationSecs float64 `json:"maxDurationSecs"`
	DuplicateRate   float64 `json:"duplicateRate"`
	Number          string  `json:"number"`
}

func viewOf(cfg Config) configView {
	return configView{
		CallsPerMin:     cfg.CallsPerMin,
		MinDurationSecs: cfg.MinDuration.Seconds(),
		MaxDurationSecs: cfg.MaxDuration.Seconds(),
		DuplicateRate:   cfg.DuplicateRate,
		Number:          cfg.Number,
	}
}

func (v configView) config() Config {
	return Config{
		CallsPerMin:   v.CallsPerMin,
		MinDuration:   time.Duration(v.MinDurationSecs * float64(time.Second)),
		MaxDuration:   time.Duration(v.MaxDurationSecs * float64(time.Second)),
		DuplicateRate: v.DuplicateRate,
		Number:        v.Number,
	}
}

// API is the simulator's control interface
type API struct {
	generator *Generator
	logger    zerolog.Logger

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt *time.Time
}

// NewAPI creates a new control API. ctx bounds every run and injected call.
func NewAPI(ctx context.Context, generator *Generator, logger zerolog.Logger) *API {
	return &API{
		generator: generator,
		logger:    logger.With().Str("component", "control").Logger(),
		ctx:       ctx,
	}
}

// Routes returns the control router
func (api *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", api.healthHandler)
	r.Get("/status", api.statusHandler)
	r.Post("/start", api.startHandler)
	r.Post("/stop", api.stopHandler)
	r.Get("/config", api.getConfigHandler)
	r.Put("/config", api.putConfigHandler)
	r.Post("/calls/inject", api.injectHandler)
	r.Get("/stats", api.statsHandler)
	return r
}

// Start begins continuous generation. It fails if a run is active.
func (api *API) Start() bool {
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(api.ctx)
	done := make(chan struct{})
	api.cancel = cancel
	api.done = done
	now := time.Now()
	api.startedAt = &now

	go func() {
		defer close(done)
		api.generator.Run(ctx)
	}()
	return true
}

// Stop ends continuous generation and waits for open calls to complete
func (api *API) Stop() bool {
	api.mu.Lock()
	cancel, done := api.cancel, api.done
	api.cancel, api.done, api.startedAt = nil, nil, nil
	api.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-done
	return true
}

// Running reports whether continuous generation is active
func (api *API) Running() bool {
	api.mu.Lock()
	defer api.mu.Unlock()
	return api.cancel != nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// healthHandler returns service health
func (api *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (api *API) statusHandler(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	status := map[string]interface{}{
		"running":   api.cancel != nil,
		"startedAt": api.startedAt,
	}
	api.mu.Unlock()
	writeJSON(w, http.StatusOK, status)
}

func (api *API) startHandler(w http.ResponseWriter, r *http.Request) {
	if !api.Start() {
		http.Error(w, "simulation already running", http.StatusConflict)
		return
	}
	api.logger.Info().Msg("simulation started")
	writeJSON(w, http.StatusOK, map[string]string{"message": "simulation started"})
}

func (api *API) stopHandler(w http.ResponseWriter, r *http.Request) {
	if !api.Stop() {
		http.Error(w, "simulation not running", http.StatusConflict)
		return
	}
	api.logger.Info().Msg("simulation stopped")
	writeJSON(w, http.StatusOK, map[string]string{"message": "simulation stopped"})
}

func (api *API) getConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(api.generator.Config()))
}

func (api *API) putConfigHandler(w http.ResponseWriter, r *http.Request) {
	view := viewOf(api.generator.Config())
	if err := json.NewDecoder(r.Body).Decode(&view); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := api.generator.SetConfig(view.config()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "configuration updated"})
}

// injectHandler starts count calls at once, at most 1000
func (api *API) injectHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	if req.Count > 1000 {
		req.Count = 1000
	}

	ids := api.generator.Inject(api.ctx, req.Count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"injected": len(ids),
		"callIds":  ids,
	})
}

func (api *API) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.generator.Stats())
}
