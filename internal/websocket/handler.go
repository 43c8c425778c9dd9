package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/switchboard/internal/auth"
	"github.com/dennisdiepolder/monti/switchboard/internal/config"
)

// Handler handles WebSocket upgrade requests
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	commands CommandExecutor
	config   *config.Config
	logger   zerolog.Logger
}

// NewHandler creates a new WebSocket handler. Only origins listed in
// ALLOWED_ORIGINS may connect; "*" allows any.
func NewHandler(hub *Hub, commands CommandExecutor, cfg *config.Config, logger zerolog.Logger) *Handler {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}

	return &Handler{
		hub:      hub,
		commands: commands,
		config:   cfg,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	// Unauthenticated viewers may watch; the gateway refuses their commands
	claims, _ := auth.GetUserFromContext(r.Context())

	client := NewClient(h.hub, conn, h.config, h.commands, claims, h.logger)
	h.hub.register <- client
	client.Start()
}
