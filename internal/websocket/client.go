package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/switchboard/internal/auth"
	"github.com/dennisdiepolder/monti/switchboard/internal/config"
	"github.com/dennisdiepolder/monti/switchboard/internal/metrics"
	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// CommandExecutor runs operator commands received over the socket
type CommandExecutor interface {
	Execute(ctx context.Context, caller *auth.Claims, req types.CommandRequest) types.CommandResult
}

// errorMessage answers a client message that could not be handled
type errorMessage struct {
	Type      string `json:"type"` // "error"
	RequestID string `json:"requestId,omitempty"`
	Message   string `json:"message"`
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	// Unique client ID
	id string

	// The hub this client belongs to
	hub *Hub

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	// Revisions covered by the last snapshot, owned by the hub goroutine
	floor map[string]uint64

	commands CommandExecutor
	claims   *auth.Claims

	ctx    context.Context
	cancel context.CancelFunc

	config *config.Config
	logger zerolog.Logger
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, cfg *config.Config, commands CommandExecutor, claims *auth.Claims, logger zerolog.Logger) *Client {
	clientID := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())

	buffer := cfg.ViewerBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		id:       clientID,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, buffer),
		commands: commands,
		claims:   claims,
		ctx:      ctx,
		cancel:   cancel,
		config:   cfg,
		logger:   logger.With().Str("client_id", clientID).Logger(),
	}
}

// accepts reports whether a delta is newer than what the client's snapshot
// already showed
func (c *Client) accepts(key string, revision uint64) bool {
	floor, ok := c.floor[key]
	if !ok {
		return true
	}
	if revision <= floor {
		return false
	}
	delete(c.floor, key)
	return true
}

// readPump pumps messages from the websocket connection to the hub
//
// The application runs readPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("websocket read error")
			}
			break
		}
		metrics.Get().RecordWebSocketMessage()
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var envelope struct {
		Type      string `json:"type"`
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil {
		c.logger.Debug().Err(err).Msg("failed to parse client message")
		c.reply(errorMessage{Type: "error", Message: "malformed message"})
		return
	}

	switch envelope.Type {
	case "snapshot_request":
		c.hub.resync <- c

	case "command":
		var req types.CommandRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.reply(errorMessage{Type: "error", RequestID: envelope.RequestID, Message: "malformed command"})
			return
		}
		if c.commands == nil {
			c.reply(errorMessage{Type: "error", RequestID: req.RequestID, Message: "commands are not accepted here"})
			return
		}
		c.reply(c.commands.Execute(c.ctx, c.claims, req))

	default:
		c.reply(errorMessage{Type: "error", RequestID: envelope.RequestID, Message: "unknown message type " + envelope.Type})
	}
}

// reply routes a message through the hub, which owns the send channel
func (c *Client) reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal reply")
		return
	}
	select {
	case c.hub.direct <- outbound{client: c, data: data}:
	case <-c.ctx.Done():
	}
}

// writePump pumps messages from the hub to the websocket connection
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start starts the client's read and write pumps
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
