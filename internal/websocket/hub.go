package websocket

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/switchboard/internal/metrics"
	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// SnapshotSource provides the full state sent to viewers on connect
type SnapshotSource interface {
	Snapshot() types.Snapshot
}

// outbound is a message addressed to one client
type outbound struct {
	client *Client
	data   []byte
}

// Hub maintains the set of active viewers and fans committed deltas out to
// them. Deltas for one entity leave in increasing revision order; an older
// revision arriving after a newer one was sent is dropped as superseded.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Clients asking for a fresh snapshot
	resync chan *Client

	// Replies addressed to a single client
	direct chan outbound

	// Outbox filled by Publish, drained by Run
	pending   []types.Delta
	pendingMu sync.Mutex
	wake      chan struct{}

	// Highest revision dispatched per entity key
	lastSent map[string]uint64

	source SnapshotSource

	// Mutex to protect clients map
	mu sync.RWMutex

	logger zerolog.Logger
}

// NewHub creates a new Hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		resync:     make(chan *Client, 16),
		direct:     make(chan outbound, 256),
		wake:       make(chan struct{}, 1),
		lastSent:   make(map[string]uint64),
		logger:     logger.With().Str("component", "fanout").Logger(),
	}
}

// SetSnapshotSource sets where connect-time snapshots come from
func (h *Hub) SetSnapshotSource(source SnapshotSource) {
	h.source = source
}

// Publish queues deltas for delivery and returns immediately
func (h *Hub) Publish(deltas []types.Delta) {
	h.pendingMu.Lock()
	h.pending = append(h.pending, deltas...)
	h.pendingMu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.Get().RecordViewerConnect()
			h.logger.Info().
				Str("client_id", client.id).
				Int("total_clients", total).
				Msg("client connected")
			h.sendSnapshot(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.Get().RecordViewerDisconnect()
				h.logger.Info().
					Str("client_id", client.id).
					Int("total_clients", len(h.clients)).
					Msg("client disconnected")
			}
			h.mu.Unlock()

		case client := <-h.resync:
			if h.isRegistered(client) {
				h.sendSnapshot(client)
			}

		case msg := <-h.direct:
			if h.isRegistered(msg.client) {
				h.deliver(msg.client, msg.data)
			}

		case <-h.wake:
			h.flush()
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) isRegistered(client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[client]
}

// flush dispatches everything queued by Publish
func (h *Hub) flush() {
	h.pendingMu.Lock()
	batch := h.pending
	h.pending = nil
	h.pendingMu.Unlock()

	for i := range batch {
		h.dispatch(&batch[i])
	}
	if len(batch) > 0 {
		metrics.Get().RecordDeltasPublished(len(batch))
	}
}

func (h *Hub) dispatch(d *types.Delta) {
	// Ended calls leave the store once their terminal delta is handed out
	if d.Ack != nil {
		defer d.Ack()
	}

	key := d.Key()
	if d.Revision <= h.lastSent[key] {
		metrics.Get().RecordDeltaSuperseded()
		h.logger.Debug().
			Str("entity", key).
			Uint64("revision", d.Revision).
			Uint64("sent", h.lastSent[key]).
			Msg("superseded delta dropped")
		return
	}
	if d.Terminal {
		delete(h.lastSent, key)
	} else {
		h.lastSent[key] = d.Revision
	}

	data, err := json.Marshal(d)
	if err != nil {
		h.logger.Error().Err(err).Str("entity", key).Msg("failed to marshal delta")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if !client.accepts(key, d.Revision) {
			continue
		}
		h.trySendLocked(client, data)
	}
}

// sendSnapshot sends the full state and sets the client's revision floor so
// queued deltas older than the snapshot are skipped for it
func (h *Hub) sendSnapshot(client *Client) {
	if h.source == nil {
		return
	}
	snap := h.source.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal snapshot")
		return
	}

	client.floor = snap.Revisions()
	if h.deliver(client, data) {
		metrics.Get().RecordSnapshotSent()
	}
}

func (h *Hub) deliver(client *Client, data []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client] {
		return false
	}
	return h.trySendLocked(client, data)
}

// trySendLocked never blocks. A client whose buffer is full is dropped and
// will resynchronize with a snapshot when it reconnects.
func (h *Hub) trySendLocked(client *Client, data []byte) bool {
	select {
	case client.send <- data:
		return true
	default:
		close(client.send)
		delete(h.clients, client)
		metrics.Get().RecordViewerDropped()
		metrics.Get().RecordViewerDisconnect()
		h.logger.Warn().
			Str("client_id", client.id).
			Msg("client send buffer full, closing connection")
		return false
	}
}
