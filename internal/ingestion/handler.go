package ingestion

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go/twiml"

	"github.com/dennisdiepolder/monti/switchboard/internal/metrics"
	"github.com/dennisdiepolder/monti/switchboard/internal/routing"
	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// Receiver handles carrier webhooks
type Receiver struct {
	adapter        *Adapter
	verifier       RequestVerifier
	queueName      string
	logger         zerolog.Logger
	eventsReceived int64
	lastReceived   time.Time
	mu             sync.RWMutex
}

// NewReceiver creates a new webhook receiver. verifier may be nil.
func NewReceiver(adapter *Adapter, verifier RequestVerifier, logger zerolog.Logger) *Receiver {
	return &Receiver{
		adapter:   adapter,
		verifier:  verifier,
		queueName: "switchboard",
		logger:    logger.With().Str("component", "webhooks").Logger(),
	}
}

// eventResult is the JSON answer of the generic events endpoint
type eventResult struct {
	Result    string                  `json:"result"` // applied, duplicate, rejected
	Call      *types.CallSummary      `json:"call,omitempty"`
	Rejection *types.CommandRejection `json:"rejection,omitempty"`
}

// writeTwiML answers a voice webhook with the given verbs
func (r *Receiver) writeTwiML(w http.ResponseWriter, verbs ...twiml.Element) {
	doc, err := twiml.Voice(verbs)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to encode TwiML")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(doc))
}

func (r *Receiver) touch() {
	atomic.AddInt64(&r.eventsReceived, 1)
	r.mu.Lock()
	r.lastReceived = time.Now()
	r.mu.Unlock()

	count := atomic.LoadInt64(&r.eventsReceived)
	if count%1000 == 0 {
		r.logger.Info().Int64("total_received", count).Msg("carrier events received")
	}
}

// parseForm reads and authenticates a form-encoded webhook
func (r *Receiver) parseForm(w http.ResponseWriter, req *http.Request) bool {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := req.ParseForm(); err != nil {
		metrics.Get().RecordCarrierMalformed()
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return false
	}
	if r.verifier != nil {
		if err := r.verifier.Verify(req); err != nil {
			r.logger.Warn().Err(err).Str("path", req.URL.Path).Msg("carrier signature rejected")
			http.Error(w, "invalid signature", http.StatusForbidden)
			return false
		}
	}
	return true
}

// HandleVoice handles POST /carrier/voice, the incoming call webhook
func (r *Receiver) HandleVoice(w http.ResponseWriter, req *http.Request) {
	if !r.parseForm(w, req) {
		return
	}
	r.touch()

	ev, err := ParseVoiceRequest(req.PostForm, req.Header, time.Now())
	if err != nil {
		metrics.Get().RecordCarrierMalformed()
		r.logger.Warn().Err(err).Msg("malformed voice webhook")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// A rejected ringing still gets TwiML; the carrier is not waiting on our state.
	r.adapter.Ingest(ev)

	// The caller waits in the carrier's queue until an agent is assigned
	r.writeTwiML(w, &twiml.VoiceEnqueue{Name: r.queueName})
}

// HandleConnect handles POST /carrier/connect, fetched by the carrier once
// an outbound call is answered
func (r *Receiver) HandleConnect(w http.ResponseWriter, req *http.Request) {
	if !r.parseForm(w, req) {
		return
	}

	agentID := req.URL.Query().Get("agent")
	if agentID == "" {
		http.Error(w, "missing agent", http.StatusBadRequest)
		return
	}

	// Bridge the answered call to the agent's softphone
	r.writeTwiML(w, &twiml.VoiceDial{
		InnerElements: []twiml.Element{&twiml.VoiceClient{Identity: agentID}},
	})
}

// HandleStatus handles POST /carrier/status, the call status callback
func (r *Receiver) HandleStatus(w http.ResponseWriter, req *http.Request) {
	if !r.parseForm(w, req) {
		return
	}
	r.touch()

	ev, err := ParseStatusCallback(req.PostForm, req.Header, time.Now())
	if err != nil {
		metrics.Get().RecordCarrierMalformed()
		r.logger.Warn().Err(err).Msg("malformed status callback")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := r.adapter.Ingest(ev); err != nil && !isSettled(err) {
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEvent handles POST /carrier/events with the generic JSON shape
func (r *Receiver) HandleEvent(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.touch()

	ev, err := ParseJSONEvent(req.Body, time.Now())
	if err != nil {
		metrics.Get().RecordCarrierMalformed()
		r.logger.Warn().Err(err).Msg("malformed carrier event")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	call, err := r.adapter.Ingest(ev)
	res := eventResult{Result: "applied"}
	switch {
	case err == nil:
		if call != nil {
			summary := call.Summarize()
			res.Call = &summary
		}
	case errors.Is(err, ErrDuplicateEvent):
		res.Result = "duplicate"
	default:
		rej, ok := routing.AsRejection(err)
		if !ok {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		res.Result = "rejected"
		res.Rejection = rej.Wire()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// isSettled reports whether err is a final answer for the event, so the
// carrier should not redeliver it
func isSettled(err error) bool {
	if errors.Is(err, ErrDuplicateEvent) || errors.Is(err, ErrMalformed) {
		return true
	}
	_, ok := routing.AsRejection(err)
	return ok
}

// GetStats returns receiver statistics
func (r *Receiver) GetStats(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	lastReceived := r.lastReceived
	r.mu.RUnlock()

	stats := map[string]interface{}{
		"events_received": atomic.LoadInt64(&r.eventsReceived),
		"last_received":   lastReceived,
		"dedup_window":    r.adapter.dedup.Len(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
