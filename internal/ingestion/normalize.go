package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// ErrMalformed marks payloads that cannot be turned into a carrier event
var ErrMalformed = errors.New("malformed carrier payload")

const idempotencyHeader = "I-Twilio-Idempotency-Token"

// statusKinds maps carrier call statuses to lifecycle signals
var statusKinds = map[string]types.CarrierEventKind{
	"queued":      types.CarrierRinging,
	"initiated":   types.CarrierRinging,
	"ringing":     types.CarrierRinging,
	"in-progress": types.CarrierAnswered,
	"answered":    types.CarrierAnswered,
	"completed":   types.CarrierCompleted,
	"canceled":    types.CarrierCompleted,
	"failed":      types.CarrierFailed,
	"busy":        types.CarrierBusy,
	"no-answer":   types.CarrierNoAnswer,
}

// KindFromStatus maps a carrier call status to an event kind
func KindFromStatus(status string) (types.CarrierEventKind, bool) {
	kind, ok := statusKinds[strings.ToLower(strings.TrimSpace(status))]
	return kind, ok
}

func directionFrom(raw string) types.Direction {
	if strings.HasPrefix(strings.ToLower(raw), "outbound") {
		return types.DirectionOutbound
	}
	return types.DirectionInbound
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// ParseStatusCallback normalizes a form-encoded call status callback
func ParseStatusCallback(form url.Values, header http.Header, receivedAt time.Time) (types.CarrierEvent, error) {
	callID := form.Get("CallSid")
	if callID == "" {
		return types.CarrierEvent{}, malformed("missing CallSid")
	}
	status := form.Get("CallStatus")
	kind, ok := KindFromStatus(status)
	if !ok {
		return types.CarrierEvent{}, malformed("unknown CallStatus %q", status)
	}

	eventID := header.Get(idempotencyHeader)
	if eventID == "" {
		eventID = callID + ":" + status + ":" + form.Get("SequenceNumber")
	}

	return types.CarrierEvent{
		CallID:          callID,
		ProviderEventID: eventID,
		Kind:            kind,
		From:            form.Get("From"),
		To:              form.Get("To"),
		Direction:       directionFrom(form.Get("Direction")),
		Attributes:      attributesFrom(form, "CallStatus", "SequenceNumber", "CallDuration", "ParentCallSid"),
		ReceivedAt:      receivedAt,
	}, nil
}

// ParseVoiceRequest normalizes the incoming-call webhook into a ringing event
func ParseVoiceRequest(form url.Values, header http.Header, receivedAt time.Time) (types.CarrierEvent, error) {
	callID := form.Get("CallSid")
	if callID == "" {
		return types.CarrierEvent{}, malformed("missing CallSid")
	}
	if form.Get("From") == "" {
		return types.CarrierEvent{}, malformed("missing From")
	}

	eventID := header.Get(idempotencyHeader)
	if eventID == "" {
		eventID = callID + ":voice"
	}

	return types.CarrierEvent{
		CallID:          callID,
		ProviderEventID: eventID,
		Kind:            types.CarrierRinging,
		From:            form.Get("From"),
		To:              form.Get("To"),
		Direction:       directionFrom(form.Get("Direction")),
		Attributes:      attributesFrom(form, "CallStatus", "CallerName"),
		ReceivedAt:      receivedAt,
	}, nil
}

// jsonEvent is the generic carrier event shape
type jsonEvent struct {
	CallID     string            `json:"callId"`
	EventID    string            `json:"eventId"`
	Kind       string            `json:"kind"`
	Status     string            `json:"status"`
	From       string            `json:"from"`
	To         string            `json:"to"`
	Direction  string            `json:"direction"`
	Attributes map[string]string `json:"attributes"`
}

// ParseJSONEvent normalizes a generic JSON carrier event
func ParseJSONEvent(body io.Reader, receivedAt time.Time) (types.CarrierEvent, error) {
	var raw jsonEvent
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return types.CarrierEvent{}, malformed("invalid JSON: %v", err)
	}
	if raw.CallID == "" {
		return types.CarrierEvent{}, malformed("missing callId")
	}
	if raw.EventID == "" {
		return types.CarrierEvent{}, malformed("missing eventId")
	}

	status := raw.Kind
	if status == "" {
		status = raw.Status
	}
	kind, ok := KindFromStatus(status)
	if !ok {
		return types.CarrierEvent{}, malformed("unknown kind %q", status)
	}

	return types.CarrierEvent{
		CallID:          raw.CallID,
		ProviderEventID: raw.EventID,
		Kind:            kind,
		From:            raw.From,
		To:              raw.To,
		Direction:       directionFrom(raw.Direction),
		Attributes:      raw.Attributes,
		ReceivedAt:      receivedAt,
	}, nil
}

func attributesFrom(form url.Values, keys ...string) map[string]string {
	attrs := make(map[string]string, len(keys))
	for _, k := range keys {
		if v := form.Get(k); v != "" {
			attrs[k] = v
		}
	}
	return attrs
}
