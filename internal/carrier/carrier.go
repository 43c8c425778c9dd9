package carrier

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the carrier could not be reached
var ErrUnavailable = errors.New("carrier unavailable")

// OutboundRequest asks the carrier to dial a number on behalf of an agent
type OutboundRequest struct {
	AgentID string
	From    string // caller ID presented to the callee
	To      string
}

// PlacedCall is the carrier's answer to an outbound request
type PlacedCall struct {
	CallID string `json:"sid"`
	Status string `json:"status"`
}

// Carrier is the outbound capability of the telephony provider
type Carrier interface {
	PlaceCall(ctx context.Context, req OutboundRequest) (PlacedCall, error)
	Hangup(ctx context.Context, callID string) error
}
