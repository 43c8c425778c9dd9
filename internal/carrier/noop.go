package carrier

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// EventSink accepts carrier events produced locally
type EventSink interface {
	Ingest(ev types.CarrierEvent) (*types.Call, error)
}

// NoopCarrier accepts every request without contacting a provider. Call
// lifecycle events are expected from a simulator posting to /carrier/events.
// With a sink set, Hangup reports the completed call itself.
type NoopCarrier struct {
	sink EventSink
}

func NewNoopCarrier() *NoopCarrier { return &NoopCarrier{} }

// SetSink routes synthesized completion events, usually to the ingestion adapter
func (c *NoopCarrier) SetSink(sink EventSink) {
	c.sink = sink
}

func (c *NoopCarrier) PlaceCall(_ context.Context, _ OutboundRequest) (PlacedCall, error) {
	id := "CA" + strings.ReplaceAll(uuid.New().String(), "-", "")
	return PlacedCall{CallID: id, Status: "queued"}, nil
}

func (c *NoopCarrier) Hangup(_ context.Context, callID string) error {
	if c.sink == nil {
		return nil
	}
	// Rejections here mean the call already ended or never existed
	c.sink.Ingest(types.CarrierEvent{
		CallID:          callID,
		ProviderEventID: callID + ":hangup",
		Kind:            types.CarrierCompleted,
		ReceivedAt:      time.Now(),
	})
	return nil
}
