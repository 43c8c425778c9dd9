package ingestion

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/switchboard/internal/metrics"
	"github.com/dennisdiepolder/monti/switchboard/internal/routing"
	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// ErrDuplicateEvent is returned for a provider event ID already applied.
// It is not a failure.
var ErrDuplicateEvent = errors.New("duplicate carrier event")

// Adapter deduplicates normalized carrier events and feeds them to the
// routing engine
type Adapter struct {
	applier Applier
	dedup   *Deduper
	logger  zerolog.Logger
}

// NewAdapter creates a new Adapter
func NewAdapter(applier Applier, dedup *Deduper, logger zerolog.Logger) *Adapter {
	return &Adapter{
		applier: applier,
		dedup:   dedup,
		logger:  logger.With().Str("component", "ingestion").Logger(),
	}
}

// Ingest applies one carrier event. Rejections by the state machine are
// logged and returned; they never affect other events.
func (a *Adapter) Ingest(ev types.CarrierEvent) (*types.Call, error) {
	m := metrics.Get()
	m.RecordCarrierEvent()

	if ev.CallID == "" || ev.ProviderEventID == "" {
		m.RecordCarrierMalformed()
		return nil, malformed("event without call or provider event ID")
	}

	if !a.dedup.FirstSeen(ev.ProviderEventID, ev.ReceivedAt) {
		m.RecordCarrierDuplicate()
		a.logger.Debug().
			Str("call_id", ev.CallID).
			Str("event_id", ev.ProviderEventID).
			Msg("duplicate carrier event dropped")
		return nil, ErrDuplicateEvent
	}

	call, err := a.applier.ApplyCarrierEvent(ev)
	if err != nil {
		m.RecordCarrierRejected()
		rej, ok := routing.AsRejection(err)
		if !ok {
			// not a state machine decision, allow the carrier to retry
			a.dedup.Forget(ev.ProviderEventID)
			a.logger.Error().Err(err).Str("call_id", ev.CallID).Msg("failed to apply carrier event")
			return nil, err
		}
		a.logger.Info().
			Str("call_id", ev.CallID).
			Str("event_id", ev.ProviderEventID).
			Str("kind", string(ev.Kind)).
			Str("rejection", string(rej.Kind)).
			Str("detail", rej.Detail).
			Msg("carrier event rejected")
		return nil, err
	}

	m.RecordCarrierApplied()
	logEvent := a.logger.Debug().
		Str("call_id", ev.CallID).
		Str("event_id", ev.ProviderEventID).
		Str("kind", string(ev.Kind))
	if call != nil {
		logEvent = logEvent.Str("state", string(call.State)).Uint64("revision", call.Revision)
	}
	logEvent.Msg("carrier event applied")
	return call, nil
}
