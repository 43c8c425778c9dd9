package ingestion

import (
	"net/http"

	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// Applier applies normalized carrier events to the call state
type Applier interface {
	ApplyCarrierEvent(ev types.CarrierEvent) (*types.Call, error)
}

// RequestVerifier authenticates a carrier webhook request. The request form
// has already been parsed when Verify is called.
type RequestVerifier interface {
	Verify(r *http.Request) error
}
