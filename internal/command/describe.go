package command

import (
	"errors"
	"net/http"

	"github.com/dennisdiepolder/monti/switchboard/internal/carrier"
	"github.com/dennisdiepolder/monti/switchboard/internal/routing"
	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// Describe converts a command error to its wire rejection
func Describe(err error) *types.CommandRejection {
	if rej, ok := routing.AsRejection(err); ok {
		return rej.Wire()
	}

	switch {
	case errors.Is(err, ErrForbidden):
		return &types.CommandRejection{Kind: "Forbidden", Category: "Forbidden", Detail: err.Error()}
	case errors.Is(err, ErrInvalidCommand):
		return &types.CommandRejection{Kind: "InvalidCommand", Category: "BadRequest", Detail: err.Error()}
	case errors.Is(err, carrier.ErrUnavailable):
		return &types.CommandRejection{Kind: "CarrierUnavailable", Category: "Unavailable", Detail: err.Error()}
	default:
		return &types.CommandRejection{Kind: "CarrierRefused", Category: "PreconditionFailed", Detail: err.Error()}
	}
}

// StatusCode maps a rejection category to an HTTP status
func StatusCode(rej *types.CommandRejection) int {
	if rej == nil {
		return http.StatusOK
	}
	switch rej.Category {
	case "NotFound":
		return http.StatusNotFound
	case "StaleRevision", "PreconditionFailed":
		return http.StatusConflict
	case "Forbidden":
		return http.StatusForbidden
	case "BadRequest":
		return http.StatusBadRequest
	case "Unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
