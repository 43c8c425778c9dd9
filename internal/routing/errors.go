package routing

import (
	"errors"
	"fmt"

	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// Rejection categories, usable with errors.Is
var (
	ErrNotFound           = errors.New("not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrStaleRevision      = errors.New("stale revision")
)

// Kind names a specific rejection reason
type Kind string

const (
	KindCallNotFound  Kind = "CallNotFound"
	KindAgentNotFound Kind = "AgentNotFound"
	KindSlotNotFound  Kind = "SlotNotFound"

	KindCallNotInQueue     Kind = "CallNotInQueue"
	KindAgentBusy          Kind = "AgentBusy"
	KindTargetBusy         Kind = "TargetBusy"
	KindSlotOccupied       Kind = "SlotOccupied"
	KindInvalidSourceState Kind = "InvalidSourceState"
	KindNotOwner           Kind = "NotOwner"
	KindAgentDisabled      Kind = "AgentDisabled"
	KindCallExists         Kind = "CallExists"

	KindStaleRevision Kind = "StaleRevision"
)

// Category returns the sentinel the kind belongs to
func (k Kind) Category() error {
	switch k {
	case KindCallNotFound, KindAgentNotFound, KindSlotNotFound:
		return ErrNotFound
	case KindStaleRevision:
		return ErrStaleRevision
	default:
		return ErrPreconditionFailed
	}
}

// Rejection is returned when a transition request is not applied.
// Nothing is mutated when an operation returns a Rejection.
type Rejection struct {
	Kind   Kind
	CallID string
	Detail string
}

func reject(kind Kind, callID, format string, args ...interface{}) *Rejection {
	return &Rejection{Kind: kind, CallID: callID, Detail: fmt.Sprintf(format, args...)}
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return fmt.Sprintf("%s: call %s", r.Kind, r.CallID)
	}
	return fmt.Sprintf("%s: call %s: %s", r.Kind, r.CallID, r.Detail)
}

// Unwrap exposes the category sentinel to errors.Is
func (r *Rejection) Unwrap() error {
	return r.Kind.Category()
}

// CategoryName returns the taxonomy name sent to clients
func (r *Rejection) CategoryName() string {
	switch r.Kind.Category() {
	case ErrNotFound:
		return "NotFound"
	case ErrStaleRevision:
		return "StaleRevision"
	default:
		return "PreconditionFailed"
	}
}

// Wire converts the rejection for a command result
func (r *Rejection) Wire() *types.CommandRejection {
	return &types.CommandRejection{
		Kind:     string(r.Kind),
		Category: r.CategoryName(),
		Detail:   r.Detail,
	}
}

// AsRejection extracts a Rejection from an error chain
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// IsKind reports whether err is a rejection of the given kind
func IsKind(err error, kind Kind) bool {
	rej, ok := AsRejection(err)
	return ok && rej.Kind == kind
}
