package types

import (
	"fmt"
	"time"
)

// CallState represents the routing state of a call
type CallState string

const (
	CallStateRinging      CallState = "ringing"      // Waiting in queue or dialing out
	CallStateConnected    CallState = "connected"    // Talking to an agent
	CallStateOnHold       CallState = "on_hold"      // Held by its agent
	CallStateParked       CallState = "parked"       // Sitting in a parking slot
	CallStateTransferring CallState = "transferring" // Moving between agents
	CallStateEnded        CallState = "ended"        // Terminal
)

// IsTerminal reports whether no further transitions are allowed
func (s CallState) IsTerminal() bool {
	return s == CallStateEnded
}

// Direction of a call relative to the call center
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// LocationKind tags which variant a Location holds
type LocationKind string

const (
	LocationNone  LocationKind = "none"
	LocationQueue LocationKind = "queue"
	LocationAgent LocationKind = "agent"
	LocationSlot  LocationKind = "slot"
)

// Location is the single owner of a call. Only the constructors below build
// valid values, so a call can never point at an agent and a slot at once.
type Location struct {
	Kind    LocationKind `json:"kind"`
	AgentID string       `json:"agentId,omitempty"`
	SlotID  int          `json:"slotId,omitempty"`
}

// NoLocation is held only by ended calls
func NoLocation() Location { return Location{Kind: LocationNone} }

// QueueLocation places a call in the waiting queue
func QueueLocation() Location { return Location{Kind: LocationQueue} }

// AgentLocation assigns a call to an agent
func AgentLocation(agentID string) Location {
	return Location{Kind: LocationAgent, AgentID: agentID}
}

// SlotLocation parks a call in a numbered slot
func SlotLocation(slotID int) Location {
	return Location{Kind: LocationSlot, SlotID: slotID}
}

// IsAgent reports whether the call is owned by the given agent
func (l Location) IsAgent(agentID string) bool {
	return l.Kind == LocationAgent && l.AgentID == agentID
}

func (l Location) String() string {
	switch l.Kind {
	case LocationAgent:
		return "agent:" + l.AgentID
	case LocationSlot:
		return fmt.Sprintf("slot:%d", l.SlotID)
	default:
		return string(l.Kind)
	}
}

// Call is the authoritative record of a single carrier call
type Call struct {
	CallID         string    `json:"callId"`
	Direction      Direction `json:"direction"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	State          CallState `json:"state"`
	Location       Location  `json:"location"`
	CreatedAt      time.Time `json:"createdAt"`
	LastTransition time.Time `json:"lastTransition"`
	Revision       uint64    `json:"revision"`
	EndReason      string    `json:"endReason,omitempty"`

	// bookkeeping for the archive record
	AnsweredAt *time.Time `json:"answeredAt,omitempty"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
	HandledBy  []string   `json:"handledBy,omitempty"`
}

// Counterpart returns the external party's address
func (c *Call) Counterpart() string {
	if c.Direction == DirectionOutbound {
		return c.To
	}
	return c.From
}

// Clone returns a deep copy safe to hand out of the store
func (c *Call) Clone() *Call {
	cp := *c
	if c.AnsweredAt != nil {
		t := *c.AnsweredAt
		cp.AnsweredAt = &t
	}
	if c.EndedAt != nil {
		t := *c.EndedAt
		cp.EndedAt = &t
	}
	if c.HandledBy != nil {
		cp.HandledBy = append([]string(nil), c.HandledBy...)
	}
	return &cp
}
