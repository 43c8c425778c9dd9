package types

import (
	"encoding/json"
	"strconv"
	"time"
)

// EntityType names the kind of entity a delta describes
type EntityType string

const (
	EntityCall  EntityType = "call"
	EntityAgent EntityType = "agent"
	EntitySlot  EntityType = "slot"
)

// Delta is a single entity's committed change, pushed to every viewer
type Delta struct {
	Type       string          `json:"type"` // "delta"
	EntityType EntityType      `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Snapshot   json.RawMessage `json:"snapshot"`
	Revision   uint64          `json:"revision"`
	Timestamp  time.Time       `json:"timestamp"`

	// Terminal marks the final delta of an ended call
	Terminal bool `json:"terminal,omitempty"`

	// Ack is called once a terminal delta has reached every connected viewer
	Ack func() `json:"-"`
}

// Key identifies the entity across entity types
func (d *Delta) Key() string {
	return string(d.EntityType) + ":" + d.EntityID
}

// Snapshot is the full dashboard state sent on connect and on request
type Snapshot struct {
	Type         string         `json:"type"` // "snapshot"
	Timestamp    time.Time      `json:"timestamp"`
	Queue        []CallSummary  `json:"queue"`
	Calls        []CallSummary  `json:"calls"` // every non-queued live call
	Agents       []AgentSummary `json:"agents"`
	Slots        []SlotSummary  `json:"slots"`
	ServiceLevel ServiceLevel   `json:"serviceLevel"`
}

// Revisions returns the revision of every entity in the snapshot keyed like Delta.Key
func (s *Snapshot) Revisions() map[string]uint64 {
	revs := make(map[string]uint64, len(s.Queue)+len(s.Calls)+len(s.Agents)+len(s.Slots))
	for _, c := range s.Queue {
		revs[CallKey(c.CallID)] = c.Revision
	}
	for _, c := range s.Calls {
		revs[CallKey(c.CallID)] = c.Revision
	}
	for _, a := range s.Agents {
		revs[AgentKey(a.AgentID)] = a.Revision
	}
	for _, sl := range s.Slots {
		revs[SlotKey(sl.SlotID)] = sl.Revision
	}
	return revs
}

// CallKey is the delta key of a call
func CallKey(callID string) string { return string(EntityCall) + ":" + callID }

// AgentKey is the delta key of an agent
func AgentKey(agentID string) string { return string(EntityAgent) + ":" + agentID }

// SlotKey is the delta key of a parking slot
func SlotKey(slotID int) string {
	return string(EntitySlot) + ":" + strconv.Itoa(slotID)
}

// CommandOp names an operator intent
type CommandOp string

const (
	OpAssign   CommandOp = "assign"
	OpPark     CommandOp = "park"
	OpUnpark   CommandOp = "unpark"
	OpTransfer CommandOp = "transfer"
	OpHold     CommandOp = "hold"
	OpUnhold   CommandOp = "unhold"
	OpDial     CommandOp = "dial"
	OpHangup   CommandOp = "hangup"
	OpReject   CommandOp = "reject"
)

// CommandRequest is an operator intent sent over the real-time channel or REST
type CommandRequest struct {
	Type             string    `json:"type"` // "command"
	RequestID        string    `json:"requestId,omitempty"`
	Op               CommandOp `json:"op"`
	CallID           string    `json:"callId,omitempty"`
	AgentID          string    `json:"agentId,omitempty"`
	ToAgentID        string    `json:"toAgentId,omitempty"`
	SlotID           int       `json:"slotId,omitempty"`
	To               string    `json:"to,omitempty"` // dial target
	ExpectedRevision uint64    `json:"expectedRevision,omitempty"`
}

// CommandRejection describes why a command was not applied
type CommandRejection struct {
	Kind     string `json:"kind"`
	Category string `json:"category"`
	Detail   string `json:"detail,omitempty"`
}

// CommandResult answers a CommandRequest
type CommandResult struct {
	Type      string            `json:"type"` // "command_result"
	RequestID string            `json:"requestId,omitempty"`
	OK        bool              `json:"ok"`
	Call      *CallSummary      `json:"call,omitempty"`
	Rejection *CommandRejection `json:"rejection,omitempty"`
}

// CarrierEventKind is a normalized carrier lifecycle signal
type CarrierEventKind string

const (
	CarrierRinging   CarrierEventKind = "ringing"
	CarrierAnswered  CarrierEventKind = "answered"
	CarrierCompleted CarrierEventKind = "completed"
	CarrierFailed    CarrierEventKind = "failed"
	CarrierBusy      CarrierEventKind = "busy"
	CarrierNoAnswer  CarrierEventKind = "no-answer"
)

// IsTermination reports whether the signal ends the call
func (k CarrierEventKind) IsTermination() bool {
	switch k {
	case CarrierCompleted, CarrierFailed, CarrierBusy, CarrierNoAnswer:
		return true
	}
	return false
}

// CarrierEvent is the internal, normalized carrier event
type CarrierEvent struct {
	CallID          string            `json:"callId"`
	ProviderEventID string            `json:"providerEventId"`
	Kind            CarrierEventKind  `json:"kind"`
	From            string            `json:"from,omitempty"`
	To              string            `json:"to,omitempty"`
	Direction       Direction         `json:"direction,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	ReceivedAt      time.Time         `json:"receivedAt"`
}
