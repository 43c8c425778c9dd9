package types

import "time"

// AgentStatus is derived from the agent's active flag and call assignment
type AgentStatus string

const (
	AgentAvailable AgentStatus = "available"
	AgentOnCall    AgentStatus = "on_call"
	AgentDisabled  AgentStatus = "disabled"
)

// Agent is an operator who can own at most one call
type Agent struct {
	AgentID     string    `json:"agentId"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Extension   string    `json:"extension,omitempty"`
	Active      bool      `json:"active"`
	CurrentCall string    `json:"currentCall,omitempty"`
	Revision    uint64    `json:"revision"`
	StateStart  time.Time `json:"stateStart"` // when the agent last became idle or busy
}

// Status returns the dashboard status for the agent
func (a *Agent) Status() AgentStatus {
	switch {
	case !a.Active:
		return AgentDisabled
	case a.CurrentCall != "":
		return AgentOnCall
	default:
		return AgentAvailable
	}
}

// ParkingSlot holds at most one parked call
type ParkingSlot struct {
	SlotID   int    `json:"slotId"`
	CallID   string `json:"callId,omitempty"`
	Revision uint64 `json:"revision"`
}

// Occupied reports whether a call is parked in the slot
func (s *ParkingSlot) Occupied() bool {
	return s.CallID != ""
}

// AlertSeverity represents the severity of a queue alert
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// CallAlert is a presentational annotation on a call summary
type CallAlert struct {
	Rule     string        `json:"rule"`
	Severity AlertSeverity `json:"severity"`
	Message  string        `json:"message"`
}

// CallSummary is the viewer projection of a call
type CallSummary struct {
	CallID         string      `json:"callId"`
	Direction      Direction   `json:"direction"`
	Counterpart    string      `json:"counterpart"`
	State          CallState   `json:"state"`
	Location       Location    `json:"location"`
	CreatedAt      time.Time   `json:"createdAt"`
	LastTransition time.Time   `json:"lastTransition"`
	Revision       uint64      `json:"revision"`
	Alerts         []CallAlert `json:"alerts,omitempty"`
}

// Summarize projects a call for viewers
func (c *Call) Summarize() CallSummary {
	return CallSummary{
		CallID:         c.CallID,
		Direction:      c.Direction,
		Counterpart:    c.Counterpart(),
		State:          c.State,
		Location:       c.Location,
		CreatedAt:      c.CreatedAt,
		LastTransition: c.LastTransition,
		Revision:       c.Revision,
	}
}

// AgentSummary is the viewer projection of an agent
type AgentSummary struct {
	AgentID     string      `json:"agentId"`
	Name        string      `json:"name"`
	Extension   string      `json:"extension,omitempty"`
	Status      AgentStatus `json:"status"`
	CurrentCall string      `json:"currentCall,omitempty"`
	Revision    uint64      `json:"revision"`
}

// Summarize projects an agent for viewers
func (a *Agent) Summarize() AgentSummary {
	return AgentSummary{
		AgentID:     a.AgentID,
		Name:        a.Name,
		Extension:   a.Extension,
		Status:      a.Status(),
		CurrentCall: a.CurrentCall,
		Revision:    a.Revision,
	}
}

// SlotSummary is the viewer projection of a parking slot
type SlotSummary struct {
	SlotID   int          `json:"slotId"`
	Occupied bool         `json:"occupied"`
	Call     *CallSummary `json:"call,omitempty"`
	Revision uint64       `json:"revision"`
}

// ServiceLevel tracks SL metrics for the queue
type ServiceLevel struct {
	Target        int     `json:"target"`        // target percentage (e.g., 80)
	ThresholdSecs int     `json:"thresholdSecs"` // threshold in seconds (e.g., 20)
	AnsweredInSL  int     `json:"answeredInSL"`  // calls answered within threshold
	TotalAnswered int     `json:"totalAnswered"` // total calls answered
	AbandonedLate int     `json:"abandonedLate"` // calls that hung up after the threshold
	CurrentSL     float64 `json:"currentSL"`     // calculated SL percentage
}
