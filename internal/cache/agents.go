package cache

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrAgentBusy     = errors.New("agent already has a call")
	ErrAgentDisabled = errors.New("agent is disabled")
)

// RosterEntry describes an agent as supplied by the user directory
type RosterEntry struct {
	AgentID   string `json:"agentId"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Extension string `json:"extension,omitempty"`
	Active    bool   `json:"isActive"`
}

// AgentRegistry maintains the availability and call assignment of all agents.
// Claim and Release are compare-and-set operations so concurrent requests for
// the same agent resolve in acceptance order.
type AgentRegistry struct {
	agents map[string]*types.Agent // agentID -> current state
	mu     sync.RWMutex
	now    func() time.Time
}

// NewAgentRegistry creates a new agent registry
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{
		agents: make(map[string]*types.Agent),
		now:    time.Now,
	}
}

// Register adds an agent or refreshes its roster fields. The current call
// assignment of a known agent is preserved.
func (r *AgentRegistry) Register(entry RosterEntry) types.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.agents[entry.AgentID]
	if !exists {
		existing = &types.Agent{
			AgentID:    entry.AgentID,
			StateStart: r.now(),
		}
		r.agents[entry.AgentID] = existing
	}

	existing.Name = entry.Name
	existing.Email = entry.Email
	existing.Extension = entry.Extension
	existing.Active = entry.Active
	existing.Revision++
	return *existing
}

// SetActive enrols or disables an agent. Disabling does not drop a call the
// agent is already handling; it only blocks new claims.
func (r *AgentRegistry) SetActive(agentID string, active bool) (types.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return types.Agent{}, ErrAgentNotFound
	}
	if agent.Active != active {
		agent.Active = active
		agent.Revision++
	}
	return *agent, nil
}

// Claim assigns callID to the agent if the agent is active and idle.
// Claiming a call the agent already holds succeeds without a change.
func (r *AgentRegistry) Claim(agentID, callID string) (types.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return types.Agent{}, ErrAgentNotFound
	}
	if agent.CurrentCall == callID {
		return *agent, nil
	}
	if agent.CurrentCall != "" {
		return *agent, ErrAgentBusy
	}
	if !agent.Active {
		return *agent, ErrAgentDisabled
	}

	agent.CurrentCall = callID
	agent.StateStart = r.now()
	agent.Revision++
	return *agent, nil
}

// Release clears the agent's call reference if it still points at callID
func (r *AgentRegistry) Release(agentID, callID string) (types.Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok || agent.CurrentCall != callID {
		return types.Agent{}, false
	}

	agent.CurrentCall = ""
	agent.StateStart = r.now()
	agent.Revision++
	return *agent, true
}

// Get returns a copy of one agent
func (r *AgentRegistry) Get(agentID string) (types.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return types.Agent{}, false
	}
	return *agent, true
}

// GetAll returns all agents ordered by ID
func (r *AgentRegistry) GetAll() []types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]types.Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		agents = append(agents, *agent)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].AgentID < agents[j].AgentID })
	return agents
}

// GetAvailable returns active agents without a call, ordered by ID
func (r *AgentRegistry) GetAvailable() []types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]types.Agent, 0)
	for _, agent := range r.agents {
		if agent.Status() == types.AgentAvailable {
			agents = append(agents, *agent)
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].AgentID < agents[j].AgentID })
	return agents
}

// Count returns the total number of registered agents
func (r *AgentRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// GetStatusStats returns how many agents are in each status
func (r *AgentRegistry) GetStatusStats() (available, onCall, disabled int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, agent := range r.agents {
		switch agent.Status() {
		case types.AgentAvailable:
			available++
		case types.AgentOnCall:
			onCall++
		case types.AgentDisabled:
			disabled++
		}
	}
	return
}
