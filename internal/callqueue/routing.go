package callqueue

import (
	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// RoutingStrategy picks the agent a supervisor's unaddressed assign goes to
type RoutingStrategy interface {
	SelectAgent(candidates []types.Agent) *types.Agent
}

// LongestIdleFirst picks the agent who has been idle the longest.
// Ties go to the lowest agent ID so the choice is stable.
type LongestIdleFirst struct{}

// SelectAgent ignores candidates that are disabled or already on a call
func (l *LongestIdleFirst) SelectAgent(candidates []types.Agent) *types.Agent {
	var best *types.Agent
	for i := range candidates {
		a := &candidates[i]
		if a.Status() != types.AgentAvailable {
			continue
		}
		if best == nil || idleLonger(a, best) {
			best = a
		}
	}
	return best
}

func idleLonger(a, b *types.Agent) bool {
	if !a.StateStart.Equal(b.StateStart) {
		return a.StateStart.Before(b.StateStart)
	}
	return a.AgentID < b.AgentID
}
