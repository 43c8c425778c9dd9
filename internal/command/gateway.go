package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/switchboard/internal/auth"
	"github.com/dennisdiepolder/monti/switchboard/internal/callqueue"
	"github.com/dennisdiepolder/monti/switchboard/internal/carrier"
	"github.com/dennisdiepolder/monti/switchboard/internal/metrics"
	"github.com/dennisdiepolder/monti/switchboard/internal/routing"
	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

var errNoCarrier = fmt.Errorf("%w: no carrier configured", carrier.ErrUnavailable)

var (
	// ErrForbidden means the caller's identity does not allow the command
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCommand means required fields are missing or the op is unknown
	ErrInvalidCommand = errors.New("invalid command")
)

// Engine is the subset of the routing engine the gateway drives
type Engine interface {
	AssignFromQueue(callID string, expected uint64, agentID string) (*types.Call, error)
	Park(callID string, expected uint64, slotID int, actor string) (*types.Call, error)
	Unpark(callID string, expected uint64, agentID string) (*types.Call, error)
	Transfer(callID string, expected uint64, fromAgentID, toAgentID string) (*types.Call, error)
	Hold(callID string, expected uint64, agentID string) (*types.Call, error)
	Unhold(callID string, expected uint64, agentID string) (*types.Call, error)
	CreateOutbound(callID, agentID, from, to string) (*types.Call, error)
	GetCall(callID string) (*types.Call, bool)
	GetAgent(agentID string) (types.Agent, bool)
	AvailableAgents() []types.Agent
	NextQueued() (string, bool)
}

// Gateway checks operator intents against the caller identity and forwards
// them to the routing engine. It never retries.
type Gateway struct {
	engine   Engine
	carrier  carrier.Carrier
	strategy callqueue.RoutingStrategy
	logger   zerolog.Logger
}

// NewGateway creates a Gateway
func NewGateway(engine Engine, c carrier.Carrier, logger zerolog.Logger) *Gateway {
	return &Gateway{
		engine:   engine,
		carrier:  c,
		strategy: &callqueue.LongestIdleFirst{},
		logger:   logger.With().Str("component", "command").Logger(),
	}
}

// Execute runs one command and reports the outcome in wire form
func (g *Gateway) Execute(ctx context.Context, caller *auth.Claims, req types.CommandRequest) types.CommandResult {
	result := types.CommandResult{Type: "command_result", RequestID: req.RequestID}

	call, err := g.Do(ctx, caller, req)
	if err != nil {
		result.Rejection = Describe(err)
		metrics.Get().RecordCommandRejected(result.Rejection.Kind)
		g.logger.Info().
			Str("op", string(req.Op)).
			Str("call_id", req.CallID).
			Str("kind", result.Rejection.Kind).
			Str("detail", result.Rejection.Detail).
			Msg("command rejected")
		return result
	}

	metrics.Get().RecordCommandAccepted(req.Op)
	result.OK = true
	if call != nil {
		summary := call.Summarize()
		result.Call = &summary
	}
	return result
}

// Do runs one command and returns the engine's call snapshot or error
func (g *Gateway) Do(ctx context.Context, caller *auth.Claims, req types.CommandRequest) (*types.Call, error) {
	if caller == nil {
		return nil, fmt.Errorf("%w: no caller identity", ErrForbidden)
	}

	switch req.Op {
	case types.OpAssign:
		return g.assign(caller, req)
	case types.OpPark:
		return g.park(caller, req)
	case types.OpUnpark:
		agentID := g.actingAgent(caller, req.AgentID, "")
		if err := g.authorize(caller, agentID); err != nil {
			return nil, err
		}
		if err := requireCall(req); err != nil {
			return nil, err
		}
		return g.engine.Unpark(req.CallID, req.ExpectedRevision, agentID)
	case types.OpTransfer:
		if err := requireCall(req); err != nil {
			return nil, err
		}
		if req.ToAgentID == "" {
			return nil, fmt.Errorf("%w: toAgentId is required", ErrInvalidCommand)
		}
		from := g.actingAgent(caller, req.AgentID, req.CallID)
		if err := g.authorize(caller, from); err != nil {
			return nil, err
		}
		return g.engine.Transfer(req.CallID, req.ExpectedRevision, from, req.ToAgentID)
	case types.OpHold, types.OpUnhold:
		if err := requireCall(req); err != nil {
			return nil, err
		}
		agentID := g.actingAgent(caller, req.AgentID, req.CallID)
		if err := g.authorize(caller, agentID); err != nil {
			return nil, err
		}
		if req.Op == types.OpHold {
			return g.engine.Hold(req.CallID, req.ExpectedRevision, agentID)
		}
		return g.engine.Unhold(req.CallID, req.ExpectedRevision, agentID)
	case types.OpDial:
		return g.dial(ctx, caller, req)
	case types.OpHangup:
		return g.hangup(ctx, caller, req)
	case types.OpReject:
		return g.reject(ctx, caller, req)
	default:
		return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidCommand, req.Op)
	}
}

func requireCall(req types.CommandRequest) error {
	if req.CallID == "" {
		return fmt.Errorf("%w: callId is required", ErrInvalidCommand)
	}
	return nil
}

func (g *Gateway) authorize(caller *auth.Claims, agentID string) error {
	if !caller.CanActFor(agentID) {
		return fmt.Errorf("%w: %s %q may not act for agent %q", ErrForbidden, caller.Role, caller.AgentID, agentID)
	}
	return nil
}

// actingAgent resolves which agent a command is issued for. Supervisors
// default to the call's current owner, everyone else to themselves.
func (g *Gateway) actingAgent(caller *auth.Claims, requested, callID string) string {
	if requested != "" {
		return requested
	}
	if caller.IsSupervisor() && callID != "" {
		if call, ok := g.engine.GetCall(callID); ok && call.Location.Kind == types.LocationAgent {
			return call.Location.AgentID
		}
	}
	return caller.AgentID
}

func (g *Gateway) assign(caller *auth.Claims, req types.CommandRequest) (*types.Call, error) {
	callID := req.CallID
	if callID == "" {
		next, ok := g.engine.NextQueued()
		if !ok {
			return nil, &routing.Rejection{Kind: routing.KindCallNotFound, Detail: "queue is empty"}
		}
		callID = next
	}

	agentID := req.AgentID
	if agentID == "" {
		if caller.IsSupervisor() {
			agent := g.strategy.SelectAgent(g.engine.AvailableAgents())
			if agent == nil {
				return nil, &routing.Rejection{Kind: routing.KindAgentBusy, CallID: callID, Detail: "no agent available"}
			}
			agentID = agent.AgentID
		} else {
			agentID = caller.AgentID
		}
	}
	if err := g.authorize(caller, agentID); err != nil {
		return nil, err
	}

	return g.engine.AssignFromQueue(callID, req.ExpectedRevision, agentID)
}

func (g *Gateway) park(caller *auth.Claims, req types.CommandRequest) (*types.Call, error) {
	if err := requireCall(req); err != nil {
		return nil, err
	}
	if req.SlotID == 0 {
		return nil, fmt.Errorf("%w: slotId is required", ErrInvalidCommand)
	}

	// Supervisors may park any call; agents only their own
	actor := ""
	if !caller.IsSupervisor() {
		if err := g.authorize(caller, caller.AgentID); err != nil {
			return nil, err
		}
		actor = caller.AgentID
	}
	return g.engine.Park(req.CallID, req.ExpectedRevision, req.SlotID, actor)
}

// dial places the carrier call outside any engine lock, then records it.
// If the agent took another call meanwhile, the carrier call is hung up.
func (g *Gateway) dial(ctx context.Context, caller *auth.Claims, req types.CommandRequest) (*types.Call, error) {
	if req.To == "" {
		return nil, fmt.Errorf("%w: to is required", ErrInvalidCommand)
	}
	agentID := g.actingAgent(caller, req.AgentID, "")
	if err := g.authorize(caller, agentID); err != nil {
		return nil, err
	}

	agent, ok := g.engine.GetAgent(agentID)
	switch {
	case !ok:
		return nil, &routing.Rejection{Kind: routing.KindAgentNotFound, Detail: "agent " + agentID}
	case !agent.Active:
		return nil, &routing.Rejection{Kind: routing.KindAgentDisabled, Detail: "agent " + agentID + " is disabled"}
	case agent.CurrentCall != "":
		return nil, &routing.Rejection{Kind: routing.KindAgentBusy, CallID: agent.CurrentCall, Detail: "agent " + agentID + " is on a call"}
	}

	if g.carrier == nil {
		return nil, errNoCarrier
	}
	placed, err := g.carrier.PlaceCall(ctx, carrier.OutboundRequest{AgentID: agentID, To: req.To})
	if err != nil {
		return nil, err
	}

	call, err := g.engine.CreateOutbound(placed.CallID, agentID, "", req.To)
	if err != nil {
		g.logger.Warn().
			Err(err).
			Str("call_id", placed.CallID).
			Str("agent_id", agentID).
			Msg("outbound call not recorded, hanging up")
		if hErr := g.carrier.Hangup(ctx, placed.CallID); hErr != nil {
			g.logger.Error().Err(hErr).Str("call_id", placed.CallID).Msg("failed to hang up unrecorded call")
		}
		return nil, err
	}

	g.logger.Info().Str("call_id", call.CallID).Str("agent_id", agentID).Msg("outbound call dialed")
	return call, nil
}

// lookup returns the current call, honouring an expected revision
func (g *Gateway) lookup(req types.CommandRequest) (*types.Call, error) {
	if err := requireCall(req); err != nil {
		return nil, err
	}
	call, ok := g.engine.GetCall(req.CallID)
	if !ok {
		return nil, &routing.Rejection{Kind: routing.KindCallNotFound, CallID: req.CallID}
	}
	if call.State.IsTerminal() {
		return nil, &routing.Rejection{Kind: routing.KindInvalidSourceState, CallID: req.CallID, Detail: "call has ended"}
	}
	if req.ExpectedRevision != 0 && req.ExpectedRevision != call.Revision {
		return nil, &routing.Rejection{
			Kind:   routing.KindStaleRevision,
			CallID: req.CallID,
			Detail: fmt.Sprintf("expected revision %d, current %d", req.ExpectedRevision, call.Revision),
		}
	}
	return call, nil
}

// hangup asks the carrier to end a call. The Ended transition arrives later
// as a carrier completed event.
func (g *Gateway) hangup(ctx context.Context, caller *auth.Claims, req types.CommandRequest) (*types.Call, error) {
	call, err := g.lookup(req)
	if err != nil {
		return nil, err
	}

	if !caller.IsSupervisor() {
		if call.Location.Kind != types.LocationAgent {
			return nil, &routing.Rejection{Kind: routing.KindNotOwner, CallID: call.CallID, Detail: "call is at " + call.Location.String()}
		}
		if err := g.authorize(caller, call.Location.AgentID); err != nil {
			return nil, &routing.Rejection{Kind: routing.KindNotOwner, CallID: call.CallID, Detail: "call is owned by " + call.Location.AgentID}
		}
	}

	if err := g.endCall(ctx, call.CallID); err != nil {
		return nil, err
	}
	return call, nil
}

// reject declines a call that is still waiting in the queue
func (g *Gateway) reject(ctx context.Context, caller *auth.Claims, req types.CommandRequest) (*types.Call, error) {
	if !caller.IsSupervisor() {
		if err := g.authorize(caller, caller.AgentID); err != nil {
			return nil, err
		}
	}

	call, err := g.lookup(req)
	if err != nil {
		return nil, err
	}
	if call.State != types.CallStateRinging || call.Location.Kind != types.LocationQueue {
		return nil, &routing.Rejection{
			Kind:   routing.KindCallNotInQueue,
			CallID: call.CallID,
			Detail: fmt.Sprintf("call is %s at %s", call.State, call.Location),
		}
	}

	if err := g.endCall(ctx, call.CallID); err != nil {
		return nil, err
	}
	return call, nil
}

func (g *Gateway) endCall(ctx context.Context, callID string) error {
	if g.carrier == nil {
		return errNoCarrier
	}
	return g.carrier.Hangup(ctx, callID)
}
