package routing

import (
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/switchboard/internal/alerts"
	"github.com/dennisdiepolder/monti/switchboard/internal/cache"
	"github.com/dennisdiepolder/monti/switchboard/internal/callqueue"
	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// Publisher receives committed deltas. Publish must not block.
type Publisher interface {
	Publish(deltas []types.Delta)
}

// Archiver persists ended calls
type Archiver interface {
	SaveCallRecord(record types.CallRecord) error
}

// Config sizes the engine's stores
type Config struct {
	ParkingSlots   int
	EndedRetention int // ended call IDs remembered after removal
	Queue          callqueue.Config
}

// DefaultConfig matches the six parking slots of the dashboard
func DefaultConfig() Config {
	return Config{
		ParkingSlots:   6,
		EndedRetention: 4096,
		Queue:          callqueue.DefaultConfig(),
	}
}

// Engine is the call-routing state machine. It is the only writer of the
// call store, agent registry, parking registry and queue.
//
// Transitions for one call are serialized by a per-call lock. Races between
// calls for the same agent or slot are settled by the registries'
// compare-and-set, which every operation performs before any other mutation.
// Mutations hold the barrier in read mode, Snapshot holds it exclusively.
type Engine struct {
	calls  *cache.CallStore
	agents *cache.AgentRegistry
	slots  *cache.ParkingRegistry
	queue  *callqueue.Queue

	locks   *keyedMutex
	barrier sync.RWMutex
	ended   *lru.Cache[string, time.Time]

	publisher Publisher
	archiver  Archiver
	now       func() time.Time
	logger    zerolog.Logger
}

// NewEngine creates an engine with empty stores
func NewEngine(cfg Config, publisher Publisher, logger zerolog.Logger) (*Engine, error) {
	if cfg.ParkingSlots < 0 {
		return nil, errors.New("parking slot count must not be negative")
	}
	if cfg.EndedRetention <= 0 {
		cfg.EndedRetention = DefaultConfig().EndedRetention
	}
	ended, err := lru.New[string, time.Time](cfg.EndedRetention)
	if err != nil {
		return nil, err
	}
	if publisher == nil {
		publisher = discardPublisher{}
	}

	return &Engine{
		calls:     cache.NewCallStore(),
		agents:    cache.NewAgentRegistry(),
		slots:     cache.NewParkingRegistry(cfg.ParkingSlots),
		queue:     callqueue.NewQueue(cfg.Queue),
		locks:     newKeyedMutex(),
		ended:     ended,
		publisher: publisher,
		now:       time.Now,
		logger:    logger.With().Str("component", "routing").Logger(),
	}, nil
}

// SetArchiver sets the persistence store for ended calls
func (e *Engine) SetArchiver(archiver Archiver) {
	e.archiver = archiver
}

// Queue exposes the waiting queue for read-only consumers
func (e *Engine) Queue() *callqueue.Queue {
	return e.queue
}

// discardPublisher acknowledges terminal deltas immediately
type discardPublisher struct{}

func (discardPublisher) Publish(deltas []types.Delta) {
	for _, d := range deltas {
		if d.Ack != nil {
			d.Ack()
		}
	}
}

// txn accumulates one transition's changes to the working copy of a call
type txn struct {
	e      *Engine
	call   *types.Call
	now    time.Time
	deltas []types.Delta
}

// transition moves the working call to a new state and records the delta
func (t *txn) transition(state types.CallState, loc types.Location) {
	t.call.State = state
	t.call.Location = loc
	t.call.LastTransition = t.now
	t.call.Revision++
	t.emitCall()
}

// touch records a change to the working call that keeps its state and location
func (t *txn) touch() {
	t.call.Revision++
	t.emitCall()
}

func (t *txn) emitCall() {
	summary := t.call.Summarize()
	d := types.Delta{
		Type:       "delta",
		EntityType: types.EntityCall,
		EntityID:   t.call.CallID,
		Snapshot:   t.e.encode(summary),
		Revision:   t.call.Revision,
		Timestamp:  t.now,
	}
	if t.call.State.IsTerminal() {
		callID := t.call.CallID
		d.Terminal = true
		d.Ack = func() { t.e.forget(callID) }
	}
	t.deltas = append(t.deltas, d)
}

func (t *txn) emitAgent(agent types.Agent) {
	t.deltas = append(t.deltas, types.Delta{
		Type:       "delta",
		EntityType: types.EntityAgent,
		EntityID:   agent.AgentID,
		Snapshot:   t.e.encode(agent.Summarize()),
		Revision:   agent.Revision,
		Timestamp:  t.now,
	})
}

func (t *txn) emitSlot(slot types.ParkingSlot) {
	summary := types.SlotSummary{
		SlotID:   slot.SlotID,
		Occupied: slot.Occupied(),
		Revision: slot.Revision,
	}
	if slot.Occupied() && slot.CallID == t.call.CallID {
		cs := t.call.Summarize()
		summary.Call = &cs
	}
	t.deltas = append(t.deltas, types.Delta{
		Type:       "delta",
		EntityType: types.EntitySlot,
		EntityID:   strconv.Itoa(slot.SlotID),
		Snapshot:   t.e.encode(summary),
		Revision:   slot.Revision,
		Timestamp:  t.now,
	})
}

func (t *txn) handledBy(agentID string) {
	n := len(t.call.HandledBy)
	if n == 0 || t.call.HandledBy[n-1] != agentID {
		t.call.HandledBy = append(t.call.HandledBy, agentID)
	}
}

func (e *Engine) encode(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to encode delta snapshot")
		return nil
	}
	return data
}

// acquire takes the snapshot barrier and the call's lock
func (e *Engine) acquire(callID string) func() {
	e.barrier.RLock()
	unlock := e.locks.Lock(callID)
	return func() {
		unlock()
		e.barrier.RUnlock()
	}
}

// begin loads a call for mutation. Must be called with the call's lock held.
func (e *Engine) begin(callID string, expected uint64) (*txn, error) {
	call, ok := e.calls.Get(callID)
	if !ok {
		if e.ended.Contains(callID) {
			return nil, reject(KindInvalidSourceState, callID, "call has ended")
		}
		return nil, reject(KindCallNotFound, callID, "")
	}
	if expected != 0 && expected != call.Revision {
		return nil, reject(KindStaleRevision, callID, "expected revision %d, current %d", expected, call.Revision)
	}
	return &txn{e: e, call: call.Clone(), now: e.now()}, nil
}

// commit stores the working call and publishes its deltas. Must be called
// with the call's lock held so deltas of one call leave in revision order.
func (e *Engine) commit(t *txn) *types.Call {
	e.calls.Put(t.call)
	if len(t.deltas) > 0 {
		e.publisher.Publish(t.deltas)
	}
	return t.call.Clone()
}

// forget drops an ended call from the store once its terminal delta went out
func (e *Engine) forget(callID string) {
	if call, ok := e.calls.Get(callID); ok && call.State.IsTerminal() {
		e.calls.Remove(callID)
		e.logger.Debug().Str("call_id", callID).Msg("ended call removed")
	}
}

func (e *Engine) requireAgent(callID, agentID string) error {
	if _, ok := e.agents.Get(agentID); !ok {
		return reject(KindAgentNotFound, callID, "agent %s", agentID)
	}
	return nil
}

// claim maps registry failures to rejections. busyKind distinguishes the
// assignee of AssignFromQueue/Unpark from the target of a transfer.
func (e *Engine) claim(callID, agentID string, busyKind Kind) (types.Agent, error) {
	agent, err := e.agents.Claim(agentID, callID)
	switch {
	case err == nil:
		return agent, nil
	case errors.Is(err, cache.ErrAgentBusy):
		return agent, reject(busyKind, callID, "agent %s is on call %s", agentID, agent.CurrentCall)
	case errors.Is(err, cache.ErrAgentDisabled):
		return agent, reject(KindAgentDisabled, callID, "agent %s is disabled", agentID)
	default:
		return agent, reject(KindAgentNotFound, callID, "agent %s", agentID)
	}
}

// releaseAgent clears the owning agent of the working call, if any
func (t *txn) releaseAgent() {
	if t.call.Location.Kind != types.LocationAgent {
		return
	}
	agentID := t.call.Location.AgentID
	if agent, ok := t.e.agents.Release(agentID, t.call.CallID); ok {
		t.emitAgent(agent)
	} else {
		t.e.logger.Error().
			Str("call_id", t.call.CallID).
			Str("agent_id", agentID).
			Msg("owning agent did not hold call")
	}
}

// AssignFromQueue connects a queued call to an idle agent
func (e *Engine) AssignFromQueue(callID string, expected uint64, agentID string) (*types.Call, error) {
	unlock := e.acquire(callID)
	defer unlock()

	t, err := e.begin(callID, expected)
	if err != nil {
		return nil, err
	}
	if err := e.requireAgent(callID, agentID); err != nil {
		return nil, err
	}
	if t.call.State != types.CallStateRinging || t.call.Location.Kind != types.LocationQueue {
		return nil, reject(KindCallNotInQueue, callID, "call is %s at %s", t.call.State, t.call.Location)
	}
	// Outbound calls wait for their dialing agent, never for the queue
	if t.call.Direction == types.DirectionOutbound {
		return nil, reject(KindCallNotInQueue, callID, "outbound call awaiting its dialing agent")
	}

	agent, err := e.claim(callID, agentID, KindAgentBusy)
	if err != nil {
		return nil, err
	}

	e.queue.Assign(callID, t.now)
	answered := t.now
	t.call.AnsweredAt = &answered
	t.handledBy(agentID)
	t.transition(types.CallStateConnected, types.AgentLocation(agentID))
	t.emitAgent(agent)

	e.logger.Debug().Str("call_id", callID).Str("agent_id", agentID).Msg("call assigned from queue")
	return e.commit(t), nil
}

// Park moves a connected or held call into a free parking slot. A non-empty
// actor must be the owning agent.
func (e *Engine) Park(callID string, expected uint64, slotID int, actor string) (*types.Call, error) {
	unlock := e.acquire(callID)
	defer unlock()

	t, err := e.begin(callID, expected)
	if err != nil {
		return nil, err
	}
	if _, ok := e.slots.Get(slotID); !ok {
		return nil, reject(KindSlotNotFound, callID, "slot %d", slotID)
	}
	if t.call.State != types.CallStateConnected && t.call.State != types.CallStateOnHold {
		return nil, reject(KindInvalidSourceState, callID, "cannot park a %s call", t.call.State)
	}
	if actor != "" && !t.call.Location.IsAgent(actor) {
		return nil, reject(KindNotOwner, callID, "call is owned by %s", t.call.Location)
	}

	slot, err := e.slots.Occupy(slotID, callID)
	if err != nil {
		return nil, reject(KindSlotOccupied, callID, "slot %d holds call %s", slotID, slot.CallID)
	}

	t.releaseAgent()
	t.transition(types.CallStateParked, types.SlotLocation(slotID))
	t.emitSlot(slot)

	e.logger.Debug().Str("call_id", callID).Int("slot_id", slotID).Msg("call parked")
	return e.commit(t), nil
}

// Unpark connects a parked call to an idle agent and frees its slot
func (e *Engine) Unpark(callID string, expected uint64, agentID string) (*types.Call, error) {
	unlock := e.acquire(callID)
	defer unlock()

	t, err := e.begin(callID, expected)
	if err != nil {
		return nil, err
	}
	if err := e.requireAgent(callID, agentID); err != nil {
		return nil, err
	}
	if t.call.State != types.CallStateParked {
		return nil, reject(KindInvalidSourceState, callID, "cannot unpark a %s call", t.call.State)
	}

	agent, err := e.claim(callID, agentID, KindAgentBusy)
	if err != nil {
		return nil, err
	}

	slotID := t.call.Location.SlotID
	slot, ok := e.slots.Vacate(slotID, callID)
	if !ok {
		e.logger.Error().Str("call_id", callID).Int("slot_id", slotID).Msg("parked call missing from its slot")
	}

	t.handledBy(agentID)
	t.transition(types.CallStateConnected, types.AgentLocation(agentID))
	t.emitAgent(agent)
	if ok {
		t.emitSlot(slot)
	}

	e.logger.Debug().Str("call_id", callID).Str("agent_id", agentID).Int("slot_id", slotID).Msg("call unparked")
	return e.commit(t), nil
}

// Transfer hands a connected call from its owning agent to an idle agent.
// Viewers observe Transferring followed by Connected; callers only see the
// final state.
func (e *Engine) Transfer(callID string, expected uint64, fromAgentID, toAgentID string) (*types.Call, error) {
	unlock := e.acquire(callID)
	defer unlock()

	t, err := e.begin(callID, expected)
	if err != nil {
		return nil, err
	}
	if err := e.requireAgent(callID, toAgentID); err != nil {
		return nil, err
	}
	if t.call.State != types.CallStateConnected {
		return nil, reject(KindInvalidSourceState, callID, "cannot transfer a %s call", t.call.State)
	}
	if !t.call.Location.IsAgent(fromAgentID) {
		return nil, reject(KindNotOwner, callID, "call is owned by %s", t.call.Location)
	}
	if fromAgentID == toAgentID {
		return nil, reject(KindTargetBusy, callID, "agent %s already owns the call", toAgentID)
	}

	target, err := e.claim(callID, toAgentID, KindTargetBusy)
	if err != nil {
		return nil, err
	}

	t.releaseAgent()
	t.handledBy(toAgentID)
	t.transition(types.CallStateTransferring, types.AgentLocation(toAgentID))
	t.emitAgent(target)
	t.transition(types.CallStateConnected, types.AgentLocation(toAgentID))

	e.logger.Debug().Str("call_id", callID).Str("from_agent_id", fromAgentID).Str("agent_id", toAgentID).Msg("call transferred")
	return e.commit(t), nil
}

// Hold puts the owning agent's connected call on hold
func (e *Engine) Hold(callID string, expected uint64, agentID string) (*types.Call, error) {
	return e.toggleHold(callID, expected, agentID, types.CallStateConnected, types.CallStateOnHold)
}

// Unhold resumes a held call
func (e *Engine) Unhold(callID string, expected uint64, agentID string) (*types.Call, error) {
	return e.toggleHold(callID, expected, agentID, types.CallStateOnHold, types.CallStateConnected)
}

func (e *Engine) toggleHold(callID string, expected uint64, agentID string, from, to types.CallState) (*types.Call, error) {
	unlock := e.acquire(callID)
	defer unlock()

	t, err := e.begin(callID, expected)
	if err != nil {
		return nil, err
	}
	if t.call.State != from {
		return nil, reject(KindInvalidSourceState, callID, "call is %s, not %s", t.call.State, from)
	}
	if !t.call.Location.IsAgent(agentID) {
		return nil, reject(KindNotOwner, callID, "call is owned by %s", t.call.Location)
	}

	t.transition(to, t.call.Location)
	return e.commit(t), nil
}

// CreateOutbound records a call placed by an agent through the carrier. The
// call starts Ringing, owned by the agent. A ringing event that raced ahead
// and queued the call is adopted.
func (e *Engine) CreateOutbound(callID, agentID, from, to string) (*types.Call, error) {
	unlock := e.acquire(callID)
	defer unlock()

	if e.ended.Contains(callID) {
		return nil, reject(KindInvalidSourceState, callID, "call has ended")
	}
	if err := e.requireAgent(callID, agentID); err != nil {
		return nil, err
	}

	existing, exists := e.calls.Get(callID)
	if exists {
		adoptable := existing.Direction == types.DirectionOutbound &&
			existing.State == types.CallStateRinging &&
			existing.Location.Kind == types.LocationQueue
		if !adoptable {
			return nil, reject(KindCallExists, callID, "call is %s at %s", existing.State, existing.Location)
		}
	}

	agent, err := e.claim(callID, agentID, KindAgentBusy)
	if err != nil {
		return nil, err
	}

	now := e.now()
	t := &txn{e: e, now: now}
	if exists {
		t.call = existing.Clone()
		e.queue.Remove(callID)
	} else {
		t.call = &types.Call{
			CallID:    callID,
			Direction: types.DirectionOutbound,
			From:      from,
			To:        to,
			CreatedAt: now,
		}
	}
	state := types.CallStateRinging
	if t.call.AnsweredAt != nil {
		state = types.CallStateConnected
	}
	t.handledBy(agentID)
	t.transition(state, types.AgentLocation(agentID))
	t.emitAgent(agent)

	e.logger.Debug().Str("call_id", callID).Str("agent_id", agentID).Str("state", string(state)).Msg("outbound call created")
	return e.commit(t), nil
}

// ApplyCarrierEvent maps a normalized carrier signal onto the state machine.
// A nil call with a nil error means the event confirmed the current state.
func (e *Engine) ApplyCarrierEvent(ev types.CarrierEvent) (*types.Call, error) {
	unlock := e.acquire(ev.CallID)
	defer unlock()

	switch {
	case ev.Kind == types.CarrierRinging:
		return e.applyRinging(ev)
	case ev.Kind == types.CarrierAnswered:
		return e.applyAnswered(ev)
	case ev.Kind.IsTermination():
		call, err := e.applyTermination(ev)
		if err == nil {
			e.archive(call)
		}
		return call, err
	default:
		return nil, reject(KindInvalidSourceState, ev.CallID, "unknown carrier event kind %q", ev.Kind)
	}
}

func (e *Engine) applyRinging(ev types.CarrierEvent) (*types.Call, error) {
	if existing, ok := e.calls.Get(ev.CallID); ok {
		if existing.State == types.CallStateRinging {
			return nil, nil
		}
		return nil, reject(KindInvalidSourceState, ev.CallID, "ringing for a %s call", existing.State)
	}
	if e.ended.Contains(ev.CallID) {
		return nil, reject(KindInvalidSourceState, ev.CallID, "ringing for an ended call")
	}

	now := e.now()
	direction := ev.Direction
	if direction == "" {
		direction = types.DirectionInbound
	}
	t := &txn{e: e, now: now, call: &types.Call{
		CallID:    ev.CallID,
		Direction: direction,
		From:      ev.From,
		To:        ev.To,
		CreatedAt: now,
	}}
	if direction == types.DirectionInbound {
		e.queue.Enqueue(ev.CallID, now)
	}
	t.transition(types.CallStateRinging, types.QueueLocation())

	e.logger.Debug().
		Str("call_id", ev.CallID).
		Str("from", ev.From).
		Str("direction", string(direction)).
		Msg("call queued")
	return e.commit(t), nil
}

func (e *Engine) applyAnswered(ev types.CarrierEvent) (*types.Call, error) {
	t, err := e.begin(ev.CallID, 0)
	if err != nil {
		return nil, err
	}

	switch t.call.State {
	case types.CallStateRinging:
		if t.call.Location.Kind != types.LocationAgent {
			// An outbound call whose dial has not been recorded yet keeps
			// the answer time so CreateOutbound can connect it on adoption.
			if t.call.Direction == types.DirectionOutbound && t.call.AnsweredAt == nil {
				answered := t.now
				t.call.AnsweredAt = &answered
				t.touch()
				return e.commit(t), nil
			}
			return nil, nil
		}
		answered := t.now
		t.call.AnsweredAt = &answered
		t.transition(types.CallStateConnected, t.call.Location)
		return e.commit(t), nil
	case types.CallStateEnded:
		return nil, reject(KindInvalidSourceState, ev.CallID, "answered for an ended call")
	default:
		return nil, nil
	}
}

// applyTermination ends a call from any non-terminal state, freeing whatever
// holds it
func (e *Engine) applyTermination(ev types.CarrierEvent) (*types.Call, error) {
	t, err := e.begin(ev.CallID, 0)
	if err != nil {
		// An outbound call can fail at the carrier before its dial is
		// recorded. The tombstone makes CreateOutbound refuse it.
		if IsKind(err, KindCallNotFound) {
			e.ended.Add(ev.CallID, e.now())
		}
		return nil, err
	}
	if t.call.State.IsTerminal() {
		return nil, reject(KindInvalidSourceState, ev.CallID, "call already ended")
	}

	loc := t.call.Location
	switch loc.Kind {
	case types.LocationAgent:
		t.releaseAgent()
	case types.LocationSlot:
		if slot, ok := e.slots.Vacate(loc.SlotID, ev.CallID); ok {
			t.emitSlot(slot)
		}
	case types.LocationQueue:
		e.queue.Abandon(ev.CallID, t.now)
	}

	ended := t.now
	t.call.EndedAt = &ended
	t.call.EndReason = string(ev.Kind)
	e.ended.Add(ev.CallID, ended)
	t.transition(types.CallStateEnded, types.NoLocation())

	e.logger.Debug().
		Str("call_id", ev.CallID).
		Str("reason", string(ev.Kind)).
		Str("from_location", loc.String()).
		Msg("call ended")
	return e.commit(t), nil
}

func (e *Engine) archive(call *types.Call) {
	if e.archiver == nil || call == nil {
		return
	}
	record := RecordFromCall(call)
	go func() {
		if err := e.archiver.SaveCallRecord(record); err != nil {
			e.logger.Error().Err(err).Str("call_id", record.CallID).Msg("failed to archive call record")
		}
	}()
}

// RegisterAgents adds or refreshes roster entries
func (e *Engine) RegisterAgents(entries []cache.RosterEntry) []types.Agent {
	e.barrier.RLock()
	defer e.barrier.RUnlock()

	out := make([]types.Agent, 0, len(entries))
	t := &txn{e: e, now: e.now()}
	for _, entry := range entries {
		agent := e.agents.Register(entry)
		out = append(out, agent)
		t.emitAgent(agent)
	}
	if len(t.deltas) > 0 {
		e.publisher.Publish(t.deltas)
	}
	return out
}

// SetAgentActive enrols or disables an agent
func (e *Engine) SetAgentActive(agentID string, active bool) (types.Agent, error) {
	e.barrier.RLock()
	defer e.barrier.RUnlock()

	agent, err := e.agents.SetActive(agentID, active)
	if err != nil {
		return agent, reject(KindAgentNotFound, "", "agent %s", agentID)
	}
	t := &txn{e: e, now: e.now()}
	t.emitAgent(agent)
	e.publisher.Publish(t.deltas)
	return agent, nil
}

// Stats counts what the engine's stores hold
type Stats struct {
	LiveCalls       int `json:"liveCalls"`
	Agents          int `json:"agents"`
	AgentsAvailable int `json:"agentsAvailable"`
	AgentsOnCall    int `json:"agentsOnCall"`
	AgentsDisabled  int `json:"agentsDisabled"`
	ParkingSlots    int `json:"parkingSlots"`
	Tombstones      int `json:"tombstones"`
}

// Stats returns store sizes. Counts are read independently and may be
// mutually inconsistent while transitions run.
func (e *Engine) Stats() Stats {
	available, onCall, disabled := e.agents.GetStatusStats()
	return Stats{
		LiveCalls:       e.calls.Size(),
		Agents:          e.agents.Count(),
		AgentsAvailable: available,
		AgentsOnCall:    onCall,
		AgentsDisabled:  disabled,
		ParkingSlots:    e.slots.Count(),
		Tombstones:      e.ended.Len(),
	}
}

// GetCall returns a copy of a live or recently ended call
func (e *Engine) GetCall(callID string) (*types.Call, bool) {
	call, ok := e.calls.Get(callID)
	if !ok {
		return nil, false
	}
	return call.Clone(), true
}

// GetAgent returns a copy of an agent
func (e *Engine) GetAgent(agentID string) (types.Agent, bool) {
	return e.agents.Get(agentID)
}

// AvailableAgents returns agents that can take a call
func (e *Engine) AvailableAgents() []types.Agent {
	return e.agents.GetAvailable()
}

// NextQueued returns the longest waiting call
func (e *Engine) NextQueued() (string, bool) {
	entry, ok := e.queue.Head()
	return entry.CallID, ok
}

// Snapshot returns a consistent view of queue, calls, agents and slots
func (e *Engine) Snapshot() types.Snapshot {
	e.barrier.Lock()
	calls := e.calls.All()
	waiting := e.queue.Waiting()
	agents := e.agents.GetAll()
	slots := e.slots.GetAll()
	sl := e.queue.ServiceLevel()
	e.barrier.Unlock()

	now := e.now()
	byID := make(map[string]*types.Call, len(calls))
	for _, c := range calls {
		byID[c.CallID] = c
	}
	inQueue := make(map[string]bool, len(waiting))
	for _, w := range waiting {
		inQueue[w.CallID] = true
	}

	snap := types.Snapshot{
		Type:         "snapshot",
		Timestamp:    now,
		Queue:        make([]types.CallSummary, 0, len(waiting)),
		Calls:        make([]types.CallSummary, 0, len(calls)),
		Agents:       make([]types.AgentSummary, 0, len(agents)),
		Slots:        make([]types.SlotSummary, 0, len(slots)),
		ServiceLevel: sl,
	}
	for _, w := range waiting {
		if c, ok := byID[w.CallID]; ok {
			snap.Queue = append(snap.Queue, c.Summarize())
		}
	}
	for _, c := range calls {
		if !inQueue[c.CallID] {
			snap.Calls = append(snap.Calls, c.Summarize())
		}
	}
	for i := range agents {
		snap.Agents = append(snap.Agents, agents[i].Summarize())
	}
	for i := range slots {
		ss := types.SlotSummary{
			SlotID:   slots[i].SlotID,
			Occupied: slots[i].Occupied(),
			Revision: slots[i].Revision,
		}
		if c, ok := byID[slots[i].CallID]; ok {
			cs := c.Summarize()
			ss.Call = &cs
		}
		snap.Slots = append(snap.Slots, ss)
	}

	alerts.CheckQueueAlerts(snap.Queue, now)
	return snap
}
