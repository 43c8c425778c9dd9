package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

func newTestRegistry(ids ...string) *AgentRegistry {
	r := NewAgentRegistry()
	for _, id := range ids {
		r.Register(RosterEntry{AgentID: id, Name: id, Active: true})
	}
	return r
}

func TestAgentClaimAndRelease(t *testing.T) {
	r := newTestRegistry("a1")

	agent, err := r.Claim("a1", "c1")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if agent.CurrentCall != "c1" {
		t.Errorf("expected current call c1, got %q", agent.CurrentCall)
	}
	if agent.Status() != types.AgentOnCall {
		t.Errorf("expected on_call, got %s", agent.Status())
	}

	if _, err := r.Claim("a1", "c2"); !errors.Is(err, ErrAgentBusy) {
		t.Errorf("expected ErrAgentBusy, got %v", err)
	}

	// Releasing a call the agent does not hold is ignored
	if _, ok := r.Release("a1", "c2"); ok {
		t.Error("release of foreign call should fail")
	}

	released, ok := r.Release("a1", "c1")
	if !ok {
		t.Fatal("expected release to succeed")
	}
	if released.CurrentCall != "" {
		t.Errorf("expected no current call, got %q", released.CurrentCall)
	}
	if released.Revision <= agent.Revision {
		t.Errorf("expected revision to increase, %d -> %d", agent.Revision, released.Revision)
	}
}

func TestAgentClaimRejections(t *testing.T) {
	r := newTestRegistry("a1")

	if _, err := r.Claim("ghost", "c1"); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}

	if _, err := r.SetActive("a1", false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if _, err := r.Claim("a1", "c1"); !errors.Is(err, ErrAgentDisabled) {
		t.Errorf("expected ErrAgentDisabled, got %v", err)
	}
}

func TestAgentClaimIsIdempotentForSameCall(t *testing.T) {
	r := newTestRegistry("a1")
	first, _ := r.Claim("a1", "c1")
	second, err := r.Claim("a1", "c1")
	if err != nil {
		t.Fatalf("expected repeated claim to succeed, got %v", err)
	}
	if second.Revision != first.Revision {
		t.Errorf("repeated claim should not bump revision")
	}
}

func TestAgentConcurrentClaimSingleWinner(t *testing.T) {
	r := newTestRegistry("a1")

	const n = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.Claim("a1", fmt.Sprintf("c%d", i)); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly 1 winner, got %d", winners)
	}
}

func TestRegisterPreservesAssignment(t *testing.T) {
	r := newTestRegistry("a1")
	r.Claim("a1", "c1")

	agent := r.Register(RosterEntry{AgentID: "a1", Name: "Renamed", Active: true})
	if agent.CurrentCall != "c1" {
		t.Errorf("expected call to survive roster refresh, got %q", agent.CurrentCall)
	}
	if agent.Name != "Renamed" {
		t.Errorf("expected name update, got %q", agent.Name)
	}
}

func TestGetAvailableSkipsBusyAndDisabled(t *testing.T) {
	r := NewAgentRegistry()
	base := time.Now()
	tick := 0
	r.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	r.Register(RosterEntry{AgentID: "a1", Active: true})
	r.Register(RosterEntry{AgentID: "a2", Active: true})
	r.Register(RosterEntry{AgentID: "a3", Active: false})

	// a1 takes and drops a call, so its idle period restarts
	first, _ := r.Get("a1")
	r.Claim("a1", "c1")
	r.Release("a1", "c1")
	after, _ := r.Get("a1")
	if !after.StateStart.After(first.StateStart) {
		t.Errorf("expected idle start to move forward")
	}

	r.Claim("a2", "c2")
	available := r.GetAvailable()
	if len(available) != 1 || available[0].AgentID != "a1" {
		t.Fatalf("expected only a1 available, got %+v", available)
	}
	r.Release("a2", "c2")

	avail, onCall, disabled := r.GetStatusStats()
	if avail != 2 || onCall != 0 || disabled != 1 {
		t.Errorf("unexpected stats %d/%d/%d", avail, onCall, disabled)
	}
}

func TestParkingOccupyVacate(t *testing.T) {
	p := NewParkingRegistry(6)
	if p.Count() != 6 {
		t.Fatalf("expected 6 slots, got %d", p.Count())
	}

	tests := []struct {
		name    string
		slotID  int
		callID  string
		wantErr error
	}{
		{"free slot", 2, "c1", nil},
		{"same call again", 2, "c1", nil},
		{"occupied slot", 2, "c2", ErrSlotOccupied},
		{"slot zero", 0, "c2", ErrSlotNotFound},
		{"slot past end", 7, "c2", ErrSlotNotFound},
		{"other slot", 6, "c2", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Occupy(tt.slotID, tt.callID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Occupy(%d, %s) = %v, want %v", tt.slotID, tt.callID, err, tt.wantErr)
			}
		})
	}

	if _, ok := p.Vacate(2, "c2"); ok {
		t.Error("vacate with wrong call should fail")
	}
	slot, ok := p.Vacate(2, "c1")
	if !ok || slot.Occupied() {
		t.Errorf("expected slot 2 free after vacate, got %+v", slot)
	}

	slots := p.GetAll()
	for i, s := range slots {
		if s.SlotID != i+1 {
			t.Errorf("slot %d has id %d", i, s.SlotID)
		}
	}
	if !slots[5].Occupied() {
		t.Error("expected slot 6 occupied")
	}
}

func TestCallStorePutRemove(t *testing.T) {
	s := NewCallStore()
	now := time.Now()

	c2 := &types.Call{CallID: "c2", CreatedAt: now.Add(time.Second)}
	c1 := &types.Call{CallID: "c1", CreatedAt: now}
	s.Put(c2)
	s.Put(c1)
	if s.Size() != 2 {
		t.Fatalf("expected size 2, got %d", s.Size())
	}

	all := s.All()
	if len(all) != 2 || all[0].CallID != "c1" {
		t.Errorf("expected c1 first by creation time, got %v", all)
	}

	next := c1.Clone()
	next.Revision = 5
	s.Put(next)
	got, ok := s.Get("c1")
	if !ok || got.Revision != 5 {
		t.Errorf("expected replaced call, got %+v", got)
	}
	if c1.Revision != 0 {
		t.Error("stored original must not change")
	}

	s.Remove("c1")
	if _, ok := s.Get("c1"); ok {
		t.Error("expected c1 removed")
	}
	if s.Size() != 1 {
		t.Errorf("expected size 1, got %d", s.Size())
	}
}
