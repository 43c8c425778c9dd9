package cache

import (
	"sort"
	"sync"

	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// CallStore is the in-memory table of live calls keyed by call ID.
//
// Stored calls are immutable: writers replace a call with a modified clone,
// so a pointer returned by Get is safe to read without further locking.
type CallStore struct {
	calls map[string]*types.Call
	mu    sync.RWMutex
}

// NewCallStore creates an empty call store
func NewCallStore() *CallStore {
	return &CallStore{
		calls: make(map[string]*types.Call, 256),
	}
}

// Put replaces the stored version of a call
func (s *CallStore) Put(call *types.Call) {
	s.mu.Lock()
	s.calls[call.CallID] = call
	s.mu.Unlock()
}

// Get returns the current version of a call
func (s *CallStore) Get(callID string) (*types.Call, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	call, ok := s.calls[callID]
	return call, ok
}

// Remove deletes a call from the store
func (s *CallStore) Remove(callID string) {
	s.mu.Lock()
	delete(s.calls, callID)
	s.mu.Unlock()
}

// All returns every stored call ordered by creation time
func (s *CallStore) All() []*types.Call {
	s.mu.RLock()
	defer s.mu.RUnlock()

	calls := make([]*types.Call, 0, len(s.calls))
	for _, call := range s.calls {
		calls = append(calls, call)
	}
	sort.Slice(calls, func(i, j int) bool {
		if calls[i].CreatedAt.Equal(calls[j].CreatedAt) {
			return calls[i].CallID < calls[j].CallID
		}
		return calls[i].CreatedAt.Before(calls[j].CreatedAt)
	})
	return calls
}

// Size returns the current number of stored calls
func (s *CallStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.calls)
}
