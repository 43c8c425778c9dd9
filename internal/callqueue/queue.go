package callqueue

import (
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// Entry is a call waiting in the queue
type Entry struct {
	CallID      string    `json:"callId"`
	EnqueueTime time.Time `json:"enqueueTime"`
}

// Stats summarizes the queue for the stats endpoint
type Stats struct {
	WaitingCount    int                `json:"waitingCount"`
	AnsweredCount   int                `json:"answeredCount"`
	AbandonedCount  int                `json:"abandonedCount"`
	LongestWaitSecs float64            `json:"longestWaitSecs"`
	ServiceLevel    types.ServiceLevel `json:"serviceLevel"`
}

// Queue is the FIFO of call IDs awaiting assignment.
// It holds only identifiers; call state lives in the call store.
type Queue struct {
	waiting   []Entry
	answered  int
	abandoned int
	sl        *SLTracker
	mu        sync.RWMutex
}

// NewQueue creates an empty queue
func NewQueue(config Config) *Queue {
	return &Queue{
		waiting: make([]Entry, 0),
		sl:      NewSLTracker(config.SLTarget, config.SLSeconds),
	}
}

// Enqueue appends a call. It returns false if the call is already waiting.
func (q *Queue) Enqueue(callID string, at time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.indexOf(callID) >= 0 {
		return false
	}
	q.waiting = append(q.waiting, Entry{CallID: callID, EnqueueTime: at})
	return true
}

// Remove takes a call out of the queue wherever it sits
func (q *Queue) Remove(callID string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(callID)
	if i < 0 {
		return Entry{}, false
	}
	entry := q.waiting[i]
	q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
	return entry, true
}

// Assign removes a call that was answered by an agent and records its wait
// against the service level.
func (q *Queue) Assign(callID string, at time.Time) (Entry, bool) {
	entry, ok := q.Remove(callID)
	if !ok {
		return entry, false
	}

	q.mu.Lock()
	q.answered++
	q.mu.Unlock()
	q.sl.RecordAnswer(at.Sub(entry.EnqueueTime).Seconds())
	return entry, true
}

// Abandon removes a call that ended while waiting. Callers who gave up
// after the threshold count against the service level.
func (q *Queue) Abandon(callID string, at time.Time) (Entry, bool) {
	entry, ok := q.Remove(callID)
	if !ok {
		return entry, false
	}

	q.mu.Lock()
	q.abandoned++
	q.mu.Unlock()
	q.sl.RecordAbandon(at.Sub(entry.EnqueueTime).Seconds())
	return entry, true
}

// Head returns the longest waiting call
func (q *Queue) Head() (Entry, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.waiting) == 0 {
		return Entry{}, false
	}
	return q.waiting[0], true
}

// Contains reports whether the call is waiting
func (q *Queue) Contains(callID string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.indexOf(callID) >= 0
}

// Waiting returns the queue in arrival order
func (q *Queue) Waiting() []Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Entry, len(q.waiting))
	copy(out, q.waiting)
	return out
}

// Len returns the number of waiting calls
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.waiting)
}

// LongestWaitSecs returns the wait time of the oldest waiting call
func (q *Queue) LongestWaitSecs(now time.Time) float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.waiting) == 0 {
		return 0
	}
	return now.Sub(q.waiting[0].EnqueueTime).Seconds()
}

// ServiceLevel returns the current service level
func (q *Queue) ServiceLevel() types.ServiceLevel {
	return q.sl.Snapshot()
}

// Stats returns counters for the queue
func (q *Queue) Stats(now time.Time) Stats {
	longest := q.LongestWaitSecs(now)

	q.mu.RLock()
	defer q.mu.RUnlock()
	return Stats{
		WaitingCount:    len(q.waiting),
		AnsweredCount:   q.answered,
		AbandonedCount:  q.abandoned,
		LongestWaitSecs: longest,
		ServiceLevel:    q.sl.Snapshot(),
	}
}

func (q *Queue) indexOf(callID string) int {
	for i, e := range q.waiting {
		if e.CallID == callID {
			return i
		}
	}
	return -1
}
