package ingestion

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Deduper remembers recently seen provider event IDs in a bounded,
// time-limited window
type Deduper struct {
	seen *expirable.LRU[string, time.Time]
	mu   sync.Mutex
}

// NewDeduper creates a window holding at most capacity IDs for ttl
func NewDeduper(capacity int, ttl time.Duration) *Deduper {
	if capacity <= 0 {
		capacity = 4096
	}
	return &Deduper{
		seen: expirable.NewLRU[string, time.Time](capacity, nil, ttl),
	}
}

// FirstSeen records id and reports whether it was not already in the window
func (d *Deduper) FirstSeen(id string, at time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.seen.Contains(id) {
		return false
	}
	d.seen.Add(id, at)
	return true
}

// Forget removes id so a later delivery is applied again
func (d *Deduper) Forget(id string) {
	d.seen.Remove(id)
}

// Len returns the number of IDs in the window
func (d *Deduper) Len() int {
	return d.seen.Len()
}
