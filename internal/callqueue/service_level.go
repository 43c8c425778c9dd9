package callqueue

import (
	"sync"

	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// SLTracker computes the share of offered calls answered within the
// threshold. Calls abandoned before the threshold are not offered.
type SLTracker struct {
	target        int // percentage, e.g. 80
	thresholdSecs int // e.g. 20

	mu            sync.Mutex
	answeredInSL  int
	totalAnswered int
	abandonedLate int
}

// NewSLTracker creates a new SL tracker with the given target
func NewSLTracker(target, thresholdSecs int) *SLTracker {
	return &SLTracker{
		target:        target,
		thresholdSecs: thresholdSecs,
	}
}

// RecordAnswer records a call being answered
func (s *SLTracker) RecordAnswer(waitTimeSecs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalAnswered++
	if s.within(waitTimeSecs) {
		s.answeredInSL++
	}
}

// RecordAbandon records a caller hanging up while waiting
func (s *SLTracker) RecordAbandon(waitTimeSecs float64) {
	if s.within(waitTimeSecs) {
		return
	}
	s.mu.Lock()
	s.abandonedLate++
	s.mu.Unlock()
}

func (s *SLTracker) within(waitTimeSecs float64) bool {
	return waitTimeSecs <= float64(s.thresholdSecs)
}

// CurrentSL returns the current service level percentage
func (s *SLTracker) CurrentSL() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSL()
}

func (s *SLTracker) currentSL() float64 {
	offered := s.totalAnswered + s.abandonedLate
	if offered == 0 {
		return 100.0 // nothing offered yet
	}
	return float64(s.answeredInSL) / float64(offered) * 100.0
}

// Snapshot returns a ServiceLevel snapshot
func (s *SLTracker) Snapshot() types.ServiceLevel {
	s.mu.Lock()
	defer s.mu.Unlock()

	return types.ServiceLevel{
		Target:        s.target,
		ThresholdSecs: s.thresholdSecs,
		AnsweredInSL:  s.answeredInSL,
		TotalAnswered: s.totalAnswered,
		AbandonedLate: s.abandonedLate,
		CurrentSL:     s.currentSL(),
	}
}
