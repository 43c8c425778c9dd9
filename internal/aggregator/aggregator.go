package aggregator

import (
	"context"
	"time"

	"github.com/dennisdiepolder/monti/switchboard/internal/metrics"
	"github.com/dennisdiepolder/monti/switchboard/internal/types"
	"github.com/rs/zerolog"
)

// SnapshotSource is the read side of the routing engine
type SnapshotSource interface {
	Snapshot() types.Snapshot
}

// Aggregator periodically folds the engine snapshot into the metrics gauges.
// It never mutates routing state.
type Aggregator struct {
	source   SnapshotSource
	interval time.Duration
	logger   zerolog.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(source SnapshotSource, interval time.Duration, logger zerolog.Logger) *Aggregator {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Aggregator{
		source:   source,
		interval: interval,
		logger:   logger.With().Str("component", "aggregator").Logger(),
	}
}

// Start samples until ctx is cancelled
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info().Dur("interval", a.interval).Msg("aggregator started")

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("aggregator stopped")
			return
		case <-ticker.C:
			a.Sample()
		}
	}
}

// Sample takes one snapshot and updates the gauges
func (a *Aggregator) Sample() Summary {
	snap := a.source.Snapshot()
	sum := Summarize(&snap)

	m := metrics.Get()
	m.UpdateAgentStats(snap.Agents)
	m.UpdateQueueStats(sum.Queued, sum.Parked, snap.ServiceLevel)

	a.logger.Debug().
		Int("queued", sum.Queued).
		Int("live", sum.Live).
		Int("parked", sum.Parked).
		Int("long_waits", sum.LongWaits).
		Float64("service_level", snap.ServiceLevel.CurrentSL).
		Msg("snapshot sampled")

	return sum
}

// Summary counts what a snapshot holds
type Summary struct {
	Queued    int
	Live      int
	Parked    int
	LongWaits int
	ByStatus  map[types.AgentStatus]int
}

// Summarize counts calls, parked slots and agents by status
func Summarize(snap *types.Snapshot) Summary {
	sum := Summary{
		Queued:   len(snap.Queue),
		Live:     len(snap.Queue) + len(snap.Calls),
		ByStatus: make(map[types.AgentStatus]int),
	}
	for _, slot := range snap.Slots {
		if slot.Occupied {
			sum.Parked++
		}
	}
	for _, c := range snap.Queue {
		if len(c.Alerts) > 0 {
			sum.LongWaits++
		}
	}
	for _, agent := range snap.Agents {
		sum.ByStatus[agent.Status]++
	}
	return sum
}
