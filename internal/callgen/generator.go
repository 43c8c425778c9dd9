package callgen

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config controls the generated traffic
type Config struct {
	CallsPerMin   float64
	MinDuration   time.Duration // ringing to completed
	MaxDuration   time.Duration
	DuplicateRate float64 // chance each event is delivered twice
	Number        string  // dialed number of the call center
}

// DefaultConfig returns a light load with occasional redelivery
func DefaultConfig() Config {
	return Config{
		CallsPerMin:   6,
		MinDuration:   20 * time.Second,
		MaxDuration:   3 * time.Minute,
		DuplicateRate: 0.1,
		Number:        "+4930555000",
	}
}

// Stats counts what the generator has sent
type Stats struct {
	Started    int64 `json:"started"`
	Completed  int64 `json:"completed"`
	InFlight   int64 `json:"inFlight"`
	Duplicates int64 `json:"duplicates"`
	Rejected   int64 `json:"rejected"`
	Errors     int64 `json:"errors"`
}

// Generator produces inbound call lifecycles: ringing, then completed after a
// random duration. Any event may be delivered twice, the way a carrier retries.
type Generator struct {
	mu     sync.RWMutex
	cfg    Config
	rngMu  sync.Mutex
	rng    *rand.Rand
	client *EventClient
	logger zerolog.Logger
	wg     sync.WaitGroup

	started    atomic.Int64
	completed  atomic.Int64
	inFlight   atomic.Int64
	duplicates atomic.Int64
	rejected   atomic.Int64
	errors     atomic.Int64
}

// NewGenerator creates a Generator
func NewGenerator(client *EventClient, cfg Config, logger zerolog.Logger) *Generator {
	return &Generator{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		client: client,
		logger: logger.With().Str("component", "callgen").Logger(),
	}
}

// Config returns the current configuration
func (g *Generator) Config() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// SetConfig replaces the configuration. Running lifecycles keep their durations.
func (g *Generator) SetConfig(cfg Config) error {
	if cfg.CallsPerMin < 0 {
		return fmt.Errorf("callsPerMin must not be negative")
	}
	if cfg.DuplicateRate < 0 || cfg.DuplicateRate > 1 {
		return fmt.Errorf("duplicateRate must be between 0 and 1")
	}
	if cfg.MaxDuration < cfg.MinDuration {
		return fmt.Errorf("maxDuration must not be below minDuration")
	}
	g.mu.Lock()
	g.cfg = cfg
	g.mu.Unlock()
	return nil
}

// Run generates calls at the configured rate until ctx is cancelled, then
// waits for every started call to complete.
func (g *Generator) Run(ctx context.Context) {
	g.logger.Info().Float64("calls_per_min", g.Config().CallsPerMin).Msg("call generation started")
	defer g.logger.Info().Msg("call generation stopped")

	for {
		cfg := g.Config()
		if cfg.CallsPerMin <= 0 {
			// No calls configured; sleep and re-check.
			select {
			case <-ctx.Done():
				g.wg.Wait()
				return
			case <-time.After(time.Second):
				continue
			}
		}

		// Poisson-ish sleep: base interval with jitter.
		baseSleep := time.Duration(float64(time.Minute) / cfg.CallsPerMin)
		jitter := time.Duration(float64(baseSleep) * (g.float64()*0.5 - 0.25)) // +/-25%
		sleep := baseSleep + jitter
		if sleep < time.Millisecond {
			sleep = time.Millisecond
		}

		select {
		case <-ctx.Done():
			g.wg.Wait()
			return
		case <-time.After(sleep):
		}

		g.startCall(ctx, cfg)
	}
}

// Inject starts n calls immediately and returns their ids
func (g *Generator) Inject(ctx context.Context, n int) []string {
	cfg := g.Config()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, g.startCall(ctx, cfg))
	}
	return ids
}

// Wait blocks until every started call has completed
func (g *Generator) Wait() {
	g.wg.Wait()
}

// Stats returns a copy of the counters
func (g *Generator) Stats() Stats {
	return Stats{
		Started:    g.started.Load(),
		Completed:  g.completed.Load(),
		InFlight:   g.inFlight.Load(),
		Duplicates: g.duplicates.Load(),
		Rejected:   g.rejected.Load(),
		Errors:     g.errors.Load(),
	}
}

func (g *Generator) startCall(ctx context.Context, cfg Config) string {
	callID := NewCallID()
	caller := g.callerNumber()
	duration := g.duration(cfg)

	g.started.Add(1)
	g.inFlight.Add(1)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.inFlight.Add(-1)
		g.lifecycle(ctx, cfg, callID, caller, duration)
	}()
	return callID
}

func (g *Generator) lifecycle(ctx context.Context, cfg Config, callID, caller string, duration time.Duration) {
	ringing := Event{
		CallID:    callID,
		EventID:   callID + ":ringing",
		Kind:      "ringing",
		From:      caller,
		To:        cfg.Number,
		Direction: "inbound",
	}
	if !g.deliver(ctx, ringing, cfg.DuplicateRate) {
		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(duration):
	}

	// Calls still open at shutdown are completed so nothing is left ringing
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	completed := ringing
	completed.EventID = callID + ":completed"
	completed.Kind = "completed"
	if g.deliver(sendCtx, completed, cfg.DuplicateRate) {
		g.completed.Add(1)
	}
}

// deliver sends ev, and a second time with probability dupRate
func (g *Generator) deliver(ctx context.Context, ev Event, dupRate float64) bool {
	result, err := g.client.Send(ctx, ev)
	if err != nil {
		g.errors.Add(1)
		g.logger.Error().Err(err).
			Str("call_id", ev.CallID).
			Str("event_id", ev.EventID).
			Msg("failed to deliver carrier event")
		return false
	}
	g.count(ev, result)

	if dupRate > 0 && g.float64() < dupRate {
		if result, err := g.client.Send(ctx, ev); err == nil {
			g.count(ev, result)
		}
	}
	return true
}

func (g *Generator) count(ev Event, result string) {
	switch result {
	case "duplicate":
		g.duplicates.Add(1)
	case "rejected":
		g.rejected.Add(1)
	}
	g.logger.Debug().
		Str("call_id", ev.CallID).
		Str("event_id", ev.EventID).
		Str("result", result).
		Msg("carrier event delivered")
}

func (g *Generator) duration(cfg Config) time.Duration {
	span := cfg.MaxDuration - cfg.MinDuration
	if span <= 0 {
		return cfg.MinDuration
	}
	return cfg.MinDuration + time.Duration(g.float64()*float64(span))
}

func (g *Generator) callerNumber() string {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return fmt.Sprintf("+49151%07d", g.rng.Intn(10000000))
}

func (g *Generator) float64() float64 {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return g.rng.Float64()
}

// NewCallID returns a carrier-style call id, CA followed by 32 hex digits
func NewCallID() string {
	return "CA" + strings.ReplaceAll(uuid.New().String(), "-", "")
}
