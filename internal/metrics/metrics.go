package metrics

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Carrier event metrics
	CarrierEventsReceived  int64
	CarrierEventsApplied   int64
	CarrierEventsDuplicate int64
	CarrierEventsRejected  int64
	CarrierEventsMalformed int64

	// Command metrics
	commandsAccepted map[types.CommandOp]int64
	commandsRejected map[string]int64 // rejection kind -> count

	// Fan-out metrics
	DeltasPublished   int64
	DeltasSuperseded  int64
	SnapshotsSent     int64
	ViewersDropped    int64
	WebSocketMessages int64
	activeViewers     int64

	// Agent metrics
	agentsByStatus map[types.AgentStatus]int
	totalAgents    int

	// Queue metrics
	queueDepth   int
	serviceLevel float64
	parkedCalls  int

	// HTTP metrics
	httpRequestsTotal    map[string]map[int]int64 // endpoint -> status -> count
	httpRequestDurations map[string][]float64     // endpoint -> durations

	// Timing
	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		commandsAccepted:     make(map[types.CommandOp]int64),
		commandsRejected:     make(map[string]int64),
		agentsByStatus:       make(map[types.AgentStatus]int),
		httpRequestsTotal:    make(map[string]map[int]int64),
		httpRequestDurations: make(map[string][]float64),
		startTime:            time.Now(),
	}
}

// RecordCarrierEvent increments the carrier events received counter
func (m *Metrics) RecordCarrierEvent() {
	m.mu.Lock()
	m.CarrierEventsReceived++
	m.mu.Unlock()
}

// RecordCarrierApplied counts an event that reached the routing engine
func (m *Metrics) RecordCarrierApplied() {
	m.mu.Lock()
	m.CarrierEventsApplied++
	m.mu.Unlock()
}

// RecordCarrierDuplicate counts an event dropped by deduplication
func (m *Metrics) RecordCarrierDuplicate() {
	m.mu.Lock()
	m.CarrierEventsDuplicate++
	m.mu.Unlock()
}

// RecordCarrierRejected counts an event refused by the state machine
func (m *Metrics) RecordCarrierRejected() {
	m.mu.Lock()
	m.CarrierEventsRejected++
	m.mu.Unlock()
}

// RecordCarrierMalformed counts a payload that failed normalization
func (m *Metrics) RecordCarrierMalformed() {
	m.mu.Lock()
	m.CarrierEventsMalformed++
	m.mu.Unlock()
}

// RecordCommandAccepted counts an applied operator command
func (m *Metrics) RecordCommandAccepted(op types.CommandOp) {
	m.mu.Lock()
	m.commandsAccepted[op]++
	m.mu.Unlock()
}

// RecordCommandRejected counts a rejected operator command by rejection kind
func (m *Metrics) RecordCommandRejected(kind string) {
	m.mu.Lock()
	m.commandsRejected[kind]++
	m.mu.Unlock()
}

// RecordDeltasPublished counts deltas handed to the fan-out
func (m *Metrics) RecordDeltasPublished(n int) {
	m.mu.Lock()
	m.DeltasPublished += int64(n)
	m.mu.Unlock()
}

// RecordDeltaSuperseded counts a delta dropped because a newer revision was already sent
func (m *Metrics) RecordDeltaSuperseded() {
	m.mu.Lock()
	m.DeltasSuperseded++
	m.mu.Unlock()
}

// RecordSnapshotSent counts a full snapshot delivered to a viewer
func (m *Metrics) RecordSnapshotSent() {
	m.mu.Lock()
	m.SnapshotsSent++
	m.mu.Unlock()
}

// RecordViewerConnect increments the active viewer gauge
func (m *Metrics) RecordViewerConnect() {
	m.mu.Lock()
	m.activeViewers++
	m.mu.Unlock()
}

// RecordViewerDisconnect decrements the active viewer gauge
func (m *Metrics) RecordViewerDisconnect() {
	m.mu.Lock()
	m.activeViewers--
	m.mu.Unlock()
}

// RecordViewerDropped counts a viewer disconnected for falling behind
func (m *Metrics) RecordViewerDropped() {
	m.mu.Lock()
	m.ViewersDropped++
	m.mu.Unlock()
}

// RecordWebSocketMessage increments message counter
func (m *Metrics) RecordWebSocketMessage() {
	m.mu.Lock()
	m.WebSocketMessages++
	m.mu.Unlock()
}

// UpdateAgentStats updates agent distribution metrics
func (m *Metrics) UpdateAgentStats(agents []types.AgentSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.agentsByStatus = make(map[types.AgentStatus]int)
	m.totalAgents = len(agents)
	for _, agent := range agents {
		m.agentsByStatus[agent.Status]++
	}
}

// UpdateQueueStats updates the queue depth, parked call and service level gauges
func (m *Metrics) UpdateQueueStats(depth, parked int, sl types.ServiceLevel) {
	m.mu.Lock()
	m.queueDepth = depth
	m.parkedCalls = parked
	m.serviceLevel = sl.CurrentSL
	m.mu.Unlock()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint string, statusCode int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpRequestsTotal[endpoint] == nil {
		m.httpRequestsTotal[endpoint] = make(map[int]int64)
	}
	m.httpRequestsTotal[endpoint][statusCode]++

	// Keep last 100 durations for percentile calculation
	if len(m.httpRequestDurations[endpoint]) >= 100 {
		m.httpRequestDurations[endpoint] = m.httpRequestDurations[endpoint][1:]
	}
	m.httpRequestDurations[endpoint] = append(m.httpRequestDurations[endpoint], duration.Seconds())
}

// GetActiveViewers returns current viewer connections
func (m *Metrics) GetActiveViewers() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeViewers
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// Helper to write metric
		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		write("switchboard_uptime_seconds", time.Since(m.startTime).Seconds())

		// Carrier events
		write("switchboard_carrier_events_received_total", m.CarrierEventsReceived)
		write("switchboard_carrier_events_applied_total", m.CarrierEventsApplied)
		write("switchboard_carrier_events_duplicate_total", m.CarrierEventsDuplicate)
		write("switchboard_carrier_events_rejected_total", m.CarrierEventsRejected)
		write("switchboard_carrier_events_malformed_total", m.CarrierEventsMalformed)

		// Commands
		for _, op := range sortedKeys(m.commandsAccepted) {
			write("switchboard_commands_accepted_total", m.commandsAccepted[types.CommandOp(op)], "op", op)
		}
		for _, kind := range sortedKeys(m.commandsRejected) {
			write("switchboard_commands_rejected_total", m.commandsRejected[kind], "kind", kind)
		}

		// Fan-out
		write("switchboard_deltas_published_total", m.DeltasPublished)
		write("switchboard_deltas_superseded_total", m.DeltasSuperseded)
		write("switchboard_snapshots_sent_total", m.SnapshotsSent)
		write("switchboard_viewers_active", m.activeViewers)
		write("switchboard_viewers_dropped_total", m.ViewersDropped)
		write("switchboard_websocket_messages_total", m.WebSocketMessages)

		// Agents
		write("switchboard_agents_total", m.totalAgents)
		for status, count := range m.agentsByStatus {
			write("switchboard_agents_by_status", count, "status", string(status))
		}

		// Queue
		write("switchboard_queue_depth", m.queueDepth)
		write("switchboard_parked_calls", m.parkedCalls)
		write("switchboard_service_level_percent", m.serviceLevel)

		// HTTP metrics
		for endpoint, statusCodes := range m.httpRequestsTotal {
			for status, count := range statusCodes {
				write("switchboard_http_requests_total", count, "endpoint", endpoint, "status", strconv.Itoa(status))
			}
		}
	}
}

func sortedKeys[K ~string, V any](m map[K]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}
