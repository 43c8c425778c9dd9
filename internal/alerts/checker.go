package alerts

import (
	"fmt"
	"time"

	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

const (
	longWaitWarning  = 60 * time.Second
	longWaitCritical = 180 * time.Second
)

// CheckQueueAlerts evaluates alert rules for queued call summaries,
// mutating each summary's Alerts field in place.
func CheckQueueAlerts(queue []types.CallSummary, now time.Time) {
	for i := range queue {
		queue[i].Alerts = nil

		if queue[i].State != types.CallStateRinging {
			continue
		}

		dur := now.Sub(queue[i].CreatedAt)
		switch {
		case dur >= longWaitCritical:
			queue[i].Alerts = append(queue[i].Alerts, types.CallAlert{
				Rule:     "long_wait",
				Severity: types.SeverityCritical,
				Message:  fmt.Sprintf("Waiting for %s", formatDuration(dur)),
			})
		case dur >= longWaitWarning:
			queue[i].Alerts = append(queue[i].Alerts, types.CallAlert{
				Rule:     "long_wait",
				Severity: types.SeverityWarning,
				Message:  fmt.Sprintf("Waiting for %s", formatDuration(dur)),
			})
		}
	}
}

func formatDuration(d time.Duration) string {
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if mins >= 60 {
		hours := mins / 60
		mins = mins % 60
		return fmt.Sprintf("%dh%dm", hours, mins)
	}
	return fmt.Sprintf("%dm%ds", mins, secs)
}
