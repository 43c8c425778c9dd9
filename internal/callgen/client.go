package callgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Event is the generic carrier event accepted by POST /carrier/events
type Event struct {
	CallID    string `json:"callId"`
	EventID   string `json:"eventId"`
	Kind      string `json:"kind"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// EventClient delivers carrier events to the switchboard webhook
type EventClient struct {
	backendURL string
	httpClient *http.Client
}

// NewEventClient creates a new client pointing at the given backend base URL
// (e.g. "http://localhost:8080").
func NewEventClient(backendURL string) *EventClient {
	return &EventClient{
		backendURL: strings.TrimRight(backendURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type eventResponse struct {
	Result string `json:"result"`
}

// Send posts one event and returns the backend's verdict:
// applied, duplicate or rejected.
func (c *EventClient) Send(ctx context.Context, ev Event) (string, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	url := c.backendURL + "/carrier/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("POST %s returned status %d", url, resp.StatusCode)
	}

	var out eventResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Result, nil
}
