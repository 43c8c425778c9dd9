package carrier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioConfig holds the REST credentials and callback base
type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string // default caller ID
	BaseURL     string // API root, https://api.twilio.com unless overridden
	PublicURL   string // externally reachable base of this service
}

// TwilioClient places and ends calls over the Twilio REST API
type TwilioClient struct {
	cfg    TwilioConfig
	rest   *twilio.RestClient
	logger zerolog.Logger
}

// NewTwilioClient creates a new TwilioClient
func NewTwilioClient(cfg TwilioConfig, logger zerolog.Logger) *TwilioClient {
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	logger = logger.With().Str("component", "twilio").Logger()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
		if err != nil || base.Host == "" {
			logger.Error().Err(err).Str("base_url", cfg.BaseURL).Msg("invalid carrier base URL, using default")
		} else {
			httpClient.Transport = &rebaseTransport{base: base, next: http.DefaultTransport}
		}
	}

	api := &twilioclient.Client{
		Credentials: twilioclient.NewCredentials(cfg.AccountSID, cfg.AuthToken),
		HTTPClient:  httpClient,
	}
	api.SetAccountSid(cfg.AccountSID)

	return &TwilioClient{
		cfg:    cfg,
		rest:   twilio.NewRestClientWithParams(twilio.ClientParams{Client: api}),
		logger: logger,
	}
}

// rebaseTransport sends API requests to another host, such as a local mock
type rebaseTransport struct {
	base *url.URL
	next http.RoundTripper
}

func (t *rebaseTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.base.Scheme
	out.URL.Host = t.base.Host
	out.URL.Path = t.base.Path + req.URL.Path
	out.Host = ""
	return t.next.RoundTrip(out)
}

// PlaceCall dials req.To and connects the answered call to the agent's client
func (c *TwilioClient) PlaceCall(ctx context.Context, req OutboundRequest) (PlacedCall, error) {
	if err := ctx.Err(); err != nil {
		return PlacedCall{}, err
	}
	from := req.From
	if from == "" {
		from = c.cfg.PhoneNumber
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(from)
	params.SetUrl(c.cfg.PublicURL + "/carrier/connect?agent=" + url.QueryEscape(req.AgentID))
	params.SetStatusCallback(c.cfg.PublicURL + "/carrier/status")
	params.SetStatusCallbackMethod(http.MethodPost)
	params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})

	resp, err := c.rest.Api.CreateCall(params)
	if err != nil {
		return PlacedCall{}, c.classify(err, "create call")
	}

	var placed PlacedCall
	if resp.Sid != nil {
		placed.CallID = *resp.Sid
	}
	if resp.Status != nil {
		placed.Status = *resp.Status
	}
	if placed.CallID == "" {
		return PlacedCall{}, errors.New("carrier returned a call without sid")
	}

	c.logger.Info().
		Str("call_id", placed.CallID).
		Str("agent_id", req.AgentID).
		Str("status", placed.Status).
		Msg("outbound call placed")
	return placed, nil
}

// Hangup ends a call in any state
func (c *TwilioClient) Hangup(ctx context.Context, callID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := c.rest.Api.UpdateCall(callID, params); err != nil {
		return c.classify(err, "hangup")
	}

	c.logger.Info().Str("call_id", callID).Msg("hangup requested")
	return nil
}

// classify separates refusals from an unreachable or failing carrier.
// Only refusals are worth showing to the operator as-is.
func (c *TwilioClient) classify(err error, op string) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		if restErr.Status >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s: status %d", ErrUnavailable, op, restErr.Status)
		}
		return fmt.Errorf("carrier refused request (code %d): %s", restErr.Code, restErr.Message)
	}
	c.logger.Error().Err(err).Str("op", op).Msg("failed to reach carrier")
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
