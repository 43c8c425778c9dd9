package carrier

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

func TestTwilioPlaceCall(t *testing.T) {
	var got url.Values
	var user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC1/Calls.json", r.URL.Path)
		user, pass, _ = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"CA42","status":"queued"}`))
	}))
	defer srv.Close()

	c := NewTwilioClient(TwilioConfig{
		AccountSID:  "AC1",
		AuthToken:   "secret",
		PhoneNumber: "+4940100",
		BaseURL:     srv.URL,
		PublicURL:   "https://switchboard.example.com/",
	}, zerolog.Nop())

	placed, err := c.PlaceCall(context.Background(), OutboundRequest{AgentID: "agent 1", To: "+4930555"})
	require.NoError(t, err)
	assert.Equal(t, "CA42", placed.CallID)
	assert.Equal(t, "queued", placed.Status)

	assert.Equal(t, "AC1", user)
	assert.Equal(t, "secret", pass)
	assert.Equal(t, "+4930555", got.Get("To"))
	assert.Equal(t, "+4940100", got.Get("From"))
	assert.Equal(t, "https://switchboard.example.com/carrier/status", got.Get("StatusCallback"))
	assert.Equal(t, "https://switchboard.example.com/carrier/connect?agent=agent+1", got.Get("Url"))
	assert.Len(t, got["StatusCallbackEvent"], 4)
}

func TestTwilioHangupAndErrors(t *testing.T) {
	status := http.StatusOK
	var path, callStatus string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		r.ParseForm()
		callStatus = r.PostForm.Get("Status")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		switch status {
		case http.StatusNotFound:
			w.Write([]byte(`{"code":20404,"message":"The requested resource was not found","status":404}`))
		case http.StatusBadGateway:
			w.Write([]byte(`{"code":20500,"message":"Upstream failure","status":502}`))
		default:
			w.Write([]byte(`{"sid":"CA42","status":"completed"}`))
		}
	}))
	defer srv.Close()

	c := NewTwilioClient(TwilioConfig{AccountSID: "AC1", AuthToken: "x", BaseURL: srv.URL}, zerolog.Nop())

	require.NoError(t, c.Hangup(context.Background(), "CA42"))
	assert.Equal(t, "/2010-04-01/Accounts/AC1/Calls/CA42.json", path)
	assert.Equal(t, "completed", callStatus)

	status = http.StatusNotFound
	err := c.Hangup(context.Background(), "CA42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "20404")
	assert.False(t, errors.Is(err, ErrUnavailable))

	status = http.StatusBadGateway
	err = c.Hangup(context.Background(), "CA42")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestTwilioUnreachable(t *testing.T) {
	c := NewTwilioClient(TwilioConfig{AccountSID: "AC1", BaseURL: "http://127.0.0.1:1"}, zerolog.Nop())
	_, err := c.PlaceCall(context.Background(), OutboundRequest{To: "+1"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNoopCarrier(t *testing.T) {
	c := NewNoopCarrier()
	a, err := c.PlaceCall(context.Background(), OutboundRequest{To: "+1"})
	require.NoError(t, err)
	b, _ := c.PlaceCall(context.Background(), OutboundRequest{To: "+1"})
	assert.True(t, strings.HasPrefix(a.CallID, "CA"))
	assert.Len(t, a.CallID, 34)
	assert.NotEqual(t, a.CallID, b.CallID)
	assert.NoError(t, c.Hangup(context.Background(), a.CallID))
}

type sinkFunc func(ev types.CarrierEvent) (*types.Call, error)

func (f sinkFunc) Ingest(ev types.CarrierEvent) (*types.Call, error) { return f(ev) }

func TestNoopCarrierHangupReportsCompletion(t *testing.T) {
	var got []types.CarrierEvent
	c := NewNoopCarrier()
	c.SetSink(sinkFunc(func(ev types.CarrierEvent) (*types.Call, error) {
		got = append(got, ev)
		return nil, nil
	}))

	require.NoError(t, c.Hangup(context.Background(), "CA1"))
	require.Len(t, got, 1)
	assert.Equal(t, "CA1", got[0].CallID)
	assert.Equal(t, types.CarrierCompleted, got[0].Kind)
	assert.Equal(t, "CA1:hangup", got[0].ProviderEventID)
}

// sign computes a webhook signature: base64 HMAC-SHA1 of the URL followed by
// the sorted form parameters.
func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSignatureValidator(t *testing.T) {
	v := NewSignatureValidator("12345", "https://switchboard.example.com/")
	form := url.Values{
		"CallSid": {"CA1234567890ABCDE"},
		"From":    {"+12349013030"},
		"To":      {"+18005551212"},
	}

	newRequest := func(sig string, f url.Values) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/carrier/status?x=1", strings.NewReader(f.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if sig != "" {
			req.Header.Set("X-Twilio-Signature", sig)
		}
		require.NoError(t, req.ParseForm())
		return req
	}

	sig := sign("12345", "https://switchboard.example.com/carrier/status?x=1", form)
	assert.NoError(t, v.Verify(newRequest(sig, form)))

	assert.ErrorIs(t, v.Verify(newRequest("", form)), ErrMissingSignature)

	tampered := url.Values{"CallSid": {"CA1234567890ABCDE"}, "From": {"+19999999999"}, "To": {"+18005551212"}}
	assert.ErrorIs(t, v.Verify(newRequest(sig, tampered)), ErrBadSignature)

	other := NewSignatureValidator("other-token", "https://switchboard.example.com")
	assert.ErrorIs(t, other.Verify(newRequest(sig, form)), ErrBadSignature)
}
