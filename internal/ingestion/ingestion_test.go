package ingestion

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dennisdiepolder/monti/switchboard/internal/routing"
	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

type countingApplier struct {
	mu     sync.Mutex
	events []types.CarrierEvent
	err    error
}

func (c *countingApplier) ApplyCarrierEvent(ev types.CarrierEvent) (*types.Call, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	if c.err != nil {
		return nil, c.err
	}
	return &types.Call{CallID: ev.CallID, State: types.CallStateRinging, Revision: 1}, nil
}

func (c *countingApplier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func newEngineReceiver(t *testing.T) (*Receiver, *routing.Engine) {
	t.Helper()
	engine, err := routing.NewEngine(routing.DefaultConfig(), nil, zerolog.Nop())
	require.NoError(t, err)
	adapter := NewAdapter(engine, NewDeduper(128, time.Minute), zerolog.Nop())
	return NewReceiver(adapter, nil, zerolog.Nop()), engine
}

func TestKindFromStatus(t *testing.T) {
	tests := []struct {
		status string
		want   types.CarrierEventKind
		ok     bool
	}{
		{"queued", types.CarrierRinging, true},
		{"initiated", types.CarrierRinging, true},
		{"ringing", types.CarrierRinging, true},
		{"in-progress", types.CarrierAnswered, true},
		{"answered", types.CarrierAnswered, true},
		{"completed", types.CarrierCompleted, true},
		{"canceled", types.CarrierCompleted, true},
		{"failed", types.CarrierFailed, true},
		{"busy", types.CarrierBusy, true},
		{"no-answer", types.CarrierNoAnswer, true},
		{" Completed ", types.CarrierCompleted, true},
		{"exploded", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			got, ok := KindFromStatus(tt.status)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStatusCallback(t *testing.T) {
	form := url.Values{
		"CallSid":        {"CA123"},
		"CallStatus":     {"in-progress"},
		"From":           {"+4930111"},
		"To":             {"+4940100"},
		"Direction":      {"outbound-api"},
		"SequenceNumber": {"2"},
	}

	ev, err := ParseStatusCallback(form, http.Header{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "CA123", ev.CallID)
	assert.Equal(t, types.CarrierAnswered, ev.Kind)
	assert.Equal(t, types.DirectionOutbound, ev.Direction)
	assert.Equal(t, "CA123:in-progress:2", ev.ProviderEventID)
	assert.Equal(t, "in-progress", ev.Attributes["CallStatus"])

	header := http.Header{}
	header.Set("I-Twilio-Idempotency-Token", "tok-1")
	ev, err = ParseStatusCallback(form, header, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", ev.ProviderEventID)

	_, err = ParseStatusCallback(url.Values{"CallStatus": {"ringing"}}, http.Header{}, time.Now())
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseStatusCallback(url.Values{"CallSid": {"CA1"}, "CallStatus": {"weird"}}, http.Header{}, time.Now())
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseVoiceRequest(t *testing.T) {
	ev, err := ParseVoiceRequest(url.Values{
		"CallSid":   {"CA9"},
		"From":      {"+4930999"},
		"To":        {"+4940100"},
		"Direction": {"inbound"},
	}, http.Header{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, types.CarrierRinging, ev.Kind)
	assert.Equal(t, types.DirectionInbound, ev.Direction)
	assert.Equal(t, "CA9:voice", ev.ProviderEventID)

	_, err = ParseVoiceRequest(url.Values{"CallSid": {"CA9"}}, http.Header{}, time.Now())
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseJSONEvent(t *testing.T) {
	ev, err := ParseJSONEvent(strings.NewReader(`{"callId":"C1","eventId":"e1","status":"busy","from":"+1"}`), time.Now())
	require.NoError(t, err)
	assert.Equal(t, types.CarrierBusy, ev.Kind)
	assert.Equal(t, "e1", ev.ProviderEventID)

	bad := []string{
		`not json`,
		`{"eventId":"e1","kind":"ringing"}`,
		`{"callId":"C1","kind":"ringing"}`,
		`{"callId":"C1","eventId":"e1","kind":"teleported"}`,
	}
	for _, body := range bad {
		_, err := ParseJSONEvent(strings.NewReader(body), time.Now())
		assert.ErrorIs(t, err, ErrMalformed, body)
	}
}

func TestDeduperWindow(t *testing.T) {
	d := NewDeduper(2, time.Minute)
	now := time.Now()

	assert.True(t, d.FirstSeen("e1", now))
	assert.False(t, d.FirstSeen("e1", now))
	assert.True(t, d.FirstSeen("e2", now))
	assert.True(t, d.FirstSeen("e3", now)) // evicts e1
	assert.True(t, d.FirstSeen("e1", now))
	assert.Equal(t, 2, d.Len())

	d.Forget("e1")
	assert.True(t, d.FirstSeen("e1", now))
}

func TestDeduperConcurrentSingleWinner(t *testing.T) {
	d := NewDeduper(16, time.Minute)
	var wg sync.WaitGroup
	var mu sync.Mutex
	first := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.FirstSeen("same", time.Now()) {
				mu.Lock()
				first++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, first)
}

func TestAdapterDropsDuplicates(t *testing.T) {
	applier := &countingApplier{}
	a := NewAdapter(applier, NewDeduper(16, time.Minute), zerolog.Nop())
	ev := types.CarrierEvent{CallID: "C1", ProviderEventID: "e1", Kind: types.CarrierRinging}

	_, err := a.Ingest(ev)
	require.NoError(t, err)
	_, err = a.Ingest(ev)
	assert.ErrorIs(t, err, ErrDuplicateEvent)
	assert.Equal(t, 1, applier.count())

	_, err = a.Ingest(types.CarrierEvent{CallID: "C1"})
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, 1, applier.count())
}

func TestAdapterForgetsOnInternalError(t *testing.T) {
	applier := &countingApplier{err: errors.New("boom")}
	a := NewAdapter(applier, NewDeduper(16, time.Minute), zerolog.Nop())
	ev := types.CarrierEvent{CallID: "C1", ProviderEventID: "e1", Kind: types.CarrierRinging}

	_, err := a.Ingest(ev)
	require.Error(t, err)
	_, err = a.Ingest(ev)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateEvent)
	assert.Equal(t, 2, applier.count())
}

func TestDuplicateCompletedIsIdempotent(t *testing.T) {
	r, engine := newEngineReceiver(t)

	post := func(body string) eventResult {
		req := httptest.NewRequest(http.MethodPost, "/carrier/events", strings.NewReader(body))
		rr := httptest.NewRecorder()
		r.HandleEvent(rr, req)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var res eventResult
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		return res
	}

	res := post(`{"callId":"C1","eventId":"C1-ring","kind":"ringing","from":"+4930111"}`)
	assert.Equal(t, "applied", res.Result)
	require.NotNil(t, res.Call)
	assert.Equal(t, types.CallStateRinging, res.Call.State)

	assert.Equal(t, "duplicate", post(`{"callId":"C1","eventId":"C1-ring","kind":"ringing"}`).Result)

	res = post(`{"callId":"C1","eventId":"C1-done","kind":"completed"}`)
	assert.Equal(t, "applied", res.Result)
	require.NotNil(t, res.Call)
	assert.Equal(t, types.CallStateEnded, res.Call.State)
	endedRevision := res.Call.Revision

	assert.Equal(t, "duplicate", post(`{"callId":"C1","eventId":"C1-done","kind":"completed"}`).Result)

	// a redelivery under a new ID is refused by the state machine instead
	res = post(`{"callId":"C1","eventId":"C1-done-2","kind":"completed"}`)
	assert.Equal(t, "rejected", res.Result)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, "InvalidSourceState", res.Rejection.Kind)

	if call, ok := engine.GetCall("C1"); ok {
		assert.Equal(t, endedRevision, call.Revision)
	}
}

func TestHandleVoiceQueuesCall(t *testing.T) {
	r, engine := newEngineReceiver(t)

	form := url.Values{"CallSid": {"CA1"}, "From": {"+4930111"}, "To": {"+4940100"}, "Direction": {"inbound"}}
	req := httptest.NewRequest(http.MethodPost, "/carrier/voice", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	r.HandleVoice(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<Enqueue>switchboard</Enqueue>")

	call, ok := engine.GetCall("CA1")
	require.True(t, ok)
	assert.Equal(t, types.QueueLocation(), call.Location)
	assert.Equal(t, "+4930111", call.Summarize().Counterpart)
}

func TestHandleStatusResponses(t *testing.T) {
	r, engine := newEngineReceiver(t)

	send := func(form url.Values) int {
		req := httptest.NewRequest(http.MethodPost, "/carrier/status", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		r.HandleStatus(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusNoContent, send(url.Values{"CallSid": {"CA2"}, "CallStatus": {"ringing"}, "From": {"+1"}, "SequenceNumber": {"0"}}))
	assert.Equal(t, http.StatusNoContent, send(url.Values{"CallSid": {"CA2"}, "CallStatus": {"ringing"}, "From": {"+1"}, "SequenceNumber": {"0"}}))
	assert.Equal(t, http.StatusNoContent, send(url.Values{"CallSid": {"CA2"}, "CallStatus": {"canceled"}, "SequenceNumber": {"1"}}))
	assert.Equal(t, http.StatusBadRequest, send(url.Values{"CallStatus": {"ringing"}}))

	// answered for an unknown call is rejected but acknowledged
	assert.Equal(t, http.StatusNoContent, send(url.Values{"CallSid": {"CA404"}, "CallStatus": {"in-progress"}, "SequenceNumber": {"1"}}))

	call, ok := engine.GetCall("CA2")
	if ok {
		assert.Equal(t, types.CallStateEnded, call.State)
		assert.Equal(t, "completed", call.EndReason)
	}
}

func TestHandleConnectDialsAgent(t *testing.T) {
	r, _ := newEngineReceiver(t)

	req := httptest.NewRequest(http.MethodPost, "/carrier/connect?agent=A7", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	r.HandleConnect(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<Dial>")
	assert.Contains(t, rr.Body.String(), "<Client>A7</Client>")
	assert.NotContains(t, rr.Body.String(), "Enqueue")
}

type denyAll struct{}

func (denyAll) Verify(r *http.Request) error { return errors.New("bad signature") }

func TestHandleStatusRejectsBadSignature(t *testing.T) {
	engine, err := routing.NewEngine(routing.DefaultConfig(), nil, zerolog.Nop())
	require.NoError(t, err)
	r := NewReceiver(NewAdapter(engine, NewDeduper(16, time.Minute), zerolog.Nop()), denyAll{}, zerolog.Nop())

	form := url.Values{"CallSid": {"CA1"}, "CallStatus": {"ringing"}}
	req := httptest.NewRequest(http.MethodPost, "/carrier/status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	r.HandleStatus(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	_, ok := engine.GetCall("CA1")
	assert.False(t, ok)
}
