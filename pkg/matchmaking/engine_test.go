package matchmaking

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SafeSpaceHQ/safeline/pkg/errors"
	"github.com/SafeSpaceHQ/safeline/pkg/protocol"
	"github.com/SafeSpaceHQ/safeline/pkg/registry"
)

// fakeEmitter records every emitted event per recipient.
type fakeEmitter struct {
	mu     sync.Mutex
	events map[string][]*protocol.Message
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{events: make(map[string][]*protocol.Message)}
}

func (f *fakeEmitter) Emit(participantID string, msg *protocol.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[participantID] = append(f.events[participantID], msg)
}

func (f *fakeEmitter) names(participantID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, msg := range f.events[participantID] {
		out = append(out, msg.Event)
	}
	return out
}

func (f *fakeEmitter) count(participantID, event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, msg := range f.events[participantID] {
		if msg.Event == event {
			n++
		}
	}
	return n
}

func (f *fakeEmitter) last(t *testing.T, participantID, event string) *protocol.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events[participantID]) - 1; i >= 0; i-- {
		if f.events[participantID][i].Event == event {
			return f.events[participantID][i]
		}
	}
	t.Fatalf("no %s event emitted to %s", event, participantID)
	return nil
}

func newTestEngine(ttl time.Duration) (*Engine, *fakeEmitter) {
	emitter := newFakeEmitter()
	return NewEngine(registry.New(ttl), emitter), emitter
}

func msgOf(t *testing.T, event string, payload interface{}) *protocol.Message {
	t.Helper()
	msg, err := protocol.NewMessage(event, payload)
	require.NoError(t, err)
	return msg
}

func acceptMsg(t *testing.T, clientID string) *protocol.Message {
	return msgOf(t, protocol.EventAcceptRequest, protocol.TargetPayload{ClientID: clientID})
}

func startSession(t *testing.T, e *Engine, clientID, therapistID string) string {
	t.Helper()
	e.HandleMessage(therapistID, msgOf(t, protocol.EventTherapistOnline, nil))
	e.HandleMessage(clientID, msgOf(t, protocol.EventRequestTherapist, nil))
	e.HandleMessage(therapistID, acceptMsg(t, clientID))
	session, ok := e.reg.FindSessionByParticipant(clientID)
	require.True(t, ok, "session must exist after accept")
	return session.ID
}

func TestRequestTherapistEmptyPool(t *testing.T) {
	e, emitter := newTestEngine(time.Minute)
	e.HandleMessage("c1", msgOf(t, protocol.EventRequestTherapist, nil))

	errMsg := emitter.last(t, "c1", protocol.EventError)
	var payload protocol.ErrorPayload
	require.NoError(t, errMsg.DecodeData(&payload))
	assert.Equal(t, "no therapists available", payload.Message)
	assert.Equal(t, string(errors.ErrCodeNoTherapistsAvailable), payload.Code)

	_, waiting, _ := e.reg.Counts()
	assert.Equal(t, 0, waiting)
	assert.Zero(t, emitter.count("c1", protocol.EventRequestSent))
}

func TestRequestTherapistBroadcast(t *testing.T) {
	e, emitter := newTestEngine(time.Minute)
	e.HandleMessage("t1", msgOf(t, protocol.EventTherapistOnline, nil))
	e.HandleMessage("t2", msgOf(t, protocol.EventTherapistOnline, nil))
	e.HandleMessage("c1", msgOf(t, protocol.EventRequestTherapist, nil))

	for _, therapist := range []string{"t1", "t2"} {
		msg := emitter.last(t, therapist, protocol.EventTherapistRequest)
		var payload protocol.TherapistRequestPayload
		require.NoError(t, msg.DecodeData(&payload))
		assert.Equal(t, "c1", payload.ClientID)
	}
	assert.Equal(t, 1, emitter.count("c1", protocol.EventRequestSent))
}

func TestConcurrentAcceptsExactlyOneWins(t *testing.T) {
	e, emitter := newTestEngine(time.Minute)
	therapists := []string{"t1", "t2", "t3", "t4"}
	for _, id := range therapists {
		e.HandleMessage(id, msgOf(t, protocol.EventTherapistOnline, nil))
	}
	e.HandleMessage("c1", msgOf(t, protocol.EventRequestTherapist, nil))

	var wg sync.WaitGroup
	for _, id := range therapists {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			e.HandleMessage(id, acceptMsg(t, "c1"))
		}(id)
	}
	wg.Wait()

	started, lost := 0, 0
	for _, id := range therapists {
		started += emitter.count(id, protocol.EventSessionStarted)
		lost += emitter.count(id, protocol.EventError)
	}
	assert.Equal(t, 1, started, "exactly one therapist wins")
	assert.Equal(t, len(therapists)-1, lost, "all others observe the lost race")
	assert.Equal(t, 1, emitter.count("c1", protocol.EventRequestAccepted))

	_, _, active := e.reg.Counts()
	assert.Equal(t, 1, active)
}

func TestAcceptAfterCancelLosesRace(t *testing.T) {
	e, emitter := newTestEngine(time.Minute)
	e.HandleMessage("t1", msgOf(t, protocol.EventTherapistOnline, nil))
	e.HandleMessage("c1", msgOf(t, protocol.EventRequestTherapist, nil))
	e.HandleMessage("c1", msgOf(t, protocol.EventCancelRequest, nil))
	e.HandleMessage("t1", acceptMsg(t, "c1"))

	errMsg := emitter.last(t, "t1", protocol.EventError)
	var payload protocol.ErrorPayload
	require.NoError(t, errMsg.DecodeData(&payload))
	assert.Equal(t, "request no longer available", payload.Message)
	assert.Zero(t, emitter.count("c1", protocol.EventRequestAccepted))
}

func TestCancelRequestWithoutPending(t *testing.T) {
	e, emitter := newTestEngine(time.Minute)
	e.HandleMessage("c1", msgOf(t, protocol.EventCancelRequest, nil))

	assert.Equal(t, 1, emitter.count("c1", protocol.EventRequestCancelled))
	assert.Zero(t, emitter.count("c1", protocol.EventError))
	therapists, waiting, active := e.reg.Counts()
	assert.Equal(t, 0, therapists+waiting+active)
}

func TestDeclineNotifiesOnlyWhenExhausted(t *testing.T) {
	e, emitter := newTestEngine(time.Minute)
	e.HandleMessage("t1", msgOf(t, protocol.EventTherapistOnline, nil))
	e.HandleMessage("t2", msgOf(t, protocol.EventTherapistOnline, nil))
	e.HandleMessage("c1", msgOf(t, protocol.EventRequestTherapist, nil))

	e.HandleMessage("t1", msgOf(t, protocol.EventDeclineRequest, protocol.TargetPayload{ClientID: "c1"}))
	assert.Zero(t, emitter.count("c1", protocol.EventRequestDeclined),
		"a lone decline must not end the client's wait")

	e.HandleMessage("t2", msgOf(t, protocol.EventDeclineRequest, protocol.TargetPayload{ClientID: "c1"}))
	assert.Equal(t, 1, emitter.count("c1", protocol.EventRequestDeclined))
	_, waiting, _ := e.reg.Counts()
	assert.Equal(t, 0, waiting)
}

func TestTherapistOfflineExhaustsRequest(t *testing.T) {
	e, emitter := newTestEngine(time.Minute)
	e.HandleMessage("t1", msgOf(t, protocol.EventTherapistOnline, nil))
	e.HandleMessage("c1", msgOf(t, protocol.EventRequestTherapist, nil))
	e.HandleMessage("t1", msgOf(t, protocol.EventTherapistOffline, nil))

	assert.Equal(t, 1, emitter.count("c1", protocol.EventRequestDeclined))
	_, waiting, _ := e.reg.Counts()
	assert.Equal(t, 0, waiting)
}

func TestAcceptWhileInSessionRestoresRequest(t *testing.T) {
	e, emitter := newTestEngine(time.Minute)
	startSession(t, e, "c1", "t1")

	e.HandleMessage("c2", msgOf(t, protocol.EventRequestTherapist, nil))
	e.HandleMessage("t1", acceptMsg(t, "c2"))

	errMsg := emitter.last(t, "t1", protocol.EventError)
	var payload protocol.ErrorPayload
	require.NoError(t, errMsg.DecodeData(&payload))
	assert.Equal(t, string(errors.ErrCodeAlreadyInSession), payload.Code)

	// The claimed request went back, another therapist can still accept.
	_, waiting, _ := e.reg.Counts()
	require.Equal(t, 1, waiting)
	e.HandleMessage("t2", msgOf(t, protocol.EventTherapistOnline, nil))
	e.HandleMessage("t2", acceptMsg(t, "c2"))
	assert.Equal(t, 1, emitter.count("c2", protocol.EventRequestAccepted))
}

func TestAcceptAfterClientDisconnect(t *testing.T) {
	e, emitter := newTestEngine(time.Minute)
	e.HandleMessage("t1", msgOf(t, protocol.EventTherapistOnline, nil))
	e.HandleMessage("c1", msgOf(t, protocol.EventRequestTherapist, nil))
	e.HandleDisconnect("c1")
	e.HandleMessage("t1", acceptMsg(t, "c1"))

	errMsg := emitter.last(t, "t1", protocol.EventError)
	var payload protocol.ErrorPayload
	require.NoError(t, errMsg.DecodeData(&payload))
	assert.Equal(t, string(errors.ErrCodeRequestNotAvailable), payload.Code)

	_, waiting, active := e.reg.Counts()
	assert.Equal(t, 0, waiting, "no request may survive the client's disconnect")
	assert.Equal(t, 0, active)
}

func TestSessionRoles(t *testing.T) {
	e, emitter := newTestEngine(time.Minute)
	sessionID := startSession(t, e, "c1", "t1")

	accepted := emitter.last(t, "c1", protocol.EventRequestAccepted)
	var clientPayload protocol.RequestAcceptedPayload
	require.NoError(t, accepted.DecodeData(&clientPayload))
	assert.Equal(t, protocol.RoleClient, clientPayload.Role)
	assert.Equal(t, sessionID, clientPayload.SessionID)

	started := emitter.last(t, "t1", protocol.EventSessionStarted)
	var therapistPayload protocol.SessionStartedPayload
	require.NoError(t, started.DecodeData(&therapistPayload))
	assert.Equal(t, protocol.RoleTherapist, therapistPayload.Role)
	assert.Equal(t, sessionID, therapistPayload.SessionID)
	assert.Equal(t, "c1", therapistPayload.ClientID)
}

func TestEndSessionNotifiesBothOnce(t *testing.T) {
	e, emitter := newTestEngine(time.Minute)
	sessionID := startSession(t, e, "c1", "t1")

	e.HandleMessage("c1", msgOf(t, protocol.EventEndSession, nil))
	e.HandleMessage("t1", msgOf(t, protocol.EventEndSession, nil))

	assert.Equal(t, 1, emitter.count("c1", protocol.EventSessionEnded))
	assert.Equal(t, 1, emitter.count("t1", protocol.EventSessionEnded))

	ended := emitter.last(t, "c1", protocol.EventSessionEnded)
	var payload protocol.SessionEndedPayload
	require.NoError(t, ended.DecodeData(&payload))
	assert.Equal(t, sessionID, payload.SessionID)
	assert.Equal(t, registry.ReasonEnded, payload.Reason)
}

func TestDisconnectEndsSessionAndExpiryIsNoop(t *testing.T) {
	e, emitter := newTestEngine(40 * time.Millisecond)
	sessionID := startSession(t, e, "c1", "t1")

	e.HandleDisconnect("t1")

	ended := emitter.last(t, "c1", protocol.EventSessionEnded)
	var payload protocol.SessionEndedPayload
	require.NoError(t, ended.DecodeData(&payload))
	assert.Equal(t, sessionID, payload.SessionID)
	assert.Equal(t, registry.ReasonPeerDisconnected, payload.Reason)

	// The deferred expiry fires into an already-ended session.
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 1, emitter.count("c1", protocol.EventSessionEnded))
	assert.Equal(t, 0, emitter.count("t1", protocol.EventSessionEnded),
		"the disconnected party gets no notification")
}

func TestSessionExpiry(t *testing.T) {
	e, emitter := newTestEngine(30 * time.Millisecond)
	sessionID := startSession(t, e, "c1", "t1")

	time.Sleep(120 * time.Millisecond)

	for _, id := range []string{"c1", "t1"} {
		require.Equal(t, 1, emitter.count(id, protocol.EventSessionEnded))
		msg := emitter.last(t, id, protocol.EventSessionEnded)
		var payload protocol.SessionEndedPayload
		require.NoError(t, msg.DecodeData(&payload))
		assert.Equal(t, sessionID, payload.SessionID)
		assert.Equal(t, registry.ReasonExpired, payload.Reason)
	}
	_, _, active := e.reg.Counts()
	assert.Equal(t, 0, active)
}

func TestRelayRoundTrip(t *testing.T) {
	e, emitter := newTestEngine(time.Minute)
	startSession(t, e, "c1", "t1")

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)
	e.HandleMessage("c1", msgOf(t, protocol.EventOffer, protocol.SignalPayload{Payload: offer}))

	forwarded := emitter.last(t, "t1", protocol.EventOffer)
	var fwd protocol.SignalForwardPayload
	require.NoError(t, forwarded.DecodeData(&fwd))
	assert.JSONEq(t, string(offer), string(fwd.Payload), "payload must pass through unmodified")
	assert.Equal(t, "c1", fwd.From)

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0\r\n"}`)
	e.HandleMessage("t1", msgOf(t, protocol.EventAnswer, protocol.SignalPayload{Payload: answer}))

	forwarded = emitter.last(t, "c1", protocol.EventAnswer)
	require.NoError(t, forwarded.DecodeData(&fwd))
	assert.JSONEq(t, string(answer), string(fwd.Payload))
	assert.Equal(t, "t1", fwd.From)

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 2113937151 192.0.2.1 54400 typ host"}`)
	e.HandleMessage("c1", msgOf(t, protocol.EventICECandidate, protocol.SignalPayload{Payload: candidate}))
	forwarded = emitter.last(t, "t1", protocol.EventICECandidate)
	require.NoError(t, forwarded.DecodeData(&fwd))
	assert.JSONEq(t, string(candidate), string(fwd.Payload))
}

func TestRelayDropsStaleSender(t *testing.T) {
	e, emitter := newTestEngine(time.Minute)
	payload := protocol.SignalPayload{Payload: json.RawMessage(`{"sdp":"x"}`)}
	e.HandleMessage("loner", msgOf(t, protocol.EventOffer, payload))

	assert.Empty(t, emitter.names("loner"), "stale sender hears nothing back")
}

func TestMalformedAcceptPayload(t *testing.T) {
	e, emitter := newTestEngine(time.Minute)
	e.HandleMessage("t1", &protocol.Message{Event: protocol.EventAcceptRequest, Data: json.RawMessage(`"nope"`)})

	errMsg := emitter.last(t, "t1", protocol.EventError)
	var payload protocol.ErrorPayload
	require.NoError(t, errMsg.DecodeData(&payload))
	assert.Equal(t, string(errors.ErrCodeInvalidMessage), payload.Code)
}

func TestUnknownEventIgnored(t *testing.T) {
	e, emitter := newTestEngine(time.Minute)
	e.HandleMessage("c1", &protocol.Message{Event: "shout"})
	assert.Empty(t, emitter.names("c1"))
}
