package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v3"
)

// Inbound event names (participant -> core).
const (
	EventTherapistOnline  = "therapist-online"
	EventTherapistOffline = "therapist-offline"
	EventRequestTherapist = "request-therapist"
	EventCancelRequest    = "cancel-request"
	EventAcceptRequest    = "accept-request"
	EventDeclineRequest   = "decline-request"
	EventOffer            = "offer"
	EventAnswer           = "answer"
	EventICECandidate     = "ice-candidate"
	EventEndSession       = "end-session"
)

// Outbound event names (core -> participant).
const (
	EventConnected        = "connected"
	EventTherapistRequest = "therapist-request"
	EventRequestSent      = "request-sent"
	EventRequestCancelled = "request-cancelled"
	EventRequestAccepted  = "request-accepted"
	EventRequestDeclined  = "request-declined"
	EventSessionStarted   = "session-started"
	EventSessionEnded     = "session-ended"
	EventError            = "error"
)

// Participant roles as reported in session events.
const (
	RoleClient    = "client"
	RoleTherapist = "therapist"
)

// Message is the wire envelope for every event in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ParseMessage decodes a wire frame into an envelope. The payload stays raw
// until the handler picks the concrete type for the event name.
func ParseMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("malformed message frame: %w", err)
	}
	if msg.Event == "" {
		return nil, fmt.Errorf("message frame missing event name")
	}
	return &msg, nil
}

// NewMessage builds an envelope with a marshalled payload. A nil payload
// produces an envelope with no data field.
func NewMessage(event string, payload interface{}) (*Message, error) {
	msg := &Message{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		msg.Data = data
	}
	return msg, nil
}

// Encode serializes the envelope for the wire.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeData unmarshals the payload into v.
func (m *Message) DecodeData(v interface{}) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("event %s has no payload", m.Event)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Event, err)
	}
	return nil
}

// TargetPayload identifies the client a therapist is accepting or declining.
type TargetPayload struct {
	ClientID string `json:"client_id"`
}

// SignalPayload carries an opaque WebRTC negotiation blob. The core never
// looks inside Payload.
type SignalPayload struct {
	Payload json.RawMessage `json:"payload"`
}

// ConnectedPayload is pushed to a participant right after the websocket
// attach: its transport-assigned identifier plus the ICE servers the
// frontend should configure.
type ConnectedPayload struct {
	ParticipantID string             `json:"participant_id"`
	ICEServers    []webrtc.ICEServer `json:"ice_servers"`
}

// TherapistRequestPayload is broadcast to online therapists when a client
// asks for support.
type TherapistRequestPayload struct {
	ClientID string `json:"client_id"`
}

// RequestAcceptedPayload tells the client its request was matched.
type RequestAcceptedPayload struct {
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
}

// SessionStartedPayload tells the accepting therapist the session exists.
type SessionStartedPayload struct {
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	ClientID  string `json:"client_id"`
}

// SignalForwardPayload is the relayed form of offer/answer/ice-candidate:
// the original blob plus the sender identity.
type SignalForwardPayload struct {
	Payload json.RawMessage `json:"payload"`
	From    string          `json:"from"`
}

// SessionEndedPayload is delivered exactly once per participant per session.
type SessionEndedPayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// ErrorPayload is a user-visible, non-fatal error notification.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
