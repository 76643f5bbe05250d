// Package matchmaking implements the request/accept/decline protocol, the
// session lifecycle, and the signaling relay on top of the registry.
// Handlers may run concurrently on transport workers; all shared state lives
// behind the registry's lock and every emit happens after that lock is
// released.
package matchmaking

import (
	"github.com/SafeSpaceHQ/safeline/pkg/errors"
	"github.com/SafeSpaceHQ/safeline/pkg/logger"
	"github.com/SafeSpaceHQ/safeline/pkg/metrics"
	"github.com/SafeSpaceHQ/safeline/pkg/protocol"
	"github.com/SafeSpaceHQ/safeline/pkg/registry"
	"go.uber.org/zap"
)

// Emitter delivers an event to a single connected participant. Delivery to
// an unknown identifier is a silent no-op. Per-recipient order must be FIFO.
type Emitter interface {
	Emit(participantID string, msg *protocol.Message)
}

// Engine reacts to participant events and drives the registry.
type Engine struct {
	reg     *registry.Registry
	emitter Emitter
}

// NewEngine wires the engine to its registry and outbound channel.
func NewEngine(reg *registry.Registry, emitter Emitter) *Engine {
	return &Engine{
		reg:     reg,
		emitter: emitter,
	}
}

// Registry exposes the underlying registry for the read-only stats surface.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// HandleMessage dispatches one inbound event from a participant. Unknown
// events and malformed payloads are logged and dropped; no inbound frame may
// take the process down.
func (e *Engine) HandleMessage(senderID string, msg *protocol.Message) {
	switch msg.Event {
	case protocol.EventTherapistOnline:
		e.handleTherapistOnline(senderID)
	case protocol.EventTherapistOffline:
		e.handleTherapistOffline(senderID)
	case protocol.EventRequestTherapist:
		e.handleRequestTherapist(senderID)
	case protocol.EventCancelRequest:
		e.handleCancelRequest(senderID)
	case protocol.EventAcceptRequest:
		e.handleAcceptRequest(senderID, msg)
	case protocol.EventDeclineRequest:
		e.handleDeclineRequest(senderID, msg)
	case protocol.EventOffer, protocol.EventAnswer, protocol.EventICECandidate:
		e.relaySignal(senderID, msg)
	case protocol.EventEndSession:
		e.handleEndSession(senderID)
	default:
		logger.Warn("unknown event ignored",
			zap.String("event", msg.Event),
			zap.String("participant", senderID))
	}
}

// HandleDisconnect cleans up every trace of a dropped connection. Cleanup is
// best-effort and never raises; missing entries are expected.
func (e *Engine) HandleDisconnect(id string) {
	removal := e.reg.RemoveParticipantEverywhere(id)
	for _, clientID := range removal.ExhaustedClients {
		e.emit(clientID, protocol.EventRequestDeclined, nil)
	}
	if removal.EndedSession != nil {
		session := *removal.EndedSession
		metrics.SessionsEnded.WithLabelValues(registry.ReasonPeerDisconnected).Inc()
		e.emit(session.Other(id), protocol.EventSessionEnded, protocol.SessionEndedPayload{
			SessionID: session.ID,
			Reason:    registry.ReasonPeerDisconnected,
		})
		logger.Info("session ended by disconnect",
			zap.String("session_id", session.ID),
			zap.String("participant", id))
	}
	e.syncGauges()
	logger.Debug("participant removed",
		zap.String("participant", id),
		zap.Bool("was_online", removal.WasOnline),
		zap.Bool("had_pending", removal.HadPending))
}

func (e *Engine) handleTherapistOnline(id string) {
	e.reg.MarkOnline(id)
	e.syncGauges()
	logger.Info("therapist online", zap.String("therapist", id))
}

func (e *Engine) handleTherapistOffline(id string) {
	exhausted := e.reg.MarkOffline(id)
	for _, clientID := range exhausted {
		e.emit(clientID, protocol.EventRequestDeclined, nil)
	}
	e.syncGauges()
	logger.Info("therapist offline", zap.String("therapist", id))
}

func (e *Engine) handleRequestTherapist(clientID string) {
	snapshot := e.reg.SetPendingRequest(clientID)
	if snapshot == nil {
		e.emitError(clientID, errors.NewAppError(errors.ErrCodeNoTherapistsAvailable,
			"no therapists available"))
		return
	}
	for _, therapistID := range snapshot {
		e.emit(therapistID, protocol.EventTherapistRequest, protocol.TherapistRequestPayload{
			ClientID: clientID,
		})
	}
	e.emit(clientID, protocol.EventRequestSent, nil)
	e.syncGauges()
	logger.Info("support request broadcast",
		zap.String("client", clientID),
		zap.Int("therapists", len(snapshot)))
}

func (e *Engine) handleCancelRequest(clientID string) {
	had := e.reg.ClearPendingRequest(clientID)
	e.emit(clientID, protocol.EventRequestCancelled, nil)
	e.syncGauges()
	if had {
		logger.Info("support request cancelled", zap.String("client", clientID))
	}
}

func (e *Engine) handleAcceptRequest(therapistID string, msg *protocol.Message) {
	var target protocol.TargetPayload
	if err := msg.DecodeData(&target); err != nil || target.ClientID == "" {
		logger.Warn("malformed accept-request payload",
			zap.String("therapist", therapistID), zap.Error(err))
		e.emitError(therapistID, errors.NewAppError(errors.ErrCodeInvalidMessage,
			"invalid accept-request payload"))
		return
	}

	req, claimed := e.reg.ClaimPendingRequest(target.ClientID)
	if !claimed {
		// Claimed by another therapist, cancelled, or never existed.
		metrics.MatchRacesLost.Inc()
		e.emitError(therapistID, errors.NewAppError(errors.ErrCodeRequestNotAvailable,
			"request no longer available"))
		return
	}

	session, err := e.reg.CreateSession(target.ClientID, therapistID)
	if err != nil {
		// Put the claimed request back so the remaining broadcast
		// candidates can still accept; the restore is a no-op when the
		// client disconnected or cancelled since the claim.
		e.reg.RestorePendingRequest(req)
		appErr, _ := errors.AsAppError(err)
		if appErr == nil {
			appErr = errors.WrapError(errors.ErrCodeInternal, err)
		}
		logger.Warn("session creation rejected",
			zap.String("therapist", therapistID),
			zap.String("client", target.ClientID),
			zap.Error(err))
		e.emitError(therapistID, appErr)
		return
	}

	metrics.SessionsStarted.Inc()
	e.emit(session.ClientID, protocol.EventRequestAccepted, protocol.RequestAcceptedPayload{
		Role:      protocol.RoleClient,
		SessionID: session.ID,
	})
	e.emit(session.TherapistID, protocol.EventSessionStarted, protocol.SessionStartedPayload{
		Role:      protocol.RoleTherapist,
		SessionID: session.ID,
		ClientID:  session.ClientID,
	})
	e.armExpiry(session)
	e.syncGauges()
	logger.Info("session started",
		zap.String("session_id", session.ID),
		zap.String("client", session.ClientID),
		zap.String("therapist", session.TherapistID),
		zap.Time("expires_at", session.ExpiresAt))
}

func (e *Engine) handleDeclineRequest(therapistID string, msg *protocol.Message) {
	var target protocol.TargetPayload
	if err := msg.DecodeData(&target); err != nil || target.ClientID == "" {
		logger.Warn("malformed decline-request payload",
			zap.String("therapist", therapistID), zap.Error(err))
		return
	}
	// A lone decline is advisory in the broadcast model; the client only
	// hears about it when nobody is left who could accept.
	if e.reg.DeclineRequest(target.ClientID, therapistID) {
		e.emit(target.ClientID, protocol.EventRequestDeclined, nil)
		e.syncGauges()
		logger.Info("support request declined by all therapists",
			zap.String("client", target.ClientID))
	}
}

func (e *Engine) emit(participantID string, event string, payload interface{}) {
	msg, err := protocol.NewMessage(event, payload)
	if err != nil {
		logger.Error("failed to build outbound event",
			zap.String("event", event), zap.Error(err))
		return
	}
	e.emitter.Emit(participantID, msg)
}

func (e *Engine) emitError(participantID string, appErr *errors.AppError) {
	e.emit(participantID, protocol.EventError, protocol.ErrorPayload{
		Message: appErr.Message,
		Code:    string(appErr.Code),
	})
}

func (e *Engine) syncGauges() {
	metrics.SetCounts(e.reg.Counts())
}
