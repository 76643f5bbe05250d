package matchmaking

import (
	"time"

	"github.com/SafeSpaceHQ/safeline/pkg/logger"
	"github.com/SafeSpaceHQ/safeline/pkg/metrics"
	"github.com/SafeSpaceHQ/safeline/pkg/protocol"
	"github.com/SafeSpaceHQ/safeline/pkg/registry"
	"go.uber.org/zap"
)

// armExpiry schedules the session's deadline check. The timer is never
// cancelled on early teardown; when it fires it re-checks current state, so
// a session already ended by an explicit end or a disconnect makes the
// firing a no-op. Exactly-once notification falls out of EndSession's
// idempotence.
func (e *Engine) armExpiry(session registry.Session) {
	time.AfterFunc(time.Until(session.ExpiresAt), func() {
		e.expireSession(session.ID)
	})
}

func (e *Engine) expireSession(sessionID string) {
	session, ended := e.reg.EndSession(sessionID)
	if !ended {
		// Ended earlier by explicit end or disconnect.
		return
	}
	metrics.SessionsEnded.WithLabelValues(registry.ReasonExpired).Inc()
	payload := protocol.SessionEndedPayload{
		SessionID: session.ID,
		Reason:    registry.ReasonExpired,
	}
	e.emit(session.ClientID, protocol.EventSessionEnded, payload)
	e.emit(session.TherapistID, protocol.EventSessionEnded, payload)
	e.syncGauges()
	logger.Info("session expired",
		zap.String("session_id", session.ID),
		zap.Time("started_at", session.StartedAt))
}

// handleEndSession ends the sender's active session. A sender with no
// active session is ignored; it may be racing a teardown that already won.
func (e *Engine) handleEndSession(senderID string) {
	session, ok := e.reg.FindSessionByParticipant(senderID)
	if !ok {
		logger.Debug("end-session from participant with no active session",
			zap.String("participant", senderID))
		return
	}
	ended, first := e.reg.EndSession(session.ID)
	if !first {
		return
	}
	metrics.SessionsEnded.WithLabelValues(registry.ReasonEnded).Inc()
	payload := protocol.SessionEndedPayload{
		SessionID: ended.ID,
		Reason:    registry.ReasonEnded,
	}
	e.emit(ended.ClientID, protocol.EventSessionEnded, payload)
	e.emit(ended.TherapistID, protocol.EventSessionEnded, payload)
	e.syncGauges()
	logger.Info("session ended",
		zap.String("session_id", ended.ID),
		zap.String("ended_by", senderID))
}
