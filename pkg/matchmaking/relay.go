package matchmaking

import (
	"github.com/SafeSpaceHQ/safeline/pkg/logger"
	"github.com/SafeSpaceHQ/safeline/pkg/metrics"
	"github.com/SafeSpaceHQ/safeline/pkg/protocol"
	"go.uber.org/zap"
)

// relaySignal forwards an offer/answer/ice-candidate blob to the other
// member of the sender's active session. The payload is never inspected or
// transformed; the only addition is the sender identity. A sender with no
// active session is dropped silently since it may legitimately be racing a
// session that just ended.
func (e *Engine) relaySignal(senderID string, msg *protocol.Message) {
	var signal protocol.SignalPayload
	if err := msg.DecodeData(&signal); err != nil {
		logger.Debug("malformed signaling payload dropped",
			zap.String("event", msg.Event),
			zap.String("participant", senderID),
			zap.Error(err))
		return
	}

	session, ok := e.reg.FindSessionByParticipant(senderID)
	if !ok {
		logger.Debug("stale signaling message dropped",
			zap.String("event", msg.Event),
			zap.String("participant", senderID))
		return
	}

	metrics.SignalsRelayed.WithLabelValues(msg.Event).Inc()
	e.emit(session.Other(senderID), msg.Event, protocol.SignalForwardPayload{
		Payload: signal.Payload,
		From:    senderID,
	})
}
