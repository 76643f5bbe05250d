package transport

import (
	"sync"

	"go.uber.org/zap"

	"github.com/SafeSpaceHQ/safeline/pkg/logger"
	"github.com/SafeSpaceHQ/safeline/pkg/protocol"
)

// Handler receives the hub's inbound events. Implemented by the matchmaking
// engine.
type Handler interface {
	HandleMessage(participantID string, msg *protocol.Message)
	HandleDisconnect(participantID string)
}

// Hub tracks every connected peer and implements the engine's Emitter. Each
// peer has its own buffered send queue drained by a single writer goroutine,
// so per-recipient delivery order is the order of Emit calls.
type Hub struct {
	mu      sync.RWMutex
	peers   map[string]*Peer
	handler Handler
}

func NewHub() *Hub {
	return &Hub{
		peers: make(map[string]*Peer),
	}
}

// SetHandler attaches the event handler. Must be called before the first
// connection is accepted.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

func (h *Hub) add(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p.ID] = p
}

// drop detaches a peer once and reports the disconnect to the handler. The
// send queue is never closed: a concurrent Emit may still hold a reference,
// and the write pump exits on its own once the connection is gone.
func (h *Hub) drop(p *Peer) {
	h.mu.Lock()
	if _, ok := h.peers[p.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.peers, p.ID)
	h.mu.Unlock()

	h.handler.HandleDisconnect(p.ID)
	logger.Info("participant disconnected", zap.String("participant", p.ID))
}

// Emit queues an event for a single participant. Unknown identifiers are a
// silent no-op; a full send queue sheds the frame rather than stalling the
// caller.
func (h *Hub) Emit(participantID string, msg *protocol.Message) {
	data, err := msg.Encode()
	if err != nil {
		logger.Error("failed to encode outbound event",
			zap.String("event", msg.Event), zap.Error(err))
		return
	}

	h.mu.RLock()
	peer, ok := h.peers[participantID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case peer.send <- data:
	default:
		logger.Warn("send queue full, dropping frame",
			zap.String("participant", participantID),
			zap.String("event", msg.Event))
	}
}

// Count reports the number of connected participants.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}
