package transport

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/SafeSpaceHQ/safeline/pkg/constants"
	"github.com/SafeSpaceHQ/safeline/pkg/logger"
	"github.com/SafeSpaceHQ/safeline/pkg/protocol"
)

// Peer is one live websocket connection. Its identifier is assigned at
// attach time and dies with the connection; nothing about it is persisted.
type Peer struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func newPeer(hub *Hub, conn *websocket.Conn) *Peer {
	return &Peer{
		ID:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, constants.SendQueueSize),
	}
}

// readPump consumes inbound frames until the connection dies, handing each
// parsed event to the hub's handler. It runs as the connection's only
// reader.
func (p *Peer) readPump() {
	defer func() {
		p.hub.drop(p)
		p.conn.Close()
	}()

	p.conn.SetReadLimit(constants.MaxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(constants.PongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(constants.PongWait))
	})

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read failed",
					zap.String("participant", p.ID), zap.Error(err))
			}
			return
		}
		msg, err := protocol.ParseMessage(raw)
		if err != nil {
			logger.Warn("dropping malformed frame",
				zap.String("participant", p.ID), zap.Error(err))
			continue
		}
		p.hub.handler.HandleMessage(p.ID, msg)
	}
}

// writePump is the connection's only writer: it drains the send queue and
// keeps the connection alive with pings.
func (p *Peer) writePump() {
	ticker := time.NewTicker(constants.PingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case data := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
