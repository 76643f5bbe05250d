package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/SafeSpaceHQ/safeline/pkg/logger"
	"github.com/SafeSpaceHQ/safeline/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The frontend is served from a different origin, same as the Flask
	// backend's permissive CORS setup.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ICEServersFromURLs builds the ICE server set announced to participants.
func ICEServersFromURLs(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: urls}}
}

// ServeWS upgrades an HTTP request to a participant connection: register
// the peer, start its pumps, and push the connected welcome with the
// assigned identifier and ICE configuration.
func ServeWS(hub *Hub, iceServers []webrtc.ICEServer) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		peer := newPeer(hub, conn)
		hub.add(peer)
		go peer.writePump()
		go peer.readPump()

		welcome, err := protocol.NewMessage(protocol.EventConnected, protocol.ConnectedPayload{
			ParticipantID: peer.ID,
			ICEServers:    iceServers,
		})
		if err != nil {
			logger.Error("failed to build welcome event", zap.Error(err))
			return
		}
		hub.Emit(peer.ID, welcome)
		logger.Info("participant connected", zap.String("participant", peer.ID))
	}
}
