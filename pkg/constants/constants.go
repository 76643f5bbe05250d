package constants

import (
	"time"
)

const (
	// DefaultSessionTTL is the fixed lifetime of a support session. The
	// deadline is set at creation and never extended.
	DefaultSessionTTL = 600 * time.Second

	DefaultAddr       = ":5000"
	DefaultServerName = "safeline"
)

// WebSocket transport tuning.
const (
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 64 * 1024
	SendQueueSize  = 32
)

// DefaultStunServers is handed to participants at connect time so the
// frontend builds its RTCPeerConnection against the same ICE set.
var DefaultStunServers = []string{"stun:stun.l.google.com:19302"}
