package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SafeSpaceHQ/safeline/pkg/matchmaking"
	"github.com/SafeSpaceHQ/safeline/pkg/transport"
)

type sessionStats struct {
	SessionID        string `json:"session_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type statsResponse struct {
	Connected        int            `json:"connected"`
	TherapistsOnline int            `json:"therapists_online"`
	RequestsWaiting  int            `json:"requests_waiting"`
	SessionsActive   int            `json:"sessions_active"`
	Sessions         []sessionStats `json:"sessions"`
}

// healthHandler mirrors the frontend's health probe.
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// statsHandler is the read-only operational surface: counts plus remaining
// time per active session. Non-authoritative, never mutates.
func statsHandler(engine *matchmaking.Engine, hub *transport.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		reg := engine.Registry()
		therapists, waiting, active := reg.Counts()

		now := time.Now()
		sessions := make([]sessionStats, 0, active)
		for _, s := range reg.ActiveSessions() {
			sessions = append(sessions, sessionStats{
				SessionID:        s.ID,
				RemainingSeconds: int(s.Remaining(now).Seconds()),
			})
		}

		c.JSON(http.StatusOK, statsResponse{
			Connected:        hub.Count(),
			TherapistsOnline: therapists,
			RequestsWaiting:  waiting,
			SessionsActive:   active,
			Sessions:         sessions,
		})
	}
}
