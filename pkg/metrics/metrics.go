// Package metrics exposes the core's operational counters and gauges via
// Prometheus. The gauges mirror the registry's counts; the counters track
// matchmaking and relay throughput.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "safeline"

var (
	TherapistsOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "therapists_online",
		Help:      "Number of therapists currently online.",
	})

	RequestsWaiting = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "requests_waiting",
		Help:      "Number of clients with an outstanding support request.",
	})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of active support sessions.",
	})

	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Total sessions created by a successful accept.",
	})

	SessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_ended_total",
		Help:      "Total sessions torn down, by reason.",
	}, []string{"reason"})

	SignalsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signals_relayed_total",
		Help:      "Total negotiation messages forwarded between session members.",
	}, []string{"event"})

	MatchRacesLost = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "match_races_lost_total",
		Help:      "Total accepts that arrived after the request was claimed or gone.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetCounts updates the three registry gauges in one place.
func SetCounts(therapists, waiting, active int) {
	TherapistsOnline.Set(float64(therapists))
	RequestsWaiting.Set(float64(waiting))
	SessionsActive.Set(float64(active))
}
