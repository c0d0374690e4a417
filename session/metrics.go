package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	transitionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flextrack_session_transitions_total",
	}, []string{"state"})
	rescansCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flextrack_session_rescans_total",
	})
	decodeFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flextrack_session_decode_failures_total",
	})
	staleEventsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flextrack_session_stale_events_total",
	})
	releasesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flextrack_session_connection_releases_total",
	})
)

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		transitionsCounter,
		rescansCounter,
		decodeFailuresCounter,
		staleEventsCounter,
		releasesCounter,
	)
}
