// Package metrics exposes Prometheus counters for the inference bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mirrorml"

// Drop reasons used with RecordDrop.
const (
	ReasonEmpty        = "empty"
	ReasonUndecodable  = "undecodable"
	ReasonBackendError = "backend_error"
	ReasonNoResult     = "no_result"
	ReasonUnknownLabel = "unknown_label"
)

var (
	datagramsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Total datagrams received per listener",
		},
		[]string{"listener"},
	)

	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Datagrams that produced no downstream message",
		},
		[]string{"listener", "reason"},
	)

	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages written to the downstream peer",
		},
		[]string{"kind"}, // detection, classification
	)

	peerReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_reconnects_total",
			Help:      "Times the downstream peer was lost and replaced",
		},
	)

	inferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Duration of a single backend inference call",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"backend"},
	)

	loopRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_restarts_total",
			Help:      "Restarts of supervised listener loops",
		},
		[]string{"loop"},
	)
)

var allMetrics = []prometheus.Collector{
	datagramsReceived,
	framesDropped,
	messagesSent,
	peerReconnects,
	inferenceDuration,
	loopRestarts,
}

// RecordDatagram counts a datagram read by listener.
func RecordDatagram(listener string) {
	datagramsReceived.WithLabelValues(listener).Inc()
}

// RecordDrop counts a datagram that was skipped.
func RecordDrop(listener, reason string) {
	framesDropped.WithLabelValues(listener, reason).Inc()
}

// RecordSent counts a delivered message of the given kind.
func RecordSent(kind string) {
	messagesSent.WithLabelValues(kind).Inc()
}

// RecordReconnect counts a replaced downstream peer.
func RecordReconnect() {
	peerReconnects.Inc()
}

// ObserveInference records how long one backend call took.
func ObserveInference(backend string, d time.Duration) {
	inferenceDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// RecordRestart counts a supervised loop restart.
func RecordRestart(loop string) {
	loopRestarts.WithLabelValues(loop).Inc()
}
