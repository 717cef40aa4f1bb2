package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "declsync"

// Metrics holds the Prometheus metrics of a session.
type Metrics struct {
	// MessagesTotal counts handled messages by kind and outcome.
	MessagesTotal *prometheus.CounterVec

	// HandleSeconds measures how long each message kind takes to handle.
	HandleSeconds *prometheus.HistogramVec

	// CommitsTotal counts commit round trips by outcome.
	CommitsTotal *prometheus.CounterVec

	// PendingEntries is the size of the last prepared commit batch.
	PendingEntries prometheus.Gauge
}

// NewMetrics creates the session metrics and registers them with reg.
// A nil reg gets a private registry, so sessions never collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "session",
				Name:      "messages_total",
				Help:      "Total messages handled by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		HandleSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "session",
				Name:      "handle_seconds",
				Help:      "Time spent handling a message",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"kind"},
		),
		CommitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "session",
				Name:      "commits_total",
				Help:      "Total commit round trips by outcome",
			},
			[]string{"outcome"},
		),
		PendingEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "session",
				Name:      "pending_entries",
				Help:      "Entries in the last prepared commit batch",
			},
		),
	}
}
