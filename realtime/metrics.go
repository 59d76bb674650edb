package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the real-time collectors. A nil registerer leaves them unregistered.
type Metrics struct {
	sessions  prometheus.Gauge
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
	delivered *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "board_sync",
			Name:      "active_sessions",
			Help:      "Connected real-time sessions.",
		}),
		published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "board_sync",
			Name:      "realtime_published_total",
			Help:      "Payloads published to the real-time channel.",
		}, []string{"kind"}),
		failed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "board_sync",
			Name:      "realtime_publish_failures_total",
			Help:      "Failed real-time publishes.",
		}, []string{"kind"}),
		delivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "board_sync",
			Name:      "realtime_delivered_total",
			Help:      "Messages handed to stream clients.",
		}, []string{"event"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "board_sync",
			Name:      "realtime_dropped_total",
			Help:      "Messages dropped for stream clients with a full buffer.",
		}, []string{"event"}),
	}
}
