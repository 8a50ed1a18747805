// Package metrics exposes the daemon's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	QueueDepth      prometheus.Gauge
	QueueRejects    prometheus.Counter
}

// New registers the daemon collectors on reg and returns them. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in
// tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notegate",
			Name:      "commands_total",
			Help:      "Commands executed by the ledger worker, by verb and outcome.",
		}, []string{"verb", "outcome"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "notegate",
			Name:      "command_duration_seconds",
			Help:      "Wall time a command held the ledger worker, including propagation waits.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"verb"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "notegate",
			Name:      "command_queue_depth",
			Help:      "Commands waiting in the serialization queue.",
		}),
		QueueRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notegate",
			Name:      "command_queue_rejects_total",
			Help:      "Commands rejected because the queue was full or the worker was down.",
		}),
	}
	reg.MustRegister(m.CommandsTotal, m.CommandDuration, m.QueueDepth, m.QueueRejects)
	return m
}
