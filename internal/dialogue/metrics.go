package dialogue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "receptionist_turns_total",
		Help: "Caller turns handled, by handler",
	}, []string{"handler"})

	metricModeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "receptionist_mode_transitions_total",
		Help: "Dialogue mode transitions",
	}, []string{"from", "to"})

	metricUpstreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "receptionist_upstream_failures_total",
		Help: "Adapter failures converted to spoken apologies",
	}, []string{"service", "kind"})

	metricUpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "receptionist_upstream_latency_ms",
		Help:    "Latency of adapter calls on the turn path",
		Buckets: prometheus.ExponentialBuckets(20, 1.8, 10),
	}, []string{"service"})

	metricHandlerPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receptionist_handler_panics_total",
		Help: "Handler panics recovered into an apology",
	})

	metricSMSSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receptionist_sms_sent_total",
		Help: "Map links sent by text message",
	})
)
