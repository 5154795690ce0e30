package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gaugeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "receptionist_sessions_active",
		Help: "Call sessions held by the in-memory store",
	})

	metricSessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receptionist_sessions_created_total",
		Help: "Call sessions created on first contact",
	})

	metricSessionsEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "receptionist_sessions_evicted_total",
		Help: "Call sessions removed, by reason",
	}, []string{"reason"}) // hangup, idle
)
