package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gaugeWatchers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "receptionist_monitor_watchers",
		Help: "Connected monitor websockets",
	})
	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receptionist_monitor_events_dropped_total",
		Help: "Events dropped for slow monitor watchers",
	})
)
