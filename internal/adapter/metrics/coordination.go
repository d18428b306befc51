package metrics

import "github.com/prometheus/client_golang/prometheus"

// CoordinationMetrics tracks instance heartbeats and counter reconciliation.
type CoordinationMetrics struct {
	IsLeader          prometheus.Gauge
	LiveInstances     prometheus.Gauge
	PrunedInstances   prometheus.Counter
	HeartbeatErrors   prometheus.Counter
	DriftDetected     prometheus.Counter
	DriftCorrections  prometheus.Counter
	GlobalConnections prometheus.Gauge
}

func NewCoordinationMetrics(reg prometheus.Registerer) *CoordinationMetrics {
	m := &CoordinationMetrics{
		IsLeader: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordination",
			Name:      "is_leader",
			Help:      "1 if this instance holds the reconciliation lease.",
		}),
		LiveInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordination",
			Name:      "live_instances",
			Help:      "Instances with a fresh heartbeat, as seen by the leader.",
		}),
		PrunedInstances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordination",
			Name:      "pruned_instances_total",
			Help:      "Stale instance records removed by the leader.",
		}),
		HeartbeatErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordination",
			Name:      "heartbeat_errors_total",
			Help:      "Failed instance heartbeat writes.",
		}),
		DriftDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordination",
			Name:      "counter_drift_detected_total",
			Help:      "Reconcile passes where the shared counter disagreed with live heartbeats.",
		}),
		DriftCorrections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordination",
			Name:      "counter_drift_corrections_total",
			Help:      "Times the shared counter was overwritten with the heartbeat sum.",
		}),
		GlobalConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordination",
			Name:      "global_connections",
			Help:      "Last shared counter value observed by the leader.",
		}),
	}

	reg.MustRegister(m.IsLeader, m.LiveInstances, m.PrunedInstances, m.HeartbeatErrors, m.DriftDetected, m.DriftCorrections, m.GlobalConnections)
	return m
}
