package metrics

import "github.com/prometheus/client_golang/prometheus"

// ShutdownMetrics records the drain lifecycle of this instance.
type ShutdownMetrics struct {
	State           prometheus.Gauge
	Triggers        *prometheus.CounterVec
	NoticesSent     prometheus.Counter
	DrainOutcomes   *prometheus.CounterVec
	DrainDuration   prometheus.Histogram
	ForcedRemaining prometheus.Gauge
}

func NewShutdownMetrics(reg prometheus.Registerer) *ShutdownMetrics {
	m := &ShutdownMetrics{
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "shutdown",
			Name:      "state",
			Help:      "Lifecycle state: 0 running, 1 draining, 2 terminated.",
		}),
		Triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shutdown",
			Name:      "triggers_total",
			Help:      "Shutdown triggers by source, including ignored duplicates.",
		}, []string{"source", "accepted"}),
		NoticesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shutdown",
			Name:      "notices_sent_total",
			Help:      "Shutdown notices broadcast to clients.",
		}),
		DrainOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shutdown",
			Name:      "drain_outcomes_total",
			Help:      "Completed drain cycles by outcome.",
		}, []string{"outcome"}),
		DrainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "shutdown",
			Name:      "drain_duration_seconds",
			Help:      "Time spent waiting for clients to disconnect.",
			Buckets:   []float64{.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		ForcedRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "shutdown",
			Name:      "forced_remaining_connections",
			Help:      "Fleet-wide connections still open when the drain timed out.",
		}),
	}

	reg.MustRegister(m.State, m.Triggers, m.NoticesSent, m.DrainOutcomes, m.DrainDuration, m.ForcedRemaining)
	return m
}
