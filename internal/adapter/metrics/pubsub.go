package metrics

import "github.com/prometheus/client_golang/prometheus"

// PubSubMetrics tracks traffic and subscription health per shared channel.
type PubSubMetrics struct {
	Published          *prometheus.CounterVec
	PublishErrors      *prometheus.CounterVec
	Received           *prometheus.CounterVec
	Reconnects         *prometheus.CounterVec
	SubscriptionActive *prometheus.GaugeVec
}

func NewPubSubMetrics(reg prometheus.Registerer) *PubSubMetrics {
	m := &PubSubMetrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pubsub",
			Name:      "published_total",
			Help:      "Messages published per channel.",
		}, []string{"channel"}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pubsub",
			Name:      "publish_errors_total",
			Help:      "Failed publishes per channel.",
		}, []string{"channel"}),
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pubsub",
			Name:      "received_total",
			Help:      "Messages received per channel.",
		}, []string{"channel"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pubsub",
			Name:      "reconnect_attempts_total",
			Help:      "Resubscribe attempts per channel after a lost subscription.",
		}, []string{"channel"}),
		SubscriptionActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pubsub",
			Name:      "subscription_active",
			Help:      "1 while the subscription on a channel is confirmed, 0 otherwise.",
		}, []string{"channel"}),
	}

	reg.MustRegister(m.Published, m.PublishErrors, m.Received, m.Reconnects, m.SubscriptionActive)
	return m
}
