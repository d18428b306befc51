package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relay"

// Set bundles every metric group of one process on one registry.
type Set struct {
	Registry     *prometheus.Registry
	HTTP         *HTTPMetrics
	WebSocket    *WebSocketMetrics
	PubSub       *PubSubMetrics
	Redis        *RedisMetrics
	Shutdown     *ShutdownMetrics
	Coordination *CoordinationMetrics
}

// NewSet creates a fresh registry and registers all groups on it. Tests can
// call it repeatedly since nothing touches the global registerer.
func NewSet() *Set {
	reg := NewRegistry()
	return &Set{
		Registry:     reg,
		HTTP:         NewHTTPMetrics(reg),
		WebSocket:    NewWebSocketMetrics(reg),
		PubSub:       NewPubSubMetrics(reg),
		Redis:        NewRedisMetrics(reg),
		Shutdown:     NewShutdownMetrics(reg),
		Coordination: NewCoordinationMetrics(reg),
	}
}

// Handler serves this set's registry.
func (s *Set) Handler() http.Handler {
	return Handler(s.Registry)
}

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry:          reg,
		EnableOpenMetrics: true,
	})
}
