// Package metrics exposes the orchestrator's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	RoomsActive    prometheus.Gauge
	PeersConnected prometheus.Gauge
	RateLimited    *prometheus.CounterVec
	WorkerDeaths   prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voice_rooms_active",
			Help: "Number of live rooms.",
		}),
		PeersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voice_peers_connected",
			Help: "Number of peers across all rooms.",
		}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_rate_limited_total",
			Help: "Messages rejected by the rate limiter.",
		}, []string{"class"}),
		WorkerDeaths: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voice_worker_deaths_total",
			Help: "Media engine workers that died.",
		}),
	}
	reg.MustRegister(m.RoomsActive, m.PeersConnected, m.RateLimited, m.WorkerDeaths)
	return m
}

// Handler serves this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
