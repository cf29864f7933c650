package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "roomrelay"

// Metrics holds the relay's Prometheus collectors. Each instance owns its
// own registry so several servers can live in one process (tests do this).
type Metrics struct {
	registry *prometheus.Registry

	Connections      prometheus.Gauge
	Joins            prometheus.Counter
	Broadcasts       *prometheus.CounterVec
	Deliveries       prometheus.Counter
	DeliveryFailures *prometheus.CounterVec
	Dropped          *prometheus.CounterVec
}

// NewMetrics creates and registers the relay collectors plus the standard
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections_active",
			Help:      "Websocket connections currently registered.",
		}),
		Joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "room_joins_total",
			Help:      "join:room events handled.",
		}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broadcasts_total",
			Help:      "Room broadcasts issued, by message kind.",
		}, []string{"kind"}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deliveries_total",
			Help:      "Payloads queued to individual connections.",
		}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "delivery_failures_total",
			Help:      "Per-recipient delivery failures, by reason.",
		}, []string{"reason"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "inbound_dropped_total",
			Help:      "Inbound frames dropped without delivery, by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connections,
		m.Joins,
		m.Broadcasts,
		m.Deliveries,
		m.DeliveryFailures,
		m.Dropped,
	)
	return m
}

// WatchRooms exposes the live room count of reg as a gauge.
func (m *Metrics) WatchRooms(reg *Registry) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "rooms_active",
		Help:      "Rooms with at least one member.",
	}, func() float64 {
		return float64(reg.RoomCount())
	}))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
