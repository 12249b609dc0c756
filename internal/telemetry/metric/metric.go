// Package metric provides Prometheus metrics for feoxd.
//
// Collectors are registered on a private registry so embedders can expose
// them however they like; the server itself opens no scrape endpoint.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all server collectors.
type Metrics struct {
	registry *prometheus.Registry

	// ConnectionsActive tracks currently open client connections.
	ConnectionsActive prometheus.Gauge
	// ConnectionsTotal counts connections accepted over the process lifetime.
	ConnectionsTotal prometheus.Counter
	// CommandsProcessed counts dispatched commands by name.
	CommandsProcessed *prometheus.CounterVec
	// KeysExpired counts entries reclaimed by the expiry sweeper.
	KeysExpired prometheus.Counter
	// MessagesPublished counts PUBLISH operations.
	MessagesPublished prometheus.Counter
	// ConnectionsKilled counts connections closed by CLIENT KILL or
	// outbound-queue overflow.
	ConnectionsKilled prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "feoxd",
			Name:      "connections_active",
			Help:      "Currently open client connections.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feoxd",
			Name:      "connections_total",
			Help:      "Connections accepted since process start.",
		}),
		CommandsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feoxd",
			Name:      "commands_processed_total",
			Help:      "Commands dispatched, by command name.",
		}, []string{"command"}),
		KeysExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feoxd",
			Name:      "keys_expired_total",
			Help:      "Keys reclaimed by the expiry sweeper.",
		}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feoxd",
			Name:      "messages_published_total",
			Help:      "PUBLISH commands fanned out.",
		}),
		ConnectionsKilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feoxd",
			Name:      "connections_killed_total",
			Help:      "Connections force-closed by CLIENT KILL or overflow.",
		}),
	}

	m.registry.MustRegister(
		m.ConnectionsActive,
		m.ConnectionsTotal,
		m.CommandsProcessed,
		m.KeysExpired,
		m.MessagesPublished,
		m.ConnectionsKilled,
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
