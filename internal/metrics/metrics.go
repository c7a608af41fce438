// Package metrics exposes relay counters through Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relay"

// Metrics groups the collectors shared by hubs and bridges.
type Metrics struct {
	FramesReceived    *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	DeliveryFailures  *prometheus.CounterVec
	RoutingMisses     *prometheus.CounterVec
	Dropped           *prometheus.CounterVec
	ActiveConnections *prometheus.GaugeVec
	BridgeForwarded   *prometheus.CounterVec
	BridgeReconnects  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames by hub and classified kind.",
		}, []string{"hub", "kind"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Frames queued to a recipient.",
		}, []string{"hub"}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Per-recipient send failures.",
		}, []string{"hub"}),
		RoutingMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_misses_total",
			Help:      "Targeted messages dropped because no recipient was bound.",
		}, []string{"hub", "identity"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Messages the routing policy chose not to forward.",
		}, []string{"hub", "kind"}),
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Live connections per hub.",
		}, []string{"hub"}),
		BridgeForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_forwarded_total",
			Help:      "Frames forwarded by a bridge per direction.",
		}, []string{"direction", "kind"}),
		BridgeReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_reconnects_total",
			Help:      "Bridge sessions torn down and retried.",
		}, []string{"reason"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FramesReceived,
			m.Deliveries,
			m.DeliveryFailures,
			m.RoutingMisses,
			m.Dropped,
			m.ActiveConnections,
			m.BridgeForwarded,
			m.BridgeReconnects,
		)
	}
	return m
}
