// Package metrics provides Prometheus metrics for the Sorcha peer network:
// peer registry gauges, discovery counters, quality scores, and the
// service status signal.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sorcha-network/sorcha/internal/domain"
)

// ─── Peers ──────────────────────────────────────────────────────────────────

// PeersKnown tracks total known peers, banned included.
var PeersKnown = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sorcha",
	Name:      "peers_known_total",
	Help:      "Number of known peers in the registry.",
})

// PeersHealthy tracks non-banned peers.
var PeersHealthy = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sorcha",
	Name:      "peers_healthy_total",
	Help:      "Number of healthy (non-banned) peers.",
})

// PeersBanned tracks banned peers.
var PeersBanned = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sorcha",
	Name:      "peers_banned_total",
	Help:      "Number of banned peers retained for audit.",
})

// PeersTracked tracks peers with recorded quality statistics.
var PeersTracked = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sorcha",
	Name:      "peers_quality_tracked_total",
	Help:      "Number of peers with connection quality statistics.",
})

// NetworkAvgLatency tracks the mean last-known latency across all peers.
var NetworkAvgLatency = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sorcha",
	Name:      "network_average_latency_ms",
	Help:      "Arithmetic mean of per-peer last-known latency in milliseconds.",
})

// ─── Discovery ──────────────────────────────────────────────────────────────

// DiscoveryCycles counts completed discovery cycles.
var DiscoveryCycles = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sorcha",
	Name:      "discovery_cycles_total",
	Help:      "Total completed peer discovery cycles.",
})

// DiscoveryContacts counts individual peer contacts by outcome.
var DiscoveryContacts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sorcha",
	Name:      "discovery_contacts_total",
	Help:      "Total discovery contact attempts.",
}, []string{"outcome"})

// DiscoveryPeersMerged counts peers merged into the registry by discovery.
var DiscoveryPeersMerged = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sorcha",
	Name:      "discovery_peers_merged_total",
	Help:      "Total peer records merged from discovery exchanges.",
})

// ─── Registers ──────────────────────────────────────────────────────────────

// RegistersAdvertised tracks this node's own advertisements.
var RegistersAdvertised = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sorcha",
	Name:      "registers_advertised",
	Help:      "Registers this node currently advertises.",
})

// SubscriptionsActive tracks this node's register subscriptions.
var SubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sorcha",
	Name:      "register_subscriptions_active",
	Help:      "Active register subscriptions on this node.",
})

// ─── Service Status ─────────────────────────────────────────────────────────

// ServiceStatus reports the health signal (0=Offline, 1=Degraded, 2=Online).
var ServiceStatus = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sorcha",
	Name:      "service_status",
	Help:      "Service status (0=Offline, 1=Degraded, 2=Online).",
})

// SetServiceStatus converts the domain status to its gauge encoding.
func SetServiceStatus(s domain.ServiceStatus) {
	switch s {
	case domain.StatusOnline:
		ServiceStatus.Set(2)
	case domain.StatusDegraded:
		ServiceStatus.Set(1)
	default:
		ServiceStatus.Set(0)
	}
}
