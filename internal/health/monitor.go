// Package health translates peer-list state into a single service status
// and network-wide statistics. Status is a pure function of the current
// registry — no side effects, safe to call at any time.
package health

import (
	"context"
	"log"
	"time"

	"github.com/sorcha-network/sorcha/internal/domain"
	"github.com/sorcha-network/sorcha/internal/infra/metrics"
	"github.com/sorcha-network/sorcha/internal/infra/quality"
)

// PeerRegistry is the slice of the peer list the monitor samples.
type PeerRegistry interface {
	GetAllPeers() []domain.PeerNode
	GetHealthyPeerCount() int
	Count() int
}

// Monitor samples the peer registry and quality tracker.
type Monitor struct {
	peers      PeerRegistry
	qualities  *quality.Tracker
	minHealthy int
	interval   time.Duration
}

// NewMonitor creates a Monitor. minHealthy is the configured minimum
// healthy-peer threshold; interval drives the background refresh loop.
func NewMonitor(peers PeerRegistry, q *quality.Tracker, minHealthy int, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{peers: peers, qualities: q, minHealthy: minHealthy, interval: interval}
}

// DetermineServiceStatus maps the healthy-peer count to a service state:
// Offline at zero, Degraded below the configured minimum, Online otherwise.
func (m *Monitor) DetermineServiceStatus() domain.ServiceStatus {
	healthy := m.peers.GetHealthyPeerCount()
	switch {
	case healthy == 0:
		return domain.StatusOffline
	case healthy < m.minHealthy:
		return domain.StatusDegraded
	default:
		return domain.StatusOnline
	}
}

// GetNetworkStatistics summarizes the peer list. With no peers it returns
// zeroed statistics, not an error.
func (m *Monitor) GetNetworkStatistics() domain.NetworkStatistics {
	all := m.peers.GetAllPeers()
	stats := domain.NetworkStatistics{
		TotalPeers:   len(all),
		HealthyPeers: m.peers.GetHealthyPeerCount(),
	}
	if len(all) == 0 {
		return stats
	}

	var sum float64
	for i := range all {
		sum += all[i].AverageLatencyMs
	}
	stats.AverageLatencyMs = sum / float64(len(all))
	return stats
}

// Run publishes health gauges until the context is cancelled.
// Call in a goroutine.
func (m *Monitor) Run(ctx context.Context) {
	m.publish()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[health] monitor stopped")
			return
		case <-ticker.C:
			m.publish()
		}
	}
}

func (m *Monitor) publish() {
	stats := m.GetNetworkStatistics()
	status := m.DetermineServiceStatus()

	metrics.PeersKnown.Set(float64(stats.TotalPeers))
	metrics.PeersHealthy.Set(float64(stats.HealthyPeers))
	metrics.PeersBanned.Set(float64(stats.TotalPeers - stats.HealthyPeers))
	metrics.NetworkAvgLatency.Set(stats.AverageLatencyMs)
	metrics.SetServiceStatus(status)

	if m.qualities != nil {
		metrics.PeersTracked.Set(float64(m.qualities.TrackedCount()))
	}
}
