// Package discovery keeps the healthy-peer count at or above the
// configured minimum. A background loop bootstraps from seed nodes,
// exchanges peer lists with known peers under bounded concurrency, and
// merges the results into the peer registry.
//
// One unreachable peer never aborts a cycle: each contact failure is
// recorded against that peer and the cycle moves on. Repeated failures
// deprioritize a peer through the quality tracker — they never ban it;
// banning is an explicit administrative action.
package discovery

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sorcha-network/sorcha/internal/domain"
	"github.com/sorcha-network/sorcha/internal/infra/metrics"
	"github.com/sorcha-network/sorcha/internal/infra/peerlist"
)

// Config configures the discovery loop.
type Config struct {
	NodeID     string
	ListenPort int

	// MinHealthyPeers is the low-water mark that triggers an
	// opportunistic cycle between refreshes.
	MinHealthyPeers int

	// MaxConcurrent bounds the contact fan-out per cycle.
	MaxConcurrent int

	// RefreshInterval is the fixed cycle period.
	RefreshInterval time.Duration

	// ContactTimeout bounds each individual peer contact. A timeout is
	// recorded as a failure, never left pending.
	ContactTimeout time.Duration

	Seeds []domain.SeedNode
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinHealthyPeers: 5,
		MaxConcurrent:   8,
		RefreshInterval: 30 * time.Second,
		ContactTimeout:  5 * time.Second,
	}
}

// Service runs the discovery state machine:
// Idle → Resolving → Contacting → Merging → Idle.
type Service struct {
	cfg       Config
	peers     *peerlist.Manager
	resolver  domain.AddressResolver
	exchanger domain.PeerExchanger
	quality   domain.QualityRecorder

	// running coalesces concurrent cycle requests — a cycle already in
	// flight is never restarted.
	running atomic.Bool
	trigger chan struct{}
}

// NewService wires the discovery loop to its collaborators.
func NewService(cfg Config, peers *peerlist.Manager, resolver domain.AddressResolver, exchanger domain.PeerExchanger, quality domain.QualityRecorder) *Service {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	if cfg.ContactTimeout <= 0 {
		cfg.ContactTimeout = 5 * time.Second
	}
	return &Service{
		cfg:       cfg,
		peers:     peers,
		resolver:  resolver,
		exchanger: exchanger,
		quality:   quality,
		trigger:   make(chan struct{}, 1),
	}
}

// Poke requests an opportunistic cycle, e.g. after the healthy-peer count
// dropped. Non-blocking; redundant pokes collapse into one.
func (s *Service) Poke() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run drives discovery until the context is cancelled. Call in a goroutine.
// Exactly one loop instance should run per service.
func (s *Service) Run(ctx context.Context) {
	log.Printf("[discovery] starting — %d seeds, refresh %s", len(s.cfg.Seeds), s.cfg.RefreshInterval)
	s.RunCycle(ctx)

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	// The low-water check fires more often than the refresh so a sudden
	// drop in healthy peers is noticed between full cycles.
	lowWater := time.NewTicker(s.cfg.RefreshInterval / 4)
	defer lowWater.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[discovery] stopped")
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		case <-s.trigger:
			s.RunCycle(ctx)
		case <-lowWater.C:
			if s.peers.GetHealthyPeerCount() < s.cfg.MinHealthyPeers {
				s.RunCycle(ctx)
			}
		}
	}
}

// RunCycle performs one discovery cycle. Concurrent calls coalesce: if a
// cycle is already running this returns immediately.
func (s *Service) RunCycle(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	defer s.running.Store(false)

	// Resolving: determine our own announce address first.
	self := domain.PeerNode{PeerID: s.cfg.NodeID, Port: s.cfg.ListenPort}
	if addr, err := s.resolver.Resolve(ctx); err == nil {
		self.Address = addr
	} else {
		log.Printf("[discovery] own address unresolved, announcing without one: %v", err)
	}

	// Seeds are merged up front so they participate like any known peer
	// (without disturbing ban state of a previously banned seed).
	for _, seed := range s.cfg.Seeds {
		if seed.PeerID == s.cfg.NodeID {
			continue
		}
		s.peers.AddOrUpdatePeer(seed.Peer())
	}

	// Contacting: bounded fan-out over the current healthy set.
	contacts := s.peers.GetHealthyPeers()
	sem := make(chan struct{}, s.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for _, peer := range contacts {
		if peer.PeerID == s.cfg.NodeID {
			continue
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(peer domain.PeerNode) {
			defer wg.Done()
			defer func() { <-sem }()
			s.contact(ctx, peer, self)
		}(peer)
	}
	wg.Wait()

	metrics.DiscoveryCycles.Inc()
}

// contact exchanges peer lists with one peer and merges the result.
func (s *Service) contact(ctx context.Context, peer, self domain.PeerNode) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.ContactTimeout)
	defer cancel()

	start := time.Now()
	remote, err := s.exchanger.ExchangePeers(cctx, peer, self)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		// Failure is isolated: count it and move on.
		s.peers.MarkPeerFailure(peer.PeerID)
		s.quality.RecordFailure(peer.PeerID)
		metrics.DiscoveryContacts.WithLabelValues("failure").Inc()
		log.Printf("[discovery] contact %s failed: %v", peer.PeerID, err)
		return
	}

	s.peers.MarkPeerSuccess(peer.PeerID, latencyMs)
	s.quality.RecordSuccess(peer.PeerID, latencyMs)
	metrics.DiscoveryContacts.WithLabelValues("success").Inc()

	// Merging: the contacted peer's own list feeds the registry.
	merged := 0
	for _, p := range remote {
		if p.PeerID == "" || p.PeerID == s.cfg.NodeID {
			continue
		}
		s.peers.AddOrUpdatePeer(p)
		merged++
	}
	if merged > 0 {
		metrics.DiscoveryPeersMerged.Add(float64(merged))
	}
}
