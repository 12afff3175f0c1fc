// Package peerlist is the authoritative in-memory registry of known peers.
// It is the single source of truth for peer existence and ban state; no
// other component mutates a PeerNode directly.
//
// The registry is sharded by FNV-1a of the peer id so concurrent readers
// and writers on independent peers never contend on one lock. Healthy-peer
// count is kept as an atomic counter for the hot path.
package peerlist

import (
	"hash/fnv"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sorcha-network/sorcha/internal/domain"
)

const shardCount = 16

// DefaultMaxPeers bounds the registry when no capacity is configured.
const DefaultMaxPeers = 1000

// Options configures a Manager.
type Options struct {
	// MaxPeers caps the registry; the least-recently-healthy entry is
	// evicted when a new peer would exceed it. 0 means DefaultMaxPeers.
	MaxPeers int

	// Store, when set, persists peer state across restarts. Persistence
	// is best-effort — a write failure never blocks a mutation.
	Store domain.PeerStore

	// JanitorInterval controls the background trim loop. 0 disables it.
	JanitorInterval time.Duration
}

type shard struct {
	mu    sync.RWMutex
	peers map[string]*domain.PeerNode
}

// Manager is the concurrent peer registry.
type Manager struct {
	shards       [shardCount]shard
	maxPeers     int
	store        domain.PeerStore
	totalCount   atomic.Int64
	healthyCount atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewManager creates a Manager and starts its janitor when configured.
func NewManager(opts Options) *Manager {
	m := &Manager{
		maxPeers: opts.MaxPeers,
		store:    opts.Store,
		done:     make(chan struct{}),
	}
	if m.maxPeers <= 0 {
		m.maxPeers = DefaultMaxPeers
	}
	for i := range m.shards {
		m.shards[i].peers = make(map[string]*domain.PeerNode)
	}
	if opts.JanitorInterval > 0 {
		go m.janitor(opts.JanitorInterval)
	}
	return m
}

// Close stops the janitor. Safe to call multiple times or concurrently
// with shutdown.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

func (m *Manager) shardFor(peerID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(peerID))
	return &m.shards[h.Sum32()%shardCount]
}

// ─── Mutation ───────────────────────────────────────────────────────────────

// AddOrUpdatePeer inserts an unknown peer or merges mutable fields into a
// known one. The merge never resets ban state or the failure count.
// Calls for the same peer id apply in arrival order (shard lock held for
// the whole merge); there is no ordering guarantee across peer ids.
func (m *Manager) AddOrUpdatePeer(peer domain.PeerNode) {
	if peer.PeerID == "" {
		return
	}

	s := m.shardFor(peer.PeerID)
	s.mu.Lock()
	existing, known := s.peers[peer.PeerID]
	if known {
		existing.Address = peer.Address
		existing.Port = peer.Port
		if peer.AverageLatencyMs > 0 {
			existing.AverageLatencyMs = peer.AverageLatencyMs
		}
		if peer.AdvertisedRegisters != nil {
			// Advertisements are replaced wholesale, never merged.
			existing.AdvertisedRegisters = cloneRegisters(peer.AdvertisedRegisters)
		}
		existing.LastSeen = time.Now()
		snapshot := clonePeer(existing)
		s.mu.Unlock()
		m.persist(snapshot)
		return
	}
	s.mu.Unlock()

	// New peer: make room first so the insert never pushes us over capacity.
	if int(m.totalCount.Load()) >= m.maxPeers {
		m.evictOne()
	}

	fresh := clonePeerPtr(peer)
	fresh.LastSeen = time.Now()

	s.mu.Lock()
	if _, raced := s.peers[peer.PeerID]; raced {
		s.mu.Unlock()
		m.AddOrUpdatePeer(peer) // lost the insert race — merge instead
		return
	}
	s.peers[peer.PeerID] = fresh
	s.mu.Unlock()

	m.totalCount.Add(1)
	if !fresh.IsBanned {
		m.healthyCount.Add(1)
	}
	m.persist(clonePeer(fresh))
}

// RemovePeer deletes a peer outright. Returns false if unknown.
func (m *Manager) RemovePeer(peerID string) bool {
	s := m.shardFor(peerID)
	s.mu.Lock()
	p, ok := s.peers[peerID]
	if ok {
		delete(s.peers, peerID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	m.totalCount.Add(-1)
	if !p.IsBanned {
		m.healthyCount.Add(-1)
	}
	if m.store != nil {
		if err := m.store.DeletePeer(peerID); err != nil {
			log.Printf("[peerlist] delete %s from store: %v", peerID, err)
		}
	}
	return true
}

// BanPeer marks a peer untrusted. Returns false when the peer is unknown.
// Banning is idempotent at the state level; the administrative layer is
// expected to reject a repeat ban as a conflict before calling this.
func (m *Manager) BanPeer(peerID, reason string) bool {
	s := m.shardFor(peerID)
	s.mu.Lock()
	p, ok := s.peers[peerID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	wasHealthy := !p.IsBanned
	now := time.Now()
	p.IsBanned = true
	p.BanReason = reason
	p.BannedAt = &now
	p.FailureCount = 0
	snapshot := clonePeer(p)
	s.mu.Unlock()

	if wasHealthy {
		m.healthyCount.Add(-1)
	}
	m.persist(snapshot)
	return true
}

// UnbanPeer clears ban state. Returns false when the peer is unknown.
// Unbanning a peer that is not banned is left to the caller to treat as
// a conflict; state-wise it is a no-op.
func (m *Manager) UnbanPeer(peerID string) bool {
	s := m.shardFor(peerID)
	s.mu.Lock()
	p, ok := s.peers[peerID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	wasBanned := p.IsBanned
	p.IsBanned = false
	p.BanReason = ""
	p.BannedAt = nil
	p.FailureCount = 0
	snapshot := clonePeer(p)
	s.mu.Unlock()

	if wasBanned {
		m.healthyCount.Add(1)
	}
	m.persist(snapshot)
	return true
}

// ResetFailureCount zeroes a peer's consecutive-failure count and returns
// the previous value. ok is false when the peer does not exist — callers
// branch differently on "was already zero" versus "does not exist".
func (m *Manager) ResetFailureCount(peerID string) (prev int, ok bool) {
	s := m.shardFor(peerID)
	s.mu.Lock()
	p, found := s.peers[peerID]
	if !found {
		s.mu.Unlock()
		return -1, false
	}
	prev = p.FailureCount
	p.FailureCount = 0
	snapshot := clonePeer(p)
	s.mu.Unlock()

	m.persist(snapshot)
	return prev, true
}

// MarkPeerSuccess records a successful contact: the consecutive-failure
// count resets and the latency snapshot refreshes.
func (m *Manager) MarkPeerSuccess(peerID string, latencyMs float64) {
	s := m.shardFor(peerID)
	s.mu.Lock()
	p, ok := s.peers[peerID]
	if !ok {
		s.mu.Unlock()
		return
	}
	p.FailureCount = 0
	p.AverageLatencyMs = latencyMs
	p.LastSeen = time.Now()
	snapshot := clonePeer(p)
	s.mu.Unlock()

	m.persist(snapshot)
}

// MarkPeerFailure increments the consecutive-failure count. Failures are
// tracked, never escalated to a ban here — banning is an explicit
// administrative action.
func (m *Manager) MarkPeerFailure(peerID string) {
	s := m.shardFor(peerID)
	s.mu.Lock()
	p, ok := s.peers[peerID]
	if !ok {
		s.mu.Unlock()
		return
	}
	p.FailureCount++
	snapshot := clonePeer(p)
	s.mu.Unlock()

	m.persist(snapshot)
}

// ─── Queries ────────────────────────────────────────────────────────────────

// GetPeer returns a copy of the peer, or ok=false for lookup misses.
func (m *Manager) GetPeer(peerID string) (domain.PeerNode, bool) {
	s := m.shardFor(peerID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[peerID]
	if !ok {
		return domain.PeerNode{}, false
	}
	return clonePeer(p), true
}

// GetAllPeers returns a point-in-time snapshot of every known peer,
// banned included.
func (m *Manager) GetAllPeers() []domain.PeerNode {
	return m.snapshot(func(*domain.PeerNode) bool { return true })
}

// GetHealthyPeers returns a snapshot excluding banned peers.
func (m *Manager) GetHealthyPeers() []domain.PeerNode {
	return m.snapshot(func(p *domain.PeerNode) bool { return !p.IsBanned })
}

// GetHealthyPeerCount returns the cached healthy-peer count.
func (m *Manager) GetHealthyPeerCount() int {
	return int(m.healthyCount.Load())
}

// Count returns the total number of known peers.
func (m *Manager) Count() int {
	return int(m.totalCount.Load())
}

// snapshot copies matching peers shard by shard. Each shard lock is held
// only briefly, so the result is an eventually-consistent view.
func (m *Manager) snapshot(keep func(*domain.PeerNode) bool) []domain.PeerNode {
	out := make([]domain.PeerNode, 0, m.totalCount.Load())
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		for _, p := range s.peers {
			if keep(p) {
				out = append(out, clonePeer(p))
			}
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}

// ─── Eviction ───────────────────────────────────────────────────────────────

// evictOne drops the least-recently-healthy peer: banned entries first,
// then the stalest by last-seen with failure count as tie breaker.
func (m *Manager) evictOne() {
	type candidate struct {
		id       string
		banned   bool
		failures int
		lastSeen time.Time
	}

	var victim *candidate
	worse := func(a, b *candidate) bool {
		if a.banned != b.banned {
			return a.banned
		}
		if !a.lastSeen.Equal(b.lastSeen) {
			return a.lastSeen.Before(b.lastSeen)
		}
		return a.failures > b.failures
	}

	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		for id, p := range s.peers {
			c := &candidate{id: id, banned: p.IsBanned, failures: p.FailureCount, lastSeen: p.LastSeen}
			if victim == nil || worse(c, victim) {
				victim = c
			}
		}
		s.mu.RUnlock()
	}

	if victim != nil {
		log.Printf("[peerlist] at capacity (%d) — evicting %s", m.maxPeers, victim.id)
		m.RemovePeer(victim.id)
	}
}

// janitor periodically trims the registry back under capacity. Entries can
// briefly exceed the cap under concurrent inserts.
func (m *Manager) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			for int(m.totalCount.Load()) > m.maxPeers {
				m.evictOne()
			}
		}
	}
}

// ─── Persistence ────────────────────────────────────────────────────────────

// LoadFromStore seeds the registry from persisted state at startup.
func (m *Manager) LoadFromStore() error {
	if m.store == nil {
		return nil
	}
	peers, err := m.store.ListPeers()
	if err != nil {
		return err
	}
	for i := range peers {
		p := clonePeerPtr(peers[i])
		s := m.shardFor(p.PeerID)
		s.mu.Lock()
		if _, exists := s.peers[p.PeerID]; !exists {
			s.peers[p.PeerID] = p
			m.totalCount.Add(1)
			if !p.IsBanned {
				m.healthyCount.Add(1)
			}
		}
		s.mu.Unlock()
	}
	return nil
}

func (m *Manager) persist(p domain.PeerNode) {
	if m.store == nil {
		return
	}
	if err := m.store.UpsertPeer(p); err != nil {
		log.Printf("[peerlist] persist %s: %v", p.PeerID, err)
	}
}

// ─── Copy helpers ───────────────────────────────────────────────────────────
// All reads hand out copies so callers never see torn state.

func clonePeer(p *domain.PeerNode) domain.PeerNode {
	out := *p
	out.AdvertisedRegisters = cloneRegisters(p.AdvertisedRegisters)
	if p.BannedAt != nil {
		t := *p.BannedAt
		out.BannedAt = &t
	}
	return out
}

func clonePeerPtr(p domain.PeerNode) *domain.PeerNode {
	out := clonePeer(&p)
	return &out
}

func cloneRegisters(regs []domain.PeerRegisterInfo) []domain.PeerRegisterInfo {
	if regs == nil {
		return nil
	}
	out := make([]domain.PeerRegisterInfo, len(regs))
	copy(out, regs)
	return out
}
