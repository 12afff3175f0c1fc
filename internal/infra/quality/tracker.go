// Package quality converts raw request outcomes into a per-peer reputation
// signal. The tracker is a pure in-memory aggregator — no network I/O —
// updated by every outbound request's success/failure callback and read by
// peer selection and health summaries.
package quality

import (
	"sort"
	"sync"

	"github.com/sorcha-network/sorcha/internal/domain"
)

// Rating thresholds over the 0–100 score.
const (
	scoreExcellent = 90
	scoreGood      = 70
	scoreFair      = 50
)

// peerStats is the mutable per-peer record. Each record carries its own
// lock so unrelated peers never contend.
type peerStats struct {
	mu         sync.Mutex
	total      int64
	successful int64
	failed     int64
	avgLatency float64
	minLatency float64
	maxLatency float64
}

// Tracker maintains rolling statistics per peer and a derived quality score.
type Tracker struct {
	mu    sync.RWMutex
	peers map[string]*peerStats
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{peers: make(map[string]*peerStats)}
}

// get returns the stats record for a peer, creating it when create is set.
func (t *Tracker) get(peerID string, create bool) *peerStats {
	t.mu.RLock()
	s := t.peers[peerID]
	t.mu.RUnlock()
	if s != nil || !create {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s = t.peers[peerID]; s == nil {
		s = &peerStats{}
		t.peers[peerID] = s
	}
	return s
}

// RecordSuccess records a successful request and its latency.
// An empty peer id is ignored — callers fan these in from hot paths.
func (t *Tracker) RecordSuccess(peerID string, latencyMs float64) {
	if peerID == "" {
		return
	}
	s := t.get(peerID, true)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.successful++
	// Running average — no stored history.
	s.avgLatency += (latencyMs - s.avgLatency) / float64(s.successful)
	if s.minLatency == 0 || latencyMs < s.minLatency {
		s.minLatency = latencyMs
	}
	if latencyMs > s.maxLatency {
		s.maxLatency = latencyMs
	}
}

// RecordFailure records a failed request. An empty peer id is ignored.
func (t *Tracker) RecordFailure(peerID string) {
	if peerID == "" {
		return
	}
	s := t.get(peerID, true)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.failed++
}

// GetQuality returns a snapshot for one peer. A peer with no recorded
// requests is unknown, not "Poor" — ok is false.
func (t *Tracker) GetQuality(peerID string) (domain.ConnectionQuality, bool) {
	s := t.get(peerID, false)
	if s == nil {
		return domain.ConnectionQuality{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(peerID), true
}

// GetAllQualities returns a snapshot map of every tracked peer.
func (t *Tracker) GetAllQualities() map[string]domain.ConnectionQuality {
	t.mu.RLock()
	ids := make([]string, 0, len(t.peers))
	for id := range t.peers {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	out := make(map[string]domain.ConnectionQuality, len(ids))
	for _, id := range ids {
		if q, ok := t.GetQuality(id); ok {
			out[id] = q
		}
	}
	return out
}

// GetBestPeers returns up to n peer ids ordered by descending quality
// score, ties broken by lower average latency.
func (t *Tracker) GetBestPeers(n int) []string {
	if n <= 0 {
		return nil
	}

	all := t.GetAllQualities()
	ranked := make([]domain.ConnectionQuality, 0, len(all))
	for _, q := range all {
		ranked = append(ranked, q)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].QualityScore != ranked[j].QualityScore {
			return ranked[i].QualityScore > ranked[j].QualityScore
		}
		if ranked[i].AverageLatencyMs != ranked[j].AverageLatencyMs {
			return ranked[i].AverageLatencyMs < ranked[j].AverageLatencyMs
		}
		return ranked[i].PeerID < ranked[j].PeerID // deterministic ordering
	})

	if n > len(ranked) {
		n = len(ranked)
	}
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = ranked[i].PeerID
	}
	return ids
}

// RemovePeer drops a peer's statistics. Used when a peer is banned or
// removed so stale reputation doesn't linger.
func (t *Tracker) RemovePeer(peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, peerID)
}

// Clear drops all tracked statistics.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers = make(map[string]*peerStats)
}

// TrackedCount returns the number of peers with recorded requests.
func (t *Tracker) TrackedCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// snapshot builds the exported view. Caller holds s.mu.
func (s *peerStats) snapshot(peerID string) domain.ConnectionQuality {
	q := domain.ConnectionQuality{
		PeerID:             peerID,
		TotalRequests:      s.total,
		SuccessfulRequests: s.successful,
		FailedRequests:     s.failed,
		AverageLatencyMs:   s.avgLatency,
		MinLatencyMs:       s.minLatency,
		MaxLatencyMs:       s.maxLatency,
	}
	if s.total > 0 {
		q.SuccessRate = float64(s.successful) / float64(s.total)
	}
	q.QualityScore = scoreOf(q.AverageLatencyMs, q.SuccessRate)
	q.QualityRating = ratingOf(q.QualityScore)
	return q
}

// scoreOf combines latency and success rate into a 0–100 score.
// Lower latency is better: sub-50ms scores near maximum, degrading through
// fixed bands. Failures pull the score down multiplicatively.
func scoreOf(avgLatencyMs, successRate float64) float64 {
	var latencyScore float64
	switch {
	case avgLatencyMs < 50:
		latencyScore = 100
	case avgLatencyMs < 100:
		latencyScore = 90
	case avgLatencyMs < 200:
		latencyScore = 75
	case avgLatencyMs < 500:
		latencyScore = 50
	default:
		latencyScore = 25
	}

	score := latencyScore * successRate
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// ratingOf buckets a score into the operator-facing bands.
func ratingOf(score float64) domain.QualityRating {
	switch {
	case score >= scoreExcellent:
		return domain.RatingExcellent
	case score >= scoreGood:
		return domain.RatingGood
	case score >= scoreFair:
		return domain.RatingFair
	default:
		return domain.RatingPoor
	}
}
