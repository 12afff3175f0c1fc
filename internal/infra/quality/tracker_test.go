package quality

import (
	"fmt"
	"sync"
	"testing"

	"github.com/sorcha-network/sorcha/internal/domain"
)

// ─── Recording Tests ────────────────────────────────────────────────────────

func TestRecordSuccess_LatencyStats(t *testing.T) {
	tr := NewTracker()
	tr.RecordSuccess("p1", 30)
	tr.RecordSuccess("p1", 40)
	tr.RecordSuccess("p1", 50)

	q, ok := tr.GetQuality("p1")
	if !ok {
		t.Fatal("expected quality for p1")
	}
	if q.AverageLatencyMs != 40 {
		t.Errorf("AverageLatencyMs = %v, want 40", q.AverageLatencyMs)
	}
	if q.MinLatencyMs != 30 {
		t.Errorf("MinLatencyMs = %v, want 30", q.MinLatencyMs)
	}
	if q.MaxLatencyMs != 50 {
		t.Errorf("MaxLatencyMs = %v, want 50", q.MaxLatencyMs)
	}
	if q.QualityRating != domain.RatingExcellent {
		t.Errorf("QualityRating = %q, want %q", q.QualityRating, domain.RatingExcellent)
	}
}

func TestCountsInvariant(t *testing.T) {
	tr := NewTracker()
	tr.RecordSuccess("p1", 10)
	tr.RecordFailure("p1")
	tr.RecordSuccess("p1", 20)
	tr.RecordFailure("p1")
	tr.RecordFailure("p1")

	q, _ := tr.GetQuality("p1")
	if q.SuccessfulRequests+q.FailedRequests != q.TotalRequests {
		t.Errorf("successful(%d) + failed(%d) != total(%d)",
			q.SuccessfulRequests, q.FailedRequests, q.TotalRequests)
	}
	if q.TotalRequests != 5 {
		t.Errorf("TotalRequests = %d, want 5", q.TotalRequests)
	}
	if q.SuccessRate != 0.4 {
		t.Errorf("SuccessRate = %v, want 0.4", q.SuccessRate)
	}
}

func TestEmptyPeerID_NoOp(t *testing.T) {
	tr := NewTracker()
	tr.RecordSuccess("", 10)
	tr.RecordFailure("")

	if tr.TrackedCount() != 0 {
		t.Errorf("TrackedCount = %d, want 0 — empty ids must not create state", tr.TrackedCount())
	}
}

func TestGetQuality_UnknownPeer(t *testing.T) {
	tr := NewTracker()
	if _, ok := tr.GetQuality("ghost"); ok {
		t.Error("unknown peer should not be scorable")
	}
}

// ─── Scoring Tests ──────────────────────────────────────────────────────────

func TestScoreBands(t *testing.T) {
	tests := []struct {
		latency float64
		rate    float64
		want    float64
	}{
		{30, 1.0, 100},
		{80, 1.0, 90},
		{150, 1.0, 75},
		{400, 1.0, 50},
		{900, 1.0, 25},
		{30, 0.5, 50},
		{900, 0.0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%vms_%v", tt.latency, tt.rate), func(t *testing.T) {
			if got := scoreOf(tt.latency, tt.rate); got != tt.want {
				t.Errorf("scoreOf(%v, %v) = %v, want %v", tt.latency, tt.rate, got, tt.want)
			}
		})
	}
}

func TestRatingBuckets(t *testing.T) {
	tests := []struct {
		score float64
		want  domain.QualityRating
	}{
		{100, domain.RatingExcellent},
		{90, domain.RatingExcellent},
		{89.9, domain.RatingGood},
		{70, domain.RatingGood},
		{69, domain.RatingFair},
		{50, domain.RatingFair},
		{49, domain.RatingPoor},
		{0, domain.RatingPoor},
	}
	for _, tt := range tests {
		if got := ratingOf(tt.score); got != tt.want {
			t.Errorf("ratingOf(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestFailuresPullScoreDown(t *testing.T) {
	tr := NewTracker()
	tr.RecordSuccess("flaky", 20)
	tr.RecordFailure("flaky")

	q, _ := tr.GetQuality("flaky")
	if q.QualityScore != 50 {
		t.Errorf("QualityScore = %v, want 50 (100 latency score × 0.5 success rate)", q.QualityScore)
	}
	if q.QualityRating != domain.RatingFair {
		t.Errorf("QualityRating = %q, want %q", q.QualityRating, domain.RatingFair)
	}
}

// ─── Selection Tests ────────────────────────────────────────────────────────

func TestGetBestPeers_Ordering(t *testing.T) {
	tr := NewTracker()
	tr.RecordSuccess("fast", 10)
	tr.RecordSuccess("slow", 300)
	tr.RecordSuccess("flaky", 10)
	tr.RecordFailure("flaky")

	best := tr.GetBestPeers(3)
	want := []string{"fast", "slow", "flaky"} // 100, 50, 50 — tie broken by latency
	if len(best) != 3 {
		t.Fatalf("got %d peers, want 3", len(best))
	}
	for i := range want {
		if best[i] != want[i] {
			t.Errorf("best[%d] = %q, want %q", i, best[i], want[i])
		}
	}
}

func TestGetBestPeers_TieBreakByLatency(t *testing.T) {
	tr := NewTracker()
	tr.RecordSuccess("a", 40) // score 100
	tr.RecordSuccess("b", 20) // score 100, lower latency

	best := tr.GetBestPeers(2)
	if best[0] != "b" || best[1] != "a" {
		t.Errorf("best = %v, want [b a]", best)
	}
}

func TestGetBestPeers_Bounds(t *testing.T) {
	tr := NewTracker()
	tr.RecordSuccess("only", 10)

	if got := tr.GetBestPeers(5); len(got) != 1 {
		t.Errorf("got %d peers, want 1", len(got))
	}
	if got := tr.GetBestPeers(0); got != nil {
		t.Errorf("GetBestPeers(0) = %v, want nil", got)
	}
}

// ─── Teardown Tests ─────────────────────────────────────────────────────────

func TestRemovePeerAndClear(t *testing.T) {
	tr := NewTracker()
	tr.RecordSuccess("p1", 10)
	tr.RecordSuccess("p2", 10)

	tr.RemovePeer("p1")
	if _, ok := tr.GetQuality("p1"); ok {
		t.Error("p1 should be gone after RemovePeer")
	}
	if _, ok := tr.GetQuality("p2"); !ok {
		t.Error("p2 should survive RemovePeer(p1)")
	}

	tr.Clear()
	if tr.TrackedCount() != 0 {
		t.Errorf("TrackedCount = %d after Clear, want 0", tr.TrackedCount())
	}
}

// ─── Concurrency Tests ──────────────────────────────────────────────────────

func TestConcurrentRecording(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("peer-%d", n%4)
			for j := 0; j < 500; j++ {
				if j%3 == 0 {
					tr.RecordFailure(id)
				} else {
					tr.RecordSuccess(id, float64(10+j%100))
				}
			}
		}(i)
	}
	wg.Wait()

	for id, q := range tr.GetAllQualities() {
		if q.SuccessfulRequests+q.FailedRequests != q.TotalRequests {
			t.Errorf("%s: successful+failed != total after concurrent writes", id)
		}
		if q.TotalRequests != 1000 {
			t.Errorf("%s: TotalRequests = %d, want 1000", id, q.TotalRequests)
		}
	}
}
