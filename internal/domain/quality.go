// Package domain — connection quality types.
package domain

// QualityRating buckets a quality score into coarse bands for operators.
type QualityRating string

const (
	RatingExcellent QualityRating = "Excellent"
	RatingGood      QualityRating = "Good"
	RatingFair      QualityRating = "Fair"
	RatingPoor      QualityRating = "Poor"
)

// ConnectionQuality is a point-in-time snapshot of one peer's reputation
// signal. Invariant: SuccessfulRequests + FailedRequests == TotalRequests.
type ConnectionQuality struct {
	PeerID             string        `json:"peer_id"`
	TotalRequests      int64         `json:"total_requests"`
	SuccessfulRequests int64         `json:"successful_requests"`
	FailedRequests     int64         `json:"failed_requests"`
	SuccessRate        float64       `json:"success_rate"`
	AverageLatencyMs   float64       `json:"average_latency_ms"`
	MinLatencyMs       float64       `json:"min_latency_ms"`
	MaxLatencyMs       float64       `json:"max_latency_ms"`
	QualityScore       float64       `json:"quality_score"`
	QualityRating      QualityRating `json:"quality_rating"`
}

// ServiceStatus is the single health signal surfaced upward.
type ServiceStatus string

const (
	StatusOnline   ServiceStatus = "Online"
	StatusDegraded ServiceStatus = "Degraded"
	StatusOffline  ServiceStatus = "Offline"
)

// NetworkStatistics summarizes the peer list for dashboards.
type NetworkStatistics struct {
	TotalPeers       int     `json:"total_peers"`
	HealthyPeers     int     `json:"healthy_peers"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}
