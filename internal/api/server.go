// Package api provides the HTTP admin surface for a Sorcha node: peer
// list administration, connection-quality inspection, register
// advertisement, and the peer-exchange endpoint other nodes call during
// discovery.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sorcha-network/sorcha/internal/health"
	"github.com/sorcha-network/sorcha/internal/infra/peerlist"
	"github.com/sorcha-network/sorcha/internal/infra/quality"
	"github.com/sorcha-network/sorcha/internal/infra/registers"
)

// Version is reported by /api/version.
const Version = "0.1.0"

// DiscoveryTrigger requests an out-of-band discovery cycle.
type DiscoveryTrigger interface {
	Poke()
}

// Server is the Sorcha HTTP API server.
type Server struct {
	peers          *peerlist.Manager
	quality        *quality.Tracker
	registers      *registers.Service
	monitor        *health.Monitor
	discovery      DiscoveryTrigger
	metricsEnabled bool
}

// NewServer creates a new API server over the node's core services.
func NewServer(peers *peerlist.Manager, q *quality.Tracker, regs *registers.Service, monitor *health.Monitor) *Server {
	return &Server{peers: peers, quality: q, registers: regs, monitor: monitor}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetDiscoveryTrigger wires the POST /api/discovery/run endpoint.
func (s *Server) SetDiscoveryTrigger(d DiscoveryTrigger) { s.discovery = d }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealthz)

	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "Sorcha is running",
		})
	})

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": Version,
		})
	})

	r.Route("/api/peers", func(r chi.Router) {
		r.Get("/", s.handleListPeers)
		r.Get("/healthy", s.handleListHealthyPeers)
		r.Post("/announce", s.handleAnnounce)
		r.Post("/exchange", s.handleExchange)
		r.Get("/{id}", s.handleGetPeer)
		r.Delete("/{id}", s.handleRemovePeer)
		r.Post("/{id}/ban", s.handleBanPeer)
		r.Post("/{id}/unban", s.handleUnbanPeer)
		r.Post("/{id}/reset-failures", s.handleResetFailures)
	})

	r.Route("/api/quality", func(r chi.Router) {
		r.Get("/", s.handleListQualities)
		r.Get("/best", s.handleBestPeers)
		r.Get("/{id}", s.handleGetQuality)
	})

	r.Route("/api/registers", func(r chi.Router) {
		r.Get("/", s.handleNetworkRegisters)
		r.Get("/local", s.handleLocalRegisters)
		r.Post("/", s.handleAdvertise)
		r.Delete("/{id}", s.handleWithdraw)
		r.Post("/{id}/subscribe", s.handleSubscribe)
	})

	r.Route("/api/subscriptions", func(r chi.Router) {
		r.Get("/", s.handleListSubscriptions)
		r.Delete("/{id}", s.handleUnsubscribe)
	})

	if s.discovery != nil {
		r.Post("/api/discovery/run", s.handleRunDiscovery)
	}

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	stats := s.monitor.GetNetworkStatistics()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             s.monitor.DetermineServiceStatus(),
		"total_peers":        stats.TotalPeers,
		"healthy_peers":      stats.HealthyPeers,
		"average_latency_ms": stats.AverageLatencyMs,
	})
}

func (s *Server) handleRunDiscovery(w http.ResponseWriter, r *http.Request) {
	s.discovery.Poke()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "discovery scheduled"})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
