package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sorcha-network/sorcha/internal/domain"
)

// announceRequest is a peer's self-report, used by both the one-way
// announce endpoint and the exchange endpoint discovery cycles call.
type announceRequest struct {
	PeerID              string                    `json:"peer_id"`
	Address             string                    `json:"address"`
	Port                int                       `json:"port"`
	AdvertisedRegisters []domain.PeerRegisterInfo `json:"advertised_registers,omitempty"`
}

type banRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleListPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"peers": s.peers.GetAllPeers(),
	})
}

func (s *Server) handleListHealthyPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"peers": s.peers.GetHealthyPeers(),
	})
}

func (s *Server) handleGetPeer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	peer, ok := s.peers.GetPeer(id)
	if !ok {
		writeError(w, http.StatusNotFound, "peer not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, peer)
}

func (s *Server) handleRemovePeer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.peers.RemovePeer(id) {
		writeError(w, http.StatusNotFound, "peer not found: "+id)
		return
	}
	s.quality.RemovePeer(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "peer_id": id})
}

// handleAnnounce absorbs a one-way heartbeat: the caller self-reports and
// gets no peer list back.
func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	peer, ok := s.decodeAnnounce(w, r)
	if !ok {
		return
	}
	s.peers.AddOrUpdatePeer(peer)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleExchange is the receiving half of a discovery contact: merge the
// caller into the registry and answer with the healthy peer list. Banned
// callers are refused and not merged.
func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	peer, ok := s.decodeAnnounce(w, r)
	if !ok {
		return
	}
	if known, exists := s.peers.GetPeer(peer.PeerID); exists && known.IsBanned {
		writeError(w, http.StatusForbidden, "peer is banned: "+peer.PeerID)
		return
	}
	s.peers.AddOrUpdatePeer(peer)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"peers": s.peers.GetHealthyPeers(),
	})
}

func (s *Server) decodeAnnounce(w http.ResponseWriter, r *http.Request) (domain.PeerNode, bool) {
	var req announceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return domain.PeerNode{}, false
	}
	if req.PeerID == "" {
		writeError(w, http.StatusBadRequest, "peer_id is required")
		return domain.PeerNode{}, false
	}
	if req.Port <= 0 || req.Port > 65535 {
		writeError(w, http.StatusBadRequest, "port out of range")
		return domain.PeerNode{}, false
	}
	return domain.PeerNode{
		PeerID:              req.PeerID,
		Address:             req.Address,
		Port:                req.Port,
		LastSeen:            time.Now(),
		AdvertisedRegisters: req.AdvertisedRegisters,
	}, true
}

func (s *Server) handleBanPeer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req banRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // reason is optional
	}

	peer, ok := s.peers.GetPeer(id)
	if !ok {
		writeError(w, http.StatusNotFound, "peer not found: "+id)
		return
	}
	if peer.IsBanned {
		writeError(w, http.StatusConflict, "peer already banned: "+id)
		return
	}

	s.peers.BanPeer(id, req.Reason)
	s.quality.RemovePeer(id)

	peer, _ = s.peers.GetPeer(id)
	writeJSON(w, http.StatusOK, peer)
}

func (s *Server) handleUnbanPeer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	peer, ok := s.peers.GetPeer(id)
	if !ok {
		writeError(w, http.StatusNotFound, "peer not found: "+id)
		return
	}
	if !peer.IsBanned {
		writeError(w, http.StatusConflict, "peer is not banned: "+id)
		return
	}

	s.peers.UnbanPeer(id)

	peer, _ = s.peers.GetPeer(id)
	writeJSON(w, http.StatusOK, peer)
}

func (s *Server) handleResetFailures(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	prev, ok := s.peers.ResetFailureCount(id)
	if !ok {
		writeError(w, http.StatusNotFound, "peer not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"peer_id":                id,
		"previous_failure_count": prev,
	})
}

// ─── Connection quality ───────────────────────────────────────────────────────

func (s *Server) handleListQualities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"qualities": s.quality.GetAllQualities(),
	})
}

func (s *Server) handleGetQuality(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q, ok := s.quality.GetQuality(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no quality data for peer: "+id)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleBestPeers(w http.ResponseWriter, r *http.Request) {
	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"peers": s.quality.GetBestPeers(n),
	})
}
