package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sorcha-network/sorcha/internal/domain"
	"github.com/sorcha-network/sorcha/internal/infra/metrics"
)

type advertiseRequest struct {
	RegisterID    string `json:"register_id"`
	SyncState     string `json:"sync_state"`
	LatestVersion uint64 `json:"latest_version"`
	IsPublic      bool   `json:"is_public"`
}

type subscribeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleNetworkRegisters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"registers": s.registers.GetNetworkAdvertisedRegisters(),
	})
}

func (s *Server) handleLocalRegisters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"registers": s.registers.LocalAdvertisements(),
	})
}

func (s *Server) handleAdvertise(w http.ResponseWriter, r *http.Request) {
	var req advertiseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.RegisterID == "" {
		writeError(w, http.StatusBadRequest, "register_id is required")
		return
	}
	state, err := domain.ParseSyncState(req.SyncState)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reg := domain.PeerRegisterInfo{
		RegisterID:    req.RegisterID,
		SyncState:     state,
		LatestVersion: req.LatestVersion,
		IsPublic:      req.IsPublic,
	}
	s.registers.Advertise(reg)
	metrics.RegistersAdvertised.Set(float64(len(s.registers.LocalAdvertisements())))
	writeJSON(w, http.StatusOK, reg)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.registers.Withdraw(id) {
		writeError(w, http.StatusNotFound, "register not advertised locally: "+id)
		return
	}
	metrics.RegistersAdvertised.Set(float64(len(s.registers.LocalAdvertisements())))
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn", "register_id": id})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	mode, err := domain.ParseSubscriptionMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := s.registers.Subscribe(id, mode)
	switch {
	case errors.Is(err, domain.ErrRegisterNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, domain.ErrAlreadySubscribed):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	metrics.SubscriptionsActive.Set(float64(len(s.registers.Subscriptions())))
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"subscriptions": s.registers.Subscriptions(),
	})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.registers.Unsubscribe(id) {
		writeError(w, http.StatusNotFound, "subscription not found: "+id)
		return
	}
	metrics.SubscriptionsActive.Set(float64(len(s.registers.Subscriptions())))
	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed", "id": id})
}
