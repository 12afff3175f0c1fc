// Package registers aggregates register availability across the peer
// network and manages this node's own advertisements and subscriptions.
//
// The network view is recomputed fresh on every call — never cached — so
// a ban takes effect immediately: registers advertised only by banned
// peers vanish from the aggregate, including their version numbers.
package registers

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sorcha-network/sorcha/internal/domain"
)

// PeerLister is the read-only slice of the peer registry this service needs.
type PeerLister interface {
	GetHealthyPeers() []domain.PeerNode
}

// Store persists local advertisements and subscriptions across restarts.
// Implemented by infra/sqlite.DB.
type Store interface {
	UpsertLocalRegister(reg domain.PeerRegisterInfo) error
	ListLocalRegisters() ([]domain.PeerRegisterInfo, error)
	DeleteLocalRegister(registerID string) error

	UpsertSubscription(sub domain.RegisterSubscription) error
	ListSubscriptions() ([]domain.RegisterSubscription, error)
	DeleteSubscription(id string) error
}

// Service is the register advertisement and subscription manager.
type Service struct {
	peers PeerLister
	store Store // nil disables persistence

	mu            sync.RWMutex
	local         []domain.PeerRegisterInfo                // this node's advertised list, ordered
	subscriptions map[string]domain.RegisterSubscription   // id → subscription
	byRegister    map[string]string                        // registerID → subscription id
}

// NewService creates the service over a peer registry.
func NewService(peers PeerLister, store Store) *Service {
	return &Service{
		peers:         peers,
		store:         store,
		subscriptions: make(map[string]domain.RegisterSubscription),
		byRegister:    make(map[string]string),
	}
}

// LoadFromStore seeds local advertisements and subscriptions at startup.
func (s *Service) LoadFromStore() error {
	if s.store == nil {
		return nil
	}
	local, err := s.store.ListLocalRegisters()
	if err != nil {
		return err
	}
	subs, err := s.store.ListSubscriptions()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.local = local
	for _, sub := range subs {
		s.subscriptions[sub.ID] = sub
		s.byRegister[sub.RegisterID] = sub.ID
	}
	return nil
}

// ─── Network Aggregation ────────────────────────────────────────────────────

// GetNetworkAdvertisedRegisters aggregates, across all non-banned peers,
// the registers advertised as publicly available. Each row carries the
// number of distinct advertising peers and the maximum version seen.
// Private registers and registers held only by banned peers are excluded.
func (s *Service) GetNetworkAdvertisedRegisters() []domain.AdvertisedRegister {
	rows := make(map[string]*domain.AdvertisedRegister)

	for _, peer := range s.peers.GetHealthyPeers() {
		seen := make(map[string]bool, len(peer.AdvertisedRegisters))
		for _, reg := range peer.AdvertisedRegisters {
			if !reg.IsPublic {
				continue
			}
			row := rows[reg.RegisterID]
			if row == nil {
				row = &domain.AdvertisedRegister{RegisterID: reg.RegisterID}
				rows[reg.RegisterID] = row
			}
			if !seen[reg.RegisterID] {
				row.PeerCount++ // distinct peers, not advertisements
				seen[reg.RegisterID] = true
			}
			if reg.LatestVersion > row.LatestVersion {
				row.LatestVersion = reg.LatestVersion
			}
		}
	}

	out := make([]domain.AdvertisedRegister, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisterID < out[j].RegisterID })
	return out
}

// NetworkHasRegister reports whether any trusted peer publicly advertises
// the register right now.
func (s *Service) NetworkHasRegister(registerID string) bool {
	for _, peer := range s.peers.GetHealthyPeers() {
		for _, reg := range peer.AdvertisedRegisters {
			if reg.IsPublic && reg.RegisterID == registerID {
				return true
			}
		}
	}
	return false
}

// ─── Local Advertisements ───────────────────────────────────────────────────

// Advertise adds or replaces one register in this node's advertised list.
// A register already advertised is replaced wholesale, same as inbound
// peer advertisements.
func (s *Service) Advertise(reg domain.PeerRegisterInfo) {
	s.mu.Lock()
	replaced := false
	for i := range s.local {
		if s.local[i].RegisterID == reg.RegisterID {
			s.local[i] = reg
			replaced = true
			break
		}
	}
	if !replaced {
		s.local = append(s.local, reg)
	}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.UpsertLocalRegister(reg); err != nil {
			log.Printf("[registers] persist advertisement %s: %v", reg.RegisterID, err)
		}
	}
}

// Withdraw removes a register from this node's advertised list.
// Returns false when the register was not advertised.
func (s *Service) Withdraw(registerID string) bool {
	s.mu.Lock()
	found := false
	for i := range s.local {
		if s.local[i].RegisterID == registerID {
			s.local = append(s.local[:i], s.local[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if found && s.store != nil {
		if err := s.store.DeleteLocalRegister(registerID); err != nil {
			log.Printf("[registers] delete advertisement %s: %v", registerID, err)
		}
	}
	return found
}

// LocalAdvertisements returns this node's advertised-register list in
// announcement order.
func (s *Service) LocalAdvertisements() []domain.PeerRegisterInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PeerRegisterInfo, len(s.local))
	copy(out, s.local)
	return out
}

// ─── Subscriptions ──────────────────────────────────────────────────────────

// Subscribe commits this node to replicate a register in the given mode.
// The register must be visible on the network (advertised publicly by a
// trusted peer) or advertised locally; double subscriptions conflict.
func (s *Service) Subscribe(registerID string, mode domain.SubscriptionMode) (domain.RegisterSubscription, error) {
	if !s.NetworkHasRegister(registerID) && !s.advertisesLocally(registerID) {
		return domain.RegisterSubscription{}, domain.ErrRegisterNotFound
	}

	s.mu.Lock()
	if _, dup := s.byRegister[registerID]; dup {
		s.mu.Unlock()
		return domain.RegisterSubscription{}, domain.ErrAlreadySubscribed
	}
	sub := domain.RegisterSubscription{
		ID:         uuid.NewString(),
		RegisterID: registerID,
		Mode:       mode,
		CreatedAt:  time.Now(),
	}
	s.subscriptions[sub.ID] = sub
	s.byRegister[registerID] = sub.ID
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.UpsertSubscription(sub); err != nil {
			log.Printf("[registers] persist subscription %s: %v", sub.ID, err)
		}
	}
	return sub, nil
}

// Unsubscribe removes a subscription by id.
func (s *Service) Unsubscribe(id string) bool {
	s.mu.Lock()
	sub, ok := s.subscriptions[id]
	if ok {
		delete(s.subscriptions, id)
		delete(s.byRegister, sub.RegisterID)
	}
	s.mu.Unlock()

	if ok && s.store != nil {
		if err := s.store.DeleteSubscription(id); err != nil {
			log.Printf("[registers] delete subscription %s: %v", id, err)
		}
	}
	return ok
}

// Subscriptions returns a snapshot of active subscriptions.
func (s *Service) Subscriptions() []domain.RegisterSubscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RegisterSubscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Service) advertisesLocally(registerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, reg := range s.local {
		if reg.RegisterID == registerID {
			return true
		}
	}
	return false
}
