// Package domain holds the pure types of the Sorcha peer network.
// A PeerNode is one remote node known to this process, together with the
// registers it has announced. No infrastructure dependencies live here.
package domain

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// PeerNode represents a known remote node.
type PeerNode struct {
	PeerID  string `json:"peer_id"`
	Address string `json:"address"`
	Port    int    `json:"port"`

	// Health bookkeeping. FailureCount counts consecutive failures since
	// the last successful contact.
	FailureCount int        `json:"failure_count"`
	IsBanned     bool       `json:"is_banned"`
	BanReason    string     `json:"ban_reason,omitempty"`
	BannedAt     *time.Time `json:"banned_at,omitempty"`

	// Latency snapshot from the last successful contact. The quality
	// tracker keeps the full statistics; this is the quick-summary copy.
	AverageLatencyMs float64   `json:"average_latency_ms"`
	LastSeen         time.Time `json:"last_seen"`

	// Registers this peer has announced, replaced wholesale on each
	// advertisement refresh.
	AdvertisedRegisters []PeerRegisterInfo `json:"advertised_registers,omitempty"`
}

// IsHealthy reports whether the peer participates in healthy-peer views.
func (p *PeerNode) IsHealthy() bool {
	return !p.IsBanned
}

// Endpoint returns the host:port dial string for this peer.
func (p *PeerNode) Endpoint() string {
	return net.JoinHostPort(p.Address, strconv.Itoa(p.Port))
}

// SeedNode is a bootstrap contact from configuration.
type SeedNode struct {
	PeerID  string `toml:"id" json:"peer_id"`
	Address string `toml:"host" json:"address"`
	Port    int    `toml:"port" json:"port"`
}

// Validate rejects malformed seed entries at config load time.
func (s SeedNode) Validate() error {
	if s.PeerID == "" {
		return fmt.Errorf("seed node %s: %w: missing id", s.Address, ErrInvalidSeedNode)
	}
	if s.Address == "" {
		return fmt.Errorf("seed node %s: %w: missing host", s.PeerID, ErrInvalidSeedNode)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("seed node %s: %w: port %d out of range", s.PeerID, ErrInvalidSeedNode, s.Port)
	}
	return nil
}

// Peer returns the PeerNode shell for a seed contact.
func (s SeedNode) Peer() PeerNode {
	return PeerNode{PeerID: s.PeerID, Address: s.Address, Port: s.Port}
}
