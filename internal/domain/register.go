// Package domain — register advertisement and subscription types.
package domain

import (
	"fmt"
	"time"
)

// SyncState describes how far a peer has replicated a register.
type SyncState string

const (
	SyncActive          SyncState = "ACTIVE"           // accepting new entries
	SyncPartial         SyncState = "SYNCING"          // replication in progress
	SyncFullyReplicated SyncState = "FULLY_REPLICATED" // complete local copy
)

// ParseSyncState parses a wire-format sync state string.
func ParseSyncState(s string) (SyncState, error) {
	switch SyncState(s) {
	case SyncActive, SyncPartial, SyncFullyReplicated:
		return SyncState(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSyncState, s)
	}
}

// PeerRegisterInfo is one register a peer claims to hold.
type PeerRegisterInfo struct {
	RegisterID    string    `json:"register_id"`
	SyncState     SyncState `json:"sync_state"`
	LatestVersion uint64    `json:"latest_version"`
	IsPublic      bool      `json:"is_public"`
}

// AdvertisedRegister is one row of the network-wide aggregation: a register
// announced publicly by at least one non-banned peer.
type AdvertisedRegister struct {
	RegisterID    string `json:"register_id"`
	PeerCount     int    `json:"peer_count"`
	LatestVersion uint64 `json:"latest_version"`
}

// SubscriptionMode names how this node commits to replicate a register.
type SubscriptionMode string

const (
	ModeForwardOnly SubscriptionMode = "ForwardOnly"
	ModeFullReplica SubscriptionMode = "FullReplica"
)

// ParseSubscriptionMode parses a mode string. Unknown strings fail —
// never silently defaulted.
func ParseSubscriptionMode(s string) (SubscriptionMode, error) {
	switch SubscriptionMode(s) {
	case ModeForwardOnly, ModeFullReplica:
		return SubscriptionMode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSubscriptionMode, s)
	}
}

// RegisterSubscription records this node's commitment to replicate a register.
type RegisterSubscription struct {
	ID         string           `json:"id"`
	RegisterID string           `json:"register_id"`
	Mode       SubscriptionMode `json:"mode"`
	CreatedAt  time.Time        `json:"created_at"`
}
