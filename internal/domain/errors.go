package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency. "Not found" on
// lookup paths is signaled with (value, bool) returns instead; these cover
// the cases administrative callers need to branch on.

var (
	// Peer errors
	ErrPeerNotFound  = errors.New("peer not found")
	ErrPeerBanned    = errors.New("peer is already banned")
	ErrPeerNotBanned = errors.New("peer is not banned")
	ErrEmptyPeerID   = errors.New("peer id must not be empty")

	// Register errors
	ErrRegisterNotFound     = errors.New("register not advertised by any trusted peer")
	ErrRegisterNotLocal     = errors.New("register not advertised by this node")
	ErrAlreadySubscribed    = errors.New("already subscribed to this register")
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// Configuration errors — fail fast at the point of use
	ErrInvalidSubscriptionMode = errors.New("invalid subscription mode")
	ErrInvalidSyncState        = errors.New("invalid sync state")
	ErrInvalidSeedNode         = errors.New("invalid seed node")

	// Resolver errors
	ErrNoExternalAddress = errors.New("external address could not be determined")
)
