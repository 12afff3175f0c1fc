package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the application layer depends on them.

// AddressResolver determines this node's externally reachable address.
type AddressResolver interface {
	// Resolve returns the external address, consulting lookup services
	// and falling back to a STUN probe. Results may be cached.
	Resolve(ctx context.Context) (string, error)
}

// PeerExchanger is the transport collaborator used during discovery.
// Implementations contact a remote peer, announce this node, and return
// the remote's own peer list.
type PeerExchanger interface {
	ExchangePeers(ctx context.Context, peer PeerNode, self PeerNode) ([]PeerNode, error)
}

// PeerStore abstracts persistent peer-state storage so the peer list
// survives restarts. Implemented by infra/sqlite.DB.
type PeerStore interface {
	UpsertPeer(peer PeerNode) error
	ListPeers() ([]PeerNode, error)
	DeletePeer(peerID string) error
}

// QualityRecorder receives outcome events from every outbound request.
type QualityRecorder interface {
	RecordSuccess(peerID string, latencyMs float64)
	RecordFailure(peerID string)
}
