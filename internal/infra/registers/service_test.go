package registers

import (
	"testing"

	"github.com/sorcha-network/sorcha/internal/domain"
	"github.com/sorcha-network/sorcha/internal/infra/peerlist"
)

func newPeers(t *testing.T) *peerlist.Manager {
	t.Helper()
	m := peerlist.NewManager(peerlist.Options{MaxPeers: 50})
	t.Cleanup(m.Close)
	return m
}

func advertise(m *peerlist.Manager, peerID string, regs ...domain.PeerRegisterInfo) {
	m.AddOrUpdatePeer(domain.PeerNode{
		PeerID:              peerID,
		Address:             "10.0.0.1",
		Port:                5110,
		AdvertisedRegisters: regs,
	})
}

func pub(id string, version uint64) domain.PeerRegisterInfo {
	return domain.PeerRegisterInfo{RegisterID: id, SyncState: domain.SyncActive, LatestVersion: version, IsPublic: true}
}

// ─── Aggregation Tests ──────────────────────────────────────────────────────

func TestAggregation_PeerCountAndMaxVersion(t *testing.T) {
	peers := newPeers(t)
	advertise(peers, "p1", pub("reg-1", 100))
	advertise(peers, "p2", pub("reg-1", 200))

	svc := NewService(peers, nil)
	rows := svc.GetNetworkAdvertisedRegisters()
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].PeerCount != 2 || rows[0].LatestVersion != 200 {
		t.Errorf("row = %+v, want peer count 2, latest version 200", rows[0])
	}
}

func TestAggregation_BanDropsHighestVersion(t *testing.T) {
	peers := newPeers(t)
	advertise(peers, "p1", pub("reg-1", 100))
	advertise(peers, "p2", pub("reg-1", 200))
	svc := NewService(peers, nil)

	peers.BanPeer("p2", "misbehavior")

	rows := svc.GetNetworkAdvertisedRegisters()
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	// Recomputed fresh: the banned peer's version 200 must not linger.
	if rows[0].PeerCount != 1 || rows[0].LatestVersion != 100 {
		t.Errorf("row after ban = %+v, want peer count 1, latest version 100", rows[0])
	}
}

func TestAggregation_ExcludesBannedOnlyAndPrivate(t *testing.T) {
	peers := newPeers(t)
	advertise(peers, "outlaw", pub("reg-banned-only", 7))
	peers.BanPeer("outlaw", "bad")

	private := domain.PeerRegisterInfo{RegisterID: "reg-private", LatestVersion: 3, IsPublic: false}
	advertise(peers, "p1", private, pub("reg-visible", 1))

	svc := NewService(peers, nil)
	rows := svc.GetNetworkAdvertisedRegisters()
	if len(rows) != 1 || rows[0].RegisterID != "reg-visible" {
		t.Errorf("rows = %+v, want only reg-visible", rows)
	}
}

func TestAggregation_DistinctPeerCount(t *testing.T) {
	peers := newPeers(t)
	// One peer advertising the same register twice counts once.
	advertise(peers, "p1", pub("reg-1", 5), pub("reg-1", 6))

	svc := NewService(peers, nil)
	rows := svc.GetNetworkAdvertisedRegisters()
	if rows[0].PeerCount != 1 {
		t.Errorf("PeerCount = %d, want 1 (distinct peers)", rows[0].PeerCount)
	}
	if rows[0].LatestVersion != 6 {
		t.Errorf("LatestVersion = %d, want 6", rows[0].LatestVersion)
	}
}

func TestAggregation_EmptyNetwork(t *testing.T) {
	svc := NewService(newPeers(t), nil)
	if rows := svc.GetNetworkAdvertisedRegisters(); len(rows) != 0 {
		t.Errorf("rows = %+v, want empty", rows)
	}
}

// ─── Local Advertisement Tests ──────────────────────────────────────────────

func TestLocalAdvertiseWithdraw(t *testing.T) {
	svc := NewService(newPeers(t), nil)

	svc.Advertise(pub("reg-local", 1))
	svc.Advertise(pub("reg-other", 1))
	svc.Advertise(pub("reg-local", 9)) // replace, keep order

	local := svc.LocalAdvertisements()
	if len(local) != 2 {
		t.Fatalf("got %d local registers, want 2", len(local))
	}
	if local[0].RegisterID != "reg-local" || local[0].LatestVersion != 9 {
		t.Errorf("local[0] = %+v, want reg-local replaced at version 9", local[0])
	}

	if !svc.Withdraw("reg-local") {
		t.Error("Withdraw should succeed for an advertised register")
	}
	if svc.Withdraw("reg-local") {
		t.Error("second Withdraw should report not advertised")
	}
	if len(svc.LocalAdvertisements()) != 1 {
		t.Error("withdrawn register still advertised")
	}
}

// ─── Subscription Tests ─────────────────────────────────────────────────────

func TestSubscribe_RequiresKnownRegister(t *testing.T) {
	svc := NewService(newPeers(t), nil)

	if _, err := svc.Subscribe("reg-ghost", domain.ModeForwardOnly); err != domain.ErrRegisterNotFound {
		t.Errorf("err = %v, want ErrRegisterNotFound", err)
	}
}

func TestSubscribe_Lifecycle(t *testing.T) {
	peers := newPeers(t)
	advertise(peers, "p1", pub("reg-1", 10))
	svc := NewService(peers, nil)

	sub, err := svc.Subscribe("reg-1", domain.ModeFullReplica)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if sub.ID == "" || sub.Mode != domain.ModeFullReplica {
		t.Errorf("sub = %+v, want uuid id and FullReplica mode", sub)
	}

	if _, err := svc.Subscribe("reg-1", domain.ModeForwardOnly); err != domain.ErrAlreadySubscribed {
		t.Errorf("duplicate subscribe err = %v, want ErrAlreadySubscribed", err)
	}

	if got := svc.Subscriptions(); len(got) != 1 || got[0].ID != sub.ID {
		t.Errorf("Subscriptions = %+v, want the one subscription", got)
	}

	if !svc.Unsubscribe(sub.ID) {
		t.Error("Unsubscribe should succeed")
	}
	if svc.Unsubscribe(sub.ID) {
		t.Error("second Unsubscribe should report not found")
	}

	// Register freed for re-subscription.
	if _, err := svc.Subscribe("reg-1", domain.ModeForwardOnly); err != nil {
		t.Errorf("re-subscribe after unsubscribe: %v", err)
	}
}

func TestSubscribe_LocalRegister(t *testing.T) {
	svc := NewService(newPeers(t), nil)
	svc.Advertise(pub("reg-local", 1))

	if _, err := svc.Subscribe("reg-local", domain.ModeForwardOnly); err != nil {
		t.Errorf("Subscribe to locally advertised register: %v", err)
	}
}

func TestParseSubscriptionMode(t *testing.T) {
	if _, err := domain.ParseSubscriptionMode("ForwardOnly"); err != nil {
		t.Errorf("ForwardOnly should parse: %v", err)
	}
	if _, err := domain.ParseSubscriptionMode("FullReplica"); err != nil {
		t.Errorf("FullReplica should parse: %v", err)
	}
	if _, err := domain.ParseSubscriptionMode("BestEffort"); err == nil {
		t.Error("unknown mode must fail parsing, not default")
	}
	if _, err := domain.ParseSubscriptionMode(""); err == nil {
		t.Error("empty mode must fail parsing")
	}
}
