package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sorcha-network/sorcha/internal/domain"
	"github.com/sorcha-network/sorcha/internal/health"
	"github.com/sorcha-network/sorcha/internal/infra/peerlist"
	"github.com/sorcha-network/sorcha/internal/infra/quality"
	"github.com/sorcha-network/sorcha/internal/infra/registers"
)

type testNode struct {
	peers     *peerlist.Manager
	quality   *quality.Tracker
	registers *registers.Service
	server    *httptest.Server
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()
	peers := peerlist.NewManager(peerlist.Options{MaxPeers: 100})
	t.Cleanup(peers.Close)

	q := quality.NewTracker()
	regs := registers.NewService(peers, nil)
	monitor := health.NewMonitor(peers, q, 5, time.Minute)

	srv := NewServer(peers, q, regs, monitor)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testNode{peers: peers, quality: q, registers: regs, server: ts}
}

func (n *testNode) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, n.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func seedPeer(n *testNode, id string) {
	n.peers.AddOrUpdatePeer(domain.PeerNode{
		PeerID:   id,
		Address:  "10.0.0.1",
		Port:     5110,
		LastSeen: time.Now(),
	})
}

func TestHealthz(t *testing.T) {
	n := newTestNode(t)
	seedPeer(n, "p1")

	resp := n.do(t, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Status       string `json:"status"`
		TotalPeers   int    `json:"total_peers"`
		HealthyPeers int    `json:"healthy_peers"`
	}
	decodeInto(t, resp, &body)
	if body.TotalPeers != 1 || body.HealthyPeers != 1 {
		t.Errorf("body = %+v", body)
	}
	// One healthy peer against a floor of five is degraded, not offline.
	if body.Status != string(domain.StatusDegraded) {
		t.Errorf("status = %q, want %q", body.Status, domain.StatusDegraded)
	}
}

func TestAnnounce(t *testing.T) {
	n := newTestNode(t)

	resp := n.do(t, http.MethodPost, "/api/peers/announce", announceRequest{
		PeerID:  "p1",
		Address: "192.0.2.10",
		Port:    5110,
		AdvertisedRegisters: []domain.PeerRegisterInfo{
			{RegisterID: "reg-1", SyncState: domain.SyncActive, LatestVersion: 4, IsPublic: true},
		},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	peer, ok := n.peers.GetPeer("p1")
	if !ok {
		t.Fatal("announced peer not in registry")
	}
	if peer.Address != "192.0.2.10" || len(peer.AdvertisedRegisters) != 1 {
		t.Errorf("peer = %+v", peer)
	}
}

func TestAnnounce_Invalid(t *testing.T) {
	n := newTestNode(t)

	for name, req := range map[string]announceRequest{
		"missing peer_id": {Address: "192.0.2.10", Port: 5110},
		"bad port":        {PeerID: "p1", Address: "192.0.2.10", Port: 70000},
	} {
		resp := n.do(t, http.MethodPost, "/api/peers/announce", req)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, resp.StatusCode)
		}
	}
}

func TestExchange(t *testing.T) {
	n := newTestNode(t)
	seedPeer(n, "existing")

	resp := n.do(t, http.MethodPost, "/api/peers/exchange", announceRequest{
		PeerID: "caller", Address: "192.0.2.20", Port: 5110,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Peers []domain.PeerNode `json:"peers"`
	}
	decodeInto(t, resp, &body)

	// The caller was merged before the snapshot, so both show up.
	if len(body.Peers) != 2 {
		t.Fatalf("got %d peers, want 2", len(body.Peers))
	}
	if _, ok := n.peers.GetPeer("caller"); !ok {
		t.Error("caller not merged into registry")
	}
}

func TestExchange_BannedCallerRefused(t *testing.T) {
	n := newTestNode(t)
	seedPeer(n, "rogue")
	n.peers.BanPeer("rogue", "forged advertisement")

	resp := n.do(t, http.MethodPost, "/api/peers/exchange", announceRequest{
		PeerID: "rogue", Address: "192.0.2.30", Port: 5110,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	// Refused announcements must not refresh the banned record.
	peer, _ := n.peers.GetPeer("rogue")
	if peer.Address == "192.0.2.30" {
		t.Error("banned peer record was updated by refused exchange")
	}
}

func TestBanUnbanLifecycle(t *testing.T) {
	n := newTestNode(t)
	seedPeer(n, "p1")
	n.quality.RecordSuccess("p1", 40)

	// Ban unknown peer → 404.
	resp := n.do(t, http.MethodPost, "/api/peers/ghost/ban", banRequest{Reason: "x"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("ban unknown: status = %d, want 404", resp.StatusCode)
	}

	// First ban succeeds and returns the banned record.
	resp = n.do(t, http.MethodPost, "/api/peers/p1/ban", banRequest{Reason: "served forged head"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ban: status = %d, want 200", resp.StatusCode)
	}
	var banned domain.PeerNode
	decodeInto(t, resp, &banned)
	if !banned.IsBanned || banned.BanReason != "served forged head" || banned.BannedAt == nil {
		t.Errorf("banned peer = %+v", banned)
	}

	// Quality history is discarded on ban.
	if _, ok := n.quality.GetQuality("p1"); ok {
		t.Error("quality history survived ban")
	}

	// Repeat ban → conflict.
	resp = n.do(t, http.MethodPost, "/api/peers/p1/ban", banRequest{Reason: "again"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("repeat ban: status = %d, want 409", resp.StatusCode)
	}

	// Unban clears the record.
	resp = n.do(t, http.MethodPost, "/api/peers/p1/unban", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unban: status = %d, want 200", resp.StatusCode)
	}
	var cleared domain.PeerNode
	decodeInto(t, resp, &cleared)
	if cleared.IsBanned || cleared.BanReason != "" || cleared.BannedAt != nil {
		t.Errorf("unbanned peer = %+v", cleared)
	}

	// Unban a peer that is not banned → conflict.
	resp = n.do(t, http.MethodPost, "/api/peers/p1/unban", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("repeat unban: status = %d, want 409", resp.StatusCode)
	}
}

func TestResetFailures(t *testing.T) {
	n := newTestNode(t)
	seedPeer(n, "p1")
	n.peers.MarkPeerFailure("p1")
	n.peers.MarkPeerFailure("p1")

	// Unknown peer is a 404, not a silent zero.
	resp := n.do(t, http.MethodPost, "/api/peers/ghost/reset-failures", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown: status = %d, want 404", resp.StatusCode)
	}

	resp = n.do(t, http.MethodPost, "/api/peers/p1/reset-failures", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		PeerID   string `json:"peer_id"`
		Previous int    `json:"previous_failure_count"`
	}
	decodeInto(t, resp, &body)
	if body.Previous != 2 {
		t.Errorf("previous = %d, want 2", body.Previous)
	}

	peer, _ := n.peers.GetPeer("p1")
	if peer.FailureCount != 0 {
		t.Errorf("FailureCount = %d after reset", peer.FailureCount)
	}
}

func TestGetPeer_NotFound(t *testing.T) {
	n := newTestNode(t)
	resp := n.do(t, http.MethodGet, "/api/peers/ghost", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestQualityEndpoints(t *testing.T) {
	n := newTestNode(t)
	n.quality.RecordSuccess("p1", 30)
	n.quality.RecordSuccess("p2", 300)

	resp := n.do(t, http.MethodGet, "/api/quality/p1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var q domain.ConnectionQuality
	decodeInto(t, resp, &q)
	if q.QualityRating != domain.RatingExcellent {
		t.Errorf("rating = %q, want %q", q.QualityRating, domain.RatingExcellent)
	}

	resp = n.do(t, http.MethodGet, "/api/quality/ghost", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown quality: status = %d, want 404", resp.StatusCode)
	}

	resp = n.do(t, http.MethodGet, "/api/quality/best?n=1", nil)
	var best struct {
		Peers []string `json:"peers"`
	}
	decodeInto(t, resp, &best)
	if len(best.Peers) != 1 || best.Peers[0] != "p1" {
		t.Errorf("best = %v, want [p1]", best.Peers)
	}

	resp = n.do(t, http.MethodGet, "/api/quality/best?n=zero", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad n: status = %d, want 400", resp.StatusCode)
	}
}

func TestAdvertiseAndWithdraw(t *testing.T) {
	n := newTestNode(t)

	resp := n.do(t, http.MethodPost, "/api/registers", advertiseRequest{
		RegisterID: "reg-1", SyncState: "ACTIVE", LatestVersion: 9, IsPublic: true,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("advertise: status = %d, want 200", resp.StatusCode)
	}
	if len(n.registers.LocalAdvertisements()) != 1 {
		t.Error("advertisement not recorded")
	}

	// Unknown sync states are rejected, never defaulted.
	resp = n.do(t, http.MethodPost, "/api/registers", advertiseRequest{
		RegisterID: "reg-2", SyncState: "REPLICATING",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad sync state: status = %d, want 400", resp.StatusCode)
	}

	resp = n.do(t, http.MethodDelete, "/api/registers/reg-1", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("withdraw: status = %d, want 200", resp.StatusCode)
	}

	resp = n.do(t, http.MethodDelete, "/api/registers/reg-1", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("repeat withdraw: status = %d, want 404", resp.StatusCode)
	}
}

func TestSubscribeLifecycle(t *testing.T) {
	n := newTestNode(t)
	n.peers.AddOrUpdatePeer(domain.PeerNode{
		PeerID: "p1", Address: "10.0.0.1", Port: 5110, LastSeen: time.Now(),
		AdvertisedRegisters: []domain.PeerRegisterInfo{
			{RegisterID: "reg-1", SyncState: domain.SyncActive, LatestVersion: 3, IsPublic: true},
		},
	})

	// Unknown register → 404.
	resp := n.do(t, http.MethodPost, "/api/registers/ghost/subscribe", subscribeRequest{Mode: "FullReplica"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown register: status = %d, want 404", resp.StatusCode)
	}

	// Unknown mode → 400.
	resp = n.do(t, http.MethodPost, "/api/registers/reg-1/subscribe", subscribeRequest{Mode: "Partial"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad mode: status = %d, want 400", resp.StatusCode)
	}

	resp = n.do(t, http.MethodPost, "/api/registers/reg-1/subscribe", subscribeRequest{Mode: "FullReplica"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("subscribe: status = %d, want 201", resp.StatusCode)
	}
	var sub domain.RegisterSubscription
	decodeInto(t, resp, &sub)
	if sub.RegisterID != "reg-1" || sub.Mode != domain.ModeFullReplica || sub.ID == "" {
		t.Errorf("subscription = %+v", sub)
	}

	// Duplicate subscription → 409.
	resp = n.do(t, http.MethodPost, "/api/registers/reg-1/subscribe", subscribeRequest{Mode: "ForwardOnly"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate: status = %d, want 409", resp.StatusCode)
	}

	resp = n.do(t, http.MethodDelete, "/api/subscriptions/"+sub.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("unsubscribe: status = %d, want 200", resp.StatusCode)
	}

	resp = n.do(t, http.MethodDelete, "/api/subscriptions/"+sub.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("repeat unsubscribe: status = %d, want 404", resp.StatusCode)
	}
}

type fakeTrigger struct{ poked chan struct{} }

func (f *fakeTrigger) Poke() {
	select {
	case f.poked <- struct{}{}:
	default:
	}
}

func TestRunDiscovery(t *testing.T) {
	peers := peerlist.NewManager(peerlist.Options{MaxPeers: 10})
	t.Cleanup(peers.Close)
	q := quality.NewTracker()
	regs := registers.NewService(peers, nil)
	monitor := health.NewMonitor(peers, q, 5, time.Minute)

	srv := NewServer(peers, q, regs, monitor)
	trigger := &fakeTrigger{poked: make(chan struct{}, 1)}
	srv.SetDiscoveryTrigger(trigger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/api/discovery/run", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	select {
	case <-trigger.poked:
	default:
		t.Error("discovery trigger was not poked")
	}
}
