package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sorcha-network/sorcha/internal/domain"
)

// announceMessage is the peer/heartbeat wire shape: this node's
// self-report, answered with the remote's own peer list.
type announceMessage struct {
	PeerID              string                    `json:"peer_id"`
	Address             string                    `json:"address"`
	Port                int                       `json:"port"`
	AdvertisedRegisters []domain.PeerRegisterInfo `json:"advertised_registers,omitempty"`
}

type exchangeResponse struct {
	Peers []domain.PeerNode `json:"peers"`
}

// HTTPExchanger implements domain.PeerExchanger over the admin surface's
// exchange endpoint.
type HTTPExchanger struct {
	client *http.Client
}

// NewHTTPExchanger creates the default transport implementation.
func NewHTTPExchanger(client *http.Client) *HTTPExchanger {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPExchanger{client: client}
}

// ExchangePeers announces self to the peer and returns its peer list.
func (e *HTTPExchanger) ExchangePeers(ctx context.Context, peer, self domain.PeerNode) ([]domain.PeerNode, error) {
	msg := announceMessage{
		PeerID:              self.PeerID,
		Address:             self.Address,
		Port:                self.Port,
		AdvertisedRegisters: self.AdvertisedRegisters,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode announce: %w", err)
	}

	url := fmt.Sprintf("http://%s/api/peers/exchange", peer.Endpoint())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contact %s: %w", peer.PeerID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("contact %s: HTTP %d", peer.PeerID, resp.StatusCode)
	}

	var out exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode peer list from %s: %w", peer.PeerID, err)
	}
	return out.Peers, nil
}
