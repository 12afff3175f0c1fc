// Package netaddr determines this node's externally reachable address.
//
// Resolution is a 3-level fallback:
//  1. Configured HTTP lookup services (each returns the caller's IP as text)
//  2. STUN binding probe (RFC 5389 minimal, XOR-MAPPED-ADDRESS)
//  3. Local interface address (best effort, NAT-blind)
//
// The resolver is a leaf component — it never touches peer state.
package netaddr

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sorcha-network/sorcha/internal/domain"
)

// IPVersion selects the preferred IP protocol version.
type IPVersion string

const (
	IPv4 IPVersion = "ipv4"
	IPv6 IPVersion = "ipv6"
)

// Config configures address resolution.
type Config struct {
	// LookupServices are HTTP endpoints returning the caller's public IP
	// as a plain-text body. Tried in order.
	LookupServices []string

	// STUNServer is the host:port of the STUN fallback.
	STUNServer string

	// PreferredVersion filters lookup results; addresses of the other
	// family are rejected. Defaults to IPv4.
	PreferredVersion IPVersion

	// Timeout bounds each individual lookup or probe attempt.
	Timeout time.Duration

	// CacheTTL is how long a resolved address stays valid.
	CacheTTL time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		LookupServices: []string{
			"https://api.ipify.org",
			"https://ifconfig.me/ip",
		},
		STUNServer:       "stun.l.google.com:19302",
		PreferredVersion: IPv4,
		Timeout:          3 * time.Second,
		CacheTTL:         5 * time.Minute,
	}
}

// Resolver resolves and caches the node's external address.
type Resolver struct {
	cfg    Config
	client *http.Client

	mu         sync.Mutex
	cached     string
	resolvedAt time.Time
}

// NewResolver creates a Resolver from cfg, filling zero fields from defaults.
func NewResolver(cfg Config) *Resolver {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.PreferredVersion == "" {
		cfg.PreferredVersion = def.PreferredVersion
	}
	return &Resolver{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Resolve returns the externally reachable address, consulting the cache
// first. It never returns an authoritative error while any fallback level
// still produced an address.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.cached != "" && time.Since(r.resolvedAt) < r.cfg.CacheTTL {
		addr := r.cached
		r.mu.Unlock()
		return addr, nil
	}
	r.mu.Unlock()

	return r.ForceRefresh(ctx)
}

// ForceRefresh resolves ignoring the cache.
func (r *Resolver) ForceRefresh(ctx context.Context) (string, error) {
	// Level 1: HTTP lookup services.
	for _, svc := range r.cfg.LookupServices {
		addr, err := r.lookupHTTP(ctx, svc)
		if err != nil {
			log.Printf("[netaddr] lookup %s failed: %v", svc, err)
			continue
		}
		return r.remember(addr), nil
	}

	// Level 2: STUN binding probe.
	if r.cfg.STUNServer != "" {
		if addr, err := r.stunProbe(ctx); err == nil {
			return r.remember(addr), nil
		} else {
			log.Printf("[netaddr] STUN probe failed: %v", err)
		}
	}

	// Level 3: Local interface address — NAT-blind but better than nothing.
	if addr, err := localAddress(r.network()); err == nil {
		return r.remember(addr), nil
	}

	return "", domain.ErrNoExternalAddress
}

func (r *Resolver) remember(addr string) string {
	r.mu.Lock()
	r.cached = addr
	r.resolvedAt = time.Now()
	r.mu.Unlock()
	return addr
}

func (r *Resolver) network() string {
	if r.cfg.PreferredVersion == IPv6 {
		return "udp6"
	}
	return "udp4"
}

// lookupHTTP asks one lookup service for our public IP.
func (r *Resolver) lookupHTTP(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	ip := net.ParseIP(strings.TrimSpace(string(body)))
	if ip == nil {
		return "", fmt.Errorf("service %s returned non-IP body", url)
	}
	if !r.acceptable(ip) {
		return "", fmt.Errorf("service %s returned %s family mismatch", url, ip)
	}
	return ip.String(), nil
}

// acceptable checks the address against the preferred protocol version.
func (r *Resolver) acceptable(ip net.IP) bool {
	if r.cfg.PreferredVersion == IPv6 {
		return ip.To4() == nil
	}
	return ip.To4() != nil
}

// ─── STUN Probe ─────────────────────────────────────────────────────────────

const stunMagicCookie = 0x2112A442

// attribute types we parse from a binding response
const (
	attrMappedAddress    = 0x0001
	attrXorMappedAddress = 0x0020
)

// stunProbe sends a minimal RFC 5389 binding request and extracts the
// mapped address from the response.
func (r *Resolver) stunProbe(ctx context.Context) (string, error) {
	resolved, err := net.ResolveUDPAddr(r.network(), r.cfg.STUNServer)
	if err != nil {
		return "", fmt.Errorf("resolve STUN server: %w", err)
	}

	conn, err := net.ListenPacket(r.network(), ":0")
	if err != nil {
		return "", fmt.Errorf("bind UDP socket: %w", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(r.cfg.Timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("set deadline: %w", err)
	}

	// Binding request: type 0x0001, zero-length body, magic cookie,
	// random 96-bit transaction id.
	req := make([]byte, 20)
	binary.BigEndian.PutUint16(req[0:2], 0x0001)
	binary.BigEndian.PutUint32(req[4:8], stunMagicCookie)
	if _, err := rand.Read(req[8:20]); err != nil {
		return "", fmt.Errorf("transaction id: %w", err)
	}

	if _, err := conn.WriteTo(req, resolved); err != nil {
		return "", fmt.Errorf("send binding request: %w", err)
	}

	buf := make([]byte, 1024)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		return "", fmt.Errorf("read binding response: %w", err)
	}

	ip, err := parseBindingResponse(buf[:n], req[8:20])
	if err != nil {
		return "", err
	}
	if !r.acceptable(ip) {
		return "", fmt.Errorf("STUN returned %s family mismatch", ip)
	}
	return ip.String(), nil
}

// parseBindingResponse walks the response attributes for a mapped address.
func parseBindingResponse(msg, txID []byte) (net.IP, error) {
	if len(msg) < 20 {
		return nil, fmt.Errorf("short STUN response (%d bytes)", len(msg))
	}
	if binary.BigEndian.Uint16(msg[0:2]) != 0x0101 {
		return nil, fmt.Errorf("unexpected STUN message type 0x%04x", msg[0:2])
	}
	if string(msg[8:20]) != string(txID) {
		return nil, fmt.Errorf("transaction id mismatch")
	}

	attrs := msg[20:]
	for len(attrs) >= 4 {
		typ := binary.BigEndian.Uint16(attrs[0:2])
		length := int(binary.BigEndian.Uint16(attrs[2:4]))
		if len(attrs) < 4+length {
			break
		}
		value := attrs[4 : 4+length]

		switch typ {
		case attrXorMappedAddress:
			if ip := decodeMapped(value, txID, true); ip != nil {
				return ip, nil
			}
		case attrMappedAddress:
			if ip := decodeMapped(value, txID, false); ip != nil {
				return ip, nil
			}
		}

		// Attributes are padded to 4-byte boundaries.
		advance := 4 + ((length + 3) &^ 3)
		if advance > len(attrs) {
			break
		}
		attrs = attrs[advance:]
	}
	return nil, fmt.Errorf("no mapped address attribute in response")
}

// decodeMapped extracts the IP from a (XOR-)MAPPED-ADDRESS value. XOR'd
// IPv6 addresses un-XOR against the magic cookie followed by the
// transaction id (RFC 5389 §15.2).
func decodeMapped(value, txID []byte, xored bool) net.IP {
	if len(value) < 8 {
		return nil
	}
	family := value[1]

	switch family {
	case 0x01: // IPv4
		ip := make(net.IP, 4)
		copy(ip, value[4:8])
		if xored {
			binary.BigEndian.PutUint32(ip, binary.BigEndian.Uint32(ip)^stunMagicCookie)
		}
		return ip
	case 0x02: // IPv6
		if len(value) < 20 || len(txID) != 12 {
			return nil
		}
		ip := make(net.IP, 16)
		copy(ip, value[4:20])
		if xored {
			binary.BigEndian.PutUint32(ip[0:4], binary.BigEndian.Uint32(ip[0:4])^stunMagicCookie)
			for i := 0; i < 12; i++ {
				ip[4+i] ^= txID[i]
			}
		}
		return ip
	default:
		return nil
	}
}

// localAddress reports the preferred outbound interface address by opening
// an unconnected UDP socket toward a public address. No packets are sent.
func localAddress(network string) (string, error) {
	target := "8.8.8.8:80"
	if network == "udp6" {
		target = "[2001:4860:4860::8888]:80"
	}
	conn, err := net.Dial(network, target)
	if err != nil {
		return "", fmt.Errorf("probe local address: %w", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
