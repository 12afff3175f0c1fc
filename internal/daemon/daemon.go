package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sorcha-network/sorcha/internal/api"
	"github.com/sorcha-network/sorcha/internal/health"
	"github.com/sorcha-network/sorcha/internal/infra/discovery"
	"github.com/sorcha-network/sorcha/internal/infra/metrics"
	"github.com/sorcha-network/sorcha/internal/infra/netaddr"
	"github.com/sorcha-network/sorcha/internal/infra/peerlist"
	"github.com/sorcha-network/sorcha/internal/infra/quality"
	"github.com/sorcha-network/sorcha/internal/infra/registers"
	"github.com/sorcha-network/sorcha/internal/infra/sqlite"
)

// Daemon is the core Sorcha runtime. It wires together all services.
type Daemon struct {
	Config    Config
	NodeID    string
	DB        *sqlite.DB
	Peers     *peerlist.Manager
	Quality   *quality.Tracker
	Resolver  *netaddr.Resolver
	Registers *registers.Service
	Discovery *discovery.Service
	Monitor   *health.Monitor
	Server    *api.Server
	cancel    context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	setupLogging(cfg.Logging)

	dataDir := cfg.Storage.Dir
	if dataDir == "" {
		dataDir = sorchaHome()
	}

	db, err := sqlite.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	nodeID, err := loadOrCreateNodeID(db, cfg.Node.ID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("node identity: %w", err)
	}

	peers := peerlist.NewManager(peerlist.Options{
		MaxPeers:        cfg.Network.MaxPeers,
		Store:           db,
		JanitorInterval: time.Minute,
	})
	if err := peers.LoadFromStore(); err != nil {
		log.Printf("[daemon] load peers: %v", err)
	}

	tracker := quality.NewTracker()

	resolver := netaddr.NewResolver(netaddr.Config{
		LookupServices:   cfg.Network.AddressServices,
		STUNServer:       cfg.Network.STUNServer,
		PreferredVersion: netaddr.IPVersion(cfg.Network.PreferredIPVersion),
	})

	regs := registers.NewService(peers, db)
	if err := regs.LoadFromStore(); err != nil {
		log.Printf("[daemon] load registers: %v", err)
	}
	metrics.RegistersAdvertised.Set(float64(len(regs.LocalAdvertisements())))
	metrics.SubscriptionsActive.Set(float64(len(regs.Subscriptions())))

	disc := discovery.NewService(discovery.Config{
		NodeID:          nodeID,
		ListenPort:      cfg.API.Port,
		MinHealthyPeers: cfg.Network.MinHealthyPeers,
		MaxConcurrent:   cfg.Network.MaxConcurrentDiscovery,
		RefreshInterval: parseDuration(cfg.Network.DiscoveryInterval, 30*time.Second),
		ContactTimeout:  parseDuration(cfg.Network.ContactTimeout, 5*time.Second),
		Seeds:           cfg.Network.Seeds,
	}, peers, resolver, discovery.NewHTTPExchanger(nil), tracker)

	monitor := health.NewMonitor(peers, tracker, cfg.Network.MinHealthyPeers, 15*time.Second)

	srv := api.NewServer(peers, tracker, regs, monitor)
	srv.SetDiscoveryTrigger(disc)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	return &Daemon{
		Config:    cfg,
		NodeID:    nodeID,
		DB:        db,
		Peers:     peers,
		Quality:   tracker,
		Resolver:  resolver,
		Registers: regs,
		Discovery: disc,
		Monitor:   monitor,
		Server:    srv,
	}, nil
}

// Serve starts the HTTP server and background loops, blocking until
// shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Monitor.Run(ctx)
	go d.Discovery.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		_ = httpServer.Shutdown(shutdownCtx)
		d.Peers.Close()
		_ = d.DB.Close()
	}()

	fmt.Printf("Sorcha node %s serving on http://%s\n", d.NodeID, addr)
	if len(d.Config.Network.Seeds) > 0 {
		fmt.Printf("  Seeds: %d configured\n", len(d.Config.Network.Seeds))
	}
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Peers != nil {
		d.Peers.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

// loadOrCreateNodeID resolves this node's stable identity: configured ID
// wins, otherwise the persisted one, otherwise a fresh one is minted and
// stored.
func loadOrCreateNodeID(db *sqlite.DB, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	stored, err := db.GetNodeInfo("node_id")
	if err != nil {
		return "", err
	}
	if stored != "" {
		return stored, nil
	}
	id := "node-" + uuid.NewString()[:16]
	if err := db.SetNodeInfo("node_id", id); err != nil {
		return "", err
	}
	return id, nil
}

// setupLogging routes the standard logger through a size-rotated file
// when one is configured.
func setupLogging(cfg LoggingConfig) {
	if cfg.File == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
		log.Printf("[daemon] log dir: %v", err)
		return
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
	})
}
