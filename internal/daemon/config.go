// Package daemon manages the Sorcha node lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sorcha-network/sorcha/internal/domain"
)

// Config holds all daemon configuration.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	API       APIConfig       `toml:"api"`
	Network   NetworkConfig   `toml:"network"`
	Storage   StorageConfig   `toml:"storage"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// NodeConfig identifies this node. An empty ID is generated on first
// start and persisted.
type NodeConfig struct {
	ID string `toml:"id"`
}

// APIConfig controls the HTTP API server. Peers dial back on the same
// port, so it doubles as the advertised endpoint.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// NetworkConfig controls peer discovery and address resolution.
type NetworkConfig struct {
	MinHealthyPeers        int    `toml:"min_healthy_peers"`
	MaxPeers               int    `toml:"max_peers"`
	MaxConcurrentDiscovery int    `toml:"max_concurrent_discovery"`
	DiscoveryInterval      string `toml:"discovery_interval"`
	ContactTimeout         string `toml:"contact_timeout"`

	// AddressServices are HTTP endpoints that echo the caller's public
	// IP. Tried in order before the STUN fallback.
	AddressServices    []string `toml:"address_services"`
	STUNServer         string   `toml:"stun_server"`
	PreferredIPVersion string   `toml:"preferred_ip_version"`

	Seeds []domain.SeedNode `toml:"seeds"`
}

// StorageConfig controls the on-disk state directory.
type StorageConfig struct {
	Dir string `toml:"dir"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`
}

// TelemetryConfig controls the Prometheus /metrics endpoint.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := sorchaHome()
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 5110,
		},
		Network: NetworkConfig{
			MinHealthyPeers:        5,
			MaxPeers:               1000,
			MaxConcurrentDiscovery: 8,
			DiscoveryInterval:      "30s",
			ContactTimeout:         "5s",
			AddressServices: []string{
				"https://api.ipify.org",
				"https://ifconfig.me/ip",
			},
			STUNServer:         "stun.l.google.com:19302",
			PreferredIPVersion: "ipv4",
		},
		Storage: StorageConfig{
			Dir: homeDir,
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      filepath.Join(homeDir, "sorcha.log"),
			MaxSizeMB: 50,
			MaxFiles:  5,
		},
	}
}

// Validate rejects configurations the daemon cannot start with. Seed
// entries are checked here so a typo fails at boot, not mid-cycle.
func (c Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	for _, seed := range c.Network.Seeds {
		if err := seed.Validate(); err != nil {
			return err
		}
	}
	if _, err := time.ParseDuration(c.Network.DiscoveryInterval); c.Network.DiscoveryInterval != "" && err != nil {
		return fmt.Errorf("network.discovery_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Network.ContactTimeout); c.Network.ContactTimeout != "" && err != nil {
		return fmt.Errorf("network.contact_timeout: %w", err)
	}
	return nil
}

// LoadConfig reads config from ~/.sorcha/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(sorchaHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet — use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the config to ~/.sorcha/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(sorchaHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// sorchaHome returns the Sorcha data directory.
func sorchaHome() string {
	if env := os.Getenv("SORCHA_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sorcha")
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
