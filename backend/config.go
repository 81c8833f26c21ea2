// ABOUTME: Configuration for the Charm KV backend connection
// ABOUTME: Handles server settings, auto-sync, and poll interval
package backend

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	// DefaultCharmHost is the self-hosted 2389 research server.
	DefaultCharmHost = "charm.2389.dev"

	// AppName is the application name for the Charm KV database.
	AppName = "mural"

	// ConfigFileName is where we store local config.
	ConfigFileName = "charm-config.json"
)

// CharmConfig holds charm connection settings.
type CharmConfig struct {
	// Host is the charm server hostname (default: charm.2389.dev)
	Host string `json:"host,omitempty"`

	// AutoSync enables automatic sync after every write operation
	AutoSync bool `json:"auto_sync"`

	// PollInterval is how often the session syncs and diffs watched
	// keys; charm kv has no change push.
	PollInterval time.Duration `json:"poll_interval,omitempty"`
}

// DefaultCharmConfig returns a new config with sensible defaults.
func DefaultCharmConfig() *CharmConfig {
	return &CharmConfig{
		Host:         DefaultCharmHost,
		AutoSync:     true,
		PollInterval: 2 * time.Second,
	}
}

// configPath returns the path to the config file.
func configPath() (string, error) {
	dataDir := filepath.Join(xdg.DataHome, AppName)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(dataDir, ConfigFileName), nil
}

// LoadCharmConfig loads config from disk, or returns defaults if not found.
func LoadCharmConfig() (*CharmConfig, error) {
	path, err := configPath()
	if err != nil {
		// Can't determine config path, use defaults
		return DefaultCharmConfig(), nil //nolint:nilerr // Intentionally returning defaults on path error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultCharmConfig(), nil
		}
		return nil, err
	}

	var cfg CharmConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		// Invalid config, use defaults
		return DefaultCharmConfig(), nil //nolint:nilerr // Intentionally returning defaults on parse error
	}

	// Apply defaults for missing fields
	if cfg.Host == "" {
		cfg.Host = DefaultCharmHost
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}

	return &cfg, nil
}

// Save persists the config to disk.
func (c *CharmConfig) Save() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// SetHost sets the charm server host and saves.
func (c *CharmConfig) SetHost(host string) error {
	c.Host = host
	return c.Save()
}
