// Package config loads the node's bootstrap configuration from
// environment variables read at process start.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// NodeConfig holds everything the node needs to boot.
type NodeConfig struct {
	// ListenAddr is the TCP address the node accepts connections on.
	ListenAddr string

	// ConnectAddr is the single seed peer to dial on start. Empty
	// means "listen only".
	ConnectAddr string

	// DataDir holds the SQLite archive and the LevelDB state cache.
	DataDir string

	LogLevel string

	// IdleTimeout is the ConnectionPool eviction window, default 600s.
	IdleTimeout time.Duration

	WalletKeyPath    string
	WalletPassphrase string
}

// DefaultConfig returns the configuration used when no environment
// variables are set.
func DefaultConfig() *NodeConfig {
	return &NodeConfig{
		ListenAddr:  ":7878",
		ConnectAddr: "",
		DataDir:     "./data",
		LogLevel:    "info",
		IdleTimeout: 600 * time.Second,
	}
}

// LoadFromEnv overlays environment variables on top of the defaults.
func LoadFromEnv() *NodeConfig {
	cfg := DefaultConfig()

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CONNECT_ADDR"); v != "" {
		cfg.ConnectAddr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("IDLE_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.IdleTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("WALLET_KEY_PATH"); v != "" {
		cfg.WalletKeyPath = v
	}
	if v := os.Getenv("WALLET_PASSPHRASE"); v != "" {
		cfg.WalletPassphrase = v
	}

	if cfg.WalletKeyPath == "" {
		cfg.WalletKeyPath = cfg.DataDir + "/wallet.key"
	}

	return cfg
}

// Validate checks the configuration for obviously broken values.
func (c *NodeConfig) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen address cannot be empty")
	}
	if c.DataDir == "" {
		return errors.New("data directory cannot be empty")
	}
	if c.IdleTimeout <= 0 {
		return errors.New("idle timeout must be positive")
	}
	return nil
}
