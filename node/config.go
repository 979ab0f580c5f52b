// Package node wires the consensus core into a runnable full node: config,
// storage, chain state, mempool and mining. The metrics endpoint is served
// by cmd/supernova-node.
package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// Config is the node's JSON-file configuration.
type Config struct {
	Network     string   `json:"network"`
	DataDir     string   `json:"data_dir"`
	BindAddr    string   `json:"bind_addr"`
	MetricsAddr string   `json:"metrics_addr"`
	LogLevel    string   `json:"log_level"`
	Peers       []string `json:"peers"`
	MaxPeers    int      `json:"max_peers"`

	// StrictQuantum rejects classical signatures in script verification.
	StrictQuantum bool `json:"strict_quantum"`
	// ExperimentalSchemes enables hybrid signatures; Falcon stays gated off.
	ExperimentalSchemes bool `json:"experimental_schemes"`

	// MempoolMaxBytes overrides the 300 MB default when non-zero.
	MempoolMaxBytes uint64 `json:"mempool_max_bytes"`
	// SigCacheSize overrides the signature cache capacity when non-zero.
	SigCacheSize int `json:"sig_cache_size"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".supernova"
	}
	return filepath.Join(home, ".supernova")
}

func DefaultConfig() Config {
	return Config{
		Network:     "testnet",
		DataDir:     DefaultDataDir(),
		BindAddr:    "0.0.0.0:19777",
		MetricsAddr: "127.0.0.1:19778",
		LogLevel:    "info",
		MaxPeers:    64,
	}
}

// LoadConfig reads path when it exists; otherwise the defaults apply.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("network is required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if err := validateAddr(cfg.BindAddr); err != nil {
		return fmt.Errorf("invalid bind_addr: %w", err)
	}
	if cfg.MetricsAddr != "" {
		if err := validateAddr(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("invalid metrics_addr: %w", err)
		}
	}
	for _, peer := range cfg.Peers {
		if err := validateAddr(peer); err != nil {
			return fmt.Errorf("invalid peer %q: %w", peer, err)
		}
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.MaxPeers <= 0 || cfg.MaxPeers > 4096 {
		return errors.New("max_peers must be in 1..4096")
	}
	return nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}
