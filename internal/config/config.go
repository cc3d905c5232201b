// Package config loads lockstep configuration from lockstep.jsonc.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ServerSection contains HTTP server settings.
type ServerSection struct {
	Address          string `json:"address"`
	KeepAliveSeconds int    `json:"keep_alive_seconds"`
}

// LocksSection contains lock lease settings.
type LocksSection struct {
	LeaseMinutes int    `json:"lease_minutes"`
	SweepCron    string `json:"sweep_cron"`
}

// RateLimitSection contains per-token rate limit settings.
type RateLimitSection struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

// Config is the unified configuration file format for lockstep.jsonc.
type Config struct {
	Server    ServerSection    `json:"server"`
	Locks     LocksSection     `json:"locks"`
	RateLimit RateLimitSection `json:"rate_limit"`
}

// Default values applied when the config file omits a setting.
const (
	DefaultAddress           = ":8080"
	DefaultKeepAliveSeconds  = 30
	DefaultLeaseMinutes      = 15
	DefaultSweepCron         = "*/5 * * * *"
	DefaultRequestsPerSecond = 10.0
	DefaultBurst             = 20
)

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = DefaultAddress
	}
	if cfg.Server.KeepAliveSeconds <= 0 {
		cfg.Server.KeepAliveSeconds = DefaultKeepAliveSeconds
	}
	if cfg.Locks.LeaseMinutes <= 0 {
		cfg.Locks.LeaseMinutes = DefaultLeaseMinutes
	}
	if cfg.Locks.SweepCron == "" {
		cfg.Locks.SweepCron = DefaultSweepCron
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = DefaultBurst
	}
}

// FindConfigPath returns the path to lockstep.jsonc using precedence:
// 1. configDir + /lockstep.jsonc (if configDir specified)
// 2. ./config/lockstep.jsonc (project-local)
// 3. ~/.lockstep/config/lockstep.jsonc (user global)
func FindConfigPath(configDir string) (string, error) {
	if configDir != "" {
		path := filepath.Join(configDir, "lockstep.jsonc")
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("lockstep.jsonc not found in %s", configDir)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return path, nil
		}
		return abs, nil
	}

	candidates := []string{
		filepath.Join("config", "lockstep.jsonc"),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".lockstep", "config", "lockstep.jsonc"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("lockstep.jsonc not found; tried: %v", candidates)
}

// LoadAll loads configuration from lockstep.jsonc in configDir.
func LoadAll(configDir string) (*Config, error) {
	configPath, err := FindConfigPath(configDir)
	if err != nil {
		return nil, err
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a single lockstep.jsonc file.
func LoadFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}

	var cfg Config
	if err := json.Unmarshal(StripJSONComments(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configPath, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Locks.LeaseMinutes < 1 {
		return fmt.Errorf("locks.lease_minutes must be at least 1")
	}
	return nil
}

// LeaseDuration returns the lock lease length as a duration.
func (c *Config) LeaseDuration() time.Duration {
	return time.Duration(c.Locks.LeaseMinutes) * time.Minute
}

// KeepAliveInterval returns the SSE keep-alive interval as a duration.
func (c *Config) KeepAliveInterval() time.Duration {
	return time.Duration(c.Server.KeepAliveSeconds) * time.Second
}
