package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "lockstep.jsonc")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Address != DefaultAddress {
		t.Errorf("Server.Address = %v, want %v", cfg.Server.Address, DefaultAddress)
	}
	if cfg.Server.KeepAliveSeconds != DefaultKeepAliveSeconds {
		t.Errorf("Server.KeepAliveSeconds = %v, want %v", cfg.Server.KeepAliveSeconds, DefaultKeepAliveSeconds)
	}
	if cfg.Locks.LeaseMinutes != DefaultLeaseMinutes {
		t.Errorf("Locks.LeaseMinutes = %v, want %v", cfg.Locks.LeaseMinutes, DefaultLeaseMinutes)
	}
	if cfg.Locks.SweepCron != DefaultSweepCron {
		t.Errorf("Locks.SweepCron = %v, want %v", cfg.Locks.SweepCron, DefaultSweepCron)
	}
	if cfg.RateLimit.RequestsPerSecond != DefaultRequestsPerSecond {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want %v", cfg.RateLimit.RequestsPerSecond, DefaultRequestsPerSecond)
	}
	if cfg.RateLimit.Burst != DefaultBurst {
		t.Errorf("RateLimit.Burst = %v, want %v", cfg.RateLimit.Burst, DefaultBurst)
	}
}

func TestLoadFile_WithComments(t *testing.T) {
	path := writeConfig(t, `{
  // server settings
  "server": {
    "address": ":9090",
    "keep_alive_seconds": 10
  },
  "locks": {
    "lease_minutes": 5,
    "sweep_cron": "* * * * *"
  }
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Address != ":9090" {
		t.Errorf("Server.Address = %v, want :9090", cfg.Server.Address)
	}
	if cfg.Locks.LeaseMinutes != 5 {
		t.Errorf("Locks.LeaseMinutes = %v, want 5", cfg.Locks.LeaseMinutes)
	}
	if got := cfg.LeaseDuration(); got != 5*time.Minute {
		t.Errorf("LeaseDuration() = %v, want 5m", got)
	}
	if got := cfg.KeepAliveInterval(); got != 10*time.Second {
		t.Errorf("KeepAliveInterval() = %v, want 10s", got)
	}
}

func TestLoadFile_InvalidJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)

	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile() with invalid JSON should fail")
	}
}

func TestLoadAll_FindsConfigInDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lockstep.jsonc")
	if err := os.WriteFile(path, []byte(`{"server": {"address": ":7070"}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadAll(dir)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Errorf("Server.Address = %v, want :7070", cfg.Server.Address)
	}
}

func TestLoadAll_MissingConfig(t *testing.T) {
	if _, err := LoadAll(t.TempDir()); err == nil {
		t.Fatal("LoadAll() on empty directory should fail")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with defaults error = %v", err)
	}

	bad := &Config{Server: ServerSection{Address: ":8080"}, Locks: LocksSection{LeaseMinutes: 0}}
	if err := bad.Validate(); err == nil {
		t.Error("Validate() with zero lease should fail")
	}

	noAddr := &Config{Locks: LocksSection{LeaseMinutes: 15}}
	if err := noAddr.Validate(); err == nil {
		t.Error("Validate() without address should fail")
	}
}
