package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Errorf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("addr = %q, want %q", cfg.Addr, ":8080")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config not written: %v", err)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := []byte("addr: \":9999\"\nhistory_limit: 25\nshutdown_timeout: 10s\n")
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("addr = %q, want %q", cfg.Addr, ":9999")
	}
	if cfg.HistoryLimit != 25 {
		t.Errorf("history_limit = %d, want 25", cfg.HistoryLimit)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown_timeout = %v, want 10s", cfg.ShutdownTimeout)
	}
	// untouched keys keep their defaults
	if cfg.SendBuffer != 32 {
		t.Errorf("send_buffer = %d, want 32", cfg.SendBuffer)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("CHATLINE_LOG_LEVEL", "debug")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want %q", cfg.LogLevel, "debug")
	}
}
