package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DefaultBackend != "mock" {
		t.Errorf("expected DefaultBackend=mock, got %s", cfg.DefaultBackend)
	}
	if _, ok := cfg.Backends["mock"]; !ok {
		t.Error("expected a mock backend entry")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("BACKPLANE_BACKEND", "")
	t.Setenv("BACKPLANE_LOG_LEVEL", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "backplane.yaml")

	cfg := DefaultConfig()
	cfg.DefaultBackend = "codex"
	cfg.Backends["codex"] = BackendConfig{
		Kind:       "sidecar",
		Command:    "codex-sidecar",
		Args:       []string{"--stdio"},
		RunTimeout: "90s",
	}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.DefaultBackend != "codex" {
		t.Errorf("expected DefaultBackend=codex, got %s", loaded.DefaultBackend)
	}
	b := loaded.Backends["codex"]
	if b.Command != "codex-sidecar" {
		t.Errorf("expected Command=codex-sidecar, got %s", b.Command)
	}
	timeout, err := b.Timeout()
	if err != nil {
		t.Fatalf("Timeout failed: %v", err)
	}
	if timeout != 90*time.Second {
		t.Errorf("expected 90s timeout, got %s", timeout)
	}
}

func TestConfig_LoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("BACKPLANE_BACKEND", "")
	t.Setenv("BACKPLANE_LOG_LEVEL", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultBackend != "mock" {
		t.Errorf("expected defaults, got DefaultBackend=%s", cfg.DefaultBackend)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BACKPLANE_BACKEND", "claude")
	t.Setenv("BACKPLANE_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultBackend != "claude" {
		t.Errorf("expected env override claude, got %s", cfg.DefaultBackend)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected env override debug, got %s", cfg.Logging.Level)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultBackend = "ghost"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unregistered default backend")
	}

	cfg = DefaultConfig()
	cfg.Backends["bad"] = BackendConfig{Kind: "sidecar"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for sidecar without command")
	}

	cfg = DefaultConfig()
	cfg.Backends["bad"] = BackendConfig{Kind: "carrier-pigeon"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown backend kind")
	}

	cfg = DefaultConfig()
	cfg.Backends["slow"] = BackendConfig{Kind: "sidecar", Command: "x", RunTimeout: "forever"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unparseable run_timeout")
	}
}
