package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Actor.UserID != "founder" {
		t.Errorf("expected actor 'founder', got %q", cfg.Actor.UserID)
	}
	if cfg.Server.Port != 8600 {
		t.Errorf("expected port 8600, got %d", cfg.Server.Port)
	}
	if cfg.Outbox.MaxAttempts != 5 {
		t.Errorf("expected max_attempts 5, got %d", cfg.Outbox.MaxAttempts)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
actor:
  user_id: ops
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Actor.UserID != "ops" {
		t.Errorf("expected actor 'ops', got %q", cfg.Actor.UserID)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Outbox.PollIntervalSeconds != 15 {
		t.Errorf("expected default poll interval, got %d", cfg.Outbox.PollIntervalSeconds)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Server.Port != 8600 {
		t.Errorf("expected port 8600, got %d", cfg.Server.Port)
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	_, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestOutboxPollIntervalFallback(t *testing.T) {
	cfg := &Config{}
	if got := cfg.OutboxPollInterval().Seconds(); got != 15 {
		t.Errorf("expected 15s fallback, got %vs", got)
	}
}
