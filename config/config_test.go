package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8545" || cfg.GatewayAddress != ":8680" {
		t.Fatalf("unexpected default addresses: %+v", cfg)
	}
	if cfg.BlockIntervalSeconds != 1 {
		t.Fatalf("unexpected default interval: %d", cfg.BlockIntervalSeconds)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}

	// The written file must load back unchanged.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if *reloaded != *cfg {
		t.Fatalf("reload drifted: %+v vs %+v", reloaded, cfg)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
RPCAddress = ":9999"
BlockIntervalSeconds = 5

[Log]
Level = "debug"
Format = "text"

[Gateway]
RateLimitPerSecond = 2.5
RateLimitBurst = 5

[Telemetry]
Enabled = true
Endpoint = "collector:4318"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":9999" || cfg.BlockIntervalSeconds != 5 {
		t.Fatalf("overrides lost: %+v", cfg)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Fatalf("log overrides lost: %+v", cfg.Log)
	}
	if cfg.Gateway.RateLimitPerSecond != 2.5 || cfg.Gateway.RateLimitBurst != 5 {
		t.Fatalf("gateway overrides lost: %+v", cfg.Gateway)
	}
	// Unset fields still receive defaults.
	if cfg.GatewayAddress != ":8680" {
		t.Fatalf("default not applied alongside overrides")
	}
	if cfg.Gateway.IdempotencyDBPath == "" {
		t.Fatalf("idempotency path default missing")
	}
}

func TestLoadRejections(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown key", "Bogus = 1\n", "unknown keys"},
		{"bad log level", "[Log]\nLevel = \"loud\"\n", "log level"},
		{"telemetry without endpoint", "[Telemetry]\nEnabled = true\n", "telemetry"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.content), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatalf("expected failure")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("want %q in error, got %v", tc.wantErr, err)
			}
		})
	}
}
