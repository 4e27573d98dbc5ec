// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8787"

auth:
  api_token: "secret-token"
  pairing_secret: "pairing-secret"
  device_token_ttl: "720h"

broker:
  default_timeout: "60s"
  liveness_interval: "30s"
  grace_period: "5m"

push:
  enabled: true
  endpoint: "https://exp.host/--/api/v2/push/send"

database:
  path: "./devices.db"

export:
  dir: "./exports"
  html: true

discovery:
  enabled: true
  instance: "my-desktop"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:8787" {
		t.Errorf("wrong http_addr: %q", cfg.Server.HTTPAddr)
	}
	if cfg.Broker.DefaultTimeout != 60*time.Second {
		t.Errorf("wrong default_timeout: %v", cfg.Broker.DefaultTimeout)
	}
	if cfg.Broker.LivenessInterval != 30*time.Second {
		t.Errorf("wrong liveness_interval: %v", cfg.Broker.LivenessInterval)
	}
	if cfg.Broker.GracePeriod != 5*time.Minute {
		t.Errorf("wrong grace_period: %v", cfg.Broker.GracePeriod)
	}
	if cfg.Auth.DeviceTokenTTL != 720*time.Hour {
		t.Errorf("wrong device_token_ttl: %v", cfg.Auth.DeviceTokenTTL)
	}
	if !cfg.Push.Enabled || cfg.Push.Endpoint == "" {
		t.Errorf("push config not parsed: %+v", cfg.Push)
	}
	if !cfg.Export.HTML || cfg.Export.Dir != "./exports" {
		t.Errorf("export config not parsed: %+v", cfg.Export)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("BRIDGE_TEST_TOKEN", "from-env")

	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8787"
auth:
  api_token: "${BRIDGE_TEST_TOKEN}"
  pairing_secret: "s"
database:
  path: "./devices.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.APIToken != "from-env" {
		t.Errorf("expected env expansion, got %q", cfg.Auth.APIToken)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8787"
auth:
  api_token: "t"
  pairing_secret: "s"
broker:
  default_timeout: "not-a-duration"
database:
  path: "./devices.db"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "default_timeout") {
		t.Errorf("error should name the field: %v", err)
	}
}

func TestValidate_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing http_addr", func(c *Config) { c.Server.HTTPAddr = "" }, "http_addr"},
		{"missing api_token", func(c *Config) { c.Auth.APIToken = "" }, "api_token"},
		{"missing pairing_secret", func(c *Config) { c.Auth.PairingSecret = "" }, "pairing_secret"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"push enabled without endpoint", func(c *Config) { c.Push.Enabled = true; c.Push.Endpoint = "" }, "push.endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server:   ServerConfig{HTTPAddr: "127.0.0.1:8787"},
				Auth:     AuthConfig{APIToken: "t", PairingSecret: "s"},
				Database: DatabaseConfig{Path: "./devices.db"},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %v should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
