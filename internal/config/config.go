// ABOUTME: Configuration loading and parsing for handoff-bridge
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete handoff-bridge configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Broker    BrokerConfig    `yaml:"broker"`
	Push      PushConfig      `yaml:"push"`
	Database  DatabaseConfig  `yaml:"database"`
	Export    ExportConfig    `yaml:"export"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// APIToken authenticates the agent-facing HTTP API (bearer token).
	APIToken string `yaml:"api_token"`
	// PairingSecret signs device pairing tokens (HS256).
	PairingSecret string `yaml:"pairing_secret"`
	// DeviceTokenTTL bounds how long an issued pairing token stays valid.
	DeviceTokenTTL    time.Duration `yaml:"-"`
	DeviceTokenTTLRaw string        `yaml:"device_token_ttl"`
}

// BrokerConfig holds input-request broker timing configuration
type BrokerConfig struct {
	DefaultTimeout   time.Duration `yaml:"-"`
	LivenessInterval time.Duration `yaml:"-"`
	GracePeriod      time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	DefaultTimeoutRaw   string `yaml:"default_timeout"`
	LivenessIntervalRaw string `yaml:"liveness_interval"`
	GracePeriodRaw      string `yaml:"grace_period"`
}

// PushConfig holds push-notification fallback configuration
type PushConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// DatabaseConfig holds device directory database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ExportConfig holds transcript export configuration
type ExportConfig struct {
	Dir  string `yaml:"dir"`
	HTML bool   `yaml:"html"`
}

// DiscoveryConfig holds LAN advertisement configuration
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Auth.APIToken == "" {
		return fmt.Errorf("auth.api_token is required")
	}
	if c.Auth.PairingSecret == "" {
		return fmt.Errorf("auth.pairing_secret is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Push.Enabled && c.Push.Endpoint == "" {
		return fmt.Errorf("push.endpoint is required when push is enabled")
	}
	return nil
}

// durationField pairs one raw YAML duration string with its parsed destination.
type durationField struct {
	name string
	raw  string
	dst  *time.Duration
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []durationField{
		{"broker.default_timeout", cfg.Broker.DefaultTimeoutRaw, &cfg.Broker.DefaultTimeout},
		{"broker.liveness_interval", cfg.Broker.LivenessIntervalRaw, &cfg.Broker.LivenessInterval},
		{"broker.grace_period", cfg.Broker.GracePeriodRaw, &cfg.Broker.GracePeriod},
		{"auth.device_token_ttl", cfg.Auth.DeviceTokenTTLRaw, &cfg.Auth.DeviceTokenTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
