package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the portarium tools.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// PolicyDir is the directory of policy bundles. Empty disables file loading.
	PolicyDir string `yaml:"policy_dir"`
	// PolicyDSN selects a SQL policy source, e.g. "postgres://..." or
	// "sqlite:///var/lib/portarium/policies.db".
	PolicyDSN string `yaml:"policy_dsn"`

	// RedisAddr enables the shared evaluation cache. Empty uses an
	// in-process cache.
	RedisAddr string        `yaml:"redis_addr"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`

	OTelEnabled  bool   `yaml:"otel_enabled"`
	OTelEndpoint string `yaml:"otel_endpoint"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel:     "INFO",
		LogFormat:    "text",
		CacheTTL:     5 * time.Minute,
		OTelEndpoint: "localhost:4317",
	}
}

// Load builds configuration from defaults, then the YAML file named by
// PORTARIUM_CONFIG (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("PORTARIUM_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("PORTARIUM_POLICY_DIR"); v != "" {
		cfg.PolicyDir = v
	}
	if v := os.Getenv("PORTARIUM_POLICY_DSN"); v != "" {
		cfg.PolicyDSN = v
	}
	if v := os.Getenv("PORTARIUM_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("PORTARIUM_CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: PORTARIUM_CACHE_TTL: %w", err)
		}
		cfg.CacheTTL = ttl
	}
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("config: OTEL_ENABLED: %w", err)
		}
		cfg.OTelEnabled = enabled
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTelEndpoint = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the tools cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("config: log format %q must be text or json", c.LogFormat)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("config: cache ttl %s is negative", c.CacheTTL)
	}
	return nil
}

// PolicyDriver splits PolicyDSN into a database/sql driver name and the
// data source it expects.
func (c *Config) PolicyDriver() (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(c.PolicyDSN, "postgres://"), strings.HasPrefix(c.PolicyDSN, "postgresql://"):
		return "postgres", c.PolicyDSN, nil
	case strings.HasPrefix(c.PolicyDSN, "sqlite://"):
		return "sqlite", strings.TrimPrefix(c.PolicyDSN, "sqlite://"), nil
	default:
		return "", "", fmt.Errorf("config: unsupported policy DSN %q", c.PolicyDSN)
	}
}
