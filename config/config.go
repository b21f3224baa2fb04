// Package config loads node and relay settings from a YAML file, with
// environment overrides for the values most often changed per deployment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/neochat/dnstunnel"
	"github.com/opd-ai/neochat/mesh"
	"github.com/opd-ai/neochat/relay"
)

// Environment overrides.
const (
	EnvStoragePath = "NEOCHAT_STORAGE_PATH"
	EnvLogLevel    = "NEOCHAT_LOG_LEVEL"
	EnvRelayURL    = "NEOCHAT_RELAY_URL"
)

// Config is the complete settings tree.
type Config struct {
	StoragePath string           `yaml:"storage_path"`
	LogLevel    string           `yaml:"log_level"`
	Relay       RelayConfig      `yaml:"relay"`
	DNSTunnel   dnstunnel.Config `yaml:"dns_tunnel"`
	Mesh        MeshConfig       `yaml:"mesh"`
	Metrics     MetricsConfig    `yaml:"metrics"`
}

// RelayConfig configures the relay client, and the listen address when
// running the reference relay.
type RelayConfig struct {
	URL               string        `yaml:"url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Listen            string        `yaml:"listen"`
}

// MeshConfig configures the mesh cache.
type MeshConfig struct {
	MaxTTL uint8 `yaml:"max_ttl"`
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		StoragePath: "neochat.dat",
		LogLevel:    "info",
		Relay: RelayConfig{
			Timeout:           relay.DefaultTimeout,
			RequestsPerSecond: 5,
			Burst:             10,
			Listen:            ":8787",
		},
		DNSTunnel: dnstunnel.DefaultConfig(),
		Mesh:      MeshConfig{MaxTTL: mesh.MaxTTL},
	}
}

// Load reads path over the defaults. A missing file yields the defaults; a
// file that does not parse is an error. Environment overrides are applied
// last.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logrus.WithFields(logrus.Fields{
			"function": "config.Load",
			"path":     path,
		}).Debug("Config file not found, using defaults")
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	ApplyEnvOverrides(&cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnvOverrides replaces settings that have a non-empty environment
// variable.
func ApplyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvStoragePath)); v != "" {
		cfg.StoragePath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRelayURL)); v != "" {
		cfg.Relay.URL = v
	}
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	if strings.TrimSpace(c.StoragePath) == "" {
		return errors.New("storage_path is required")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Relay.Timeout < 0 {
		return errors.New("relay.timeout must not be negative")
	}
	if c.Relay.RequestsPerSecond < 0 {
		return errors.New("relay.requests_per_second must not be negative")
	}
	if c.DNSTunnel.PollInterval < 0 {
		return errors.New("dns_tunnel.poll_interval must not be negative")
	}
	return nil
}

// Level returns the parsed log level, falling back to Info.
func (c Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// RelayClientConfig converts the relay section for relay.NewClient.
func (c Config) RelayClientConfig() relay.Config {
	return relay.Config{
		URL:               c.Relay.URL,
		Timeout:           c.Relay.Timeout,
		RequestsPerSecond: c.Relay.RequestsPerSecond,
		Burst:             c.Relay.Burst,
	}
}

func (c *Config) normalize() {
	if c.Mesh.MaxTTL == 0 || c.Mesh.MaxTTL > mesh.MaxTTL {
		c.Mesh.MaxTTL = mesh.MaxTTL
	}
	if c.Relay.Timeout == 0 {
		c.Relay.Timeout = relay.DefaultTimeout
	}
	if c.DNSTunnel.BaseDomain == "" {
		c.DNSTunnel.BaseDomain = dnstunnel.DefaultBaseDomain
	}
	if c.DNSTunnel.PollInterval == 0 {
		c.DNSTunnel.PollInterval = dnstunnel.DefaultPollInterval
	}
}
