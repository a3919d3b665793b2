// Package config loads hapticd configuration.
//
// Values come from hardcoded defaults, then an optional YAML file, then
// HAPTICD_-prefixed environment variables. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendNATS   = "nats"
)

// Config holds the complete hapticd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Store         StoreConfig         `koanf:"store"`
	NATS          NATSConfig          `koanf:"nats"`
	Engine        EngineConfig        `koanf:"engine"`
	Generator     GeneratorConfig     `koanf:"generator"`
	Bundle        BundleConfig        `koanf:"bundle"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig selects the rule storage backend.
type StoreConfig struct {
	Backend string `koanf:"backend"` // memory, sqlite or nats
	Path    string `koanf:"path"`    // sqlite database file
	Bucket  string `koanf:"bucket"`  // JetStream KeyValue bucket
}

// NATSConfig holds the event and actuator transport.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	EventsSubject string `koanf:"events_subject"`
	HapticsPrefix string `koanf:"haptics_prefix"`
}

// EngineConfig tunes rule resolution.
type EngineConfig struct {
	// IgnorePackages are always silent. The daemon's own package belongs here.
	IgnorePackages []string `koanf:"ignore_packages"`
	// RecentWaveforms is how many dispatched waveforms /api/v1/status reports.
	RecentWaveforms int `koanf:"recent_waveforms"`
}

// GeneratorConfig configures the remote text-to-pattern service.
type GeneratorConfig struct {
	Enabled        bool     `koanf:"enabled"`
	BaseURL        string   `koanf:"base_url"`
	Model          string   `koanf:"model"`
	APIKey         Secret   `koanf:"api_key"`
	AttemptTimeout Duration `koanf:"attempt_timeout"`
	RateLimit      float64  `koanf:"rate_limit"` // requests per second
	Burst          int      `koanf:"burst"`
}

// BundleConfig points at a declarative rule file applied at startup.
type BundleConfig struct {
	Path     string   `koanf:"path"`
	Watch    bool     `koanf:"watch"`
	Debounce Duration `koanf:"debounce"`
}

// LoggingConfig holds the subset of logging settings exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"` // grpc or http/protobuf
	Insecure        bool   `koanf:"insecure"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9470
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendSQLite
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.config/hapticd/rules.db"
	}
	if cfg.Store.Bucket == "" {
		cfg.Store.Bucket = "hapticd_rules"
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.EventsSubject == "" {
		cfg.NATS.EventsSubject = "notifications.>"
	}
	if cfg.NATS.HapticsPrefix == "" {
		cfg.NATS.HapticsPrefix = "haptics.vibrate"
	}

	if cfg.Engine.RecentWaveforms == 0 {
		cfg.Engine.RecentWaveforms = 20
	}

	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "gpt-5-mini"
	}
	if cfg.Generator.AttemptTimeout == 0 {
		cfg.Generator.AttemptTimeout = Duration(20 * time.Second)
	}
	if cfg.Generator.RateLimit == 0 {
		cfg.Generator.RateLimit = 1
	}
	if cfg.Generator.Burst == 0 {
		cfg.Generator.Burst = 2
	}

	if cfg.Bundle.Debounce == 0 {
		cfg.Bundle.Debounce = Duration(500 * time.Millisecond)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "hapticd"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.Path == "" {
			return errors.New("store path required for sqlite backend")
		}
	case BackendNATS:
		if !c.NATS.Enabled {
			return errors.New("nats backend requires nats.enabled")
		}
	default:
		return fmt.Errorf("unknown store backend %q (must be memory, sqlite or nats)", c.Store.Backend)
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats url required when nats is enabled")
	}

	if c.Engine.RecentWaveforms < 0 {
		return fmt.Errorf("recent_waveforms must be >= 0, got %d", c.Engine.RecentWaveforms)
	}

	if c.Generator.Enabled {
		u, err := url.Parse(c.Generator.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("generator base_url must be an absolute URL, got %q", c.Generator.BaseURL)
		}
		if c.Generator.RateLimit <= 0 {
			return errors.New("generator rate_limit must be positive")
		}
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("log format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
