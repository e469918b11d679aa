package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/artpar/dynroute/internal/core/routing"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DataDir   string          `mapstructure:"data_dir"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Suppress  SuppressConfig  `mapstructure:"suppress"`
	Events    EventsConfig    `mapstructure:"events"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// APIToken guards /api/v1. Empty disables the check.
	APIToken string `mapstructure:"api_token"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RoutingConfig holds slug build configuration.
type RoutingConfig struct {
	// ConflictMode is "abort" or "append".
	ConflictMode            string `mapstructure:"conflict_mode"`
	GenerateIfLocaleMissing bool   `mapstructure:"generate_if_locale_missing"`
	WriteRetryLimit         int    `mapstructure:"write_retry_limit"`
}

// SuppressConfig holds re-entry suppression configuration.
type SuppressConfig struct {
	// Backend is "memory" or "redis".
	Backend  string        `mapstructure:"backend"`
	RedisURL string        `mapstructure:"redis_url"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// EventsConfig holds NATS trigger ingestion configuration.
type EventsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	Subject       string        `mapstructure:"subject"`
	Queue         string        `mapstructure:"queue"`
	HandleTimeout time.Duration `mapstructure:"handle_timeout"`
}

// ReconcileConfig holds periodic reconcile configuration.
type ReconcileConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	SiteTimeout   time.Duration `mapstructure:"site_timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	RunOnStart    bool          `mapstructure:"run_on_start"`
}

// MetricsConfig holds Prometheus configuration.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment. A .env file in
// the working directory is loaded first; variables already set win.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.api_token", "")
	v.SetDefault("data_dir", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("routing.conflict_mode", string(routing.ConflictAbort))
	v.SetDefault("routing.generate_if_locale_missing", false)
	v.SetDefault("routing.write_retry_limit", 5)

	v.SetDefault("suppress.backend", "memory")
	v.SetDefault("suppress.redis_url", "redis://localhost:6379/0")
	v.SetDefault("suppress.prefix", "dynroute:suppress:")
	v.SetDefault("suppress.ttl", "30s")

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.url", "nats://127.0.0.1:4222")
	v.SetDefault("events.subject", "dynroute.triggers")
	v.SetDefault("events.queue", "dynroute")
	v.SetDefault("events.handle_timeout", "2m")

	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.interval", "1h")
	v.SetDefault("reconcile.site_timeout", "10m")
	v.SetDefault("reconcile.max_concurrent", 2)
	v.SetDefault("reconcile.run_on_start", false)

	v.SetDefault("metrics.enabled", true)

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("DYNROUTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.DSN == "" {
		dir := cfg.DataDir
		if dir == "" {
			dir = "./data"
		}
		cfg.Database.DSN = filepath.Join(dir, "dynroute.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := routing.ParseConflictMode(c.Routing.ConflictMode); err != nil {
		return fmt.Errorf("routing.conflict_mode: %w", err)
	}
	switch strings.ToLower(c.Suppress.Backend) {
	case "memory", "redis":
	default:
		return fmt.Errorf("suppress.backend must be memory or redis, got %q", c.Suppress.Backend)
	}
	if c.Routing.WriteRetryLimit < 0 {
		return fmt.Errorf("routing.write_retry_limit must not be negative")
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
