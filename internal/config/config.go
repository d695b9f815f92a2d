package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Compress bool   `yaml:"compress"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`    // file path for sqlite, connection string for postgres
	Table  string `yaml:"table"`  // job queue table, "delayed_jobs" unless overridden
}

type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	SampleInterval string `yaml:"sample_interval"` // e.g. "15s"
	BearerSecret   string `yaml:"bearer_secret"`   // empty leaves /metrics open
	TokenDuration  string `yaml:"token_duration"`  // lifetime of minted scrape tokens
}

type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"` // OTLP/HTTP collector; empty disables export
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SampleInterval returns the parsed queue sampler period.
func (c *Config) SampleInterval() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(c.Metrics.SampleInterval))
	if err != nil {
		return 0, fmt.Errorf("metrics.sample_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("metrics.sample_interval must be positive, got %s", d)
	}
	return d, nil
}

// TokenDuration returns the lifetime for tokens minted by the token command.
func (c *Config) TokenDuration() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(c.Metrics.TokenDuration))
	if err != nil {
		return 0, fmt.Errorf("metrics.token_duration: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("metrics.token_duration must be positive, got %s", d)
	}
	return d, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is required")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn must be configured")
	}
	if strings.TrimSpace(c.Database.Table) == "" {
		return fmt.Errorf("database.table must be configured")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Metrics.Enabled {
		if _, err := c.SampleInterval(); err != nil {
			return err
		}
		if s := c.Metrics.BearerSecret; s != "" && len(s) < 16 {
			return fmt.Errorf("QUEUEHEALTH_METRICS_SECRET must be at least 16 characters (current length: %d)", len(s))
		}
	}
	if c.Metrics.BearerSecret != "" {
		if _, err := c.TokenDuration(); err != nil {
			return err
		}
	}
	return nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     3000,
			Compress: true,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "queuehealth.db",
			Table:  "delayed_jobs",
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			SampleInterval: "15s",
			TokenDuration:  "8760h",
		},
		Tracing: TracingConfig{
			ServiceName: "queuehealth",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("QUEUEHEALTH_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("QUEUEHEALTH_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("QUEUEHEALTH_COMPRESS"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Server.Compress = enabled
		}
	}
	if v := os.Getenv("QUEUEHEALTH_DB_DRIVER"); v != "" {
		cfg.Database.Driver = strings.TrimSpace(v)
	}
	if v := os.Getenv("QUEUEHEALTH_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("QUEUEHEALTH_DB_TABLE"); v != "" {
		cfg.Database.Table = strings.TrimSpace(v)
	}
	if v := os.Getenv("QUEUEHEALTH_METRICS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = enabled
		}
	}
	if v := os.Getenv("QUEUEHEALTH_METRICS_SAMPLE_INTERVAL"); v != "" {
		cfg.Metrics.SampleInterval = v
	}
	if v := os.Getenv("QUEUEHEALTH_METRICS_SECRET"); v != "" {
		cfg.Metrics.BearerSecret = v
	}
	if v := os.Getenv("QUEUEHEALTH_METRICS_TOKEN_DURATION"); v != "" {
		cfg.Metrics.TokenDuration = v
	}
	if v := os.Getenv("QUEUEHEALTH_OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = strings.TrimSpace(v)
	}
	if v := os.Getenv("QUEUEHEALTH_OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		if insecure, err := strconv.ParseBool(v); err == nil {
			cfg.Tracing.Insecure = insecure
		}
	}
	if v := os.Getenv("QUEUEHEALTH_OTEL_SERVICE_NAME"); v != "" {
		cfg.Tracing.ServiceName = strings.TrimSpace(v)
	}
}
