package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/fluxorio/todo/pkg/config"
	"github.com/fluxorio/todo/pkg/core"
)

// EnvPrefix prefixes environment overrides, e.g. APP_DATABASE_DSN
const EnvPrefix = "APP"

// DefaultMaxRequestBodySize admits request bodies up to roughly 30 MB
const DefaultMaxRequestBodySize = 30000000

// Environment names
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the application configuration
type Config struct {
	Environment string         `yaml:"environment" json:"environment"`
	Server      ServerConfig   `yaml:"server" json:"server"`
	Database    DatabaseConfig `yaml:"database" json:"database"`
	Log         LogConfig      `yaml:"log" json:"log"`
	Metrics     MetricsConfig  `yaml:"metrics" json:"metrics"`
	Tracing     TracingConfig  `yaml:"tracing" json:"tracing"`
	Events      EventsConfig   `yaml:"events" json:"events"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxInflight     int           `yaml:"max_inflight" json:"max_inflight"`

	// MaxRequestBodySize caps POST bodies, and with them title length
	MaxRequestBodySize int `yaml:"max_request_body_size" json:"max_request_body_size"`
}

// DatabaseConfig configures the storage pool
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" json:"driver"`
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// LogConfig configures the logger
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// TracingConfig configures OpenTelemetry
type TracingConfig struct {
	Exporter    string  `yaml:"exporter" json:"exporter"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	ServiceName string  `yaml:"service_name" json:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio"`
}

// EventsConfig configures domain event publication. Empty NATSURL disables it.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url" json:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix"`
}

// DefaultConfig returns the configuration used when no file or override is given
func DefaultConfig() Config {
	return Config{
		Environment: EnvProduction,
		Server: ServerConfig{
			Addr:               ":8080",
			ReadTimeout:        10 * time.Second,
			WriteTimeout:       10 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			MaxRequestBodySize: DefaultMaxRequestBodySize,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			DSN:             "todo.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			ServiceName: "todo",
			SampleRatio: 1,
		},
		Events: EventsConfig{
			SubjectPrefix: "todo",
		},
	}
}

// IsDevelopment reports whether development-only features are enabled
func (c Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// LoadConfig builds the configuration from defaults, the optional file at
// path and APP_* environment overrides, then validates it
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := config.LoadWithEnv(path, EnvPrefix, &cfg); err != nil {
		return Config{}, core.NewError(core.CodeInvalidConfig, "load config "+path, err)
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration
func (c Config) Validate() error {
	err := config.Validate(&c,
		config.RequiredFields("Server.Addr", "Database.Driver", "Database.DSN"),
		config.OneOfValidator("Environment", EnvDevelopment, EnvProduction),
		config.OneOfValidator("Database.Driver", "sqlite3", "postgres", "pgx", "mysql"),
		config.RangeValidator("Database.MaxOpenConns", 1, 10000),
		config.RangeValidator("Server.MaxInflight", 0, 1000000),
		config.RangeValidator("Server.MaxRequestBodySize", 1, 1<<31-1),
		config.OneOfValidator("Log.Format", "text", "json"),
		config.OneOfValidator("Tracing.Exporter", "none", "stdout", "jaeger", "zipkin"),
		config.RangeValidator("Tracing.SampleRatio", 0, 1),
		config.ValidatorFunc(func(interface{}) error {
			if _, err := core.ParseLevel(c.Log.Level); err != nil {
				return err
			}
			if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
				return fmt.Errorf("metrics path %q must start with '/'", c.Metrics.Path)
			}
			return nil
		}),
	)
	if err != nil {
		return core.NewError(core.CodeInvalidConfig, "invalid configuration", err)
	}
	return nil
}
