package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// SpanEventDetail controls how much span activity is mirrored to the logs.
type SpanEventDetail string

const (
	// SpanEventsNone disables span open/close log records entirely.
	SpanEventsNone SpanEventDetail = "none"
	// SpanEventsEnterExit logs span open and close only. Recommended for production.
	SpanEventsEnterExit SpanEventDetail = "enter_exit"
	// SpanEventsAll logs open, close, and every recorded span event.
	SpanEventsAll SpanEventDetail = "all"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Service   ServiceConfig
	Tracing   TracingConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// ServiceConfig identifies the service in exported traces.
type ServiceConfig struct {
	Name        string `envconfig:"SERVICE_NAME" default:"tinyid"`
	Version     string `envconfig:"SERVICE_VERSION" default:"0.1.0"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

// TracingConfig holds tracing core configuration.
//
// SampleRate and SpanEventDetail default by environment when unset:
// production gets 10% sampling with enter/exit events, staging 50%, and
// development 100% with all events.
type TracingConfig struct {
	SampleRate        float64         `envconfig:"TRACE_SAMPLE_RATE" default:"-1"`
	CollectorEndpoint string          `envconfig:"COLLECTOR_ENDPOINT" default:""`
	BatchMaxSize      int             `envconfig:"TRACE_BATCH_MAX_SIZE" default:"512"`
	QueueSize         int             `envconfig:"TRACE_QUEUE_SIZE" default:"2048"`
	FlushInterval     time.Duration   `envconfig:"TRACE_FLUSH_INTERVAL" default:"5s"`
	ExportRetries     int             `envconfig:"TRACE_EXPORT_RETRIES" default:"3"`
	ExportTimeout     time.Duration   `envconfig:"TRACE_EXPORT_TIMEOUT" default:"10s"`
	SpanEventDetail   SpanEventDetail `envconfig:"TRACE_SPAN_EVENTS" default:""`
	SlowRequest       time.Duration   `envconfig:"TRACE_SLOW_REQUEST_THRESHOLD" default:"1s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.applyEnvironmentDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Service: ServiceConfig{
			Name:        "tinyid",
			Version:     "0.1.0",
			Environment: "development",
		},
		Tracing: TracingConfig{
			SampleRate:    -1,
			BatchMaxSize:  512,
			QueueSize:     2048,
			FlushInterval: 5 * time.Second,
			ExportRetries: 3,
			ExportTimeout: 10 * time.Second,
			SlowRequest:   time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
	cfg.applyEnvironmentDefaults()
	return cfg
}

// Validate checks configuration invariants that defaults cannot guarantee.
func (c *Config) Validate() error {
	if c.Tracing.BatchMaxSize <= 0 {
		return fmt.Errorf("TRACE_BATCH_MAX_SIZE must be positive, got %d", c.Tracing.BatchMaxSize)
	}
	if c.Tracing.QueueSize < c.Tracing.BatchMaxSize {
		return fmt.Errorf("TRACE_QUEUE_SIZE (%d) must be at least TRACE_BATCH_MAX_SIZE (%d)",
			c.Tracing.QueueSize, c.Tracing.BatchMaxSize)
	}
	if c.Tracing.ExportRetries < 0 {
		return fmt.Errorf("TRACE_EXPORT_RETRIES must not be negative, got %d", c.Tracing.ExportRetries)
	}
	switch c.Tracing.SpanEventDetail {
	case SpanEventsNone, SpanEventsEnterExit, SpanEventsAll:
	default:
		return fmt.Errorf("TRACE_SPAN_EVENTS must be one of none, enter_exit, all; got %q",
			c.Tracing.SpanEventDetail)
	}
	return nil
}

// applyEnvironmentDefaults fills sampling and span-event settings left unset,
// keyed by deployment environment.
func (c *Config) applyEnvironmentDefaults() {
	if c.Tracing.SampleRate < 0 {
		switch c.Service.Environment {
		case "production":
			c.Tracing.SampleRate = 0.1
		case "staging":
			c.Tracing.SampleRate = 0.5
		default:
			c.Tracing.SampleRate = 1.0
		}
	}
	if c.Tracing.SpanEventDetail == "" {
		switch c.Service.Environment {
		case "production", "staging":
			c.Tracing.SpanEventDetail = SpanEventsEnterExit
		default:
			c.Tracing.SpanEventDetail = SpanEventsAll
		}
	}
}
