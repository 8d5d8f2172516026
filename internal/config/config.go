package config

import "time"

// Config represents the complete application configuration.
// Layer 1: built-in defaults (Defaults)
// Layer 2: user config file (~/.config/feedmeta/config.yaml or --config)
// Layer 3: environment variables and runtime overrides
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// StoreConfig selects where the state document lives.
//
// Drivers: libsql (local file, :memory:, or remote Turso URL), postgres
// (URL is a pgx connection string), memory (process lifetime only).
type StoreConfig struct {
	Driver    string `mapstructure:"driver" validate:"omitempty,oneof=libsql postgres memory"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// SchedulerConfig tunes the fetch scheduler's timers. The user-facing
// tunables (rate, concurrency, TTLs) live in the persisted settings.
type SchedulerConfig struct {
	Debounce          time.Duration `mapstructure:"debounce" validate:"gte=0"`
	ProbeInterval     time.Duration `mapstructure:"probe_interval" validate:"gt=0"`
	RateWindowSlack   time.Duration `mapstructure:"rate_window_slack" validate:"gte=0"`
	PauseClearSlack   time.Duration `mapstructure:"pause_clear_slack" validate:"gte=0"`
	MaxPartialRetries int           `mapstructure:"max_partial_retries" validate:"gte=0,lte=100"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout" validate:"gte=0"`
}

// FetcherConfig selects the profile extractor.
type FetcherConfig struct {
	// Driver is "rod" (headless Chromium) or "none" (every fetch resolves unavailable).
	Driver     string `mapstructure:"driver" validate:"oneof=rod none"`
	ControlURL string `mapstructure:"control_url"`
	Headless   bool   `mapstructure:"headless"`
	BaseURL    string `mapstructure:"base_url" validate:"omitempty,url"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles per Fulmen Forge Workhorse Standard:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
// - ENTERPRISE: Multiple sinks, middleware, throttling, policy enforcement (production)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	// Metrics are also available at the main HTTP port in JSON format
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug configuration
type DebugConfig struct {
	// Enabled controls whether debug mode is active
	Enabled bool `mapstructure:"enabled"`
}
