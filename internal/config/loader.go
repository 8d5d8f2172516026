// Package config provides centralized configuration management for feedmeta.
// It layers built-in defaults, an optional YAML file read through viper,
// and FEEDMETA_ environment variables mapped with gofulmen/config.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// AppName is used for XDG paths and the environment prefix.
const AppName = "feedmeta"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FEEDMETA_"

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex

	validate = validator.New()
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// Defaults returns the built-in configuration layer.
func Defaults() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"host":             "localhost",
			"port":             8080,
			"read_timeout":     "30s",
			"write_timeout":    "0s",
			"idle_timeout":     "120s",
			"shutdown_timeout": "10s",
		},
		"store": map[string]any{
			"driver":     "libsql",
			"path":       "",
			"url":        "",
			"auth_token": "",
		},
		"scheduler": map[string]any{
			"debounce":            "150ms",
			"probe_interval":      "5s",
			"rate_window_slack":   "200ms",
			"pause_clear_slack":   "50ms",
			"max_partial_retries": 3,
			"fetch_timeout":       "45s",
		},
		"fetcher": map[string]any{
			"driver":      "rod",
			"control_url": "",
			"headless":    true,
			"base_url":    "https://x.com",
		},
		"logging": map[string]any{
			"level":   "info",
			"profile": "structured",
		},
		"metrics": map[string]any{
			"enabled": true,
			"port":    9090,
		},
		"health": map[string]any{
			"enabled": true,
		},
		"debug": map[string]any{
			"enabled": false,
		},
	}
}

// Load loads configuration from defaults, the default user config file,
// the environment and any runtime overrides (later layers win).
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", runtimeOverrides...)
}

// LoadFile is Load with an explicit config file. An empty path searches
// the XDG config directory and ./config for config.yaml.
func LoadFile(ctx context.Context, path string, runtimeOverrides ...map[string]any) (*Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := v.MergeConfigMap(Defaults()); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := mergeConfigFile(v, path); err != nil {
		return nil, err
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	layers := append([]map[string]any{envOverrides}, runtimeOverrides...)
	for _, layer := range layers {
		if len(layer) == 0 {
			continue
		}
		if err := v.MergeConfigMap(layer); err != nil {
			return nil, fmt.Errorf("failed to merge overrides: %w", err)
		}
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.Driver != "postgres" && strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	setConfig(cfg)

	return cfg, nil
}

// Validate checks struct-level constraints on a loaded config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Store.Driver == "postgres" && strings.TrimSpace(cfg.Store.URL) == "" {
		return errors.New("invalid config: store.url is required for the postgres driver")
	}
	return nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	path = strings.TrimSpace(path)
	explicit := path != ""
	if !explicit {
		for _, candidate := range []string{DefaultConfigPath(), filepath.Join("config", "config.yaml")} {
			if candidate == "" {
				continue
			}
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		return nil
	}

	fileViper := viper.New()
	fileViper.SetConfigFile(path)
	if err := fileViper.ReadInConfig(); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := v.MergeConfigMap(fileViper.AllSettings()); err != nil {
		return fmt.Errorf("failed to merge config file %s: %w", path, err)
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	prefix := EnvPrefix
	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		// Logging config
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// Scheduler config
		{Name: prefix + "SCHEDULER_DEBOUNCE", Path: []string{"scheduler", "debounce"}, Type: EnvString},
		{Name: prefix + "SCHEDULER_PROBE_INTERVAL", Path: []string{"scheduler", "probe_interval"}, Type: EnvString},
		{Name: prefix + "SCHEDULER_MAX_PARTIAL_RETRIES", Path: []string{"scheduler", "max_partial_retries"}, Type: EnvInt},
		{Name: prefix + "SCHEDULER_FETCH_TIMEOUT", Path: []string{"scheduler", "fetch_timeout"}, Type: EnvString},

		// Fetcher config
		{Name: prefix + "FETCHER_DRIVER", Path: []string{"fetcher", "driver"}, Type: EnvString},
		{Name: prefix + "FETCHER_CONTROL_URL", Path: []string{"fetcher", "control_url"}, Type: EnvString},
		{Name: prefix + "FETCHER_HEADLESS", Path: []string{"fetcher", "headless"}, Type: EnvBool},
		{Name: prefix + "FETCHER_BASE_URL", Path: []string{"fetcher", "base_url"}, Type: EnvString},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},

		// Debug config
		{Name: prefix + "DEBUG_ENABLED", Path: []string{"debug", "enabled"}, Type: EnvBool},
	}
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
