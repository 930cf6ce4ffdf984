// Package config provides TOML configuration loading for InsightMesh.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/logging"
)

// DefaultFile is the config file looked up by LoadDefault.
const DefaultFile = "insightmesh.toml"

// Storage drivers.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the InsightMesh configuration.
type Config struct {
	Provider ProviderConfig `toml:"provider"`
	Remote   RemoteConfig   `toml:"remote"`
	Pacing   PacingConfig   `toml:"pacing"`
	Limits   LimitsConfig   `toml:"limits"`
	Storage  StorageConfig  `toml:"storage"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// ProviderConfig selects the AI provider for the direct tier and synthesis.
type ProviderConfig struct {
	Name        string  `toml:"name"`
	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`
	APIKeyEnv   string  `toml:"api_key_env"` // defaults per provider
}

// RemoteConfig configures the remote execution service. An empty BaseURL
// disables the remote tier.
type RemoteConfig struct {
	BaseURL         string `toml:"base_url"`
	PollIntervalMS  int    `toml:"poll_interval_ms"`
	MaxPollAttempts int    `toml:"max_poll_attempts"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// PacingConfig scales the cosmetic stage and synthesis pacing.
type PacingConfig struct {
	Scale float64 `toml:"scale"` // 0 disables sleeping
}

// LimitsConfig bounds model usage.
type LimitsConfig struct {
	MaxModelCalls     int `toml:"max_model_calls"` // per run, 0 = unlimited
	SampleRows        int `toml:"sample_rows"`
	MaxConcurrentRuns int `toml:"max_concurrent_runs"`
}

// StorageConfig selects the report store.
type StorageConfig struct {
	Driver string `toml:"driver"` // memory or sqlite
	Path   string `toml:"path"`
}

// LogConfig configures the operator logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // json or text
}

// MetricsConfig configures Prometheus instrumentation.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
	Listen    string `toml:"listen"` // serves /metrics during CLI runs when set
}

// New creates a config with defaults.
func New() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name: "openai",
		},
		Remote: RemoteConfig{
			PollIntervalMS:  2000,
			MaxPollAttempts: 30,
			TimeoutSeconds:  30,
		},
		Pacing: PacingConfig{
			Scale: 1,
		},
		Limits: LimitsConfig{
			SampleRows:        50,
			MaxConcurrentRuns: 10,
		},
		Storage: StorageConfig{
			Driver: StorageMemory,
			Path:   "insightmesh.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "insightmesh",
		},
	}
}

// LoadFile loads configuration from a TOML file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads insightmesh.toml from the current directory, returning
// the defaults when the file does not exist.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	path := filepath.Join(cwd, DefaultFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	return LoadFile(path)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Pacing.Scale < 0:
		return fmt.Errorf("%w: pacing.scale must not be negative", ErrInvalid)
	case c.Provider.Temperature < 0 || c.Provider.Temperature > 2:
		return fmt.Errorf("%w: provider.temperature must be within [0, 2]", ErrInvalid)
	case c.Limits.MaxModelCalls < 0:
		return fmt.Errorf("%w: limits.max_model_calls must not be negative", ErrInvalid)
	case c.Remote.MaxPollAttempts < 0 || c.Remote.PollIntervalMS < 0:
		return fmt.Errorf("%w: remote polling values must not be negative", ErrInvalid)
	case c.Metrics.Enabled && !validNamespace(c.Metrics.Namespace):
		return fmt.Errorf("%w: metrics.namespace %q is not a valid metric name prefix", ErrInvalid, c.Metrics.Namespace)
	}
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for sqlite", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalid, c.Storage.Driver)
	}
	return nil
}

func validNamespace(ns string) bool {
	if ns == "" {
		return false
	}
	for i, r := range ns {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// GetAPIKey returns the API key from the configured environment variable.
// If api_key_env is not set, uses the default env var for the provider.
func (c *Config) GetAPIKey() string {
	envVar := c.Provider.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(c.Provider.Name)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// DefaultAPIKeyEnv returns the default environment variable name for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "anthropic", "claude":
		return "ANTHROPIC_API_KEY"
	case "openai", "":
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}

// ExecutionOptions builds the per-run options. The API key is read from the
// environment at call time.
func (c *Config) ExecutionOptions() core.ExecutionOptions {
	return core.ExecutionOptions{
		Provider:    c.Provider.Name,
		APIKey:      c.GetAPIKey(),
		Model:       c.Provider.Model,
		Temperature: c.Provider.Temperature,
	}
}

// PollInterval returns the remote poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Remote.PollIntervalMS) * time.Millisecond
}

// RemoteTimeout returns the per-request HTTP timeout for the remote service.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// Logger builds the operator logger described by the log section.
func (c *Config) Logger() *logging.RunLogger {
	return logging.NewSlogLogger(logging.ParseLevel(c.Log.Level), c.Log.Format, false)
}
