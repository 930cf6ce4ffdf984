package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "insightmesh.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNew_Defaults(t *testing.T) {
	cfg := New()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.Equal(t, 30*time.Second, cfg.RemoteTimeout())
	assert.Equal(t, 1.0, cfg.Pacing.Scale)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[provider]
name = "anthropic"
model = "claude-sonnet-4-5"
temperature = 0.3
api_key_env = "MY_KEY"

[remote]
base_url = "http://localhost:8080"
poll_interval_ms = 500

[pacing]
scale = 0

[limits]
max_model_calls = 5

[storage]
driver = "sqlite"
path = "/tmp/reports.db"

[log]
level = "debug"
format = "json"

[metrics]
namespace = "analytics"
listen = ":9090"
`)
	t.Setenv("MY_KEY", "sk-test")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.Remote.BaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 30, cfg.Remote.MaxPollAttempts, "unset keys keep defaults")
	assert.Zero(t, cfg.Pacing.Scale)
	assert.Equal(t, 5, cfg.Limits.MaxModelCalls)
	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "analytics", cfg.Metrics.Namespace)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)

	opts := cfg.ExecutionOptions()
	assert.Equal(t, "anthropic", opts.Provider)
	assert.Equal(t, "sk-test", opts.APIKey)
	assert.Equal(t, "claude-sonnet-4-5", opts.Model)
	assert.InDelta(t, 0.3, opts.Temperature, 1e-9)
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[provider\nname="},
		{"unknown key", "[provider]\nflavor = \"x\"\n"},
		{"negative scale", "[pacing]\nscale = -1\n"},
		{"bad driver", "[storage]\ndriver = \"postgres\"\n"},
		{"temperature", "[provider]\ntemperature = 3.0\n"},
		{"metrics namespace", "[metrics]\nnamespace = \"insight-mesh\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestGetAPIKey_DefaultEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "a-key")
	t.Setenv("OPENAI_API_KEY", "o-key")

	cfg := New()
	assert.Equal(t, "o-key", cfg.GetAPIKey())
	cfg.Provider.Name = "anthropic"
	assert.Equal(t, "a-key", cfg.GetAPIKey())
	cfg.Provider.Name = "unknown"
	assert.Empty(t, cfg.GetAPIKey())
}

func TestLoadDefault_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, New(), cfg)
}
