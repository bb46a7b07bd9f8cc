package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DRAGONEYE_API_KEY", "k")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, "https://api.dragoneye.ai", cfg.BaseURL)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Zero(t, cfg.HTTPTimeout)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
	assert.Equal(t, "dragoneye-go", cfg.UserAgent)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DRAGONEYE_API_KEY", "k")
	t.Setenv("DRAGONEYE_BASE_URL", "http://localhost:8080")
	t.Setenv("DRAGONEYE_POLL_INTERVAL", "250ms")
	t.Setenv("DRAGONEYE_HTTP_TIMEOUT", "30s")
	t.Setenv("DRAGONEYE_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	t.Setenv("DRAGONEYE_API_KEY", "")
	os.Unsetenv("DRAGONEYE_API_KEY")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DRAGONEYE_API_KEY=from-file\n"), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.APIKey)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("MissingEnvFile", func(t *testing.T) {
		t.Setenv("DRAGONEYE_API_KEY", "k")
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
		assert.Error(t, err)
	})

	t.Run("MissingKey", func(t *testing.T) {
		t.Setenv("DRAGONEYE_API_KEY", "")
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	cases := map[string][2]string{
		"ZeroInterval":     {"DRAGONEYE_POLL_INTERVAL", "0s"},
		"NegativeTimeout":  {"DRAGONEYE_HTTP_TIMEOUT", "-1s"},
		"BadBaseURL":       {"DRAGONEYE_BASE_URL", "ftp://example.com"},
		"BadLogLevel":      {"DRAGONEYE_LOG_LEVEL", "loud"},
		"UnparsableTiming": {"DRAGONEYE_POLL_INTERVAL", "soon"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DRAGONEYE_API_KEY", "k")
			t.Setenv(kv[0], kv[1])
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
