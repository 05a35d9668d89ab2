package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clicks/internal/clicks"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "clicks.db", cfg.DatabasePath)
	assert.Equal(t, SourceX11, cfg.Source)
	assert.Equal(t, 10*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, clicks.DefaultConfig(), cfg.Clicks)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.NotEmpty(t, cfg.SocketPath)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
database_path: /var/lib/clicks/events.db
source: none
poll_interval: 25ms
clicks:
  delay: 450ms
  click_count: 3
log:
  level: debug
  format: json
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/clicks/events.db", cfg.DatabasePath)
	assert.Equal(t, SourceNone, cfg.Source)
	assert.Equal(t, 25*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, clicks.Config{Delay: 450 * time.Millisecond, ClickCount: 3}, cfg.Clicks)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFallsBackOnInvalidValues(t *testing.T) {
	path := writeConfig(t, `
source: wayland
poll_interval: 0s
clicks:
  delay: 0s
  click_count: -1
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, SourceX11, cfg.Source)
	assert.Equal(t, 10*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, clicks.DefaultConfig(), cfg.Clicks)
}

func TestLoadPartialClicksConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "clicks:\n  click_count: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, clicks.Config{Delay: clicks.DefaultDelay, ClickCount: 3}, cfg.Clicks)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CLICKS_CLICKS_DELAY", "200ms")
	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, cfg.Clicks.Delay)
}

func TestLoadBareNumbersAreMilliseconds(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "poll_interval: 20\nclicks:\n  delay: 300\n"))
	require.NoError(t, err)
	assert.Equal(t, 300*time.Millisecond, cfg.Clicks.Delay)
	assert.Equal(t, 20*time.Millisecond, cfg.PollInterval)

	t.Setenv("CLICKS_CLICKS_DELAY", "450")
	cfg, err = LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, 450*time.Millisecond, cfg.Clicks.Delay)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "clicks:\n  delay: soon\n"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "clicks: [unclosed\n"))
	assert.Error(t, err)
}
