package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "local", cfg.Bridge.Mode)
	assert.Equal(t, 15*time.Second, cfg.Bridge.AckTimeout)
	assert.True(t, cfg.Retry.Enabled)
	assert.Equal(t, ":9091", cfg.Monitoring.Address)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate_BridgeMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bridge.Mode = "carrier-pigeon"
	assert.Error(t, cfg.Validate())

	cfg.Bridge.Mode = "ws"
	cfg.Bridge.URL = ""
	assert.Error(t, cfg.Validate())

	cfg.Bridge.URL = "ws://bridge.example.com/bridge"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_PongMustOutlastPing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bridge.PingInterval = 30 * time.Second
	cfg.Bridge.PongTimeout = 30 * time.Second
	assert.Error(t, cfg.Validate())

	cfg.Bridge.PongTimeout = 31 * time.Second
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RetrySection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry.MaxAttempts = 0
	assert.Error(t, cfg.Validate())

	// Disabled retry skips the section entirely.
	cfg.Retry.Enabled = false
	assert.NoError(t, cfg.Validate())

	cfg.Retry.Enabled = true
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.MaxDelay = 50 * time.Millisecond
	cfg.Retry.InitialDelay = 100 * time.Millisecond
	assert.Error(t, cfg.Validate(), "max delay below initial delay")

	cfg.Retry.MaxDelay = 5 * time.Second
	cfg.Retry.Multiplier = 0.5
	assert.Error(t, cfg.Validate())
}

func TestValidate_EmulatorSecretRequiredForLocal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Emulator.JWTSecret = ""
	assert.Error(t, cfg.Validate())

	cfg.Bridge.Mode = "ws"
	assert.NoError(t, cfg.Validate(), "ws mode does not mint tokens")
}

func TestValidate_TracingSampleRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.SampleRate = 1.5
	assert.Error(t, cfg.Validate())

	cfg.Tracing.SampleRate = 0.25
	assert.NoError(t, cfg.Validate())
}

func TestValidate_DaemonSection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Daemon.TokenTTL = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Daemon.RateLimit.Enabled = true
	cfg.Daemon.RateLimit.RequestsPerSecond = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Daemon.RateLimit.Enabled = false
	cfg.Daemon.RateLimit.RequestsPerSecond = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Bridge.Mode)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
bridge:
  mode: ws
  url: ws://bridge.internal:8787/bridge
  ack_timeout: 5s
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws", cfg.Bridge.Mode)
	assert.Equal(t, "ws://bridge.internal:8787/bridge", cfg.Bridge.URL)
	assert.Equal(t, 5*time.Second, cfg.Bridge.AckTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Bridge.PingInterval)
	assert.True(t, cfg.Retry.Enabled)
}

func TestLoad_InvalidFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bridge:\n  mode: nope\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ROOMLINK_BRIDGE_MODE", "ws")
	t.Setenv("ROOMLINK_BRIDGE_URL", "ws://from-env:8787/bridge")
	t.Setenv("ROOMLINK_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ws", cfg.Bridge.Mode)
	assert.Equal(t, "ws://from-env:8787/bridge", cfg.Bridge.URL)
	assert.Equal(t, "warn", cfg.Logging.Level)
}
