package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ACCESS_SECRET", "secret")
	t.Setenv("INSTANCE_ID", "")
	t.Setenv("WS_PING_INTERVAL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.SrvPort)
	assert.Equal(t, "stockpile", cfg.RelayPrefix)
	assert.Equal(t, 25*time.Second, cfg.PingInterval)
	assert.Equal(t, 2, cfg.MaxMissedPings)
	assert.Equal(t, int64(100), cfg.ActivityLimit)
	assert.NotEmpty(t, cfg.InstanceID)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("ACCESS_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("ACCESS_SECRET", "secret")
	t.Setenv("WS_SEND_BUFFER", "lots")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ACCESS_SECRET", "secret")
	t.Setenv("INSTANCE_ID", "instance-a")
	t.Setenv("WS_PING_INTERVAL", "5s")
	t.Setenv("WS_MAX_MISSED_PINGS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "instance-a", cfg.InstanceID)
	assert.Equal(t, 5*time.Second, cfg.PingInterval)
	assert.Equal(t, 1, cfg.MaxMissedPings)
}

func TestLoadDevConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.env")
	require.NoError(t, os.WriteFile(path, []byte("STOCKPILE_TEST_KEY=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("STOCKPILE_TEST_KEY") })

	require.NoError(t, LoadDevConfig(path))
	assert.Equal(t, "loaded", os.Getenv("STOCKPILE_TEST_KEY"))
	assert.Error(t, LoadDevConfig(filepath.Join(t.TempDir(), "missing.env")))
}
