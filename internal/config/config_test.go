package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "nonexistent")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "release", cfg.Mode)
	require.Equal(t, 8080, cfg.Port)
	require.EqualValues(t, 32768, cfg.ReadLimit)
	require.Equal(t, 54*time.Second, cfg.PingPeriod)
	require.Equal(t, 3*time.Second, cfg.AuthTimeout)
	require.Equal(t, 4, cfg.WorkerCount)
	require.Equal(t, 3*time.Second, cfg.WorkerDeathGrace)
	require.Equal(t, 5*time.Second, cfg.MediaCallTimeout)
	require.Equal(t, 5, cfg.JoinLimit)
	require.Equal(t, time.Minute, cfg.JoinWindow)
	require.Equal(t, 30, cfg.SignalLimit)
	require.Equal(t, 10*time.Second, cfg.SignalWindow)
	require.Empty(t, cfg.RedisAddr)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := []byte("mode: debug\nport: 9090\nworker_count: 2\nredis_addr: localhost:6379\njoin_limit: 1\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), yaml, 0o644))

	t.Setenv("CONFIG_ENV", "test")
	t.Chdir(dir)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.Mode)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, 2, cfg.WorkerCount)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
	require.Equal(t, 1, cfg.JoinLimit)
	// Untouched keys keep their defaults.
	require.Equal(t, 30, cfg.SignalLimit)
}
