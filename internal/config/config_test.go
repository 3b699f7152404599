package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, 100, cfg.Worker.MaxConcurrentTasks)
	require.Equal(t, 1024, cfg.Queue.CapacityPerTask)
	require.Equal(t, CheckpointBackendMemory, cfg.Checkpoint.Backend)
	require.Equal(t, 1000, cfg.Checkpoint.IntervalMS)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverlaysYAMLOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
host: 127.0.0.1
port: 9090
worker:
  max_concurrent_tasks: 5
peers:
  - name: currency
    base_url: http://localhost:9001
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.Host)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, 5, cfg.Worker.MaxConcurrentTasks)
	require.Equal(t, 1024, cfg.Queue.CapacityPerTask) // untouched default
	require.Len(t, cfg.Peers, 1)
	require.Equal(t, "currency", cfg.Peers[0].Name)
}

func TestValidateRejectsUnknownCheckpointBackend(t *testing.T) {
	cfg := Default()
	cfg.Checkpoint.Backend = "bogus"
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresRedisAddrForRedisBackend(t *testing.T) {
	cfg := Default()
	cfg.Checkpoint.Backend = CheckpointBackendRedis
	require.Error(t, cfg.Validate())
	cfg.Checkpoint.RedisAddr = "localhost:6379"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsPeerMissingBaseURL(t *testing.T) {
	cfg := Default()
	cfg.Peers = []PeerConfig{{Name: "x"}}
	require.Error(t, cfg.Validate())
}

func TestRetentionDaysFallsBackToDefaults(t *testing.T) {
	var r RetentionConfig
	active, completed, failed := r.Days()
	require.Equal(t, 7*24*3600*1e9, float64(active))
	require.Equal(t, 30*24*3600*1e9, float64(completed))
	require.Equal(t, 3*24*3600*1e9, float64(failed))
}

func TestAddrFormatsHostPort(t *testing.T) {
	cfg := Config{Host: "0.0.0.0", Port: 8080}
	require.Equal(t, "0.0.0.0:8080", cfg.Addr())
}
