package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1:5701", cfg.Server)
	assert.Equal(t, "dev", cfg.Cluster)
	assert.Equal(t, "table", cfg.Output)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Empty(t, cfg.Password)
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("HOME", "/home/grid")
	assert.Equal(t, filepath.Join("/home/grid", ".gridmesh", "cli.yaml"), DefaultConfigPath())
}

func TestLoad_MissingDefaultFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server: grid.internal:5701
cluster: prod
output: json
poll_interval: 250ms
`), 0o600))
	t.Setenv("GRIDMESH_CLI_CLUSTER", "staging")
	t.Setenv("GRIDMESH_CLI_TIMEOUT", "9s")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "grid.internal:5701", cfg.Server)
	assert.Equal(t, "staging", cfg.Cluster)
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 9*time.Second, cfg.Timeout)
}

func TestLoad_DefaultFileFromHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".gridmesh"), 0o700))
	require.NoError(t, os.WriteFile(DefaultConfigPath(), []byte("password: s3cret\n"), 0o600))
	t.Setenv("GRIDMESH_CLI_POLL__INTERVAL", "2s")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Password)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, "127.0.0.1:5701", cfg.Server)
}

func TestLoad_OverridesWinOverEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GRIDMESH_CLI_SERVER", "env:5701")

	cfg, err := Load("", map[string]any{"server": "flag:5701", "tls": true, "ca_file": "/etc/grid/ca.pem"})
	require.NoError(t, err)
	assert.Equal(t, "flag:5701", cfg.Server)
	assert.True(t, cfg.TLS)
	assert.Equal(t, "/etc/grid/ca.pem", cfg.CAFile)
}
