package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Grid struct {
		ClusterName string        `koanf:"cluster_name"`
		PollEvery   time.Duration `koanf:"poll_every"`
	} `koanf:"grid"`
	Server struct {
		Addr string `koanf:"addr"`
		Port int    `koanf:"port"`
	} `koanf:"server"`
}

func defaults() *sample {
	s := &sample{}
	s.Grid.ClusterName = "dev"
	s.Grid.PollEvery = time.Second
	s.Server.Addr = "127.0.0.1"
	s.Server.Port = 5701
	return s
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsSurviveWithoutLayers(t *testing.T) {
	got := defaults()
	require.NoError(t, NewLoader(WithEnvPrefix("GRIDMESH_TEST_NONE_")).Load(got))
	assert.Equal(t, defaults(), got)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeYAML(t, "grid:\n  cluster_name: prod\n  poll_every: 250ms\n")

	got := defaults()
	require.NoError(t, NewLoader(WithConfigFile(path), WithEnvPrefix("GRIDMESH_TEST_NONE_")).Load(got))
	assert.Equal(t, "prod", got.Grid.ClusterName)
	assert.Equal(t, 250*time.Millisecond, got.Grid.PollEvery)
	assert.Equal(t, 5701, got.Server.Port)
}

func TestLoad_MissingFileFails(t *testing.T) {
	err := NewLoader(WithConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))).Load(defaults())
	assert.ErrorContains(t, err, "read config file")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeYAML(t, "server:\n  addr: 10.0.0.1\n  port: 6000\n")
	t.Setenv("GRIDMESH_TEST_SERVER_PORT", "7000")
	t.Setenv("GRIDMESH_TEST_GRID_CLUSTER__NAME", "staging")

	got := defaults()
	require.NoError(t, NewLoader(WithConfigFile(path), WithEnvPrefix("GRIDMESH_TEST_")).Load(got))
	assert.Equal(t, "10.0.0.1", got.Server.Addr)
	assert.Equal(t, 7000, got.Server.Port)
	assert.Equal(t, "staging", got.Grid.ClusterName)
}

func TestLoad_OverridesWin(t *testing.T) {
	t.Setenv("GRIDMESH_TEST_SERVER_PORT", "7000")

	got := defaults()
	err := NewLoader(
		WithEnvPrefix("GRIDMESH_TEST_"),
		WithOverrides(map[string]any{"server.port": 8000, "grid.cluster_name": "flag"}),
	).Load(got)
	require.NoError(t, err)
	assert.Equal(t, 8000, got.Server.Port)
	assert.Equal(t, "flag", got.Grid.ClusterName)
}

func TestLoad_BadValueFails(t *testing.T) {
	path := writeYAML(t, "server:\n  port: many\n")
	err := NewLoader(WithConfigFile(path), WithEnvPrefix("GRIDMESH_TEST_NONE_")).Load(defaults())
	assert.ErrorContains(t, err, "decode config")
}

func TestEnvKey(t *testing.T) {
	cases := map[string]string{
		"GRIDMESH_SERVER_RESP_ADDR":      "server.resp.addr",
		"GRIDMESH_GRID_CLUSTER__NAME":    "grid.cluster_name",
		"GRIDMESH_LOG_LEVEL":             "log.level",
		"GRIDMESH_SERVER_RESP_TLS__CERT": "server.resp.tls_cert",
	}
	for in, want := range cases {
		assert.Equal(t, want, envKey("GRIDMESH_", in), in)
	}
}

func TestMapProvider(t *testing.T) {
	_, err := mapProvider{}.ReadBytes()
	assert.Error(t, err)

	got, err := mapProvider{"a.b": 1, "a.c": "x"}.Read()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": map[string]any{"b": 1, "c": "x"}}, got)
}
