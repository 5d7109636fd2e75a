package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/gridmesh-go/internal/core/service"
	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
)

func TestPrintPasswordHash(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printPasswordHash(strings.NewReader("s3cret\n"), &out))

	hash := strings.TrimSpace(out.String())
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))
	auth, err := service.NewAuthenticator(hash)
	require.NoError(t, err)
	assert.NoError(t, auth.Verify("s3cret"))

	assert.Error(t, printPasswordHash(strings.NewReader(""), &out))
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Grid.ClusterName)

	path := filepath.Join(t.TempDir(), "gridmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grid:\n  shard_count: 3\n"), 0o600))
	_, err = loadConfig(path)
	assert.Error(t, err)
}

func TestWatchConfig_AppliesLogLevel(t *testing.T) {
	prev := logger.GetLevel()
	t.Cleanup(func() { logger.SetLevel(prev) })
	logger.SetLevel("info")

	path := filepath.Join(t.TempDir(), "gridmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watchConfig(path, logger.NewNop()).Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before rewriting.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))
	assert.Eventually(t, func() bool { return logger.GetLevel() == "debug" }, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("grid:\n  shard_count: 3\n"), 0o600))
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, "debug", logger.GetLevel(), "an invalid file leaves the level alone")
}
