package confloader

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
)

type changeLog struct {
	mu    sync.Mutex
	paths []string
}

func (c *changeLog) record(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}

func (c *changeLog) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

// runWatcher runs w until the test ends and returns Run's result channel.
func runWatcher(t *testing.T, w *Watcher) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Let fsnotify register the directories.
	time.Sleep(50 * time.Millisecond)
	return done
}

func TestWatcher_CoalescesBurst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o600))

	w := NewWatcher(logger.NewNop(), 100*time.Millisecond)
	w.Watch(path)
	var changes changeLog
	w.OnChange(changes.record)
	runWatcher(t, w)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0o600))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return len(changes.snapshot()) > 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, []string{path}, changes.snapshot())
}

func TestWatcher_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o600))

	w := NewWatcher(logger.NewNop(), 20*time.Millisecond)
	w.Watch(path)
	var changes changeLog
	w.OnChange(changes.record)
	runWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("b: 1\n"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, changes.snapshot())
}

func TestWatcher_SeesReplacement(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cert.pem")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	w := NewWatcher(logger.NewNop(), 20*time.Millisecond)
	w.Watch(path)
	var changes changeLog
	w.OnChange(changes.record)
	runWatcher(t, w)

	tmp := filepath.Join(dir, "cert.pem.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("new"), 0o600))
	require.NoError(t, os.Rename(tmp, path))

	assert.Eventually(t, func() bool { return len(changes.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_EveryCallbackRuns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	w := NewWatcher(nil, 20*time.Millisecond)
	w.Watch(path)
	var first, second changeLog
	w.OnChange(first.record)
	w.OnChange(second.record)
	runWatcher(t, w)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	assert.Eventually(t, func() bool {
		return len(first.snapshot()) == 1 && len(second.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_MissingDirFails(t *testing.T) {
	w := NewWatcher(logger.NewNop(), 0)
	w.Watch(filepath.Join(t.TempDir(), "absent", "server.yaml"))
	err := w.Run(context.Background())
	assert.ErrorContains(t, err, "watch")
}

func TestWatcher_NoCallbackAfterStop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	w := NewWatcher(logger.NewNop(), 100*time.Millisecond)
	w.Watch(path)
	var changes changeLog
	w.OnChange(changes.record)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, changes.snapshot())
}
