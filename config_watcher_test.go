package flowkernel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWatcherReloads(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "kernel.yaml", "kernel:\n  progress_schedule: \"@every 1s\"\n")

	reloaded := make(chan *Config, 4)
	logger := &recordingLogger{}
	w := NewConfigWatcher(path, logger, func(cfg *Config) error {
		reloaded <- cfg
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Start(ctx), "second start is a no-op")
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(path, []byte("kernel:\n  progress_schedule: \"@every 5s\"\n"), 0o600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "@every 5s", cfg.Kernel.ProgressSchedule)
	case <-time.After(testTimeout):
		t.Fatal("config change not noticed")
	}
	assert.True(t, logger.has("info", "Config reloaded"))
}

func TestConfigWatcherKeepsConfigOnInvalidFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "kernel.yaml", "kernel:\n  name: a\n")

	called := make(chan struct{}, 1)
	logger := &recordingLogger{}
	w := NewConfigWatcher(path, logger, func(*Config) error {
		called <- struct{}{}
		return nil
	})
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(path, []byte("kernel:\n  name: \"\"\n"), 0o600))

	assert.Eventually(t, func() bool {
		return logger.has("error", "Reloading config failed, keeping current configuration")
	}, testTimeout, testPollInterval)
	assert.Empty(t, called)
}

func TestConfigWatcherIgnoresOtherFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "kernel.yaml", "kernel:\n  name: a\n")

	called := make(chan struct{}, 1)
	w := NewConfigWatcher(path, nil, func(*Config) error {
		called <- struct{}{}
		return nil
	})
	require.NoError(t, w.Start(context.Background()))

	writeFile(t, dir, "other.yaml", "kernel:\n  name: b\n")
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, called)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestConfigWatcherMissingDirectory(t *testing.T) {
	t.Parallel()
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "nope", "kernel.yaml"), nil, nil)
	assert.Error(t, w.Start(context.Background()))
}
