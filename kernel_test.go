package flowkernel

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKernelConfig() *Config {
	cfg := DefaultConfig()
	cfg.Kernel.Name = "test"
	cfg.Kernel.ProgressSchedule = ""
	cfg.Kernel.StopTimeout = "5s"
	return cfg
}

func newTestKernel(t *testing.T, cfg *Config, opts ...KernelOption) (*Kernel, *recordingLogger) {
	t.Helper()
	logger := &recordingLogger{}
	opts = append([]KernelOption{WithFactory(testFactory(t))}, opts...)
	k, err := NewKernel(cfg, logger, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if k.IsStarted() {
			_ = k.Stop(context.Background())
		}
		_ = k.Root().RemoveAll(context.Background())
		k.Root().Wait()
	})
	return k, logger
}

type frontendFunc func(ctx context.Context) error

func (f frontendFunc) WaitInitialized(ctx context.Context) error { return f(ctx) }

func TestNewKernelValidatesConfig(t *testing.T) {
	t.Parallel()
	_, err := NewKernel(nil, nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	cfg := testKernelConfig()
	cfg.Kernel.Name = ""
	_, err = NewKernel(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewKernel(testKernelConfig(), nil, WithFactory(nil))
	assert.Error(t, err)

	k, err := NewKernel(testKernelConfig(), nil)
	require.NoError(t, err)
	assert.NotNil(t, k.Factory())
	assert.Equal(t, "test", k.Root().Name())
}

func TestKernelStartStop(t *testing.T) {
	t.Parallel()
	cfg := testKernelConfig()
	cfg.Kernel.DefaultModules = []string{"source", "unknown", "relay"}
	k, logger := newTestKernel(t, cfg)

	require.NoError(t, k.Start(testContext(t)))
	assert.True(t, k.IsStarted())
	assert.ErrorIs(t, k.Start(testContext(t)), ErrKernelStarted)
	require.Len(t, k.Modules(), 2)
	assert.Equal(t, "source", k.Modules()[0].Prototype())
	assert.True(t, logger.has("warn", "Default module not available, skipping"))

	require.NoError(t, k.Stop(testContext(t)))
	assert.False(t, k.IsStarted())
	assert.ErrorIs(t, k.Stop(testContext(t)), ErrKernelNotStarted)
	assert.Len(t, k.Modules(), 2, "stop keeps the graph")
	for _, m := range k.Modules() {
		assert.False(t, m.IsRunning())
	}
}

func TestKernelWaitsForFrontend(t *testing.T) {
	t.Parallel()
	errNotReady := errors.New("frontend failed")
	k, _ := newTestKernel(t, testKernelConfig(), WithFrontend(frontendFunc(func(context.Context) error {
		return errNotReady
	})))

	err := k.Start(testContext(t))
	assert.ErrorIs(t, err, errNotReady)
	assert.False(t, k.IsStarted())
}

func TestKernelLoadsProjectOnStart(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.fkp")
	require.NoError(t, os.WriteFile(path, []byte(sampleProject), 0o600))

	cfg := testKernelConfig()
	cfg.Kernel.Project = path
	k, _ := newTestKernel(t, cfg)
	require.NoError(t, k.Start(testContext(t)))

	assert.Len(t, k.Modules(), 3)

	var buf bytes.Buffer
	require.NoError(t, k.SaveProject(&buf))
	assert.Contains(t, buf.String(), "CONNECTION:(1,out)->(2,in)")

	_, err := k.LoadProjectFile(testContext(t), filepath.Join(dir, "missing.fkp"))
	assert.Error(t, err)
}

func TestKernelGraphOperations(t *testing.T) {
	t.Parallel()
	k, _ := newTestKernel(t, testKernelConfig())

	src, err := k.CreateModule("source")
	require.NoError(t, err)
	gain, err := k.CreateModule("gain")
	require.NoError(t, err)
	_, err = k.CreateModule("missing")
	assert.ErrorIs(t, err, ErrPrototypeNotFound)
	require.NoError(t, src.WaitReady(testContext(t)))
	require.NoError(t, gain.WaitReady(testContext(t)))

	require.NoError(t, k.Connect(src.Handle(), "out", gain.Handle(), "in"))
	got, err := k.Module(gain.Handle())
	require.NoError(t, err)
	assert.Same(t, gain, got)

	require.NoError(t, k.SetProperty(gain.Handle(), "factor", "0.5"))
	props, err := k.Properties(gain.Handle())
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, 0.5, props[0].Get())
	assert.ErrorIs(t, k.SetProperty(gain.Handle(), "nope", "1"), ErrPropertyNotFound)
	assert.ErrorIs(t, k.SetProperty(gain.Handle(), "factor", "x"), ErrPropertyValue)
	assert.ErrorIs(t, k.SetProperty(99, "factor", "1"), ErrModuleNotFound)
	_, err = k.Properties(99)
	assert.ErrorIs(t, err, ErrModuleNotFound)

	require.NoError(t, k.Disconnect(src.Handle(), "out", gain.Handle(), "in"))
	assert.ErrorIs(t, k.Disconnect(src.Handle(), "out", gain.Handle(), "in"), ErrNotConnected)

	require.NoError(t, k.Connect(src.Handle(), "out", gain.Handle(), "in"))
	require.NoError(t, k.RemoveModule(testContext(t), src.Handle(), true))
	assert.Empty(t, k.Modules())
	assert.ErrorIs(t, k.RemoveModule(testContext(t), src.Handle(), false), ErrModuleNotFound)
}

func TestKernelLoadProjectPublishesEvent(t *testing.T) {
	t.Parallel()
	k, _ := newTestKernel(t, testKernelConfig())
	log := newEventLog("kernel")
	require.NoError(t, k.Root().RegisterObserver(log, EventTypeProjectLoaded))

	res, err := k.LoadProject(testContext(t), strings.NewReader(sampleProject))
	require.NoError(t, err)
	assert.Len(t, res.Modules, 3)

	ev := log.waitFor(t, EventTypeProjectLoaded)
	var data map[string]any
	require.NoError(t, ev.DataAs(&data))
	assert.EqualValues(t, 3, data["modules"])
}

func TestKernelReconfigure(t *testing.T) {
	t.Parallel()
	k, logger := newTestKernel(t, testKernelConfig())
	require.NoError(t, k.Start(testContext(t)))
	log := newEventLog("config")
	require.NoError(t, k.Root().RegisterObserver(log, EventTypeConfigReloaded))

	assert.ErrorIs(t, k.Reconfigure(nil), ErrConfigNil)
	bad := testKernelConfig()
	bad.Kernel.ProgressSchedule = "bogus"
	assert.ErrorIs(t, k.Reconfigure(bad), ErrInvalidConfig)

	next := testKernelConfig()
	next.Kernel.ProgressSchedule = "@every 1h"
	next.Kernel.StopTimeout = "1s"
	require.NoError(t, k.Reconfigure(next))
	assert.Same(t, next, k.Config())
	assert.Equal(t, "@every 1h", k.monitor.Schedule())
	assert.True(t, logger.has("info", "Config changed"))
	assert.True(t, logger.has("warn", "Config change takes effect on next start"))

	ev := log.waitFor(t, EventTypeConfigReloaded)
	var data map[string]any
	require.NoError(t, ev.DataAs(&data))
	changes, ok := data["changes"].([]any)
	require.True(t, ok)
	assert.Len(t, changes, 2)
}

func TestKernelProgress(t *testing.T) {
	t.Parallel()
	k, _ := newTestKernel(t, testKernelConfig())
	reports := newEventLog("progress")
	require.NoError(t, k.Root().RegisterObserver(reports, EventTypeProgressReported))

	p := NewProgress("import", 10)
	p.Increment(3)
	k.Root().Progress().AddSubProgress(p)

	r := k.PollProgress()
	assert.True(t, r.Pending)
	assert.InDelta(t, 30.0, r.Percent, 1e-9)
	assert.Equal(t, r, k.Progress())

	ev := reports.waitFor(t, EventTypeProgressReported)
	var data map[string]any
	require.NoError(t, ev.DataAs(&data))
	assert.Equal(t, true, data["pending"])
	assert.Equal(t, 30.0, data["percent"])
}

func TestKernelEmitsLifecycleEvents(t *testing.T) {
	t.Parallel()
	k, _ := newTestKernel(t, testKernelConfig())
	var types []string
	obs := NewFunctionalObserver("sync", func(_ context.Context, ev cloudevents.Event) error {
		types = append(types, ev.Type())
		return nil
	})
	require.NoError(t, k.Root().RegisterObserver(obs, EventTypeKernelStarted))

	require.NoError(t, k.Start(WithSynchronousNotification(testContext(t))))
	assert.Equal(t, []string{EventTypeKernelStarted}, types)
}
