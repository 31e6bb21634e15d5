package flowkernel

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testTimeout      = 5 * time.Second
	testPollInterval = 5 * time.Millisecond
)

type logEntry struct {
	level string
	msg   string
	args  []any
}

// recordingLogger keeps every entry so tests can assert on what was logged.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *recordingLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

// stubImpl declares connectors of one value type and idles until stopped. main
// replaces the default body.
type stubImpl struct {
	inputs  []string
	outputs []string
	typeID  TypeID
	props   map[string]any
	main    func(ctx context.Context, m *Module) error
}

func (s *stubImpl) Setup(m *Module) error {
	typeID := s.typeID
	if typeID == "" {
		typeID = TypeOf[int]()
	}
	for _, name := range s.inputs {
		if _, err := m.AddInput(name, "input "+name, typeID); err != nil {
			return err
		}
	}
	for _, name := range s.outputs {
		if _, err := m.AddOutput(name, "output "+name, typeID); err != nil {
			return err
		}
	}
	for name, initial := range s.props {
		if _, err := m.Properties().Add(name, "property "+name, initial); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubImpl) Main(ctx context.Context, m *Module) error {
	if s.main != nil {
		return s.main(ctx, m)
	}
	return idle(ctx, m)
}

// idle is the canonical body: ready, then wait until stopped.
func idle(ctx context.Context, m *Module) error {
	m.Ready()
	for !m.ShutdownRequested() {
		if err := m.Wait(ctx); err != nil {
			return nil
		}
	}
	return nil
}

func sourceImpl() Implementation      { return &stubImpl{outputs: []string{"out"}} }
func sinkImpl() Implementation        { return &stubImpl{inputs: []string{"in"}} }
func passThroughImpl() Implementation { return &stubImpl{inputs: []string{"in"}, outputs: []string{"out"}} }

func newTestModule(t *testing.T, name string, impl Implementation) *Module {
	t.Helper()
	m, err := NewModule(name, fmt.Sprintf("%s test module", name), impl)
	require.NoError(t, err)
	return m
}

func newTestContainer(t *testing.T, opts ...ContainerOption) (*Container, *recordingLogger) {
	t.Helper()
	logger := &recordingLogger{}
	c, err := NewContainer("test", "test container", logger, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_ = c.RemoveAll(ctx)
		c.Wait()
	})
	return c, logger
}

// addReady adds a module built from impl to c and waits until it is ready.
func addReady(t *testing.T, c *Container, name string, impl Implementation) *Module {
	t.Helper()
	m := newTestModule(t, name, impl)
	require.NoError(t, c.Add(m))
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, m.WaitReady(ctx))
	return m
}

func mustOutput(t *testing.T, m *Module, name string) *OutputConnector {
	t.Helper()
	out, err := m.Output(name)
	require.NoError(t, err)
	return out
}

func mustInput(t *testing.T, m *Module, name string) *InputConnector {
	t.Helper()
	in, err := m.Input(name)
	require.NoError(t, err)
	return in
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}
