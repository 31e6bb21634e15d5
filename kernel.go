package flowkernel

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Frontend is an optional user interface the kernel waits for before it
// creates the default modules.
type Frontend interface {
	WaitInitialized(ctx context.Context) error
}

// KernelOption represents a configuration option for the kernel.
type KernelOption func(*Kernel) error

// WithFactory sets the prototype factory. Without it the kernel starts with an
// empty factory.
func WithFactory(f *Factory) KernelOption {
	return func(k *Kernel) error {
		if f == nil {
			return fmt.Errorf("kernel: factory is nil")
		}
		k.factory = f
		return nil
	}
}

// WithFrontend makes Start wait for fe before creating default modules.
func WithFrontend(fe Frontend) KernelOption {
	return func(k *Kernel) error {
		k.frontend = fe
		return nil
	}
}

// WithMetrics attaches m to the root container.
func WithMetrics(m *Metrics) KernelOption {
	return func(k *Kernel) error {
		k.metrics = m
		return nil
	}
}

// Kernel owns the root container and the prototype factory and is the entry
// point for everything that drives the graph from outside: the CLI, the HTTP
// API and project files. There is no global kernel; create one with NewKernel
// and pass it where it is needed.
type Kernel struct {
	logger   Logger
	factory  *Factory
	frontend Frontend
	metrics  *Metrics
	root     *Container
	monitor  *ProgressMonitor

	mu       sync.RWMutex
	cfg      *Config
	started  bool
	progress ProgressReading
}

// NewKernel creates a stopped kernel.
func NewKernel(cfg *Config, logger Logger, opts ...KernelOption) (*Kernel, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	k := &Kernel{
		cfg:    cfg,
		logger: loggerOrNop(logger),
	}
	for _, opt := range opts {
		if err := opt(k); err != nil {
			return nil, err
		}
	}
	if k.factory == nil {
		k.factory = NewFactory()
	}

	root, err := NewContainer(cfg.Kernel.Name, "Root module container", k.logger,
		WithPrototypes(k.factory), WithDefaultNotifiers())
	if err != nil {
		return nil, err
	}
	k.root = root

	if k.metrics != nil {
		if err := k.metrics.Attach(root); err != nil {
			return nil, fmt.Errorf("attaching metrics: %w", err)
		}
	}
	k.monitor = NewProgressMonitor(root.Progress(), k.logger, k.reportProgress)
	return k, nil
}

// Root returns the root container.
func (k *Kernel) Root() *Container { return k.root }

// Factory returns the prototype factory.
func (k *Kernel) Factory() *Factory { return k.factory }

// Logger returns the kernel logger.
func (k *Kernel) Logger() Logger { return k.logger }

// Config returns the active configuration.
func (k *Kernel) Config() *Config {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.cfg
}

// IsStarted reports whether Start succeeded and Stop was not called yet.
func (k *Kernel) IsStarted() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.started
}

// Start waits for the frontend, starts the progress monitor, creates the
// default modules and loads the configured project file.
func (k *Kernel) Start(ctx context.Context) error {
	k.mu.Lock()
	if k.started {
		k.mu.Unlock()
		return ErrKernelStarted
	}
	k.started = true
	cfg := k.cfg
	k.mu.Unlock()

	if k.frontend != nil {
		k.logger.Debug("Waiting for frontend")
		if err := k.frontend.WaitInitialized(ctx); err != nil {
			k.setStopped()
			return fmt.Errorf("waiting for frontend: %w", err)
		}
	}

	if cfg.Kernel.ProgressSchedule != "" {
		if err := k.monitor.Start(cfg.Kernel.ProgressSchedule); err != nil {
			k.setStopped()
			return err
		}
	}

	for _, name := range cfg.Kernel.DefaultModules {
		if !k.factory.IsPrototypeAvailable(name) {
			k.logger.Warn("Default module not available, skipping", "prototype", name)
			continue
		}
		if _, err := k.CreateModule(name); err != nil {
			k.logger.Error("Cannot start default module", "prototype", name, "error", err)
		}
	}

	if cfg.Kernel.Project != "" {
		if _, err := k.LoadProjectFile(ctx, cfg.Kernel.Project); err != nil {
			k.logger.Error("Cannot load project", "path", cfg.Kernel.Project, "error", err)
		}
	}

	k.logger.Info("Kernel started", "container", k.root.Name(), "modules", k.root.Len())
	k.root.emitEvent(ctx, EventTypeKernelStarted, map[string]any{"modules": k.root.Len()}, nil)
	return nil
}

func (k *Kernel) setStopped() {
	k.mu.Lock()
	k.started = false
	k.mu.Unlock()
}

// Stop stops the progress monitor and all modules. The graph stays in place so
// it can still be inspected or saved.
func (k *Kernel) Stop(ctx context.Context) error {
	k.mu.Lock()
	if !k.started {
		k.mu.Unlock()
		return ErrKernelNotStarted
	}
	k.started = false
	cfg := k.cfg
	k.mu.Unlock()

	timeout, _ := cfg.Kernel.StopTimeoutDuration()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var lastErr error
	if err := k.monitor.Stop(ctx); err != nil {
		k.logger.Error("Error stopping progress monitor", "error", err)
		lastErr = err
	}
	if err := k.root.Stop(ctx); err != nil {
		k.logger.Error("Error stopping modules", "error", err)
		lastErr = err
	}

	k.logger.Info("Kernel stopped", "container", k.root.Name())
	k.root.emitEvent(context.Background(), EventTypeKernelStopped, nil, nil)
	return lastErr
}

// CreateModule creates a module from prototype and adds it to the root container.
func (k *Kernel) CreateModule(prototype string) (*Module, error) {
	m, err := k.factory.Create(prototype)
	if err != nil {
		return nil, err
	}
	if err := k.root.Add(m); err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveModule removes the module with handle h, with its dependents if deep is set.
func (k *Kernel) RemoveModule(ctx context.Context, h Handle, deep bool) error {
	m, err := k.root.Module(h)
	if err != nil {
		return err
	}
	if deep {
		return k.root.RemoveDeep(ctx, m)
	}
	return k.root.Remove(ctx, m)
}

// Connect links output outName of module from with input inName of module to.
func (k *Kernel) Connect(from Handle, outName string, to Handle, inName string) error {
	return k.root.Connect(from, outName, to, inName)
}

// Disconnect removes the link between output outName of from and input inName of to.
func (k *Kernel) Disconnect(from Handle, outName string, to Handle, inName string) error {
	return k.root.Disconnect(from, outName, to, inName)
}

// Modules returns the modules of the root container.
func (k *Kernel) Modules() []*Module {
	return k.root.Modules()
}

// Module returns the module with handle h.
func (k *Kernel) Module(h Handle) (*Module, error) {
	return k.root.Module(h)
}

// Properties returns the properties of the module with handle h.
func (k *Kernel) Properties(h Handle) ([]*Property, error) {
	m, err := k.root.Module(h)
	if err != nil {
		return nil, err
	}
	return m.Properties().List(), nil
}

// SetProperty parses value and assigns it to property name of module h.
func (k *Kernel) SetProperty(h Handle, name, value string) error {
	m, err := k.root.Module(h)
	if err != nil {
		return err
	}
	p, ok := m.Properties().Find(name)
	if !ok {
		return fmt.Errorf("module %s property %q: %w", m, name, ErrPropertyNotFound)
	}
	return p.SetString(value)
}

// LoadProject parses a project file from r and builds it in the root container.
func (k *Kernel) LoadProject(ctx context.Context, r io.Reader) (*ProjectResult, error) {
	project, err := ParseProject(r, k.logger)
	if err != nil {
		return nil, err
	}
	res, err := project.Apply(ctx, k.root, k.factory)
	if err != nil {
		return res, err
	}
	k.root.emitEvent(ctx, EventTypeProjectLoaded, map[string]any{
		"modules": len(res.Modules),
		"skipped": res.Skipped,
	}, nil)
	return res, nil
}

// LoadProjectFile loads the project file at path.
func (k *Kernel) LoadProjectFile(ctx context.Context, path string) (*ProjectResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening project: %w", err)
	}
	defer f.Close()
	k.logger.Info("Loading project", "path", path)
	return k.LoadProject(ctx, f)
}

// SaveProject writes the root container as a project file.
func (k *Kernel) SaveProject(w io.Writer) error {
	return WriteProject(w, k.root)
}

// Reconfigure applies the dynamic parts of cfg: the progress schedule. Other
// fields take effect on the next start and are only reported.
func (k *Kernel) Reconfigure(cfg *Config) error {
	if cfg == nil {
		return ErrConfigNil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	k.mu.Lock()
	started := k.started
	changes := DiffConfig(k.cfg, cfg)
	k.cfg = cfg
	k.mu.Unlock()

	if started {
		if err := k.monitor.Reschedule(cfg.Kernel.ProgressSchedule); err != nil {
			return err
		}
	}
	for _, c := range changes {
		if c.Dynamic {
			k.logger.Info("Config changed", "field", c.FieldPath, "old", c.OldValue, "new", c.NewValue)
		} else {
			k.logger.Warn("Config change takes effect on next start", "field", c.FieldPath)
		}
	}
	k.logger.Info("Kernel reconfigured", "changes", len(changes))
	k.root.emitEvent(context.Background(), EventTypeConfigReloaded, map[string]any{
		"progressSchedule": cfg.Kernel.ProgressSchedule,
		"changes":          changes,
	}, nil)
	return nil
}

// Progress returns the last reading taken by the progress monitor.
func (k *Kernel) Progress() ProgressReading {
	return k.root.Progress().Reading()
}

// PollProgress recomputes the progress reading right away.
func (k *Kernel) PollProgress() ProgressReading {
	k.monitor.Poll()
	return k.Progress()
}

func (k *Kernel) reportProgress(r ProgressReading) {
	k.mu.Lock()
	changed := r.Pending != k.progress.Pending || r.Determined != k.progress.Determined || r.Percent != k.progress.Percent
	k.progress = r
	k.mu.Unlock()
	if !changed {
		return
	}
	k.logger.Debug("Progress", "pending", r.Pending, "determined", r.Determined, "percent", r.Percent)
	k.root.emitEvent(context.Background(), EventTypeProgressReported, map[string]any{
		"pending":    r.Pending,
		"determined": r.Determined,
		"percent":    r.Percent,
	}, nil)
}
