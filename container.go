package flowkernel

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Container owns a set of modules and the connections between them. It is the
// only place where modules are added, removed and started. All structural
// changes of the graph (adding and erasing modules, linking and unlinking
// connectors) happen under its lock; module bodies never hold it while waiting.
type Container struct {
	name        string
	description string

	mu         sync.RWMutex
	modules    map[Handle]*Module
	order      []Handle
	nextHandle Handle

	notifiers *notifierRegistry

	observerMutex sync.RWMutex
	observers     map[string]*subscription

	logger   Logger
	parent   *Container
	factory  *Factory
	progress *ProgressCombiner
	workers  sync.WaitGroup
}

// ContainerOption represents a configuration option for a container.
type ContainerOption func(*Container) error

// WithParent nests the container below parent. Events of the container are
// forwarded to the observers of parent, and its progress is aggregated into
// parent's progress.
func WithParent(parent *Container) ContainerOption {
	return func(c *Container) error {
		if parent == nil {
			return fmt.Errorf("container %q: parent is nil", c.name)
		}
		c.parent = parent
		return nil
	}
}

// WithDefaultNotifiers registers the logging notifiers, see AddDefaultNotifiers.
func WithDefaultNotifiers() ContainerOption {
	return func(c *Container) error {
		c.AddDefaultNotifiers()
		return nil
	}
}

// NewContainer creates an empty container.
func NewContainer(name, description string, logger Logger, opts ...ContainerOption) (*Container, error) {
	c := &Container{
		name:        name,
		description: description,
		modules:     make(map[Handle]*Module),
		observers:   make(map[string]*subscription),
		logger:      loggerOrNop(logger),
		progress:    NewProgressCombiner(name),
	}
	c.notifiers = newNotifierRegistry(c.logger, c.publish)

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.parent != nil {
		if c.factory == nil {
			c.factory = c.parent.factory
		}
		c.parent.progress.AddSubProgress(c.progress)
	}
	return c, nil
}

// Name returns the container name.
func (c *Container) Name() string { return c.name }

// Description returns the container description.
func (c *Container) Description() string { return c.description }

// Parent returns the enclosing container, or nil for a root container.
func (c *Container) Parent() *Container { return c.parent }

// Root returns the outermost container of the parent chain.
func (c *Container) Root() *Container {
	root := c
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// Progress returns the combiner aggregating the progress of all modules.
func (c *Container) Progress() *ProgressCombiner { return c.progress }

// Logger returns the container logger.
func (c *Container) Logger() Logger { return c.logger }

// Add associates m with the container and starts its worker. It returns before
// the module is ready. A module can be added to one container only once.
func (c *Container) Add(m *Module) error {
	if m == nil {
		return ErrModuleNil
	}

	c.mu.Lock()
	if !m.container.CompareAndSwap(nil, c) {
		c.mu.Unlock()
		return fmt.Errorf("module %q: %w", m.Name(), ErrModuleAlreadyAssociated)
	}
	if from, ok := m.state.transition(StateAssociated); !ok {
		m.container.Store(nil)
		c.mu.Unlock()
		return fmt.Errorf("module %q %s -> %s: %w", m.Name(), from, StateAssociated, ErrInvalidTransition)
	}
	c.nextHandle++
	h := c.nextHandle
	m.handle.Store(uint64(h))
	c.modules[h] = m
	c.order = append(c.order, h)
	c.mu.Unlock()

	c.progress.AddSubProgress(m.progress)
	c.logger.Info("Module added", "container", c.name, "module", m.Name(), "handle", h)
	c.notifiers.fireModule(EventAssociated, m)

	m.initializeConnectors()
	c.startWorker(m)
	return nil
}

// Modules returns the associated modules in insertion order.
func (c *Container) Modules() []*Module {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]*Module, 0, len(c.order))
	for _, h := range c.order {
		list = append(list, c.modules[h])
	}
	return list
}

// Module returns the module with handle h.
func (c *Container) Module(h Handle) (*Module, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.modules[h]
	if !ok {
		return nil, fmt.Errorf("handle %d: %w", h, ErrModuleNotFound)
	}
	return m, nil
}

// ModulesByPrototype returns the modules created from prototype, in insertion order.
func (c *Container) ModulesByPrototype(prototype string) []*Module {
	return slices.DeleteFunc(c.Modules(), func(m *Module) bool {
		return m.Prototype() != prototype
	})
}

// Len returns the number of associated modules.
func (c *Container) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.modules)
}

// Connect links output outName of module from with input inName of module to.
func (c *Container) Connect(from Handle, outName string, to Handle, inName string) error {
	out, in, err := c.lookupPair(from, outName, to, inName)
	if err != nil {
		return err
	}
	return out.Connect(in)
}

// Disconnect removes the link between output outName of from and input inName
// of to. It fails with ErrNotConnected when the connectors are not linked.
func (c *Container) Disconnect(from Handle, outName string, to Handle, inName string) error {
	out, in, err := c.lookupPair(from, outName, to, inName)
	if err != nil {
		return err
	}
	if !out.IsConnectedTo(in) {
		return fmt.Errorf("%s -> %s: %w", out.CanonicalName(), in.CanonicalName(), ErrNotConnected)
	}
	return out.Disconnect(in)
}

func (c *Container) lookupPair(from Handle, outName string, to Handle, inName string) (*OutputConnector, *InputConnector, error) {
	src, err := c.Module(from)
	if err != nil {
		return nil, nil, err
	}
	dst, err := c.Module(to)
	if err != nil {
		return nil, nil, err
	}
	out, err := src.Output(outName)
	if err != nil {
		return nil, nil, err
	}
	in, err := dst.Input(inName)
	if err != nil {
		return nil, nil, err
	}
	return out, in, nil
}

// ConnectionCandidate is a compatible, not yet made connection.
type ConnectionCandidate struct {
	Output *OutputConnector
	Input  *InputConnector
}

// Apply makes the connection.
func (cc ConnectionCandidate) Apply() error {
	return cc.Output.Connect(cc.Input)
}

func (cc ConnectionCandidate) String() string {
	return cc.Output.CanonicalName() + " -> " + cc.Input.CanonicalName()
}

// PossibleConnections lists every compatible connection between m and the other
// modules of the container, in both directions. Inputs that already have an
// upstream are skipped.
func (c *Container) PossibleConnections(m *Module) []ConnectionCandidate {
	var candidates []ConnectionCandidate
	for _, other := range c.Modules() {
		if other == m {
			continue
		}
		candidates = appendCandidates(candidates, m.Outputs(), other.Inputs())
		candidates = appendCandidates(candidates, other.Outputs(), m.Inputs())
	}
	return candidates
}

func appendCandidates(dst []ConnectionCandidate, outs []*OutputConnector, ins []*InputConnector) []ConnectionCandidate {
	for _, out := range outs {
		for _, in := range ins {
			if in.IsConnected() || !out.Connectable(in) || !in.Connectable(out) {
				continue
			}
			dst = append(dst, ConnectionCandidate{Output: out, Input: in})
		}
	}
	return dst
}

// Stop requests all modules to stop and waits for their workers. Modules stay
// associated; use RemoveAll to also erase them.
func (c *Container) Stop(ctx context.Context) error {
	modules := c.Modules()
	for _, m := range modules {
		m.RequestStop()
	}
	if err := joinWorkers(ctx, modules); err != nil {
		return fmt.Errorf("container %q: stopping modules: %w", c.name, err)
	}
	c.logger.Info("Container stopped", "container", c.name, "modules", len(modules))
	return nil
}

// RemoveAll removes every module of the container.
func (c *Container) RemoveAll(ctx context.Context) error {
	modules := c.Modules()
	if len(modules) == 0 {
		return nil
	}
	return c.removeSet(ctx, modules)
}

// Wait blocks until every worker started by the container returned.
func (c *Container) Wait() {
	c.workers.Wait()
}

// joinWorkers waits until the worker of every module returned or ctx is done.
func joinWorkers(ctx context.Context, modules []*Module) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range modules {
		m := m
		g.Go(func() error {
			if err := m.running.WaitUntil(gctx, false); err != nil {
				return fmt.Errorf("module %s: %w", m, err)
			}
			return nil
		})
	}
	return g.Wait()
}
