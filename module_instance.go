package flowkernel

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handle is the stable reference of a module inside its container. Handles are
// never reused by a container.
type Handle uint64

// Module is a running instance of an Implementation: it owns the connectors and
// properties the implementation declared and the lifecycle flags of its worker.
type Module struct {
	id          uuid.UUID
	handle      atomic.Uint64
	prototype   string
	description string
	impl        Implementation

	connMu    sync.RWMutex
	inputs    []*InputConnector
	outputs   []*OutputConnector
	finalized bool

	properties *Properties
	progress   *ProgressCombiner

	state     atomicState
	container atomic.Pointer[Container]

	dataChanged *Condition
	waitSet     *ConditionSet
	shutdown    *Flag[bool]
	running     *Flag[bool]
	crashed     *Flag[bool]
	ready       *Flag[bool]
	readyOnce   sync.Once
	crashErr    atomic.Pointer[ModuleRuntimeError]

	ctx    context.Context
	cancel context.CancelFunc
}

// NewModule creates a module instance for impl and lets it declare its
// connectors and properties. prototype is the name the instance was created
// from; it doubles as the module name.
func NewModule(prototype, description string, impl Implementation) (*Module, error) {
	if impl == nil {
		return nil, ErrImplementationNil
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Module{
		id:          id,
		prototype:   prototype,
		description: description,
		impl:        impl,
		properties:  newProperties(),
		progress:    NewProgressCombiner(prototype),
		dataChanged: NewCondition(),
		waitSet:     NewConditionSet(),
		shutdown:    NewFlag(false),
		running:     NewFlag(false),
		crashed:     NewFlag(false),
		ready:       NewFlag(false),
		ctx:         ctx,
		cancel:      cancel,
	}
	m.waitSet.Add(m.dataChanged)
	m.waitSet.Add(m.shutdown.Condition())
	m.waitSet.Add(m.properties.Changed())

	if err := impl.Setup(m); err != nil {
		cancel()
		return nil, fmt.Errorf("setup of module %q failed: %w", prototype, err)
	}
	return m, nil
}

// ID returns the globally unique module id.
func (m *Module) ID() uuid.UUID { return m.id }

// Handle returns the container handle. It is zero until the module is added.
func (m *Module) Handle() Handle { return Handle(m.handle.Load()) }

// Name returns the module name.
func (m *Module) Name() string { return m.prototype }

// Prototype returns the name of the prototype the module was created from.
func (m *Module) Prototype() string { return m.prototype }

// Description returns the module description.
func (m *Module) Description() string { return m.description }

// Implementation returns the module behaviour.
func (m *Module) Implementation() Implementation { return m.impl }

// Container returns the container the module is associated with, or nil.
func (m *Module) Container() *Container { return m.container.Load() }

// State returns the lifecycle state.
func (m *Module) State() State { return m.state.Load() }

// Properties returns the property set.
func (m *Module) Properties() *Properties { return m.properties }

// Progress returns the module's progress combiner. Module bodies attach their
// own Progress leaves to it.
func (m *Module) Progress() *ProgressCombiner { return m.progress }

// Logger returns the logger of the owning container.
func (m *Module) Logger() Logger {
	if c := m.Container(); c != nil {
		return c.logger
	}
	return nopLogger{}
}

// AddInput declares an input connector. It fails once the connector set was
// finalized by adding the module to a container.
func (m *Module) AddInput(name, description string, typeID TypeID) (*InputConnector, error) {
	in := newInputConnector(m, name, description, typeID)
	if err := m.addConnector(in); err != nil {
		return nil, err
	}
	return in, nil
}

// AddOutput declares an output connector. It fails once the connector set was
// finalized by adding the module to a container.
func (m *Module) AddOutput(name, description string, typeID TypeID) (*OutputConnector, error) {
	out := newOutputConnector(m, name, description, typeID)
	if err := m.addConnector(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Module) addConnector(c Connector) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.finalized {
		return fmt.Errorf("module %q: %w", m.Name(), ErrConnectorsFinalized)
	}
	for _, in := range m.inputs {
		if in.name == c.Name() {
			return fmt.Errorf("module %q connector %q: %w", m.Name(), c.Name(), ErrDuplicateConnector)
		}
	}
	for _, out := range m.outputs {
		if out.name == c.Name() {
			return fmt.Errorf("module %q connector %q: %w", m.Name(), c.Name(), ErrDuplicateConnector)
		}
	}

	switch x := c.(type) {
	case *InputConnector:
		m.inputs = append(m.inputs, x)
	case *OutputConnector:
		m.outputs = append(m.outputs, x)
	default:
		return ErrUnknownDirection
	}
	return nil
}

// initializeConnectors freezes the connector set.
func (m *Module) initializeConnectors() {
	m.connMu.Lock()
	m.finalized = true
	m.connMu.Unlock()
}

// IsInitialized reports whether the connector set is finalized.
func (m *Module) IsInitialized() bool {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.finalized
}

// Inputs returns the input connectors in declaration order.
func (m *Module) Inputs() []*InputConnector {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return slices.Clone(m.inputs)
}

// Outputs returns the output connectors in declaration order.
func (m *Module) Outputs() []*OutputConnector {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return slices.Clone(m.outputs)
}

// Connectors returns all connectors, inputs first.
func (m *Module) Connectors() []Connector {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	all := make([]Connector, 0, len(m.inputs)+len(m.outputs))
	for _, in := range m.inputs {
		all = append(all, in)
	}
	for _, out := range m.outputs {
		all = append(all, out)
	}
	return all
}

// Input looks up an input connector by name.
func (m *Module) Input(name string) (*InputConnector, error) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	for _, in := range m.inputs {
		if in.name == name {
			return in, nil
		}
	}
	return nil, &ConnectorNotFoundError{Module: m.Name(), Connector: name, Direction: DirectionInput}
}

// Output looks up an output connector by name.
func (m *Module) Output(name string) (*OutputConnector, error) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	for _, out := range m.outputs {
		if out.name == name {
			return out, nil
		}
	}
	return nil, &ConnectorNotFoundError{Module: m.Name(), Connector: name, Direction: DirectionOutput}
}

// RemoveConnectors disconnects every connector and releases the connector set.
// It is idempotent.
func (m *Module) RemoveConnectors() {
	for _, c := range m.Connectors() {
		c.DisconnectAll()
	}
	m.releaseConnectors()
}

func (m *Module) releaseConnectors() {
	m.connMu.Lock()
	m.inputs = nil
	m.outputs = nil
	m.connMu.Unlock()
}

// Ready marks the module as ready. Only the first call has an effect.
func (m *Module) Ready() {
	m.readyOnce.Do(func() {
		if _, ok := m.state.transition(StateReady); !ok {
			return
		}
		if c := m.Container(); c != nil {
			c.logger.Debug("Module ready", "module", m.Name(), "handle", m.Handle())
			c.notifiers.fireModule(EventReady, m)
		}
		// raised after READY so WaitReady observes the notifiers as done
		m.ready.Set(true)
	})
}

// Wait blocks until new input data arrived, a property or a custom condition
// changed, or shutdown was requested. It returns immediately when shutdown
// was already requested. The only error is ctx's.
func (m *Module) Wait(ctx context.Context) error {
	if m.State() == StateReady {
		m.state.transition(StateRunning)
	}
	if m.ShutdownRequested() {
		return nil
	}
	return m.waitSet.Wait(ctx)
}

// WaitReady blocks until the module called Ready. It fails when the module
// crashed or returned before, or when ctx ends.
func (m *Module) WaitReady(ctx context.Context) error {
	for {
		readyCh := m.ready.Condition().Changed()
		crashedCh := m.crashed.Condition().Changed()
		runningCh := m.running.Condition().Changed()
		switch {
		case m.IsReady():
			return nil
		case m.IsCrashed():
			return m.Err()
		case m.Container() != nil && !m.IsRunning():
			return fmt.Errorf("module %s: %w", m, ErrModuleStopped)
		}
		select {
		case <-readyCh:
		case <-crashedCh:
		case <-runningCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// AddCondition adds c to the module's wait-set.
func (m *Module) AddCondition(c *Condition) { m.waitSet.Add(c) }

// RemoveCondition removes c from the module's wait-set.
func (m *Module) RemoveCondition(c *Condition) { m.waitSet.Remove(c) }

// RequestStop asks the worker to return. It does not interrupt the worker: the
// shutdown flag is set, the wait-set is woken and the module context is
// cancelled; the body observes it at its next wake-up.
func (m *Module) RequestStop() {
	m.shutdown.Set(true)
	m.cancel()
}

// ShutdownRequested reports whether RequestStop was called.
func (m *Module) ShutdownRequested() bool { return m.shutdown.Get() }

// ShutdownFlag returns the wait-able shutdown flag.
func (m *Module) ShutdownFlag() *Flag[bool] { return m.shutdown }

// IsRunning reports whether the worker goroutine is alive.
func (m *Module) IsRunning() bool { return m.running.Get() }

// Running returns the wait-able running flag. Wait for false to join the worker.
func (m *Module) Running() *Flag[bool] { return m.running }

// IsCrashed reports whether the module body failed.
func (m *Module) IsCrashed() bool { return m.crashed.Get() }

// Crashed returns the wait-able crashed flag.
func (m *Module) Crashed() *Flag[bool] { return m.crashed }

// IsReady reports whether the module called Ready.
func (m *Module) IsReady() bool { return m.ready.Get() }

// ReadyState returns the wait-able ready flag.
func (m *Module) ReadyState() *Flag[bool] { return m.ready }

// Err returns the failure that crashed the module, or nil.
func (m *Module) Err() error {
	if e := m.crashErr.Load(); e != nil {
		return e
	}
	return nil
}

func (m *Module) String() string {
	return fmt.Sprintf("%s(%d)", m.Name(), m.Handle())
}
