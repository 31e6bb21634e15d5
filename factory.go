package flowkernel

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// ConnectorInfo describes a connector declared by a prototype.
type ConnectorInfo struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Direction   Direction `json:"-" yaml:"-"`
	Type        TypeID    `json:"type" yaml:"type"`
}

// PropertyInfo describes a property declared by a prototype.
type PropertyInfo struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Type        string `json:"type" yaml:"type"`
	Default     string `json:"default" yaml:"default"`
}

// Prototype describes a registered module kind: what a module created from it
// declares after Setup.
type Prototype struct {
	Name         string          `json:"name" yaml:"name"`
	Description  string          `json:"description" yaml:"description"`
	Inputs       []ConnectorInfo `json:"inputs" yaml:"inputs"`
	Outputs      []ConnectorInfo `json:"outputs" yaml:"outputs"`
	Properties   []PropertyInfo  `json:"properties" yaml:"properties"`
	RegisteredAt time.Time       `json:"registeredAt" yaml:"-"`
}

// Accepts reports whether one of the prototype's inputs accepts values of typeID.
func (p Prototype) Accepts(typeID TypeID) bool {
	return slices.ContainsFunc(p.Inputs, func(ci ConnectorInfo) bool { return ci.Type == typeID })
}

type prototypeEntry struct {
	info Prototype
	ctor Constructor
}

// Factory is the registry of module prototypes. Every Create builds a fresh
// Implementation with the registered Constructor.
type Factory struct {
	mu     sync.RWMutex
	protos map[string]*prototypeEntry
	order  []string
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{protos: make(map[string]*prototypeEntry)}
}

// Register adds a prototype. The constructor is invoked once to describe the
// prototype's connectors and properties; that probe instance is never run.
func (f *Factory) Register(name, description string, ctor Constructor) error {
	if ctor == nil {
		return fmt.Errorf("prototype %q: %w", name, ErrImplementationNil)
	}
	probe, err := NewModule(name, description, ctor())
	if err != nil {
		return fmt.Errorf("prototype %q: %w", name, err)
	}
	probe.cancel()

	info := describe(probe)
	info.RegisteredAt = time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.protos[name]; exists {
		return fmt.Errorf("prototype %q: %w", name, ErrPrototypeExists)
	}
	f.protos[name] = &prototypeEntry{info: info, ctor: ctor}
	f.order = append(f.order, name)
	return nil
}

// MustRegister is like Register but panics on error. It is meant for
// registering stock prototypes at startup.
func (f *Factory) MustRegister(name, description string, ctor Constructor) {
	if err := f.Register(name, description, ctor); err != nil {
		panic(err)
	}
}

// Create builds a new module from the named prototype. The module is in state
// Constructed and not associated with any container.
func (f *Factory) Create(name string) (*Module, error) {
	f.mu.RLock()
	entry, ok := f.protos[name]
	f.mu.RUnlock()
	if !ok {
		return nil, &PrototypeNotFoundError{Name: name}
	}
	return NewModule(name, entry.info.Description, entry.ctor())
}

// IsPrototypeAvailable reports whether name is registered.
func (f *Factory) IsPrototypeAvailable(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.protos[name]
	return ok
}

// Prototype returns the description of the named prototype.
func (f *Factory) Prototype(name string) (Prototype, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entry, ok := f.protos[name]
	if !ok {
		return Prototype{}, &PrototypeNotFoundError{Name: name}
	}
	return entry.info, nil
}

// Prototypes returns all prototypes in registration order.
func (f *Factory) Prototypes() []Prototype {
	f.mu.RLock()
	defer f.mu.RUnlock()
	list := make([]Prototype, 0, len(f.order))
	for _, name := range f.order {
		list = append(list, f.protos[name].info)
	}
	return list
}

// CompatiblePrototypes lists the prototypes that can be applied to m: those
// without inputs, which fit anywhere, followed by those with an input accepting
// one of m's outputs. A nil m yields only the former.
func (f *Factory) CompatiblePrototypes(m *Module) []Prototype {
	var sources, consumers []Prototype
	for _, p := range f.Prototypes() {
		p := p
		if len(p.Inputs) == 0 {
			sources = append(sources, p)
			continue
		}
		if m == nil {
			continue
		}
		if slices.ContainsFunc(m.Outputs(), func(out *OutputConnector) bool { return p.Accepts(out.Type()) }) {
			consumers = append(consumers, p)
		}
	}
	return append(sources, consumers...)
}

func describe(m *Module) Prototype {
	info := Prototype{Name: m.Name(), Description: m.Description()}
	for _, in := range m.Inputs() {
		info.Inputs = append(info.Inputs, ConnectorInfo{Name: in.Name(), Description: in.Description(), Direction: DirectionInput, Type: in.Type()})
	}
	for _, out := range m.Outputs() {
		info.Outputs = append(info.Outputs, ConnectorInfo{Name: out.Name(), Description: out.Description(), Direction: DirectionOutput, Type: out.Type()})
	}
	for _, p := range m.Properties().List() {
		info.Properties = append(info.Properties, PropertyInfo{Name: p.Name(), Description: p.Description(), Type: p.Type().String(), Default: p.String()})
	}
	return info
}
