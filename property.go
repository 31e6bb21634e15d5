package flowkernel

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/golobby/cast"
)

// Property is a named, typed module setting. Changing a property notifies the
// owning module's wait-set.
type Property struct {
	name        string
	description string
	typ         reflect.Type

	mu      sync.RWMutex
	value   any
	changed *Condition
	owner   *Condition
}

// Name returns the property name.
func (p *Property) Name() string { return p.name }

// Description returns the property description.
func (p *Property) Description() string { return p.description }

// Type returns the value type.
func (p *Property) Type() reflect.Type { return p.typ }

// Changed is notified on every successful Set.
func (p *Property) Changed() *Condition { return p.changed }

// Get returns the current value.
func (p *Property) Get() any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// Set replaces the value. v must be of (or convertible to) the property type.
func (p *Property) Set(v any) error {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return fmt.Errorf("property %q: %w: nil", p.name, ErrPropertyValue)
	}
	if rv.Type() != p.typ {
		if !rv.Type().ConvertibleTo(p.typ) {
			return fmt.Errorf("property %q: %w: cannot assign %s to %s", p.name, ErrPropertyValue, rv.Type(), p.typ)
		}
		rv = rv.Convert(p.typ)
	}

	p.mu.Lock()
	p.value = rv.Interface()
	p.mu.Unlock()

	p.changed.Notify()
	if p.owner != nil {
		p.owner.Notify()
	}
	return nil
}

// SetString parses s into the property type and stores it.
func (p *Property) SetString(s string) error {
	v, err := cast.FromType(s, p.typ)
	if err != nil {
		return fmt.Errorf("property %q: %w: %w", p.name, ErrPropertyValue, err)
	}
	return p.Set(v)
}

// String renders the current value the way SetString accepts it.
func (p *Property) String() string {
	return fmt.Sprint(p.Get())
}

// PropertyAs returns the value of p as T.
func PropertyAs[T any](p *Property) (T, bool) {
	v, ok := p.Get().(T)
	return v, ok
}

// Properties is the ordered property set of a module.
type Properties struct {
	mu      sync.RWMutex
	list    []*Property
	changed *Condition
}

func newProperties() *Properties {
	return &Properties{changed: NewCondition()}
}

// Add declares a property whose type is the type of initial.
func (ps *Properties) Add(name, description string, initial any) (*Property, error) {
	if initial == nil {
		return nil, fmt.Errorf("property %q: initial value must not be nil", name)
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, p := range ps.list {
		if p.name == name {
			return nil, fmt.Errorf("property %q: %w", name, ErrPropertyNameUsed)
		}
	}
	p := &Property{
		name:        name,
		description: description,
		typ:         reflect.TypeOf(initial),
		value:       initial,
		changed:     NewCondition(),
		owner:       ps.changed,
	}
	ps.list = append(ps.list, p)
	return p, nil
}

// Find looks up a property by name.
func (ps *Properties) Find(name string) (*Property, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	idx := slices.IndexFunc(ps.list, func(p *Property) bool { return p.name == name })
	if idx < 0 {
		return nil, false
	}
	return ps.list[idx], true
}

// List returns all properties in declaration order.
func (ps *Properties) List() []*Property {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return slices.Clone(ps.list)
}

// Changed is notified whenever any property changes.
func (ps *Properties) Changed() *Condition { return ps.changed }
