package flowkernel

import (
	"context"
	"fmt"
)

// WithPrototypes sets the factory used by ApplyPrototype.
func WithPrototypes(f *Factory) ContainerOption {
	return func(c *Container) error {
		c.factory = f
		return nil
	}
}

// ApplyModule wires module to an existing module created from prototype: the
// default (first) output of the existing module is connected to the first
// compatible input of module. The existing module is searched in this container
// or, if useRoot is set, in the root of the container chain. module is added to
// the searched container first when it is not associated yet. Connecting waits
// until the existing module is ready.
func (c *Container) ApplyModule(ctx context.Context, module *Module, prototype string, useRoot bool) error {
	if module == nil {
		return ErrModuleNil
	}
	scope := c
	if useRoot {
		scope = c.Root()
	}

	var source *Module
	for _, m := range scope.ModulesByPrototype(prototype) {
		if m != module {
			source = m
			break
		}
	}
	if source == nil {
		return fmt.Errorf("no module of prototype %q in container %q: %w", prototype, scope.name, ErrModuleNotFound)
	}

	if module.Container() == nil {
		if err := scope.Add(module); err != nil {
			return err
		}
	}
	return connectDefault(ctx, source, module)
}

// ApplyPrototype creates a module from prototype, adds it to the container and
// connects the default output of applyOn to it. With tryOnly an unknown
// prototype yields (nil, nil) instead of an error.
func (c *Container) ApplyPrototype(ctx context.Context, applyOn *Module, prototype string, tryOnly bool) (*Module, error) {
	if applyOn == nil {
		return nil, ErrModuleNil
	}
	if applyOn.Container() != c {
		return nil, fmt.Errorf("module %q: %w", applyOn.Name(), ErrModuleNotAssociated)
	}
	if c.factory == nil || !c.factory.IsPrototypeAvailable(prototype) {
		if tryOnly {
			return nil, nil
		}
		return nil, &PrototypeNotFoundError{Name: prototype}
	}

	m, err := c.factory.Create(prototype)
	if err != nil {
		return nil, err
	}
	if err := c.Add(m); err != nil {
		return nil, err
	}
	if err := connectDefault(ctx, applyOn, m); err != nil {
		return m, err
	}
	return m, nil
}

// connectDefault links the first output of from with the first input of to
// that accepts it, once from is ready.
func connectDefault(ctx context.Context, from, to *Module) error {
	if err := from.WaitReady(ctx); err != nil {
		return fmt.Errorf("waiting for module %s: %w", from, err)
	}

	outs := from.Outputs()
	if len(outs) == 0 {
		return fmt.Errorf("module %s output: %w", from, ErrNoDefaultConnector)
	}
	out := outs[0]
	for _, in := range to.Inputs() {
		if in.Connectable(out) {
			return out.Connect(in)
		}
	}
	return fmt.Errorf("module %s input for %s: %w", to, out.CanonicalName(), ErrNoDefaultConnector)
}
