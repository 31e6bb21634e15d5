package flowkernel

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// startWorker launches the module body on its own goroutine. The running flag
// is raised before the goroutine starts so a join never misses a worker.
func (c *Container) startWorker(m *Module) {
	m.running.Set(true)
	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		defer m.running.Set(false)

		err := c.runModule(m)
		switch {
		case err != nil:
			c.crash(m, err)
		case m.state.Load() != StateRemoved:
			m.state.transition(StateStopped)
			c.logger.Debug("Module stopped", "container", c.name, "module", m.String())
		}
	}()
}

// runModule runs Main and turns a panic into an error.
func (c *Container) runModule(m *Module) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("Module panic stack", "module", m.String(), "stack", string(debug.Stack()))
			if rerr, ok := r.(error); ok {
				err = fmt.Errorf("%w: %w", ErrModulePanic, rerr)
			} else {
				err = fmt.Errorf("%w: %v", ErrModulePanic, r)
			}
		}
	}()

	c.logger.Debug("Module started", "container", c.name, "module", m.String())
	if err := m.impl.Main(m.ctx, m); err != nil {
		// a body returning its context error after RequestStop stopped cleanly
		if m.ShutdownRequested() && errors.Is(err, m.ctx.Err()) {
			return nil
		}
		return err
	}
	return nil
}

// crash records err, marks the module as crashed and fires ERROR on a separate
// goroutine so the notifiers never run on the failing body's stack. The
// module stays wired; its outputs keep their last published values.
func (c *Container) crash(m *Module, cause error) {
	rerr := &ModuleRuntimeError{Module: m.Name(), Handle: m.Handle(), Cause: cause}
	m.crashErr.Store(rerr)
	m.state.transition(StateCrashed)
	m.crashed.Set(true)

	c.logger.Error("Module crashed", "container", c.name, "module", m.String(), "error", cause)

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		c.notifiers.fireError(m, rerr)
	}()
}
