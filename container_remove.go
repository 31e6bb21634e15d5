package flowkernel

import (
	"context"
	"fmt"
	"slices"
)

// Remove stops m, waits for its worker and erases it with all its connections.
// If ctx ends before the worker returned, nothing is erased and the context
// error is returned; the module keeps its shutdown request.
func (c *Container) Remove(ctx context.Context, m *Module) error {
	if m == nil {
		return ErrModuleNil
	}
	if m.Container() != c {
		return fmt.Errorf("module %q: %w", m.Name(), ErrModuleNotAssociated)
	}
	return c.removeSet(ctx, []*Module{m})
}

// RemoveDeep removes m and every module that depends on it: a module belongs to
// the removed set when all of its connected inputs are fed by modules of the
// set. The set is removed with the same protocol as Remove.
func (c *Container) RemoveDeep(ctx context.Context, m *Module) error {
	if m == nil {
		return ErrModuleNil
	}
	if m.Container() != c {
		return fmt.Errorf("module %q: %w", m.Name(), ErrModuleNotAssociated)
	}
	return c.removeSet(ctx, c.dependentClosure(m))
}

// dependentClosure collects m and its dependents. The traversal uses an explicit
// stack; it only reads the graph and holds the shared lock.
func (c *Container) dependentClosure(m *Module) []*Module {
	c.mu.RLock()
	defer c.mu.RUnlock()

	inSet := map[*Module]bool{m: true}
	closure := []*Module{m}
	stack := []*Module{m}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, out := range cur.Outputs() {
			for _, peer := range out.Peers() {
				next := peer.Module()
				if inSet[next] || next.Container() != c {
					continue
				}
				if !fedOnlyBy(next, inSet) {
					continue
				}
				inSet[next] = true
				closure = append(closure, next)
				stack = append(stack, next)
			}
		}
	}
	return closure
}

// fedOnlyBy reports whether every connected input of m has its upstream in set.
func fedOnlyBy(m *Module, set map[*Module]bool) bool {
	connected := false
	for _, in := range m.Inputs() {
		up := in.Upstream()
		if up == nil {
			continue
		}
		connected = true
		if !set[up.Module()] {
			return false
		}
	}
	return connected
}

// removeSet runs the removal protocol: request stop, join without holding the
// structural lock, then erase under the exclusive lock and fire REMOVED.
func (c *Container) removeSet(ctx context.Context, set []*Module) error {
	for _, m := range set {
		m.RequestStop()
	}
	if err := joinWorkers(ctx, set); err != nil {
		c.logger.Warn("Removal aborted, workers did not return", "container", c.name, "modules", len(set), "error", err)
		return fmt.Errorf("container %q: joining modules: %w", c.name, err)
	}

	c.mu.Lock()
	var (
		events  []graphEvent
		removed []*Module
	)
	for _, m := range set {
		h := m.Handle()
		if c.modules[h] != m {
			// removed concurrently
			continue
		}
		for _, conn := range m.Connectors() {
			events = append(events, conn.base().disconnectAllLocked()...)
		}
		delete(c.modules, h)
		if idx := slices.Index(c.order, h); idx >= 0 {
			c.order = slices.Delete(c.order, idx, idx+1)
		}
		m.releaseConnectors()
		m.state.transition(StateRemoved)
		m.container.Store(nil)
		removed = append(removed, m)
	}
	c.mu.Unlock()

	dispatchGraphEvents(c, events)
	for _, m := range removed {
		c.progress.RemoveSubProgress(m.progress)
		c.logger.Info("Module removed", "container", c.name, "module", m.String())
		c.notifiers.fireModule(EventRemoved, m)
	}
	return nil
}
