package flowkernel

import (
	"fmt"
	"sync"
)

// EventKind enumerates the notifications a container emits.
type EventKind int

const (
	// EventAssociated fires after a module was added to a container.
	EventAssociated EventKind = iota + 1
	// EventReady fires when a module body calls Ready.
	EventReady
	// EventRemoved fires after a module was erased from a container.
	EventRemoved
	// EventError fires when a module body crashed.
	EventError
	// EventConnectionEstablished fires after two connectors were linked.
	EventConnectionEstablished
	// EventConnectionClosed fires after a link was removed.
	EventConnectionClosed
)

func (k EventKind) String() string {
	switch k {
	case EventAssociated:
		return "ASSOCIATED"
	case EventReady:
		return "READY"
	case EventRemoved:
		return "REMOVED"
	case EventError:
		return "ERROR"
	case EventConnectionEstablished:
		return "CONNECTION_ESTABLISHED"
	case EventConnectionClosed:
		return "CONNECTION_CLOSED"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// CloudEventType returns the CloudEvent type used when the kind is published
// to observers.
func (k EventKind) CloudEventType() string {
	switch k {
	case EventAssociated:
		return EventTypeModuleAssociated
	case EventReady:
		return EventTypeModuleReady
	case EventRemoved:
		return EventTypeModuleRemoved
	case EventError:
		return EventTypeModuleError
	case EventConnectionEstablished:
		return EventTypeConnectionEstablished
	case EventConnectionClosed:
		return EventTypeConnectionClosed
	default:
		return ""
	}
}

func (k EventKind) isModuleKind() bool {
	return k == EventAssociated || k == EventReady || k == EventRemoved
}

func (k EventKind) isConnectorKind() bool {
	return k == EventConnectionEstablished || k == EventConnectionClosed
}

// ModuleNotifier handles ASSOCIATED, READY and REMOVED.
type ModuleNotifier func(m *Module)

// ErrorNotifier handles ERROR. err is a *ModuleRuntimeError.
type ErrorNotifier func(m *Module, err error)

// ConnectorNotifier handles CONNECTION_ESTABLISHED and CONNECTION_CLOSED.
type ConnectorNotifier func(out *OutputConnector, in *InputConnector)

// notifierRegistry is the append-only set of callbacks of a container. Handlers
// run in registration order on the goroutine that caused the event; a
// panicking handler is logged and does not affect the others.
type notifierRegistry struct {
	mu        sync.RWMutex
	module    map[EventKind][]ModuleNotifier
	errs      []ErrorNotifier
	connector map[EventKind][]ConnectorNotifier

	logger  Logger
	publish func(kind EventKind, data map[string]any)
}

func newNotifierRegistry(logger Logger, publish func(EventKind, map[string]any)) *notifierRegistry {
	return &notifierRegistry{
		module:    make(map[EventKind][]ModuleNotifier),
		connector: make(map[EventKind][]ConnectorNotifier),
		logger:    loggerOrNop(logger),
		publish:   publish,
	}
}

func (r *notifierRegistry) addModule(kind EventKind, fn ModuleNotifier) error {
	if fn == nil {
		return ErrHandlerNil
	}
	if !kind.isModuleKind() {
		return fmt.Errorf("%w: %s", ErrInvalidEventKind, kind)
	}
	r.mu.Lock()
	r.module[kind] = append(r.module[kind], fn)
	r.mu.Unlock()
	return nil
}

func (r *notifierRegistry) addError(fn ErrorNotifier) error {
	if fn == nil {
		return ErrHandlerNil
	}
	r.mu.Lock()
	r.errs = append(r.errs, fn)
	r.mu.Unlock()
	return nil
}

func (r *notifierRegistry) addConnector(kind EventKind, fn ConnectorNotifier) error {
	if fn == nil {
		return ErrHandlerNil
	}
	if !kind.isConnectorKind() {
		return fmt.Errorf("%w: %s", ErrInvalidEventKind, kind)
	}
	r.mu.Lock()
	r.connector[kind] = append(r.connector[kind], fn)
	r.mu.Unlock()
	return nil
}

func (r *notifierRegistry) fireModule(kind EventKind, m *Module) {
	r.mu.RLock()
	handlers := append([]ModuleNotifier(nil), r.module[kind]...)
	r.mu.RUnlock()

	for _, fn := range handlers {
		fn := fn
		r.safely(kind, func() { fn(m) })
	}
	r.emit(kind, moduleEventData(m))
}

func (r *notifierRegistry) fireError(m *Module, err error) {
	r.mu.RLock()
	handlers := append([]ErrorNotifier(nil), r.errs...)
	r.mu.RUnlock()

	for _, fn := range handlers {
		fn := fn
		r.safely(EventError, func() { fn(m, err) })
	}
	data := moduleEventData(m)
	data["error"] = err.Error()
	r.emit(EventError, data)
}

func (r *notifierRegistry) fireConnector(kind EventKind, out *OutputConnector, in *InputConnector) {
	r.mu.RLock()
	handlers := append([]ConnectorNotifier(nil), r.connector[kind]...)
	r.mu.RUnlock()

	for _, fn := range handlers {
		fn := fn
		r.safely(kind, func() { fn(out, in) })
	}
	r.emit(kind, map[string]any{
		"output":       out.CanonicalName(),
		"outputModule": uint64(out.module.Handle()),
		"input":        in.CanonicalName(),
		"inputModule":  uint64(in.module.Handle()),
	})
}

func (r *notifierRegistry) safely(kind EventKind, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Notifier panicked", "event", kind.String(), "panic", rec)
		}
	}()
	fn()
}

func (r *notifierRegistry) emit(kind EventKind, data map[string]any) {
	if r.publish != nil {
		r.publish(kind, data)
	}
}

func moduleEventData(m *Module) map[string]any {
	return map[string]any{
		"handle":    uint64(m.Handle()),
		"id":        m.ID().String(),
		"name":      m.Name(),
		"prototype": m.Prototype(),
		"state":     m.State().String(),
	}
}

// AddModuleNotifier registers fn for one of ASSOCIATED, READY or REMOVED.
func (c *Container) AddModuleNotifier(kind EventKind, fn ModuleNotifier) error {
	return c.notifiers.addModule(kind, fn)
}

// AddErrorNotifier registers fn for ERROR. Error notifiers run asynchronously
// with respect to the crashed module body.
func (c *Container) AddErrorNotifier(fn ErrorNotifier) error {
	return c.notifiers.addError(fn)
}

// AddConnectorNotifier registers fn for CONNECTION_ESTABLISHED or
// CONNECTION_CLOSED.
func (c *Container) AddConnectorNotifier(kind EventKind, fn ConnectorNotifier) error {
	return c.notifiers.addConnector(kind, fn)
}

// AddDefaultNotifiers registers notifiers that log every event at debug level.
func (c *Container) AddDefaultNotifiers() {
	for _, kind := range []EventKind{EventAssociated, EventReady, EventRemoved} {
		kind := kind
		_ = c.notifiers.addModule(kind, func(m *Module) {
			c.logger.Debug("Module event", "event", kind.String(), "container", c.name, "module", m.String())
		})
	}
	_ = c.notifiers.addError(func(m *Module, err error) {
		c.logger.Debug("Module event", "event", EventError.String(), "container", c.name, "module", m.String(), "error", err)
	})
	for _, kind := range []EventKind{EventConnectionEstablished, EventConnectionClosed} {
		kind := kind
		_ = c.notifiers.addConnector(kind, func(out *OutputConnector, in *InputConnector) {
			c.logger.Debug("Connection event", "event", kind.String(), "container", c.name,
				"output", out.CanonicalName(), "input", in.CanonicalName())
		})
	}
}
