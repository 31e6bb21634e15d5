package flowkernel

import (
	"reflect"
	"slices"
	"sync"
)

// Direction tags a connector as input or output.
type Direction int

const (
	// DirectionInput marks connectors receiving data.
	DirectionInput Direction = iota + 1
	// DirectionOutput marks connectors publishing data.
	DirectionOutput
)

func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	default:
		return "unknown"
	}
}

// TypeID identifies the value type transferred over a connector. Two
// connectors are type compatible when their TypeIDs are equal.
type TypeID string

// TypeOf returns the TypeID used by the typed connector helpers for T.
func TypeOf[T any]() TypeID {
	return TypeID(reflect.TypeOf((*T)(nil)).Elem().String())
}

// Connector is a named, typed, directional attachment point of a module.
// The only implementations are *InputConnector and *OutputConnector (and the
// typed wrappers embedding them).
type Connector interface {
	Name() string
	Description() string
	// CanonicalName returns "module:connector".
	CanonicalName() string
	Module() *Module
	Direction() Direction
	Type() TypeID

	// Connectable reports whether peer has the opposite direction and the same type.
	Connectable(peer Connector) bool
	Connect(peer Connector) error
	Disconnect(peer Connector) error
	DisconnectAll()
	IsConnected() bool
	IsConnectedTo(peer Connector) bool
	// Peers returns the connected connectors in registration order.
	Peers() []Connector
	// DataChanged is notified whenever new data passes this connector.
	DataChanged() *Condition

	base() *connectorBase
}

type connectorBase struct {
	self        Connector
	module      *Module
	name        string
	description string
	typeID      TypeID
	direction   Direction

	mu      sync.RWMutex
	peers   []Connector
	changed *Condition
}

func newConnectorBase(m *Module, name, description string, typeID TypeID, dir Direction) connectorBase {
	return connectorBase{
		module:      m,
		name:        name,
		description: description,
		typeID:      typeID,
		direction:   dir,
		changed:     NewCondition(),
	}
}

func (c *connectorBase) base() *connectorBase { return c }

func (c *connectorBase) Name() string            { return c.name }
func (c *connectorBase) Description() string     { return c.description }
func (c *connectorBase) Module() *Module         { return c.module }
func (c *connectorBase) Direction() Direction    { return c.direction }
func (c *connectorBase) Type() TypeID            { return c.typeID }
func (c *connectorBase) DataChanged() *Condition { return c.changed }

func (c *connectorBase) CanonicalName() string {
	if c.module == nil {
		return ":" + c.name
	}
	return c.module.Name() + ":" + c.name
}

func (c *connectorBase) Connectable(peer Connector) bool {
	if peer == nil {
		return false
	}
	return peer.Direction() != c.direction && peer.Type() == c.typeID
}

func (c *connectorBase) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.peers) > 0
}

func (c *connectorBase) IsConnectedTo(peer Connector) bool {
	if peer == nil {
		return false
	}
	target := peer.base().self
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.peers, target)
}

func (c *connectorBase) Peers() []Connector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.peers)
}

func (c *connectorBase) addPeer(peer Connector) {
	c.mu.Lock()
	if !slices.Contains(c.peers, peer) {
		c.peers = append(c.peers, peer)
	}
	c.mu.Unlock()
}

func (c *connectorBase) removePeer(peer Connector) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := slices.Index(c.peers, peer)
	if idx < 0 {
		return false
	}
	c.peers = slices.Delete(c.peers, idx, idx+1)
	return true
}

// Connect links this connector with peer. The link is symmetric: connecting an
// output with an input is the same as connecting the input with the output.
func (c *connectorBase) Connect(peer Connector) error {
	out, in, err := orient(c.self, peer)
	if err != nil {
		return err
	}
	return connectPair(out, in)
}

// Disconnect removes the link with peer. Disconnecting connectors that are not
// linked is a no-op.
func (c *connectorBase) Disconnect(peer Connector) error {
	if peer == nil {
		return newStructuralError(c.self, peer, ErrNilConnector)
	}
	out, in, ok := pairOf(c.self, peer)
	if !ok {
		return newStructuralError(c.self, peer, ErrSameDirection)
	}

	unlock, container, err := lockGraph(out.module, in.module)
	if err != nil {
		return err
	}
	events := disconnectLocked(out, in)
	unlock()

	dispatchGraphEvents(container, events)
	return nil
}

// DisconnectAll removes every link of this connector.
func (c *connectorBase) DisconnectAll() {
	unlock, container, err := lockGraph(c.module, c.module)
	if err != nil {
		return
	}
	events := c.disconnectAllLocked()
	unlock()

	dispatchGraphEvents(container, events)
}

func (c *connectorBase) disconnectAllLocked() []graphEvent {
	var events []graphEvent
	for _, peer := range c.Peers() {
		out, in, ok := pairOf(c.self, peer)
		if !ok {
			continue
		}
		events = append(events, disconnectLocked(out, in)...)
	}
	return events
}

func canonicalNameOf(c Connector) string {
	if c == nil {
		return "<nil>"
	}
	return c.CanonicalName()
}

// pairOf sorts two connectors into (output, input) without validating types.
func pairOf(a, b Connector) (*OutputConnector, *InputConnector, bool) {
	if a == nil || b == nil {
		return nil, nil, false
	}
	switch x := a.base().self.(type) {
	case *OutputConnector:
		y, ok := b.base().self.(*InputConnector)
		return x, y, ok
	case *InputConnector:
		y, ok := b.base().self.(*OutputConnector)
		return y, x, ok
	}
	return nil, nil, false
}

// orient validates a connection request and sorts it into (output, input).
func orient(a, b Connector) (*OutputConnector, *InputConnector, error) {
	if a == nil || b == nil {
		return nil, nil, newStructuralError(a, b, ErrNilConnector)
	}
	if a.base() == b.base() || a.Module() == b.Module() {
		return nil, nil, newStructuralError(a, b, ErrSelfConnect)
	}
	if a.Direction() == b.Direction() {
		return nil, nil, newStructuralError(a, b, ErrSameDirection)
	}
	if !a.Connectable(b) || !b.Connectable(a) {
		return nil, nil, newStructuralError(a, b, ErrIncompatibleType)
	}
	out, in, ok := pairOf(a, b)
	if !ok {
		return nil, nil, newStructuralError(a, b, ErrUnknownDirection)
	}
	return out, in, nil
}

func connectPair(out *OutputConnector, in *InputConnector) error {
	unlock, container, err := lockGraph(out.module, in.module)
	if err != nil {
		return err
	}
	// removal marks the module under the same lock
	if out.module.State() == StateRemoved || in.module.State() == StateRemoved {
		unlock()
		return newStructuralError(out, in, ErrModuleRemoved)
	}
	events := connectLocked(out, in)
	unlock()

	dispatchGraphEvents(container, events)
	return nil
}

// connectLocked links out and in. An input has at most one upstream output: an
// existing link of in is closed first. Caller holds the graph lock.
func connectLocked(out *OutputConnector, in *InputConnector) []graphEvent {
	if in.IsConnectedTo(out) {
		return nil
	}

	var events []graphEvent
	if old := in.Upstream(); old != nil {
		events = append(events, disconnectLocked(old, in)...)
	}

	out.addPeer(in)
	in.addPeer(out)

	return append(events, graphEvent{
		kind:    EventConnectionEstablished,
		out:     out,
		in:      in,
		deliver: out.snapshot(),
	})
}

// disconnectLocked unlinks out and in. Caller holds the graph lock.
func disconnectLocked(out *OutputConnector, in *InputConnector) []graphEvent {
	removedOut := out.removePeer(in)
	removedIn := in.detach(out)
	if !removedOut && !removedIn {
		return nil
	}
	return []graphEvent{{kind: EventConnectionClosed, out: out, in: in}}
}

// lockGraph takes the structural lock of the container owning a and b. Modules
// that are not associated with any container need no structural lock.
func lockGraph(a, b *Module) (func(), *Container, error) {
	for {
		ca, cb := a.Container(), b.Container()
		if ca != nil && cb != nil && ca != cb {
			return nil, nil, &StructuralError{From: a.Name(), To: b.Name(), Reason: ErrForeignContainer}
		}
		c := ca
		if c == nil {
			c = cb
		}
		if c == nil {
			return func() {}, nil, nil
		}
		c.mu.Lock()
		// association may have changed while waiting for the lock
		if a.Container() == ca && b.Container() == cb {
			return c.mu.Unlock, c, nil
		}
		c.mu.Unlock()
	}
}

type graphEvent struct {
	kind    EventKind
	out     *OutputConnector
	in      *InputConnector
	deliver *snapshot
}

// dispatchGraphEvents runs callbacks for graph changes. It must be called
// without holding the structural lock.
func dispatchGraphEvents(c *Container, events []graphEvent) {
	for _, ev := range events {
		switch ev.kind {
		case EventConnectionEstablished:
			if n, ok := ev.out.module.impl.(ConnectionNotifiee); ok {
				n.NotifyConnectionEstablished(ev.out, ev.in)
			}
			if n, ok := ev.in.module.impl.(ConnectionNotifiee); ok {
				n.NotifyConnectionEstablished(ev.in, ev.out)
			}
			if ev.deliver != nil {
				ev.in.receive(ev.out, ev.deliver)
			}
		case EventConnectionClosed:
			if n, ok := ev.out.module.impl.(ConnectionNotifiee); ok {
				n.NotifyConnectionClosed(ev.out, ev.in)
			}
			if n, ok := ev.in.module.impl.(ConnectionNotifiee); ok {
				n.NotifyConnectionClosed(ev.in, ev.out)
			}
		}
		if c != nil {
			c.notifiers.fireConnector(ev.kind, ev.out, ev.in)
		}
	}
}
