package flowkernel

import (
	"sync/atomic"
)

// OutputConnector publishes data to any number of InputConnectors.
type OutputConnector struct {
	connectorBase

	data atomic.Pointer[snapshot]
	seq  atomic.Uint64
}

func newOutputConnector(m *Module, name, description string, typeID TypeID) *OutputConnector {
	out := &OutputConnector{connectorBase: newConnectorBase(m, name, description, typeID, DirectionOutput)}
	out.self = out
	return out
}

// Connectable reports whether peer is an input with the same value type.
func (o *OutputConnector) Connectable(peer Connector) bool {
	if peer == nil || peer.Direction() != DirectionInput {
		return false
	}
	return peer.Type() == o.typeID
}

// Update publishes v. Every connected input sees the same value, so v must not
// be modified afterwards: publish a new value instead. Connected inputs are
// notified synchronously in registration order; consumers that are slower than
// the producer only observe the most recent value.
func (o *OutputConnector) Update(v any) {
	snap := &snapshot{value: v, seq: o.seq.Add(1)}
	o.data.Store(snap)
	o.changed.Notify()

	for _, p := range o.Peers() {
		if in, ok := p.(*InputConnector); ok {
			in.receive(o, snap)
		}
	}
}

// Data returns the last published value.
func (o *OutputConnector) Data() (any, bool) {
	snap := o.data.Load()
	if snap == nil {
		return nil, false
	}
	return snap.value, true
}

// Published returns how many values were published so far.
func (o *OutputConnector) Published() uint64 {
	return o.seq.Load()
}

func (o *OutputConnector) snapshot() *snapshot {
	return o.data.Load()
}
