package flowkernel

import (
	"sync/atomic"
)

// snapshot is one published value. It is never modified after publication.
type snapshot struct {
	value any
	seq   uint64
}

// InputConnector receives data from at most one upstream OutputConnector.
type InputConnector struct {
	connectorBase

	data    atomic.Pointer[snapshot]
	updated atomic.Bool
}

func newInputConnector(m *Module, name, description string, typeID TypeID) *InputConnector {
	in := &InputConnector{connectorBase: newConnectorBase(m, name, description, typeID, DirectionInput)}
	in.self = in
	return in
}

// Connectable reports whether peer is an output with the same value type.
func (i *InputConnector) Connectable(peer Connector) bool {
	if peer == nil || peer.Direction() != DirectionOutput {
		return false
	}
	return peer.Type() == i.typeID
}

// Data returns the latest received value. The second result is false when
// nothing has arrived since the input was connected. It never blocks; to wait
// for data use the module's wait-set.
func (i *InputConnector) Data() (any, bool) {
	snap := i.data.Load()
	if snap == nil {
		return nil, false
	}
	return snap.value, true
}

// Updated reports whether new data arrived since the last Handled call.
func (i *InputConnector) Updated() bool {
	return i.updated.Load()
}

// Handled marks the current data as processed.
func (i *InputConnector) Handled() {
	i.updated.Store(false)
}

// Upstream returns the connected output, or nil.
func (i *InputConnector) Upstream() *OutputConnector {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if len(i.peers) == 0 {
		return nil
	}
	out, _ := i.peers[0].(*OutputConnector)
	return out
}

// detach removes out from the peer list and drops the data received from it.
func (i *InputConnector) detach(out *OutputConnector) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	for idx, p := range i.peers {
		if p == Connector(out) {
			i.peers = append(i.peers[:idx], i.peers[idx+1:]...)
			i.data.Store(nil)
			i.updated.Store(false)
			return true
		}
	}
	return false
}

// store swaps in snap unless the held snapshot is as new or newer. Sequence
// numbers are per output and the data is cleared whenever the upstream changes.
func (i *InputConnector) store(snap *snapshot) bool {
	for {
		cur := i.data.Load()
		if cur != nil && cur.seq >= snap.seq {
			return false
		}
		if i.data.CompareAndSwap(cur, snap) {
			return true
		}
	}
}

// receive stores a snapshot published by out and wakes the owning module. A
// snapshot older than the stored one is dropped, so a delayed delivery never
// replaces a newer value.
func (i *InputConnector) receive(out *OutputConnector, snap *snapshot) {
	i.mu.RLock()
	stored := len(i.peers) == 1 && i.peers[0] == Connector(out) && i.store(snap)
	if stored {
		i.updated.Store(true)
	}
	i.mu.RUnlock()
	if !stored {
		return
	}

	i.changed.Notify()
	i.module.dataChanged.Notify()
	if n, ok := i.module.impl.(DataChangeNotifiee); ok {
		n.NotifyDataChange(i, out)
	}
}
