package flowkernel

import "sync/atomic"

// State is the lifecycle state of a module.
type State int32

const (
	// StateConstructed: created by a factory, connectors declared, not in a container.
	StateConstructed State = iota
	// StateAssociated: added to a container, worker not yet ready.
	StateAssociated
	// StateReady: the worker called Ready.
	StateReady
	// StateRunning: the worker is looping on its wait-set.
	StateRunning
	// StateCrashed: the worker body failed. Terminal except for removal.
	StateCrashed
	// StateStopped: the worker returned after a stop request.
	StateStopped
	// StateRemoved: erased from its container. Terminal.
	StateRemoved
)

var stateNames = [...]string{
	StateConstructed: "constructed",
	StateAssociated:  "associated",
	StateReady:       "ready",
	StateRunning:     "running",
	StateCrashed:     "crashed",
	StateStopped:     "stopped",
	StateRemoved:     "removed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// canTransition encodes the module state machine. Crashed and Removed never go
// back to a live state.
func (s State) canTransition(to State) bool {
	switch s {
	case StateRemoved:
		return false
	case StateCrashed, StateStopped:
		return to == StateRemoved
	case StateConstructed:
		return to == StateAssociated || to == StateRemoved
	case StateAssociated:
		return to != StateConstructed && to != StateAssociated
	case StateReady:
		return to == StateRunning || to == StateCrashed || to == StateStopped || to == StateRemoved
	case StateRunning:
		return to == StateCrashed || to == StateStopped || to == StateRemoved
	}
	return false
}

type atomicState struct {
	v atomic.Int32
}

func (a *atomicState) Load() State { return State(a.v.Load()) }

// transition moves to the given state if the state machine allows it.
func (a *atomicState) transition(to State) (State, bool) {
	for {
		cur := a.Load()
		if !cur.canTransition(to) {
			return cur, false
		}
		if a.v.CompareAndSwap(int32(cur), int32(to)) {
			return cur, true
		}
	}
}
