package flowkernel

import (
	"context"
	"sync"
)

// Flag is a value whose changes can be waited for. Module lifecycle booleans
// (running, crashed, ready, shutdown) are flags so callers can block until a
// transition happens.
type Flag[T comparable] struct {
	mu    sync.RWMutex
	value T
	cond  *Condition
}

// NewFlag creates a flag holding initial.
func NewFlag[T comparable](initial T) *Flag[T] {
	return &Flag[T]{value: initial, cond: NewCondition()}
}

// Get returns the current value.
func (f *Flag[T]) Get() T {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value
}

// Set stores v and notifies waiters when the value changed. It reports whether
// the value changed.
func (f *Flag[T]) Set(v T) bool {
	f.mu.Lock()
	if f.value == v {
		f.mu.Unlock()
		return false
	}
	f.value = v
	f.mu.Unlock()
	f.cond.Notify()
	return true
}

// Condition returns the condition notified on every change, suitable for
// adding to a ConditionSet.
func (f *Flag[T]) Condition() *Condition {
	return f.cond
}

// WaitUntil blocks until the flag holds v or ctx is done.
func (f *Flag[T]) WaitUntil(ctx context.Context, v T) error {
	for {
		changed := f.cond.Changed()
		if f.Get() == v {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
