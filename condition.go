package flowkernel

import (
	"context"
	"sync"
)

// Condition is a broadcast notification primitive. Every Notify wakes all
// goroutines currently waiting on it and signals every ConditionSet it belongs to.
//
// Waiters obtain the channel from Changed before checking the state they are
// interested in; a Notify that happens in between closes that channel, so no
// wake-up is lost.
type Condition struct {
	mu   sync.Mutex
	ch   chan struct{}
	sets map[*ConditionSet]struct{}
}

// NewCondition creates a condition nobody is waiting on.
func NewCondition() *Condition {
	return &Condition{
		ch:   make(chan struct{}),
		sets: make(map[*ConditionSet]struct{}),
	}
}

// Notify wakes all current waiters.
func (c *Condition) Notify() {
	c.mu.Lock()
	close(c.ch)
	c.ch = make(chan struct{})
	sets := make([]*ConditionSet, 0, len(c.sets))
	for s := range c.sets {
		sets = append(sets, s)
	}
	c.mu.Unlock()

	for _, s := range sets {
		s.signal()
	}
}

// Changed returns a channel closed by the next Notify.
func (c *Condition) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch
}

// Wait blocks until the next Notify or until ctx is done.
func (c *Condition) Wait(ctx context.Context) error {
	select {
	case <-c.Changed():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Condition) attach(s *ConditionSet) {
	c.mu.Lock()
	c.sets[s] = struct{}{}
	c.mu.Unlock()
}

func (c *Condition) detach(s *ConditionSet) {
	c.mu.Lock()
	delete(c.sets, s)
	c.mu.Unlock()
}

// ConditionSet waits on several conditions at once. It is resettable: a
// notification of any member that happened since the last Wait returned makes
// the next Wait return immediately, so notifications fired while the waiter was
// busy are not lost. Several notifications collapse into one wake-up.
type ConditionSet struct {
	mu      sync.Mutex
	members map[*Condition]struct{}
	pending chan struct{}
}

// NewConditionSet creates an empty wait-set.
func NewConditionSet() *ConditionSet {
	return &ConditionSet{
		members: make(map[*Condition]struct{}),
		pending: make(chan struct{}, 1),
	}
}

// Add makes c a member of the set. Adding a member twice is a no-op.
func (s *ConditionSet) Add(c *Condition) {
	if c == nil {
		return
	}
	s.mu.Lock()
	if _, ok := s.members[c]; ok {
		s.mu.Unlock()
		return
	}
	s.members[c] = struct{}{}
	s.mu.Unlock()
	c.attach(s)
}

// Remove drops c from the set.
func (s *ConditionSet) Remove(c *Condition) {
	if c == nil {
		return
	}
	s.mu.Lock()
	delete(s.members, c)
	s.mu.Unlock()
	c.detach(s)
}

// Clear drops all members.
func (s *ConditionSet) Clear() {
	s.mu.Lock()
	members := s.members
	s.members = make(map[*Condition]struct{})
	s.mu.Unlock()
	for c := range members {
		c.detach(s)
	}
}

// Len returns the number of members.
func (s *ConditionSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// Wait blocks until any member fired since the previous Wait, or ctx is done.
func (s *ConditionSet) Wait(ctx context.Context) error {
	select {
	case <-s.pending:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset discards a pending notification.
func (s *ConditionSet) Reset() {
	select {
	case <-s.pending:
	default:
	}
}

func (s *ConditionSet) signal() {
	select {
	case s.pending <- struct{}{}:
	default:
	}
}
