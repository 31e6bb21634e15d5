package prototypes

import (
	"context"
	"slices"
	"sync"

	"github.com/GoCodeAlone/flowkernel"
)

// Sink records every value it observes on "in". When its "expected" property
// is positive it reports progress towards that many values and finishes once
// they arrived.
type Sink struct {
	in       *flowkernel.Input[float64]
	expected *flowkernel.Property

	mu       sync.Mutex
	values   []float64
	received *flowkernel.Condition
}

// NewSink is the Constructor of the sink prototype.
func NewSink() flowkernel.Implementation {
	return &Sink{received: flowkernel.NewCondition()}
}

func (s *Sink) Setup(m *flowkernel.Module) error {
	var err error
	if s.in, err = flowkernel.NewInput[float64](m, "in", "Values to collect"); err != nil {
		return err
	}
	s.expected, err = m.Properties().Add("expected", "Number of values to wait for, 0 for unbounded", int64(0))
	return err
}

func (s *Sink) Main(ctx context.Context, m *flowkernel.Module) error {
	expected, _ := flowkernel.PropertyAs[int64](s.expected)
	progress := flowkernel.NewProgress("sink", expected)
	m.Progress().AddSubProgress(progress)
	defer progress.Finish()

	m.Ready()
	for !m.ShutdownRequested() {
		if e, _ := flowkernel.PropertyAs[int64](s.expected); e != expected {
			expected = e
			progress.SetTotal(expected)
		}
		if s.in.Updated() {
			s.in.Handled()
			if v, ok := s.in.Get(); ok {
				s.record(v)
				progress.Increment(1)
				if expected > 0 && progress.Count() >= expected {
					progress.Finish()
				}
			}
		}
		if err := m.Wait(ctx); err != nil {
			return nil
		}
	}
	return nil
}

func (s *Sink) record(v float64) {
	s.mu.Lock()
	s.values = append(s.values, v)
	s.mu.Unlock()
	s.received.Notify()
}

// Values returns the values received so far.
func (s *Sink) Values() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.values)
}

// Last returns the most recent value.
func (s *Sink) Last() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0, false
	}
	return s.values[len(s.values)-1], true
}

// WaitFor blocks until pred holds for the values received so far or ctx ends.
func (s *Sink) WaitFor(ctx context.Context, pred func([]float64) bool) error {
	for {
		changed := s.received.Changed()
		if pred(s.Values()) {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
