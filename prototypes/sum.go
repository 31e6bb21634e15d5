package prototypes

import (
	"context"

	"github.com/GoCodeAlone/flowkernel"
)

// Sum publishes a+b on "out" once both inputs carry a value.
type Sum struct {
	a, b *flowkernel.Input[float64]
	out  *flowkernel.Output[float64]
}

// NewSum is the Constructor of the sum prototype.
func NewSum() flowkernel.Implementation { return &Sum{} }

func (s *Sum) Setup(m *flowkernel.Module) error {
	var err error
	if s.a, err = flowkernel.NewInput[float64](m, "a", "First summand"); err != nil {
		return err
	}
	if s.b, err = flowkernel.NewInput[float64](m, "b", "Second summand"); err != nil {
		return err
	}
	s.out, err = flowkernel.NewOutput[float64](m, "out", "Sum of a and b")
	return err
}

func (s *Sum) Main(ctx context.Context, m *flowkernel.Module) error {
	m.Ready()
	for !m.ShutdownRequested() {
		if s.a.Updated() || s.b.Updated() {
			s.a.Handled()
			s.b.Handled()
			a, okA := s.a.Get()
			b, okB := s.b.Get()
			if okA && okB {
				s.out.Update(a + b)
			}
		}
		if err := m.Wait(ctx); err != nil {
			return nil
		}
	}
	return nil
}
