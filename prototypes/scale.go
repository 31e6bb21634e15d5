package prototypes

import (
	"context"

	"github.com/GoCodeAlone/flowkernel"
)

// Scale multiplies every value arriving on "in" by its "factor" property and
// publishes the product on "out". A factor change re-publishes the last input.
type Scale struct {
	in     *flowkernel.Input[float64]
	out    *flowkernel.Output[float64]
	factor *flowkernel.Property
}

// NewScale is the Constructor of the scale prototype.
func NewScale() flowkernel.Implementation { return &Scale{} }

func (s *Scale) Setup(m *flowkernel.Module) error {
	var err error
	if s.in, err = flowkernel.NewInput[float64](m, "in", "Value to scale"); err != nil {
		return err
	}
	if s.out, err = flowkernel.NewOutput[float64](m, "out", "Scaled value"); err != nil {
		return err
	}
	s.factor, err = m.Properties().Add("factor", "Multiplier", 1.0)
	return err
}

func (s *Scale) Main(ctx context.Context, m *flowkernel.Module) error {
	m.Ready()
	factorChanged := s.factor.Changed().Changed()
	for !m.ShutdownRequested() {
		refresh := false
		select {
		case <-factorChanged:
			factorChanged = s.factor.Changed().Changed()
			refresh = true
		default:
		}
		if s.in.Updated() || refresh {
			s.in.Handled()
			if v, ok := s.in.Get(); ok {
				f, _ := flowkernel.PropertyAs[float64](s.factor)
				s.out.Update(v * f)
			}
		}
		if err := m.Wait(ctx); err != nil {
			return nil
		}
	}
	return nil
}
