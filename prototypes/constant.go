package prototypes

import (
	"context"

	"github.com/GoCodeAlone/flowkernel"
)

// Constant publishes the value of its "value" property on "out" once it is
// ready and again whenever the property changes.
type Constant struct {
	out   *flowkernel.Output[float64]
	value *flowkernel.Property
}

// NewConstant is the Constructor of the constant prototype.
func NewConstant() flowkernel.Implementation { return &Constant{} }

func (c *Constant) Setup(m *flowkernel.Module) error {
	var err error
	if c.out, err = flowkernel.NewOutput[float64](m, "out", "The constant value"); err != nil {
		return err
	}
	c.value, err = m.Properties().Add("value", "Value to publish", 0.0)
	return err
}

func (c *Constant) Main(ctx context.Context, m *flowkernel.Module) error {
	m.Ready()
	pending := c.value.Changed().Changed()
	c.publish()
	for !m.ShutdownRequested() {
		if err := m.Wait(ctx); err != nil {
			return nil
		}
		select {
		case <-pending:
			pending = c.value.Changed().Changed()
			c.publish()
		default:
		}
	}
	return nil
}

func (c *Constant) publish() {
	v, _ := flowkernel.PropertyAs[float64](c.value)
	c.out.Update(v)
}
