// Package prototypes provides the stock modules of flowkernel: a constant
// source, a scaler, an adder and a sink. They are small enough to serve as
// templates for new modules and are what the CLI registers by default.
package prototypes

import (
	"errors"

	"github.com/GoCodeAlone/flowkernel"
)

// Prototype names.
const (
	ConstantName = "constant"
	ScaleName    = "scale"
	SumName      = "sum"
	SinkName     = "sink"
)

// Register adds all stock prototypes to f.
func Register(f *flowkernel.Factory) error {
	return errors.Join(
		f.Register(ConstantName, "Publishes a configurable number", NewConstant),
		f.Register(ScaleName, "Multiplies its input by a factor", NewScale),
		f.Register(SumName, "Adds its two inputs", NewSum),
		f.Register(SinkName, "Collects every value it receives", NewSink),
	)
}

// NewFactory returns a factory holding the stock prototypes.
func NewFactory() *flowkernel.Factory {
	f := flowkernel.NewFactory()
	if err := Register(f); err != nil {
		panic(err)
	}
	return f
}
