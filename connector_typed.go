package flowkernel

// Input is a type-safe view of an InputConnector transferring T.
type Input[T any] struct {
	*InputConnector
}

// NewInput declares an input connector of type T on m.
func NewInput[T any](m *Module, name, description string) (*Input[T], error) {
	in, err := m.AddInput(name, description, TypeOf[T]())
	if err != nil {
		return nil, err
	}
	return &Input[T]{InputConnector: in}, nil
}

// Get returns the latest value. ok is false when no value has arrived.
func (i *Input[T]) Get() (value T, ok bool) {
	raw, ok := i.Data()
	if !ok {
		return value, false
	}
	value, ok = raw.(T)
	return value, ok
}

// Output is a type-safe view of an OutputConnector transferring T.
type Output[T any] struct {
	*OutputConnector
}

// NewOutput declares an output connector of type T on m.
func NewOutput[T any](m *Module, name, description string) (*Output[T], error) {
	out, err := m.AddOutput(name, description, TypeOf[T]())
	if err != nil {
		return nil, err
	}
	return &Output[T]{OutputConnector: out}, nil
}

// Update publishes v to all connected inputs.
func (o *Output[T]) Update(v T) {
	o.OutputConnector.Update(v)
}

// Get returns the last published value.
func (o *Output[T]) Get() (value T, ok bool) {
	raw, ok := o.Data()
	if !ok {
		return value, false
	}
	value, ok = raw.(T)
	return value, ok
}
