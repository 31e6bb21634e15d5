package flowkernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFactory(t *testing.T) *Factory {
	t.Helper()
	f := NewFactory()
	require.NoError(t, f.Register("source", "emits ints", sourceImpl))
	require.NoError(t, f.Register("relay", "forwards ints", passThroughImpl))
	require.NoError(t, f.Register("text", "consumes strings", func() Implementation {
		return &stubImpl{inputs: []string{"in"}, typeID: TypeOf[string]()}
	}))
	require.NoError(t, f.Register("gain", "scales ints", func() Implementation {
		return &stubImpl{inputs: []string{"in"}, outputs: []string{"out"}, props: map[string]any{"factor": 2.5}}
	}))
	return f
}

func TestFactoryRegister(t *testing.T) {
	t.Parallel()
	f := testFactory(t)

	assert.ErrorIs(t, f.Register("source", "again", sourceImpl), ErrPrototypeExists)
	assert.ErrorIs(t, f.Register("nil", "", nil), ErrImplementationNil)
	assert.ErrorIs(t, f.Register("broken", "", func() Implementation {
		return &stubImpl{inputs: []string{"x", "x"}}
	}), ErrDuplicateConnector)
	assert.Panics(t, func() { f.MustRegister("source", "", sourceImpl) })

	assert.True(t, f.IsPrototypeAvailable("relay"))
	assert.False(t, f.IsPrototypeAvailable("broken"))

	var names []string
	for _, p := range f.Prototypes() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"source", "relay", "text", "gain"}, names)
}

func TestFactoryPrototypeDescription(t *testing.T) {
	t.Parallel()
	f := testFactory(t)

	p, err := f.Prototype("gain")
	require.NoError(t, err)
	assert.Equal(t, "scales ints", p.Description)
	require.Len(t, p.Inputs, 1)
	assert.Equal(t, ConnectorInfo{Name: "in", Description: "input in", Direction: DirectionInput, Type: TypeOf[int]()}, p.Inputs[0])
	require.Len(t, p.Outputs, 1)
	assert.Equal(t, DirectionOutput, p.Outputs[0].Direction)
	assert.Equal(t, []PropertyInfo{{Name: "factor", Description: "property factor", Type: "float64", Default: "2.5"}}, p.Properties)
	assert.False(t, p.RegisteredAt.IsZero())
	assert.True(t, p.Accepts(TypeOf[int]()))
	assert.False(t, p.Accepts(TypeOf[string]()))

	_, err = f.Prototype("missing")
	assert.ErrorIs(t, err, ErrPrototypeNotFound)
	var pnf *PrototypeNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, "missing", pnf.Name)
}

func TestFactoryCreate(t *testing.T) {
	t.Parallel()
	f := testFactory(t)

	a, err := f.Create("relay")
	require.NoError(t, err)
	b, err := f.Create("relay")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.NotSame(t, a.Implementation(), b.Implementation())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, StateConstructed, a.State())
	assert.Equal(t, "forwards ints", a.Description())

	_, err = f.Create("missing")
	assert.ErrorIs(t, err, ErrPrototypeNotFound)
}

func TestCompatiblePrototypes(t *testing.T) {
	t.Parallel()
	f := testFactory(t)
	src, err := f.Create("source")
	require.NoError(t, err)

	names := func(list []Prototype) []string {
		var out []string
		for _, p := range list {
			out = append(out, p.Name)
		}
		return out
	}

	assert.Equal(t, []string{"source", "relay", "gain"}, names(f.CompatiblePrototypes(src)))
	assert.Equal(t, []string{"source"}, names(f.CompatiblePrototypes(nil)))
}
