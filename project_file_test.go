package flowkernel

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProject = `// Modules and Properties

MODULE:0:source
MODULE:1:gain
PROPERTY:(1,factor)=4
MODULE:2:relay
  MODULE:x:relay
garbage line

// Connections
CONNECTION:(0,out)->(1,in)
CONNECTION:(1,out)->(2,in)
`

func TestParseProject(t *testing.T) {
	t.Parallel()
	logger := &recordingLogger{}
	p, err := ParseProject(strings.NewReader(sampleProject), logger)
	require.NoError(t, err)

	assert.Equal(t, []ProjectModule{
		{ID: 0, Prototype: "source", Line: 3},
		{ID: 1, Prototype: "gain", Line: 4},
		{ID: 2, Prototype: "relay", Line: 6},
	}, p.Modules)
	assert.Equal(t, []ProjectProperty{{ID: 1, Name: "factor", Value: "4", Line: 5}}, p.Properties)
	assert.Equal(t, []ProjectConnection{
		{FromID: 0, Output: "out", ToID: 1, Input: "in", Line: 11},
		{FromID: 1, Output: "out", ToID: 2, Input: "in", Line: 12},
	}, p.Connections)
	assert.True(t, logger.has("warn", "Skipping project line"))
}

func TestProjectApply(t *testing.T) {
	t.Parallel()
	c, _ := newTestContainer(t)
	p, err := ParseProject(strings.NewReader(sampleProject), nil)
	require.NoError(t, err)

	res, err := p.Apply(testContext(t), c, testFactory(t))
	require.NoError(t, err)
	assert.Zero(t, res.Skipped)
	require.Len(t, res.Modules, 3)
	assert.Equal(t, 3, c.Len())

	gain := res.Modules[1]
	factor, ok := gain.Properties().Find("factor")
	require.True(t, ok)
	assert.Equal(t, 4.0, factor.Get())

	assert.True(t, mustInput(t, gain, "in").IsConnectedTo(mustOutput(t, res.Modules[0], "out")))
	assert.True(t, mustInput(t, res.Modules[2], "in").IsConnectedTo(mustOutput(t, gain, "out")))
}

func TestProjectApplySkipsBadEntries(t *testing.T) {
	t.Parallel()
	c, logger := newTestContainer(t)
	src := `MODULE:0:source
MODULE:0:relay
MODULE:1:unknown
MODULE:2:text
PROPERTY:(0,missing)=1
PROPERTY:(7,factor)=1
CONNECTION:(0,out)->(2,in)
CONNECTION:(0,out)->(1,in)
CONNECTION:(0,nope)->(2,in)
`
	p, err := ParseProject(strings.NewReader(src), nil)
	require.NoError(t, err)

	res, err := p.Apply(testContext(t), c, testFactory(t))
	require.NoError(t, err)
	assert.Len(t, res.Modules, 2)
	assert.Equal(t, 7, res.Skipped)
	assert.Equal(t, 2, c.Len())
	assert.True(t, logger.has("error", "Duplicate module id in project, skipping"))
	assert.True(t, logger.has("error", "Cannot create project module, skipping"))
	assert.True(t, logger.has("error", "Module has no such property, skipping"))
	assert.True(t, logger.has("error", "No module for property, skipping"))
	assert.True(t, logger.has("error", "Cannot connect, skipping"))
}

func TestProjectApplyDropsModulesThatFailBeforeReady(t *testing.T) {
	t.Parallel()
	f := NewFactory()
	require.NoError(t, f.Register("source", "", sourceImpl))
	require.NoError(t, f.Register("broken", "", func() Implementation {
		return &stubImpl{inputs: []string{"in"}, main: func(ctx context.Context, m *Module) error {
			return errBodyFailed
		}}
	}))
	c, logger := newTestContainer(t)
	p, err := ParseProject(strings.NewReader("MODULE:0:source\nMODULE:1:broken\nCONNECTION:(0,out)->(1,in)\n"), nil)
	require.NoError(t, err)

	res, err := p.Apply(testContext(t), c, f)
	require.NoError(t, err)
	assert.Len(t, res.Modules, 1)
	assert.Equal(t, 1, res.Skipped)
	assert.True(t, logger.has("warn", "Project module failed before it became ready; connections and properties relating to it will fail"))
}

func TestProjectApplyHonoursContext(t *testing.T) {
	t.Parallel()
	f := NewFactory()
	require.NoError(t, f.Register("lazy", "", func() Implementation {
		return &stubImpl{main: func(ctx context.Context, m *Module) error {
			<-ctx.Done()
			return nil
		}}
	}))
	c, _ := newTestContainer(t)
	p, err := ParseProject(strings.NewReader("MODULE:0:lazy\n"), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Apply(ctx, c, f)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteProjectRoundTrip(t *testing.T) {
	t.Parallel()
	f := testFactory(t)
	c, _ := newTestContainer(t)
	p, err := ParseProject(strings.NewReader(sampleProject), nil)
	require.NoError(t, err)
	_, err = p.Apply(testContext(t), c, f)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteProject(&buf, c))
	assert.Equal(t, `// Modules and Properties

MODULE:0:source

MODULE:1:gain
PROPERTY:(1,factor)=4

MODULE:2:relay

// Connections
CONNECTION:(0,out)->(1,in)
CONNECTION:(1,out)->(2,in)
`, buf.String())

	again, _ := newTestContainer(t)
	reparsed, err := ParseProject(&buf, nil)
	require.NoError(t, err)
	res, err := reparsed.Apply(testContext(t), again, f)
	require.NoError(t, err)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, 3, again.Len())
}
