package flowkernel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressLeaf(t *testing.T) {
	t.Parallel()
	p := NewProgress("load", 4)

	r := p.Update()
	assert.True(t, r.Pending)
	assert.True(t, r.Determined)
	assert.Zero(t, r.Percent)

	p.Increment(1)
	assert.InDelta(t, 25.0, p.Update().Percent, 1e-9)
	p.Increment(10)
	assert.Equal(t, int64(4), p.Count(), "count is capped at total")

	p.Finish()
	r = p.Update()
	assert.False(t, r.Pending)
	assert.True(t, p.Finished())
	p.Increment(1)
	assert.Equal(t, int64(4), p.Count())

	undetermined := NewProgress("scan", -3)
	assert.Equal(t, int64(0), undetermined.Total())
	assert.False(t, undetermined.Update().Determined)
}

func TestProgressCombinerMixedChildren(t *testing.T) {
	t.Parallel()
	c := NewProgressCombiner("root")
	first, second, third := NewProgress("a", 10), NewProgress("b", 10), NewProgress("c", 0)
	c.AddSubProgress(first)
	c.AddSubProgress(second)
	c.AddSubProgress(third)

	first.Increment(5)
	second.Finish()

	r := c.Update()
	assert.True(t, r.Pending)
	assert.False(t, r.Determined, "an undetermined child hides the percentage")
	assert.Zero(t, r.Percent)
	assert.Equal(t, 2, c.Len(), "finished children are dropped")
}

func TestProgressCombinerWeightedAverage(t *testing.T) {
	t.Parallel()
	c := NewProgressCombiner("root")
	small, large := NewProgress("small", 10), NewProgress("large", 30)
	c.AddSubProgress(small)
	c.AddSubProgress(large)

	small.Increment(10)
	r := c.Update()
	require.True(t, r.Determined)
	assert.InDelta(t, 25.0, r.Percent, 1e-9)
	assert.Len(t, r.Children, 2)
	assert.Equal(t, int64(40), c.Total())
}

func TestProgressCombinerIsIdempotent(t *testing.T) {
	t.Parallel()
	c := NewProgressCombiner("root")
	p := NewProgress("a", 8)
	c.AddSubProgress(p)
	c.AddSubProgress(p)
	p.Increment(3)

	first := c.Update()
	second := c.Update()
	assert.Equal(t, first, second)
	assert.Equal(t, second, c.Reading())
	assert.Equal(t, 1, c.Len())
}

func TestProgressCombinerIsMonotonic(t *testing.T) {
	t.Parallel()
	c := NewProgressCombiner("root")
	children := []*Progress{NewProgress("a", 10), NewProgress("b", 20), NewProgress("c", 5)}
	for _, p := range children {
		c.AddSubProgress(p)
	}
	children[1].Increment(15)

	last := c.Update().Percent
	for _, p := range children {
		p.Finish()
		r := c.Update()
		assert.GreaterOrEqual(t, r.Percent, last)
		last = r.Percent
	}
	assert.InDelta(t, 100.0, last, 1e-9)
	assert.False(t, c.Update().Pending)
}

func TestProgressCombinerNested(t *testing.T) {
	t.Parallel()
	root := NewProgressCombiner("root")
	child := NewProgressCombiner("child")
	root.AddSubProgress(child)
	root.AddSubProgress(root)
	p := NewProgress("leaf", 2)
	child.AddSubProgress(p)

	p.Increment(1)
	r := root.Update()
	require.True(t, r.Determined)
	assert.True(t, r.Pending)
	assert.InDelta(t, 50.0, r.Percent, 1e-9)
	require.Len(t, r.Children, 1)
	assert.Equal(t, "child", r.Children[0].Name)

	root.RemoveSubProgress(child)
	assert.Equal(t, 0, root.Len())
	assert.False(t, root.Update().Pending)
}

func TestProgressCombinerConcurrentPolling(t *testing.T) {
	t.Parallel()
	c := NewProgressCombiner("root")
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		p := NewProgress("worker", 100)
		go func() {
			defer wg.Done()
			c.AddSubProgress(p)
			for j := 0; j < 100; j++ {
				p.Increment(1)
			}
			p.Finish()
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Update()
			}
		}()
	}
	wg.Wait()

	r := c.Update()
	assert.False(t, r.Pending)
	assert.InDelta(t, 100.0, r.Percent, 1e-9)
	assert.Equal(t, int64(400), c.Total())
}

func TestProgressCombinerNestedIsMonotonic(t *testing.T) {
	t.Parallel()
	root := NewProgressCombiner("root")
	nested := NewProgressCombiner("module")
	x, y := NewProgress("x", 10), NewProgress("y", 10)
	nested.AddSubProgress(x)
	root.AddSubProgress(nested)
	root.AddSubProgress(y)

	x.Increment(9)
	before := root.Update()
	require.True(t, before.Determined)
	assert.InDelta(t, 45.0, before.Percent, 1e-9)

	x.Finish()
	after := root.Update()
	assert.True(t, after.Pending)
	require.True(t, after.Determined)
	assert.InDelta(t, 50.0, after.Percent, 1e-9, "a completed nested combiner counts as done")

	y.Finish()
	last := root.Update()
	assert.False(t, last.Pending)
	assert.InDelta(t, 100.0, last.Percent, 1e-9)
}
