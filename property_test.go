package flowkernel

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProperties(t *testing.T) {
	t.Parallel()
	ps := newProperties()

	factor, err := ps.Add("factor", "multiplier", 1.5)
	require.NoError(t, err)
	_, err = ps.Add("label", "display name", "none")
	require.NoError(t, err)

	_, err = ps.Add("factor", "again", 2.0)
	assert.ErrorIs(t, err, ErrPropertyNameUsed)
	_, err = ps.Add("nothing", "", nil)
	assert.Error(t, err)

	found, ok := ps.Find("factor")
	require.True(t, ok)
	assert.Same(t, factor, found)
	_, ok = ps.Find("missing")
	assert.False(t, ok)

	list := ps.List()
	require.Len(t, list, 2)
	assert.Equal(t, "factor", list[0].Name())
	assert.Equal(t, "label", list[1].Name())
	assert.Equal(t, reflect.TypeOf(1.5), factor.Type())
	assert.Equal(t, "multiplier", factor.Description())
}

func TestPropertySet(t *testing.T) {
	t.Parallel()
	ps := newProperties()
	count, err := ps.Add("count", "", int64(3))
	require.NoError(t, err)

	changed := count.Changed().Changed()
	all := ps.Changed().Changed()

	require.NoError(t, count.Set(7), "convertible values are converted")
	v, ok := PropertyAs[int64](count)
	require.True(t, ok)
	assert.Equal(t, int64(7), v)
	assert.Equal(t, "7", count.String())

	for _, ch := range []<-chan struct{}{changed, all} {
		select {
		case <-ch:
		default:
			t.Fatal("Set did not notify")
		}
	}

	assert.ErrorIs(t, count.Set("seven"), ErrPropertyValue)
	assert.ErrorIs(t, count.Set(nil), ErrPropertyValue)
	v, _ = PropertyAs[int64](count)
	assert.Equal(t, int64(7), v, "failed Set keeps the value")

	_, ok = PropertyAs[string](count)
	assert.False(t, ok)
}

func TestPropertySetString(t *testing.T) {
	t.Parallel()
	ps := newProperties()
	f, _ := ps.Add("f", "", 0.0)
	b, _ := ps.Add("b", "", false)
	s, _ := ps.Add("s", "", "")

	require.NoError(t, f.SetString("2.5"))
	require.NoError(t, b.SetString("true"))
	require.NoError(t, s.SetString("hello world"))

	assert.Equal(t, 2.5, f.Get())
	assert.Equal(t, true, b.Get())
	assert.Equal(t, "hello world", s.Get())

	err := f.SetString("abc")
	assert.ErrorIs(t, err, ErrPropertyValue)
	assert.Equal(t, 2.5, f.Get())
}
