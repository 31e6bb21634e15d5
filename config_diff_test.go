package flowkernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffConfig(t *testing.T) {
	t.Parallel()
	oldCfg := DefaultConfig()
	assert.Empty(t, DiffConfig(oldCfg, DefaultConfig()))

	newCfg := DefaultConfig()
	newCfg.Kernel.ProgressSchedule = "@every 5s"
	newCfg.Kernel.DefaultModules = []string{"sink"}
	newCfg.HTTP.EnableEvents = false

	changes := DiffConfig(oldCfg, newCfg)
	require.Len(t, changes, 3)
	assert.Equal(t, ConfigChange{FieldPath: "kernel.default_modules", OldValue: []string(nil), NewValue: []string{"sink"}}, changes[0])
	assert.Equal(t, "kernel.progress_schedule", changes[1].FieldPath)
	assert.True(t, changes[1].Dynamic)
	assert.Equal(t, "kernel.progress_schedule: @every 1s -> @every 5s", changes[1].String())
	assert.Equal(t, ConfigChange{FieldPath: "http.enable_events", OldValue: true, NewValue: false}, changes[2])
}

func TestDiffConfigNil(t *testing.T) {
	t.Parallel()
	changes := DiffConfig(nil, DefaultConfig())
	assert.NotEmpty(t, changes)
	for _, c := range changes {
		assert.NotEmpty(t, c.FieldPath)
	}
	assert.Empty(t, DiffConfig(nil, nil))
}
