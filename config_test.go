package flowkernel

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	d, err := cfg.Kernel.StopTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty name", func(c *Config) { c.Kernel.Name = "" }},
		{"bad stop timeout", func(c *Config) { c.Kernel.StopTimeout = "soon" }},
		{"negative stop timeout", func(c *Config) { c.Kernel.StopTimeout = "-1s" }},
		{"bad schedule", func(c *Config) { c.Kernel.ProgressSchedule = "every now and then" }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	cfg := DefaultConfig()
	cfg.Kernel.ProgressSchedule = ""
	cfg.Kernel.StopTimeout = ""
	assert.NoError(t, cfg.Validate(), "empty schedule and timeout are allowed")
}

func TestFeederForPath(t *testing.T) {
	t.Parallel()
	for _, path := range []string{"a.yaml", "a.YML", "a.toml", "a.json"} {
		_, err := FeederForPath(path)
		assert.NoError(t, err, path)
	}
	_, err := FeederForPath("a.ini")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfigFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := writeFile(t, dir, "kernel.yaml", `kernel:
  name: lab
  default_modules: [constant, sink]
  progress_schedule: "@every 2s"
http:
  listen: ":9090"
`)
	tomlPath := writeFile(t, dir, "override.toml", `[kernel]
name = "override"
stop_timeout = "3s"
`)
	jsonPath := writeFile(t, dir, "events.json", `{"http": {"enable_events": false}}`)

	cfg, err := LoadConfig(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "lab", cfg.Kernel.Name)
	assert.Equal(t, []string{"constant", "sink"}, cfg.Kernel.DefaultModules)
	assert.Equal(t, "@every 2s", cfg.Kernel.ProgressSchedule)
	assert.Equal(t, ":9090", cfg.HTTP.Listen)
	assert.Equal(t, "10s", cfg.Kernel.StopTimeout, "unset fields keep defaults")

	cfg, err = LoadConfig(yamlPath, tomlPath, jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "override", cfg.Kernel.Name)
	assert.Equal(t, "3s", cfg.Kernel.StopTimeout)
	assert.Equal(t, ":9090", cfg.HTTP.Listen)
	assert.False(t, cfg.HTTP.EnableEvents)
}

func TestLoadConfigRejectsInvalidFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.yaml", "kernel:\n  progress_schedule: nonsense\n")

	_, err := LoadConfig(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, dir, "kernel.ini", ""))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("FLOWKERNEL_NAME", "from-env")
	t.Setenv("FLOWKERNEL_HTTP_LISTEN", "127.0.0.1:0")
	dir := t.TempDir()
	path := writeFile(t, dir, "kernel.yaml", "kernel:\n  name: from-file\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Kernel.Name, "environment overrides files")
	assert.Equal(t, "127.0.0.1:0", cfg.HTTP.Listen)
}
