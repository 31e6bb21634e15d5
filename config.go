package flowkernel

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
	"github.com/robfig/cron/v3"
)

// Feeder aliases
type (
	Feeder     = config.Feeder
	EnvFeeder  = feeder.Env
	YamlFeeder = feeder.Yaml
	JsonFeeder = feeder.Json
	TomlFeeder = feeder.Toml
)

// Config is the kernel configuration.
type Config struct {
	Kernel KernelConfig `yaml:"kernel" toml:"kernel" json:"kernel"`
	HTTP   HTTPConfig   `yaml:"http" toml:"http" json:"http"`
}

// KernelConfig configures the kernel and its root container.
type KernelConfig struct {
	// Name of the root container.
	Name string `yaml:"name" toml:"name" json:"name" env:"FLOWKERNEL_NAME"`

	// DefaultModules are created at Start, in order. Unknown prototypes are
	// logged and skipped.
	DefaultModules []string `yaml:"default_modules" toml:"default_modules" json:"default_modules"`

	// Project is a project file loaded at Start.
	Project string `yaml:"project" toml:"project" json:"project" env:"FLOWKERNEL_PROJECT"`

	// ProgressSchedule is the cron spec of the progress monitor, e.g. "@every 1s".
	// An empty schedule disables the monitor.
	ProgressSchedule string `yaml:"progress_schedule" toml:"progress_schedule" json:"progress_schedule" env:"FLOWKERNEL_PROGRESS_SCHEDULE"`

	// StopTimeout bounds the wait for module workers on Stop, e.g. "10s".
	StopTimeout string `yaml:"stop_timeout" toml:"stop_timeout" json:"stop_timeout" env:"FLOWKERNEL_STOP_TIMEOUT"`
}

// HTTPConfig configures the inspection API.
type HTTPConfig struct {
	Listen       string `yaml:"listen" toml:"listen" json:"listen" env:"FLOWKERNEL_HTTP_LISTEN"`
	EnableEvents bool   `yaml:"enable_events" toml:"enable_events" json:"enable_events" env:"FLOWKERNEL_HTTP_ENABLE_EVENTS"`
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() *Config {
	return &Config{
		Kernel: KernelConfig{
			Name:             "root",
			ProgressSchedule: "@every 1s",
			StopTimeout:      "10s",
		},
		HTTP: HTTPConfig{
			Listen:       ":8080",
			EnableEvents: true,
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Kernel.Name == "" {
		return fmt.Errorf("%w: kernel.name must not be empty", ErrInvalidConfig)
	}
	if _, err := c.Kernel.StopTimeoutDuration(); err != nil {
		return fmt.Errorf("%w: kernel.stop_timeout: %w", ErrInvalidConfig, err)
	}
	if c.Kernel.ProgressSchedule != "" {
		if _, err := cron.ParseStandard(c.Kernel.ProgressSchedule); err != nil {
			return fmt.Errorf("%w: kernel.progress_schedule %q: %w", ErrInvalidConfig, c.Kernel.ProgressSchedule, err)
		}
	}
	return nil
}

// StopTimeoutDuration parses StopTimeout. An empty value means no bound.
func (k KernelConfig) StopTimeoutDuration() (time.Duration, error) {
	if k.StopTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(k.StopTimeout)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", d)
	}
	return d, nil
}

// FeederForPath returns the file feeder matching the extension of path.
func FeederForPath(path string) (Feeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YamlFeeder{Path: path}, nil
	case ".toml":
		return TomlFeeder{Path: path}, nil
	case ".json":
		return JsonFeeder{Path: path}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported config file %q", ErrInvalidConfig, path)
	}
}

// LoadConfig builds a configuration from the defaults, the given files (in
// order, later files override earlier ones) and FLOWKERNEL_* environment
// variables, then validates it.
func LoadConfig(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	builder := config.New()
	for _, path := range paths {
		f, err := FeederForPath(path)
		if err != nil {
			return nil, err
		}
		builder.AddFeeder(f)
	}
	builder.AddFeeder(EnvFeeder{})
	builder.AddStruct(cfg)
	if err := builder.Feed(); err != nil {
		return nil, fmt.Errorf("failed to feed config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
