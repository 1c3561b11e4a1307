package config

import (
	"time"

	"github.com/xraph/locator/logger"
)

const (
	DefaultComponentsPath     = "META-INF/components/"
	DefaultServicesPath       = "META-INF/services/"
	DefaultMaxResolutionDepth = 64
	DefaultDebugAddr          = "127.0.0.1:7070"
	DefaultDebounce           = 300 * time.Millisecond
)

// Config is the runtime configuration loaded from .locator.yaml
type Config struct {
	// Verbose enables debug level diagnostics for resolution and transitions.
	Verbose bool `yaml:"verbose"`

	// ComponentsPath is the prefix of descriptors whose implementations may
	// declare dependencies.
	ComponentsPath string `yaml:"components_path"`

	// ServicesPath is the prefix of descriptors whose implementations must be
	// dependency-free.
	ServicesPath string `yaml:"services_path"`

	// StaticOnly disables reactive components even when modules are attached.
	StaticOnly bool `yaml:"static_only"`

	MaxResolutionDepth int `yaml:"max_resolution_depth"`

	Logging logger.LoggingConfig `yaml:"logging"`
	Modules ModulesConfig        `yaml:"modules"`
	Debug   DebugConfig          `yaml:"debug"`
	Metrics MetricsConfig        `yaml:"metrics"`

	// Internal fields (not in YAML)
	RootDir    string `yaml:"-"`
	ConfigPath string `yaml:"-"`
}

// ModulesConfig controls the directory of attachable modules.
type ModulesConfig struct {
	Dir      string        `yaml:"dir"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// DebugConfig controls the debug server.
type DebugConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		ComponentsPath:     DefaultComponentsPath,
		ServicesPath:       DefaultServicesPath,
		MaxResolutionDepth: DefaultMaxResolutionDepth,
		Logging: logger.LoggingConfig{
			Level:       "info",
			Format:      "console",
			Environment: "development",
		},
		Modules: ModulesConfig{
			Dir:      "./modules",
			Watch:    true,
			Debounce: DefaultDebounce,
		},
		Debug: DebugConfig{
			Addr: DefaultDebugAddr,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LogLevel returns the effective log level, honouring Verbose.
func (c *Config) LogLevel() string {
	if c.Verbose {
		return "debug"
	}
	return c.Logging.Level
}
