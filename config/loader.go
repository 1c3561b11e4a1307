package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables overriding file configuration
const (
	EnvVerbose        = "LOCATOR_VERBOSE"
	EnvComponentsPath = "LOCATOR_COMPONENTS_PATH"
	EnvServicesPath   = "LOCATOR_SERVICES_PATH"
	EnvStaticOnly     = "LOCATOR_STATIC_ONLY"
)

var fileNames = []string{".locator.yaml", ".locator.yml"}

// Find searches for .locator.yaml from dir up the directory tree.
// Returns the config, the path where it was found, and any error.
func Find(dir string) (*Config, string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve directory: %w", err)
	}

	for {
		for _, name := range fileNames {
			configPath := filepath.Join(dir, name)
			if config, err := tryLoadConfig(configPath); err == nil {
				config.RootDir = dir
				config.ConfigPath = configPath
				return config, configPath, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, "", fmt.Errorf("no .locator.yaml or .locator.yml found in %s or any parent", dir)
		}
		dir = parent
	}
}

// Load reads the config at path on top of the defaults.
func Load(path string) (*Config, error) {
	config, err := tryLoadConfig(path)
	if err != nil {
		return nil, err
	}
	config.RootDir = filepath.Dir(path)
	config.ConfigPath = path
	return config, nil
}

func tryLoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Save writes the configuration to a file
func Save(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from LOCATOR_* environment variables.
func ApplyEnv(config *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup(EnvVerbose); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvVerbose, err)
		}
		config.Verbose = b
	}
	if v, ok := lookup(EnvStaticOnly); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvStaticOnly, err)
		}
		config.StaticOnly = b
	}
	if v, ok := lookup(EnvComponentsPath); ok {
		config.ComponentsPath = v
	}
	if v, ok := lookup(EnvServicesPath); ok {
		config.ServicesPath = v
	}

	return nil
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.ComponentsPath == "" {
		return fmt.Errorf("components_path is required")
	}
	if config.ServicesPath == "" {
		return fmt.Errorf("services_path is required")
	}
	if normalizePrefix(config.ComponentsPath) == normalizePrefix(config.ServicesPath) {
		return fmt.Errorf("components_path and services_path must differ")
	}
	if strings.HasPrefix(config.ComponentsPath, "/") || strings.HasPrefix(config.ServicesPath, "/") {
		return fmt.Errorf("descriptor paths must be relative to the module root")
	}
	if config.MaxResolutionDepth <= 0 {
		return fmt.Errorf("max_resolution_depth must be positive")
	}
	if config.Debug.Enabled && config.Debug.Addr == "" {
		return fmt.Errorf("debug.addr is required when debug is enabled")
	}
	if config.Modules.Debounce < 0 {
		return fmt.Errorf("modules.debounce must not be negative")
	}
	return nil
}

func normalizePrefix(p string) string {
	return strings.TrimSuffix(p, "/")
}
