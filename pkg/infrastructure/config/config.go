package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cartoprint/cartoprint/pkg/storage"
)

// Config holds the full application configuration.
type Config struct {
	// Listen is the HTTP boundary listen address.
	Listen string `json:"listen" yaml:"listen"`

	// Logging holds log settings.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Storage holds the storage subsystem settings.
	Storage storage.Config `json:"storage" yaml:"storage"`

	// Reconcile holds reconciliation sweep settings.
	Reconcile ReconcileConfig `json:"reconcile" yaml:"reconcile"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text, json
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
}

// ReconcileConfig holds reconciliation sweep settings.
type ReconcileConfig struct {
	// Watch enables the filesystem watcher that triggers sweeps.
	Watch bool `json:"watch" yaml:"watch"`

	// DebounceSeconds is how long directory activity must settle before
	// a watcher-triggered sweep runs.
	DebounceSeconds int `json:"debounce_seconds" yaml:"debounce_seconds"`
}

// DefaultConfig returns the default application configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen: ":8090",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: *storage.DefaultConfig("./data/generated-maps"),
		Reconcile: ReconcileConfig{
			Watch:           true,
			DebounceSeconds: 5,
		},
	}
}

// Load reads configuration from a file, starting from defaults. The file
// format is chosen by extension: .yaml/.yml is YAML, everything else is
// JSON. A missing file is not an error; defaults apply. Environment
// variables override file values last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			switch strings.ToLower(filepath.Ext(path)) {
			case ".yaml", ".yml":
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return nil, fmt.Errorf("failed to parse config file: %w", err)
				}
			default:
				if err := json.Unmarshal(data, cfg); err != nil {
					return nil, fmt.Errorf("failed to parse config file: %w", err)
				}
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides config fields from CARTOPRINT_* variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CARTOPRINT_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("CARTOPRINT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CARTOPRINT_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CARTOPRINT_STORAGE_ROOT"); v != "" {
		cfg.Storage.RootPath = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Reconcile.DebounceSeconds < 0 {
		return fmt.Errorf("reconcile debounce cannot be negative")
	}
	return c.Storage.Validate()
}

// Save writes the configuration to a file as JSON, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
