package storage

import (
	"github.com/cartoprint/cartoprint/pkg/util"
)

// DefaultURLPrefix is the path under which stored artifacts are exposed.
const DefaultURLPrefix = "/generated-maps"

// Config holds the storage subsystem's configuration. It is supplied by
// the surrounding application; this package owns no ambient global state.
type Config struct {
	// RootPath is the base directory the four namespace directories are
	// created under.
	RootPath string `json:"root_path" yaml:"root_path"`

	// URLPrefix is the prefix of caller-facing artifact URLs.
	URLPrefix string `json:"url_prefix" yaml:"url_prefix"`

	// MaxFileSize is the largest accepted payload (0 = unlimited).
	MaxFileSize util.ByteSize `json:"max_file_size" yaml:"max_file_size"`

	// Quotas holds the per-namespace size ceilings.
	Quotas QuotaConfig `json:"quotas" yaml:"quotas"`
}

// QuotaConfig holds per-namespace size ceilings (0 = unlimited).
type QuotaConfig struct {
	Processing util.ByteSize `json:"processing" yaml:"processing"`
	Temporary  util.ByteSize `json:"temporary" yaml:"temporary"`
	Permanent  util.ByteSize `json:"permanent" yaml:"permanent"`
}

// Ceilings returns the quota table keyed by namespace.
func (qc QuotaConfig) Ceilings() map[Namespace]int64 {
	return map[Namespace]int64{
		NamespaceProcessing: int64(qc.Processing),
		NamespaceTemporary:  int64(qc.Temporary),
		NamespacePermanent:  int64(qc.Permanent),
	}
}

// DefaultConfig returns a configuration with sensible defaults for the
// given storage root.
func DefaultConfig(root string) *Config {
	return &Config{
		RootPath:    root,
		URLPrefix:   DefaultURLPrefix,
		MaxFileSize: 50 * 1024 * 1024,
		Quotas: QuotaConfig{
			Processing: 1 * 1024 * 1024 * 1024,
			Temporary:  5 * 1024 * 1024 * 1024,
			Permanent:  20 * 1024 * 1024 * 1024,
		},
	}
}

// Validate checks the configuration for consistency. It never mutates the
// config; defaults are applied by DefaultConfig and NewStore.
func (c *Config) Validate() error {
	if c.RootPath == "" {
		return NewValidationError("root_path", "must not be empty")
	}
	if c.MaxFileSize < 0 {
		return NewValidationError("max_file_size", "cannot be negative")
	}
	for _, ceiling := range []util.ByteSize{c.Quotas.Processing, c.Quotas.Temporary, c.Quotas.Permanent} {
		if ceiling < 0 {
			return NewValidationError("quotas", "ceilings cannot be negative")
		}
	}
	return nil
}
