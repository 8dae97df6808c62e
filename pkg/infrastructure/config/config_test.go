package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartoprint/cartoprint/pkg/util"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8090", cfg.Listen)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "./data/generated-maps", cfg.Storage.RootPath)
	assert.True(t, cfg.Reconcile.Watch)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Equal(t, ":8090", cfg.Listen)
}

func TestLoadJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"listen": ":9999",
		"logging": {"level": "debug", "format": "json"},
		"storage": {"root_path": "/srv/maps", "max_file_size": "10MB"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/srv/maps", cfg.Storage.RootPath)
	assert.Equal(t, util.ByteSize(10*1024*1024), cfg.Storage.MaxFileSize)
	// Untouched fields keep their defaults.
	assert.True(t, cfg.Reconcile.Watch)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen: ":7070"
logging:
  level: warn
storage:
  root_path: /srv/maps
reconcile:
  watch: false
  debounce_seconds: 30
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/srv/maps", cfg.Storage.RootPath)
	assert.False(t, cfg.Reconcile.Watch)
	assert.Equal(t, 30, cfg.Reconcile.DebounceSeconds)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CARTOPRINT_LISTEN", ":6000")
	t.Setenv("CARTOPRINT_LOG_LEVEL", "error")
	t.Setenv("CARTOPRINT_STORAGE_ROOT", "/env/maps")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.Listen)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, "/env/maps", cfg.Storage.RootPath)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"negative debounce", func(c *Config) { c.Reconcile.DebounceSeconds = -1 }},
		{"empty storage root", func(c *Config) { c.Storage.RootPath = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Listen = ":5050"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":5050", loaded.Listen)
}
