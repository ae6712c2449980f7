package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 300, cfg.Defaults.DPI)
	assert.Equal(t, "png", cfg.Defaults.Format)
	assert.Equal(t, 2*time.Minute, cfg.Automation.Timeout)
	assert.Equal(t, 8192, cfg.Raster.PageMaxDimension)
	assert.Equal(t, 4096, cfg.Raster.FrameMaxDimension)
	assert.Equal(t, 11.0, cfg.Raster.AssumedPageLengthInches)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "office-raster.yaml")
	yamlData := `
defaults:
  dpi: 600
  format: jpeg
automation:
  timeout: 90s
raster:
  tool_timeout: 1m
  probe_page_geometry: true
observability:
  log_format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0644))

	t.Setenv("OFFICE_RASTER_DPI", "1200")
	t.Setenv("OFFICE_RASTER_SIPS", "/opt/bin/sips")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1200, cfg.Defaults.DPI, "env overrides file")
	assert.Equal(t, "jpeg", cfg.Defaults.Format)
	assert.Equal(t, 90*time.Second, cfg.Automation.Timeout)
	assert.Equal(t, time.Minute, cfg.Raster.ToolTimeout)
	assert.True(t, cfg.Raster.ProbePageGeometry)
	assert.Equal(t, "/opt/bin/sips", cfg.Raster.SipsPath)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
	// Untouched values keep their defaults.
	assert.Equal(t, "Keynote", cfg.Automation.KeynoteApplication)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("OFFICE_RASTER_AUTOMATION_TIMEOUT", "soon")
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"dpi", func(c *Config) { c.Defaults.DPI = 0 }},
		{"format", func(c *Config) { c.Defaults.Format = "bmp" }},
		{"timeout", func(c *Config) { c.Automation.Timeout = 0 }},
		{"sips", func(c *Config) { c.Raster.SipsPath = "" }},
		{"page length", func(c *Config) { c.Raster.AssumedPageLengthInches = 0 }},
		{"log format", func(c *Config) { c.Observability.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_ShippedConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", DefaultConfigPath))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
