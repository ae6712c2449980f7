// Package config provides configuration loading for office-raster.
// Supports an optional YAML file, a .env file, and OFFICE_RASTER_* environment
// overrides, applied in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/spherical/office-raster/internal/domain"
)

// DefaultConfigPath is read when no explicit config file is given and it exists.
const DefaultConfigPath = "configs/office-raster.yaml"

// Config holds all configuration for office-raster.
type Config struct {
	Defaults      DefaultsConfig      `yaml:"defaults"`
	Output        OutputConfig        `yaml:"output"`
	Automation    AutomationConfig    `yaml:"automation"`
	Raster        RasterConfig        `yaml:"raster"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DefaultsConfig holds job defaults used when flags are omitted.
type DefaultsConfig struct {
	DPI    int    `yaml:"dpi"`
	Format string `yaml:"format"`
}

// OutputConfig holds output location settings.
type OutputConfig struct {
	// DefaultDir is used for single page jobs without --dir. Empty means the
	// directory of the running executable.
	DefaultDir string `yaml:"default_dir"`
}

// AutomationConfig holds settings for the AppleScript bridge.
type AutomationConfig struct {
	OSAScriptPath      string        `yaml:"osascript_path"`
	Timeout            time.Duration `yaml:"timeout"`
	WordApplication    string        `yaml:"word_application"`
	KeynoteApplication string        `yaml:"keynote_application"`
}

// RasterConfig holds raster tool settings.
type RasterConfig struct {
	SipsPath     string        `yaml:"sips_path"`
	QLManagePath string        `yaml:"qlmanage_path"`
	ToolTimeout  time.Duration `yaml:"tool_timeout"`
	// PageMaxDimension and FrameMaxDimension bound sips resampling.
	PageMaxDimension  int `yaml:"page_max_dimension"`
	FrameMaxDimension int `yaml:"frame_max_dimension"`
	// AssumedPageLengthInches sizes QuickLook previews when the real page
	// geometry is unknown.
	AssumedPageLengthInches float64 `yaml:"assumed_page_length_inches"`
	ProbePageGeometry       bool    `yaml:"probe_page_geometry"`
	InProcessFallback       bool    `yaml:"in_process_fallback"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig returns a configuration with the stock tool locations.
func DefaultConfig() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			DPI:    300,
			Format: string(domain.DefaultFormat),
		},
		Automation: AutomationConfig{
			OSAScriptPath:      "osascript",
			Timeout:            2 * time.Minute,
			WordApplication:    "Microsoft Word",
			KeynoteApplication: "Keynote",
		},
		Raster: RasterConfig{
			SipsPath:                "sips",
			QLManagePath:            "qlmanage",
			ToolTimeout:             5 * time.Minute,
			PageMaxDimension:        8192,
			FrameMaxDimension:       4096,
			AssumedPageLengthInches: 11,
			ProbePageGeometry:       false,
			InProcessFallback:       true,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Load reads configuration from the optional YAML file at path, the .env file
// and the environment.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("OFFICE_RASTER_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(DefaultConfigPath); err == nil {
			path = DefaultConfigPath
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config file")
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, errors.Wrap(err, "apply environment overrides")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Defaults.DPI < 1 || c.Defaults.DPI > domain.MaxDPI {
		return fmt.Errorf("defaults.dpi must be between 1 and %d", domain.MaxDPI)
	}
	if _, err := domain.ParseFormat(c.Defaults.Format); err != nil {
		return fmt.Errorf("defaults.format: %w", err)
	}
	if c.Automation.OSAScriptPath == "" {
		return fmt.Errorf("automation.osascript_path is required")
	}
	if c.Automation.Timeout <= 0 {
		return fmt.Errorf("automation.timeout must be positive")
	}
	if c.Automation.WordApplication == "" || c.Automation.KeynoteApplication == "" {
		return fmt.Errorf("automation application names are required")
	}
	if c.Raster.SipsPath == "" {
		return fmt.Errorf("raster.sips_path is required")
	}
	if c.Raster.QLManagePath == "" {
		return fmt.Errorf("raster.qlmanage_path is required")
	}
	if c.Raster.ToolTimeout < 0 {
		return fmt.Errorf("raster.tool_timeout cannot be negative")
	}
	if c.Raster.PageMaxDimension <= 0 || c.Raster.FrameMaxDimension <= 0 {
		return fmt.Errorf("raster max dimensions must be positive")
	}
	if c.Raster.AssumedPageLengthInches <= 0 {
		return fmt.Errorf("raster.assumed_page_length_inches must be positive")
	}
	switch c.Observability.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("observability.log_format must be console or json, got %q", c.Observability.LogFormat)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("OFFICE_RASTER_DPI"); v != "" {
		var dpi int
		if _, err := fmt.Sscanf(v, "%d", &dpi); err != nil {
			return fmt.Errorf("OFFICE_RASTER_DPI: %w", err)
		}
		cfg.Defaults.DPI = dpi
	}
	if v := os.Getenv("OFFICE_RASTER_FORMAT"); v != "" {
		cfg.Defaults.Format = v
	}
	if v := os.Getenv("OFFICE_RASTER_OUTPUT_DIR"); v != "" {
		cfg.Output.DefaultDir = v
	}
	if v := os.Getenv("OFFICE_RASTER_OSASCRIPT"); v != "" {
		cfg.Automation.OSAScriptPath = v
	}
	if v := os.Getenv("OFFICE_RASTER_AUTOMATION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("OFFICE_RASTER_AUTOMATION_TIMEOUT: %w", err)
		}
		cfg.Automation.Timeout = d
	}
	if v := os.Getenv("OFFICE_RASTER_SIPS"); v != "" {
		cfg.Raster.SipsPath = v
	}
	if v := os.Getenv("OFFICE_RASTER_QLMANAGE"); v != "" {
		cfg.Raster.QLManagePath = v
	}
	if v := os.Getenv("OFFICE_RASTER_TOOL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("OFFICE_RASTER_TOOL_TIMEOUT: %w", err)
		}
		cfg.Raster.ToolTimeout = d
	}
	if v := os.Getenv("OFFICE_RASTER_PAGE_LENGTH_INCHES"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OFFICE_RASTER_PAGE_LENGTH_INCHES: %w", err)
		}
		cfg.Raster.AssumedPageLengthInches = f
	}
	if v := os.Getenv("OFFICE_RASTER_PROBE_GEOMETRY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("OFFICE_RASTER_PROBE_GEOMETRY: %w", err)
		}
		cfg.Raster.ProbePageGeometry = b
	}
	if v := os.Getenv("OFFICE_RASTER_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("OFFICE_RASTER_LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
	return nil
}
