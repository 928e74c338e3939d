// Package config holds panic-attacker configuration loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// Duration wraps time.Duration so YAML values like "30s" parse naturally.
type Duration time.Duration

// UnmarshalYAML parses either a duration string or a plain nanosecond count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		if parsed, err := time.ParseDuration(raw); err == nil {
			*d = Duration(parsed)
			return nil
		}
	}
	// Integer scalars also decode as strings, so they land here after
	// ParseDuration rejects the unitless text.
	var ns int64
	if err := value.Decode(&ns); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(ns)
	return nil
}

// MarshalYAML renders the duration as its string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std converts back to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all panic-attacker configuration.
type Config struct {
	// IncludeTestCode opts test-bucket weak points into severity aggregates.
	IncludeTestCode bool `yaml:"include_test_code"`

	// EncodingFallback is the ordered list of decoders tried after UTF-8
	// validation fails. A file undecodable under all entries is skipped.
	EncodingFallback []string `yaml:"encoding_fallback"`

	// Thresholds, when present, make a scan emit a pass/fail verdict.
	Thresholds *Thresholds `yaml:"thresholds,omitempty"`

	// LanguageProfiles maps a language family to severity overrides.
	LanguageProfiles map[string]LanguageProfile `yaml:"language_profiles,omitempty"`

	// Attack configures the dynamic attack orchestrator.
	Attack AttackProfile `yaml:"attack_profile"`

	// Storage configures where reports are persisted.
	Storage StorageConfig `yaml:"storage"`

	// Workspace configures workspace and sweep behaviour.
	Workspace WorkspaceConfig `yaml:"workspace"`
}

// Thresholds bound what a scan may report before the verdict flips to fail.
type Thresholds struct {
	MaxUnsafeBlocks           int            `yaml:"max_unsafe_blocks"`
	MaxProductionUnwraps      int            `yaml:"max_production_unwraps"`
	MaxSeverity               types.Severity `yaml:"max_severity"`
	MaxWeakPoints             int            `yaml:"max_weak_points"`
	RequireErrorHandlingLevel int            `yaml:"require_error_handling_level"`
}

// LanguageProfile overrides default severities for one language family.
type LanguageProfile struct {
	SeverityOverrides map[string]types.Severity `yaml:"severity_overrides"`
}

// AttackProfile configures the attack orchestrator.
type AttackProfile struct {
	Intensity  types.IntensityLevel          `yaml:"intensity"`
	Duration   Duration                      `yaml:"duration"`
	ProbeMode  types.ProbeMode               `yaml:"probe_mode"`
	CommonArgs []string                      `yaml:"common_args,omitempty"`
	AxisArgs   map[types.AttackAxis][]string `yaml:"axis_args,omitempty"`
	Timeout    Duration                      `yaml:"timeout"`
}

// StorageConfig configures report persistence.
type StorageConfig struct {
	Root    string   `yaml:"root"`
	Formats []string `yaml:"formats"`
	Index   bool     `yaml:"index"`
}

// WorkspaceConfig configures workspace and sweep scans.
type WorkspaceConfig struct {
	Parallelism       int `yaml:"parallelism"`
	TopOffendersLimit int `yaml:"top_offenders_limit"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		IncludeTestCode:  false,
		EncodingFallback: []string{"utf-8", "windows-1252"},
		Attack: AttackProfile{
			Intensity: types.IntensityMedium,
			Duration:  Duration(10 * time.Second),
			ProbeMode: types.ProbeAuto,
			Timeout:   Duration(60 * time.Second),
		},
		Storage: StorageConfig{
			Root:    "",
			Formats: []string{"json"},
			Index:   true,
		},
		Workspace: WorkspaceConfig{
			Parallelism:       4,
			TopOffendersLimit: 10,
		},
	}
}

// Load reads configuration from a YAML file, merged over defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads the config at path when it exists, defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return Load(path)
}

// Validate rejects configurations the pipeline cannot honour.
func (c *Config) Validate() error {
	if len(c.EncodingFallback) == 0 {
		return fmt.Errorf("encoding_fallback must list at least one encoding")
	}
	for _, enc := range c.EncodingFallback {
		switch enc {
		case "utf-8", "utf8", "windows-1252", "latin-1", "iso-8859-1":
		default:
			return fmt.Errorf("unsupported fallback encoding %q", enc)
		}
	}
	if c.Attack.Timeout <= 0 {
		return fmt.Errorf("attack timeout must be positive")
	}
	if c.Workspace.Parallelism < 1 {
		return fmt.Errorf("workspace parallelism must be at least 1")
	}
	if c.Workspace.TopOffendersLimit < 1 {
		return fmt.Errorf("top_offenders_limit must be at least 1")
	}
	if t := c.Thresholds; t != nil && t.RequireErrorHandlingLevel > 3 {
		return fmt.Errorf("require_error_handling_level must be in 0..3")
	}
	return nil
}
