package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// Format selects a serialisation for report records.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatSARIF Format = "sarif"
)

// ParseFormat maps a string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "sarif":
		return FormatSARIF, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// Extension is the file extension for the format.
func (f Format) Extension() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatSARIF:
		return "sarif.json"
	default:
		return "json"
	}
}

// Marshal serialises any report record in the format. SARIF only applies
// to assail reports; other records fall back to JSON.
func (f Format) Marshal(record any) ([]byte, error) {
	switch f {
	case FormatYAML:
		return yaml.Marshal(record)
	case FormatSARIF:
		if assail, ok := record.(*types.AssailReport); ok {
			return marshalSARIF(assail)
		}
		return json.MarshalIndent(record, "", "  ")
	default:
		return json.MarshalIndent(record, "", "  ")
	}
}

// Write serialises a record to a path, creating parent directories.
func Write(record any, path string, format Format) error {
	data, err := format.Marshal(record)
	if err != nil {
		return fmt.Errorf("serialising report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return nil
}

// LoadAssail reads a stored assail report; YAML or JSON by extension.
func LoadAssail(path string) (*types.AssailReport, error) {
	var report types.AssailReport
	if err := load(path, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// LoadAssault reads a stored assault report.
func LoadAssault(path string) (*types.AssaultReport, error) {
	var report types.AssaultReport
	if err := load(path, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func load(path string, into any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading report %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, into); err != nil {
			return fmt.Errorf("parsing yaml report %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, into); err != nil {
			return fmt.Errorf("parsing json report %s: %w", path, err)
		}
	}
	return nil
}
