package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperpolymath/panic-attacker/internal/types"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.IncludeTestCode)
	assert.Equal(t, []string{"utf-8", "windows-1252"}, cfg.EncodingFallback)
	assert.Equal(t, types.IntensityMedium, cfg.Attack.Intensity)
	assert.Equal(t, Duration(60*time.Second), cfg.Attack.Timeout)
	assert.Equal(t, 10, cfg.Workspace.TopOffendersLimit)
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`include_test_code: true
thresholds:
  max_unsafe_blocks: 5
  max_severity: high
attack_profile:
  intensity: heavy
  timeout: 30s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.IncludeTestCode)
	require.NotNil(t, cfg.Thresholds)
	assert.Equal(t, 5, cfg.Thresholds.MaxUnsafeBlocks)
	assert.Equal(t, types.SeverityHigh, cfg.Thresholds.MaxSeverity)
	assert.Equal(t, types.IntensityHeavy, cfg.Attack.Intensity)
	assert.Equal(t, Duration(30*time.Second), cfg.Attack.Timeout)
	// Untouched sections keep their defaults.
	assert.Equal(t, []string{"utf-8", "windows-1252"}, cfg.EncodingFallback)
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.False(t, cfg.IncludeTestCode)

	cfg, err = LoadOrDefault("")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EncodingFallback = nil
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.EncodingFallback = []string{"ebcdic"}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Attack.Timeout = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Workspace.Parallelism = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Thresholds = &Thresholds{RequireErrorHandlingLevel: 4}
	assert.Error(t, cfg.Validate())
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{nope"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
