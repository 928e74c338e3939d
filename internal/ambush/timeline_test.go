package ambush

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperpolymath/panic-attacker/internal/types"
)

func writeTimeline(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const yamlTimeline = `program: ./target
duration: 30s
tracks:
  - axis: cpu
    events:
      - at: 0s
        for: 5s
        intensity: heavy
      - at: 10s
        for: 5s
  - axis: memory
    events:
      - id: big-alloc
        at: 2s
        for: 8s
`

func TestLoadYAMLTimeline(t *testing.T) {
	path := writeTimeline(t, "plan.yaml", yamlTimeline)
	plan, err := LoadTimeline(path, types.IntensityMedium)
	require.NoError(t, err)

	assert.Equal(t, "./target", plan.Program)
	assert.Equal(t, 30*time.Second, plan.Duration)
	require.Len(t, plan.Events, 3)

	// Events are ordered by start offset.
	assert.Equal(t, time.Duration(0), plan.Events[0].StartOffset)
	assert.Equal(t, types.IntensityHeavy, plan.Events[0].Intensity)
	assert.Equal(t, "big-alloc", plan.Events[1].ID)
	// Default intensity fills events without one.
	assert.Equal(t, types.IntensityMedium, plan.Events[2].Intensity)
}

func TestLoadJSONTimeline(t *testing.T) {
	path := writeTimeline(t, "plan.json", `{
		"program": "./bin",
		"tracks": [
			{"axis": "disk", "events": [{"at": "1s", "for": "4s"}]}
		]
	}`)
	plan, err := LoadTimeline(path, types.IntensityLight)
	require.NoError(t, err)
	require.Len(t, plan.Events, 1)
	assert.Equal(t, types.AxisDisk, plan.Events[0].Axis)
	// Without an explicit duration the plan extends to the last event end.
	assert.Equal(t, 5*time.Second, plan.Duration)
}

func TestOverlapRejected(t *testing.T) {
	path := writeTimeline(t, "overlap.yaml", `program: ./target
tracks:
  - axis: cpu
    events:
      - at: 0s
        for: 10s
      - at: 5s
        for: 5s
`)
	_, err := LoadTimeline(path, types.IntensityMedium)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlap")
}

func TestOverlapAllowedAcrossAxes(t *testing.T) {
	path := writeTimeline(t, "cross.yaml", `program: ./target
tracks:
  - axis: cpu
    events:
      - at: 0s
        for: 10s
  - axis: memory
    events:
      - at: 5s
        for: 10s
`)
	_, err := LoadTimeline(path, types.IntensityMedium)
	assert.NoError(t, err)
}

func TestUnknownAxisRejected(t *testing.T) {
	path := writeTimeline(t, "bad.yaml", `program: ./target
tracks:
  - axis: quantum
    events:
      - at: 0s
        for: 1s
`)
	_, err := LoadTimeline(path, types.IntensityMedium)
	assert.Error(t, err)
}

func TestEmptyTimelineRejected(t *testing.T) {
	path := writeTimeline(t, "empty.yaml", "program: ./target\ntracks: []\n")
	_, err := LoadTimeline(path, types.IntensityMedium)
	assert.Error(t, err)
}
