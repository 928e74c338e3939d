package adjudicate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperpolymath/panic-attacker/internal/amuck"
	"github.com/hyperpolymath/panic-attacker/internal/audience"
	"github.com/hyperpolymath/panic-attacker/internal/config"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

func writeArtifact(t *testing.T, name string, record any) string {
	t.Helper()
	data, err := json.Marshal(record)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func assaultArtifact(crashAxis types.AttackAxis, severity types.Severity) *types.AssaultReport {
	assail := types.AssailReport{
		SchemaVersion: types.SchemaVersion,
		ProgramPath:   "demo",
	}
	if severity > types.SeverityInfo {
		assail.WeakPoints = []types.WeakPoint{{
			Category: types.CategoryUnsafeCode,
			Location: types.Location{File: "a.rs"},
			Severity: severity,
		}}
	}
	report := &types.AssaultReport{
		SchemaVersion: types.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		AssailReport:  assail,
	}
	if crashAxis != "" {
		report.TotalCrashes = 1
		report.AttackResults = []types.AttackResult{{
			Axis:    crashAxis,
			Crashes: []types.CrashReport{{Stderr: "boom"}},
		}}
	}
	return report
}

func TestPassOnQuietCampaign(t *testing.T) {
	path := writeArtifact(t, "assault.json", assaultArtifact("", types.SeverityInfo))
	result, err := New(nil, nil).Run([]string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictPass, result.Verdict.Status)
	assert.Equal(t, 1, result.ProcessedReports)
}

func TestFailOnMemoryAxisCrash(t *testing.T) {
	path := writeArtifact(t, "assault.json", assaultArtifact(types.AxisMemory, types.SeverityInfo))
	result, err := New(nil, nil).Run([]string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictFail, result.Verdict.Status)
	assert.NotEmpty(t, result.Verdict.Priorities)
	assert.NotEmpty(t, result.Verdict.Rationale)
}

func TestDiskAxisCrashIsNotAutomaticFail(t *testing.T) {
	path := writeArtifact(t, "assault.json", assaultArtifact(types.AxisDisk, types.SeverityInfo))
	result, err := New(nil, nil).Run([]string{path}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, types.VerdictFail, result.Verdict.Status)
}

func TestFailOnUncoveredCritical(t *testing.T) {
	path := writeArtifact(t, "assault.json", assaultArtifact("", types.SeverityCritical))
	result, err := New(nil, nil).Run([]string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictFail, result.Verdict.Status)
}

func TestWarnOnHighWithoutCrash(t *testing.T) {
	path := writeArtifact(t, "assault.json", assaultArtifact("", types.SeverityHigh))
	result, err := New(nil, nil).Run([]string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictWarn, result.Verdict.Status)
}

func TestWarnOnMutationFailures(t *testing.T) {
	code := 1
	mutation := &amuck.Report{
		SchemaVersion: types.SchemaVersion,
		Target:        "src/main.rs",
		Outcomes: []amuck.Outcome{{
			ID: 1, Name: "flip-equality",
			Execution: &amuck.ExecutionOutcome{Success: false, ExitCode: &code, Stderr: "panic"},
		}},
	}
	path := writeArtifact(t, "mutation.json", mutation)
	result, err := New(nil, nil).Run([]string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictWarn, result.Verdict.Status)
	assert.Equal(t, 1, result.Totals.MutationExecFailures)
}

func TestWarnOnAudienceSignals(t *testing.T) {
	observed := &audience.Report{
		SchemaVersion: types.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Target:        "bin/app",
		Repeat:        2,
		ObservedRuns:  2,
		Language:      "en",
		SignalCounts:  map[string]int{"interface_mismatch_signal": 2},
	}
	path := writeArtifact(t, "audience.json", observed)
	result, err := New(nil, nil).Run([]string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictWarn, result.Verdict.Status)
	assert.Equal(t, 1, result.Totals.AudienceReports)
	assert.Equal(t, 2, result.Totals.AudienceSignals)
}

func TestFailOnAudienceCrashSignal(t *testing.T) {
	observed := &audience.Report{
		SchemaVersion: types.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Target:        "bin/app",
		Repeat:        1,
		ObservedRuns:  1,
		Language:      "en",
		SignalCounts:  map[string]int{"crash_signal": 1},
	}
	path := writeArtifact(t, "audience.json", observed)
	result, err := New(nil, nil).Run([]string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictFail, result.Verdict.Status)
}

func TestUnparseableArtifactIsCounted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	good := writeArtifact(t, "assault.json", assaultArtifact("", types.SeverityInfo))

	result, err := New(nil, nil).Run([]string{path, good}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedReports)
	assert.Equal(t, 1, result.FailedReports)
	assert.NotEmpty(t, result.Notes)
}

func TestThresholdFail(t *testing.T) {
	path := writeArtifact(t, "assault.json", assaultArtifact("", types.SeverityHigh))
	thresholds := &config.Thresholds{MaxSeverity: types.SeverityMedium}
	result, err := New(thresholds, nil).Run([]string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictFail, result.Verdict.Status)
}

func TestBaselineWithoutRegressionDoesNotFail(t *testing.T) {
	path := writeArtifact(t, "assault.json", assaultArtifact(types.AxisDisk, types.SeverityInfo))
	baseline := &types.AssailReport{SchemaVersion: types.SchemaVersion}

	// Current campaign has no criticals either: no regression, no warn.
	result, err := New(nil, nil).Run([]string{path}, baseline)
	require.NoError(t, err)
	assert.NotEqual(t, types.VerdictFail, result.Verdict.Status)
}

func TestErrorHandlingLevel(t *testing.T) {
	assert.Equal(t, 0, ErrorHandlingLevel(10, 0))
	assert.Equal(t, 1, ErrorHandlingLevel(10, 3))
	assert.Equal(t, 2, ErrorHandlingLevel(3, 5))
	assert.Equal(t, 3, ErrorHandlingLevel(0, 5))
}
