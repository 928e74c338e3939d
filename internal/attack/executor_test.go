package attack

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// Every spawned stressor and target process must be released before
// Execute returns; goleak verifies nothing lingers.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestExecuteSuccessfulTarget(t *testing.T) {
	req := Request{
		Targets:   []string{"true"},
		Axes:      []types.AttackAxis{types.AxisCpu},
		Intensity: types.IntensityLight,
		ProbeMode: types.ProbeNever,
		Timeout:   10 * time.Second,
	}
	results, err := NewExecutor(req, nil).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !results[0].Success {
		t.Fatalf("true(1) should succeed: %+v", results[0])
	}
	if results[0].ExitCode == nil || *results[0].ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %v", results[0].ExitCode)
	}
}

func TestExecuteFailingTargetCollectsCrash(t *testing.T) {
	req := Request{
		Targets:   []string{"sh"},
		Axes:      []types.AttackAxis{types.AxisMemory},
		ProbeMode: types.ProbeNever,
		Timeout:   10 * time.Second,
		AxisArgs: map[types.AttackAxis][]string{
			types.AxisMemory: {"-c", "echo 'out of memory' >&2; exit 3"},
		},
	}
	results, err := NewExecutor(req, nil).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	result := results[0]
	if result.Success {
		t.Fatal("non-zero exit should not be success")
	}
	if len(result.Crashes) != 1 {
		t.Fatalf("expected one crash report, got %d", len(result.Crashes))
	}
	if result.Crashes[0].Stderr == "" {
		t.Fatal("crash should capture stderr")
	}
	found := false
	for _, sig := range result.SignaturesDetected {
		if sig.SignatureType == types.SigMemoryLeak {
			found = true
		}
	}
	if !found {
		t.Fatalf("OOM stderr should yield a memory-leak signature: %v", result.SignaturesDetected)
	}
}

func TestExecuteSpawnFailure(t *testing.T) {
	req := Request{
		Targets:   []string{"/nonexistent/binary"},
		Axes:      []types.AttackAxis{types.AxisCpu},
		ProbeMode: types.ProbeNever,
		Timeout:   5 * time.Second,
	}
	results, err := NewExecutor(req, nil).Execute(context.Background())
	if err != nil {
		t.Fatalf("spawn failure must not abort the run: %v", err)
	}
	result := results[0]
	if result.Success || len(result.Crashes) != 1 {
		t.Fatalf("spawn failure should convert to a failed result with reason: %+v", result)
	}
	if result.ExitCode != nil {
		t.Fatal("spawn failure has no exit code")
	}
}

func TestTimeoutIsSurvival(t *testing.T) {
	req := Request{
		Targets:   []string{"sleep"},
		Axes:      []types.AttackAxis{types.AxisTime},
		ProbeMode: types.ProbeNever,
		Timeout:   300 * time.Millisecond,
		AxisArgs: map[types.AttackAxis][]string{
			types.AxisTime: {"30"},
		},
	}
	start := time.Now()
	results, err := NewExecutor(req, nil).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("target must be killed at timeout, took %v", elapsed)
	}
	result := results[0]
	if !result.TimedOut {
		t.Fatal("result should be marked timed out")
	}
	if !result.Success {
		t.Fatal("timeout expiry counts as surviving the attack")
	}
}

func TestUnsupportedFlagsSkipInAutoProbe(t *testing.T) {
	req := Request{
		Targets:   []string{"sh"},
		Axes:      []types.AttackAxis{types.AxisCpu},
		ProbeMode: types.ProbeAuto,
		Timeout:   5 * time.Second,
		AxisArgs: map[types.AttackAxis][]string{
			types.AxisCpu: {"-c", "echo 'unknown option: --iterations' >&2; exit 2"},
		},
	}
	results, err := NewExecutor(req, nil).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !results[0].Skipped {
		t.Fatalf("flag rejection should skip in auto probe mode: %+v", results[0])
	}
}

func TestProbeAlwaysSkipsMissingFlags(t *testing.T) {
	// sh --help output never advertises --iterations.
	req := Request{
		Targets:   []string{"sh"},
		Axes:      []types.AttackAxis{types.AxisCpu},
		ProbeMode: types.ProbeAlways,
		Timeout:   5 * time.Second,
	}
	results, err := NewExecutor(req, nil).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !results[0].Skipped {
		t.Fatalf("probe should skip axes with missing flags: %+v", results[0])
	}
}

func TestAxisArgsScaleWithIntensity(t *testing.T) {
	light := axisArgs(types.AxisConcurrency, types.IntensityLight)
	extreme := axisArgs(types.AxisConcurrency, types.IntensityExtreme)
	if light[1] == extreme[1] {
		t.Fatal("intensity should scale the generated arguments")
	}
}
