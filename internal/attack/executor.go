// Package attack executes resource attacks against a target binary. The
// target runs as a child process in its own process group; timeout or
// cancellation kills the whole group, and every stressor is released
// before Execute returns.
package attack

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperpolymath/panic-attacker/internal/config"
	"github.com/hyperpolymath/panic-attacker/internal/logging"
	"github.com/hyperpolymath/panic-attacker/internal/signatures"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// Request describes one orchestrated attack run.
type Request struct {
	Targets    []string
	Axes       []types.AttackAxis
	Intensity  types.IntensityLevel
	Duration   time.Duration
	ProbeMode  types.ProbeMode
	Timeout    time.Duration
	CommonArgs []string
	AxisArgs   map[types.AttackAxis][]string
}

// RequestFromConfig builds a request from the attack profile.
func RequestFromConfig(cfg *config.Config, targets []string, axes []types.AttackAxis) Request {
	return Request{
		Targets:    targets,
		Axes:       axes,
		Intensity:  cfg.Attack.Intensity,
		Duration:   cfg.Attack.Duration.Std(),
		ProbeMode:  cfg.Attack.ProbeMode,
		Timeout:    cfg.Attack.Timeout.Std(),
		CommonArgs: cfg.Attack.CommonArgs,
		AxisArgs:   cfg.Attack.AxisArgs,
	}
}

type runOutcome struct {
	stdout     string
	stderr     string
	exitCode   *int
	signal     string
	timedOut   bool
	spawnError error
	peakMemory uint64
	duration   time.Duration
}

// Executor runs attacks and feeds crashes to the signature engine.
type Executor struct {
	req    Request
	sigs   *signatures.Engine
	logger *zap.Logger
}

// NewExecutor builds an attack executor.
func NewExecutor(req Request, logger *zap.Logger) *Executor {
	if req.Timeout <= 0 {
		req.Timeout = 60 * time.Second
	}
	if req.Intensity == "" {
		req.Intensity = types.IntensityMedium
	}
	logger = logging.OrNop(logger)
	return &Executor{req: req, sigs: signatures.NewEngine(logger), logger: logger.Named("attack")}
}

// Execute runs every requested axis against every target, at most one
// running stressor per axis per invocation.
func (e *Executor) Execute(ctx context.Context) ([]types.AttackResult, error) {
	var results []types.AttackResult
	probeCache := make(map[string]string)

	for _, target := range e.req.Targets {
		helpText := ""
		if e.req.ProbeMode == types.ProbeAlways {
			if cached, ok := probeCache[target]; ok {
				helpText = cached
			} else {
				helpText = e.probeHelp(ctx, target)
				probeCache[target] = helpText
			}
		}

		for _, axis := range e.req.Axes {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			results = append(results, e.executeAxis(ctx, target, axis, helpText))
		}
	}
	return results, nil
}

func (e *Executor) executeAxis(ctx context.Context, target string, axis types.AttackAxis, helpText string) types.AttackResult {
	strategy := strategyFor(axis)
	e.logger.Debug("attacking axis",
		zap.String("target", target),
		zap.String("axis", string(axis)),
		zap.String("strategy", strategy.Description()))

	if helpText != "" {
		missing := missingFlags(axis, helpText)
		if len(missing) > 0 {
			return types.AttackResult{
				Program:            target,
				Axis:               axis,
				Skipped:            true,
				SkipReason:         "probe: missing flags [" + strings.Join(missing, ", ") + "]",
				Crashes:            []types.CrashReport{},
				SignaturesDetected: []types.BugSignature{},
			}
		}
	}

	args := e.req.AxisArgs[axis]
	if args == nil {
		args = axisArgs(axis, e.req.Intensity)
	}
	args = append(append([]string{}, e.req.CommonArgs...), args...)

	outcome := e.runTarget(ctx, target, args)

	result := types.AttackResult{
		Program:            target,
		Axis:               axis,
		ExitCode:           outcome.exitCode,
		Duration:           outcome.duration,
		PeakMemory:         outcome.peakMemory,
		TimedOut:           outcome.timedOut,
		Crashes:            []types.CrashReport{},
		SignaturesDetected: []types.BugSignature{},
	}

	if outcome.spawnError != nil {
		// Launch failure is data, not an abort: analysis continues.
		result.Success = false
		result.Crashes = append(result.Crashes, types.CrashReport{
			Timestamp: time.Now().UTC(),
			Stderr:    outcome.spawnError.Error(),
		})
		return result
	}

	// Timeout expiry counts as surviving the attack window.
	if outcome.timedOut {
		result.Success = true
		return result
	}

	if e.req.ProbeMode != types.ProbeNever && looksLikeUnsupportedFlags(outcome) {
		result.Skipped = true
		result.SkipReason = "target rejected attack flags"
		return result
	}

	result.Success = outcome.exitCode != nil && *outcome.exitCode == 0
	if !result.Success {
		crash := types.CrashReport{
			Timestamp: time.Now().UTC(),
			Signal:    outcome.signal,
			Stdout:    outcome.stdout,
			Stderr:    outcome.stderr,
		}
		result.Crashes = append(result.Crashes, crash)
		result.SignaturesDetected = e.sigs.Detect(crash)
	}
	return result
}

// runTarget launches the target in its own process group and enforces the
// per-call timeout. The entire group is killed on expiry or cancellation.
func (e *Executor) runTarget(ctx context.Context, target string, args []string) runOutcome {
	runCtx, cancel := context.WithTimeout(ctx, e.req.Timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(runCtx, target, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	err := cmd.Run()
	outcome := runOutcome{
		stdout:   stdout.String(),
		stderr:   stderr.String(),
		duration: time.Since(start),
		timedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}

	if cmd.ProcessState != nil {
		if usage, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage); ok {
			// Maxrss is reported in kilobytes on Linux.
			outcome.peakMemory = uint64(usage.Maxrss) * 1024
		}
		if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			outcome.signal = ws.Signal().String()
		}
		code := cmd.ProcessState.ExitCode()
		if code >= 0 {
			outcome.exitCode = &code
		}
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !outcome.timedOut {
		outcome.spawnError = err
	}
	return outcome
}

// probeHelp captures the target's --help output for flag probing.
func (e *Executor) probeHelp(ctx context.Context, target string) string {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(probeCtx, target, "--help").CombinedOutput()
	if err != nil && len(out) == 0 {
		return ""
	}
	return string(out)
}

func missingFlags(axis types.AttackAxis, helpText string) []string {
	var missing []string
	for _, flag := range requiredFlags(axis) {
		if !strings.Contains(helpText, flag) {
			missing = append(missing, flag)
		}
	}
	return missing
}

// looksLikeUnsupportedFlags recognises the target refusing our synthetic
// flags, which auto probe mode converts into a skip instead of a crash.
func looksLikeUnsupportedFlags(outcome runOutcome) bool {
	if outcome.exitCode == nil || *outcome.exitCode == 0 {
		return false
	}
	lower := strings.ToLower(outcome.stderr)
	return strings.Contains(lower, "unknown flag") ||
		strings.Contains(lower, "unrecognized option") ||
		strings.Contains(lower, "unknown option") ||
		strings.Contains(lower, "invalid option") ||
		strings.Contains(lower, "illegal option") ||
		strings.Contains(lower, "bad option") ||
		strings.Contains(lower, "flag provided but not defined")
}
