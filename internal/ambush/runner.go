package ambush

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperpolymath/panic-attacker/internal/logging"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// Stressor applies ambient pressure on one axis for an event's duration.
// The platform-specific primitives live behind this contract; a stressor
// failure never aborts the run.
type Stressor interface {
	Apply(ctx context.Context, event Event) error
}

// CommandStressor runs a configured external command per axis. Axes with
// no command configured are recorded but not stressed.
type CommandStressor struct {
	Commands map[types.AttackAxis][]string
}

// Apply runs the axis command for the event duration in its own process
// group, killed when the event window closes.
func (s *CommandStressor) Apply(ctx context.Context, event Event) error {
	argv, ok := s.Commands[event.Axis]
	if !ok || len(argv) == 0 {
		return nil
	}
	eventCtx, cancel := context.WithTimeout(ctx, event.Duration)
	defer cancel()

	cmd := exec.CommandContext(eventCtx, argv[0], append(argv[1:], event.Args...)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if errors.Is(eventCtx.Err(), context.DeadlineExceeded) {
		// The window closing is the normal way a stressor ends.
		return nil
	}
	return err
}

// EventReport records what actually ran for one timeline event.
type EventReport struct {
	ID          string               `json:"id"`
	Axis        types.AttackAxis     `json:"axis"`
	StartOffset time.Duration        `json:"start_offset"`
	Duration    time.Duration        `json:"duration"`
	Intensity   types.IntensityLevel `json:"intensity"`
	Ran         bool                 `json:"ran"`
	Error       string               `json:"error,omitempty"`
}

// Report is the outcome of one ambush run.
type Report struct {
	SchemaVersion string        `json:"schema_version"`
	GeneratedAt   time.Time     `json:"generated_at"`
	Program       string        `json:"program"`
	Duration      time.Duration `json:"duration"`
	Events        []EventReport `json:"events"`
	Target        TargetOutcome `json:"target"`
}

// TargetOutcome describes how the target behaved under ambient pressure.
type TargetOutcome struct {
	Success  bool   `json:"success"`
	ExitCode *int   `json:"exit_code"`
	TimedOut bool   `json:"timed_out"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Runner executes a timeline plan against a target.
type Runner struct {
	stressor Stressor
	logger   *zap.Logger
}

// NewRunner builds a runner with the given stressor contract.
func NewRunner(stressor Stressor, logger *zap.Logger) *Runner {
	if stressor == nil {
		stressor = &CommandStressor{}
	}
	return &Runner{stressor: stressor, logger: logging.OrNop(logger).Named("ambush")}
}

// Run starts the target, fires each event at its offset, and tears the
// whole process group down when the timeline ends.
func (r *Runner) Run(ctx context.Context, plan *Plan) (*Report, error) {
	report := &Report{
		SchemaVersion: types.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Program:       plan.Program,
		Duration:      plan.Duration,
	}

	runCtx, cancel := context.WithTimeout(ctx, plan.Duration)
	defer cancel()

	cmd := exec.CommandContext(runCtx, plan.Program, plan.Args...)
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

	if err := cmd.Start(); err != nil {
		report.Target.Stderr = err.Error()
		return report, nil
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	events := plan.Events
	for _, ev := range events {
		wait := ev.StartOffset - time.Since(start)
		if wait > 0 {
			select {
			case <-time.After(wait):
			case err := <-done:
				r.finish(report, &stdout, &stderr, cmd, err, runCtx)
				r.markUnran(report, events)
				return report, nil
			case <-runCtx.Done():
				<-done
				r.finish(report, &stdout, &stderr, cmd, nil, runCtx)
				r.markUnran(report, events)
				return report, nil
			}
		}

		evReport := EventReport{
			ID:          ev.ID,
			Axis:        ev.Axis,
			StartOffset: ev.StartOffset,
			Duration:    ev.Duration,
			Intensity:   ev.Intensity,
			Ran:         true,
		}
		r.logger.Debug("firing timeline event", zap.String("event", ev.ID), zap.String("axis", string(ev.Axis)))
		if err := r.stressor.Apply(runCtx, ev); err != nil {
			evReport.Error = err.Error()
		}
		report.Events = append(report.Events, evReport)
	}

	err := <-done
	r.finish(report, &stdout, &stderr, cmd, err, runCtx)
	return report, nil
}

func (r *Runner) finish(report *Report, stdout, stderr *bytes.Buffer, cmd *exec.Cmd, waitErr error, runCtx context.Context) {
	report.Target.Stdout = stdout.String()
	report.Target.Stderr = stderr.String()
	report.Target.TimedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)
	if cmd.ProcessState != nil {
		code := cmd.ProcessState.ExitCode()
		if code >= 0 {
			report.Target.ExitCode = &code
		}
	}
	// Surviving to the end of the timeline counts as success.
	report.Target.Success = report.Target.TimedOut || waitErr == nil
}

func (r *Runner) markUnran(report *Report, events []Event) {
	ran := make(map[string]bool, len(report.Events))
	for _, ev := range report.Events {
		ran[ev.ID] = true
	}
	for _, ev := range events {
		if !ran[ev.ID] {
			report.Events = append(report.Events, EventReport{
				ID:          ev.ID,
				Axis:        ev.Axis,
				StartOffset: ev.StartOffset,
				Duration:    ev.Duration,
				Intensity:   ev.Intensity,
				Ran:         false,
			})
		}
	}
}
