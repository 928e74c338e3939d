// Package abduct copies a target and optional neighbours into a quarantine
// workspace for defensive lock-in and delayed-trigger testing. The source
// tree is never modified.
package abduct

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperpolymath/panic-attacker/internal/logging"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// Scope selects which neighbours accompany the target into quarantine.
type Scope string

const (
	// ScopeDirect takes the target plus files sharing its name stem.
	ScopeDirect Scope = "direct"
	// ScopeDirectory takes every regular file in the target's directory.
	ScopeDirectory Scope = "directory"
)

// Config describes one isolation run.
type Config struct {
	Target          string
	OutputRoot      string
	Scope           Scope
	LockFiles       bool
	MtimeOffsetDays int
	ExecTemplate    []string
	ExecTimeout     time.Duration
}

// FileRecord describes one quarantined file.
type FileRecord struct {
	Source       string `json:"source"`
	Destination  string `json:"destination"`
	Locked       bool   `json:"locked"`
	MtimeShifted bool   `json:"mtime_shifted"`
}

// ExecutionOutcome is the result of running the quarantined target.
type ExecutionOutcome struct {
	Success    bool   `json:"success"`
	ExitCode   *int   `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
	TimedOut   bool   `json:"timed_out"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	SpawnError string `json:"spawn_error,omitempty"`
}

// Report summarises an isolation run.
type Report struct {
	SchemaVersion   string            `json:"schema_version"`
	GeneratedAt     time.Time         `json:"generated_at"`
	Target          string            `json:"target"`
	WorkspaceDir    string            `json:"workspace_dir"`
	Scope           string            `json:"scope"`
	SelectedFiles   int               `json:"selected_files"`
	LockedFiles     int               `json:"locked_files"`
	MtimeShifted    int               `json:"mtime_shifted_files"`
	MtimeOffsetDays int               `json:"mtime_offset_days"`
	Files           []FileRecord      `json:"files"`
	Execution       *ExecutionOutcome `json:"execution,omitempty"`
}

// Run quarantines the target and optionally executes it in isolation.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) (*Report, error) {
	logger = logging.OrNop(logger).Named("abduct")

	info, err := os.Stat(cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", cfg.Target, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("target %s is a directory, not a file", cfg.Target)
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = 60 * time.Second
	}
	if cfg.Scope == "" {
		cfg.Scope = ScopeDirect
	}

	selected, err := selectFiles(cfg.Target, cfg.Scope)
	if err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(filepath.Base(cfg.Target), filepath.Ext(cfg.Target))
	workspace := filepath.Join(cfg.OutputRoot,
		fmt.Sprintf("abduct-%s-%s", stem, uuid.NewString()[:8]))
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, fmt.Errorf("creating quarantine workspace %s: %w", workspace, err)
	}

	report := &Report{
		SchemaVersion:   types.SchemaVersion,
		GeneratedAt:     time.Now().UTC(),
		Target:          cfg.Target,
		WorkspaceDir:    workspace,
		Scope:           string(cfg.Scope),
		SelectedFiles:   len(selected),
		MtimeOffsetDays: cfg.MtimeOffsetDays,
	}

	shift := time.Duration(cfg.MtimeOffsetDays) * 24 * time.Hour
	for _, src := range selected {
		dst := filepath.Join(workspace, filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			return nil, fmt.Errorf("copying %s: %w", src, err)
		}
		record := FileRecord{Source: src, Destination: dst}

		if cfg.MtimeOffsetDays != 0 {
			when := time.Now().Add(shift)
			if err := os.Chtimes(dst, when, when); err == nil {
				record.MtimeShifted = true
				report.MtimeShifted++
			} else {
				logger.Warn("mtime shift failed", zap.String("file", dst), zap.Error(err))
			}
		}
		if cfg.LockFiles {
			mode := os.FileMode(0o444)
			if isExecutable(src) {
				mode = 0o555
			}
			if err := os.Chmod(dst, mode); err == nil {
				record.Locked = true
				report.LockedFiles++
			} else {
				logger.Warn("readonly lock failed", zap.String("file", dst), zap.Error(err))
			}
		}
		report.Files = append(report.Files, record)
	}

	if len(cfg.ExecTemplate) > 0 {
		quarantined := filepath.Join(workspace, filepath.Base(cfg.Target))
		report.Execution = execute(ctx, cfg.ExecTemplate, quarantined, cfg.ExecTimeout)
	}
	logger.Debug("quarantine complete",
		zap.String("workspace", workspace), zap.Int("files", len(selected)))
	return report, nil
}

// selectFiles picks the quarantine set for the scope. Results are sorted
// so reports stay deterministic.
func selectFiles(target string, scope Scope) ([]string, error) {
	dir := filepath.Dir(target)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	stem := strings.TrimSuffix(filepath.Base(target), filepath.Ext(target))
	var selected []string
	for _, entry := range entries {
		if entry.IsDir() || !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		switch scope {
		case ScopeDirectory:
			selected = append(selected, path)
		default:
			entryStem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
			if path == target || entryStem == stem {
				selected = append(selected, path)
			}
		}
	}
	sort.Strings(selected)
	if len(selected) == 0 {
		return nil, fmt.Errorf("no files selected for isolation")
	}
	return selected, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode().Perm())
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().Perm()&0o111 != 0
}

func execute(ctx context.Context, template []string, quarantined string, timeout time.Duration) *ExecutionOutcome {
	argv := make([]string, len(template))
	for i, part := range template {
		argv[i] = strings.ReplaceAll(part, "{file}", quarantined)
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := &ExecutionOutcome{
		DurationMs: time.Since(start).Milliseconds(),
		TimedOut:   execCtx.Err() == context.DeadlineExceeded,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
	}
	if cmd.ProcessState != nil {
		code := cmd.ProcessState.ExitCode()
		if code >= 0 {
			out.ExitCode = &code
		}
	}
	switch {
	case err == nil:
		out.Success = true
	case out.TimedOut:
	default:
		if _, ok := err.(*exec.ExitError); !ok {
			out.SpawnError = err.Error()
		}
	}
	return out
}
