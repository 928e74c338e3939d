// Package audience observes target reactions: it executes a command
// repeatedly against a target, scans stored campaign reports, matches
// exact and fuzzy patterns over the output, and aggregates reaction
// signals into a localised report.
package audience

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperpolymath/panic-attacker/internal/abduct"
	"github.com/hyperpolymath/panic-attacker/internal/amuck"
	"github.com/hyperpolymath/panic-attacker/internal/logging"
	"github.com/hyperpolymath/panic-attacker/internal/report"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// Guardrails on observation sizing.
const (
	maxHeadTailLines = 2000
	maxAgrepDistance = 12
	maxCapturedBytes = 8192
)

// Config describes one audience session.
type Config struct {
	Target        string
	ExecTemplate  []string // {target} is substituted with the target path
	Repeat        int
	Timeout       time.Duration
	Reports       []string
	HeadLines     int
	TailLines     int
	GrepPatterns  []string
	AgrepPatterns []string
	AgrepDistance int
	Lang          Lang
	Spellcheck    bool
	SpellLang     string
}

// Signal is one heuristic reaction observed in output or a report.
type Signal struct {
	Severity string `json:"severity"`
	Name     string `json:"name"`
	Evidence string `json:"evidence"`
}

// RunObservation captures one repeated execution of the target command.
type RunObservation struct {
	RunIndex   int               `json:"run_index"`
	Success    bool              `json:"success"`
	ExitCode   *int              `json:"exit_code"`
	DurationMs int64             `json:"duration_ms"`
	TimedOut   bool              `json:"timed_out"`
	Stdout     string            `json:"stdout"`
	Stderr     string            `json:"stderr"`
	StdoutHead []string          `json:"stdout_head,omitempty"`
	StdoutTail []string          `json:"stdout_tail,omitempty"`
	StderrHead []string          `json:"stderr_head,omitempty"`
	StderrTail []string          `json:"stderr_tail,omitempty"`
	Matches    []PatternMatch    `json:"matches,omitempty"`
	Signals    []Signal          `json:"signals,omitempty"`
	Spellcheck *SpellcheckResult `json:"spellcheck,omitempty"`
}

// ReportObservation captures one scanned campaign artifact.
type ReportObservation struct {
	Path        string            `json:"path"`
	Kind        string            `json:"kind"`
	ExcerptHead []string          `json:"excerpt_head,omitempty"`
	ExcerptTail []string          `json:"excerpt_tail,omitempty"`
	Matches     []PatternMatch    `json:"matches,omitempty"`
	Signals     []Signal          `json:"signals,omitempty"`
	Spellcheck  *SpellcheckResult `json:"spellcheck,omitempty"`
}

// Report is the audience artifact consumed by the adjudicator. The kind
// tag marks it as the audience variant of the campaign-artifact union.
type Report struct {
	SchemaVersion      string              `json:"schema_version"`
	Kind               types.ArtifactKind  `json:"kind"`
	GeneratedAt        time.Time           `json:"generated_at"`
	Target             string              `json:"target"`
	ExecutedProgram    string              `json:"executed_program,omitempty"`
	Repeat             int                 `json:"repeat"`
	ObservedRuns       int                 `json:"observed_runs"`
	ObservedReports    int                 `json:"observed_reports"`
	Language           string              `json:"language"`
	RunObservations    []RunObservation    `json:"run_observations,omitempty"`
	ReportObservations []ReportObservation `json:"report_observations,omitempty"`
	SignalCounts       map[string]int      `json:"signal_counts"`
	Recommendations    []string            `json:"recommendations"`
	Spelling           *SpellcheckSummary  `json:"spelling,omitempty"`
}

// Run validates the configuration, performs the repeated executions and
// report observations, and aggregates signals.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) (*Report, error) {
	logger = logging.OrNop(logger).Named("audience")

	if _, err := os.Stat(cfg.Target); err != nil {
		return nil, fmt.Errorf("target %s: %w", cfg.Target, err)
	}
	if cfg.Repeat < 1 {
		return nil, fmt.Errorf("repeat must be at least 1")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.HeadLines > maxHeadTailLines || cfg.TailLines > maxHeadTailLines {
		return nil, fmt.Errorf("head/tail values above %d are not allowed", maxHeadTailLines)
	}
	if cfg.AgrepDistance > maxAgrepDistance {
		return nil, fmt.Errorf("agrep distance above %d is not allowed", maxAgrepDistance)
	}
	if len(cfg.ExecTemplate) == 0 && len(cfg.Reports) == 0 {
		return nil, fmt.Errorf("audience needs an exec command or at least one report")
	}
	if cfg.Lang == "" {
		cfg.Lang = LangEn
	}
	spellLang := cfg.SpellLang
	if spellLang == "" {
		spellLang = string(cfg.Lang)
	}

	// One matcher serves run and report observations so both sides see
	// identical search semantics.
	matcher := &patternMatcher{
		grep:     cfg.GrepPatterns,
		agrep:    cfg.AgrepPatterns,
		distance: cfg.AgrepDistance,
	}

	out := &Report{
		SchemaVersion: types.SchemaVersion,
		Kind:          types.ArtifactAudience,
		GeneratedAt:   time.Now().UTC(),
		Target:        cfg.Target,
		Repeat:        cfg.Repeat,
		Language:      string(cfg.Lang),
		SignalCounts:  make(map[string]int),
	}

	if len(cfg.ExecTemplate) > 0 {
		out.ExecutedProgram = cfg.ExecTemplate[0]
		// Repeated observations surface flaky, timing-dependent reactions
		// a single run would miss.
		for i := 0; i < cfg.Repeat; i++ {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			obs := runOnce(ctx, cfg, i+1, matcher, spellLang)
			out.RunObservations = append(out.RunObservations, obs)
		}
	}
	out.ObservedRuns = len(out.RunObservations)

	for _, path := range cfg.Reports {
		obs, err := observeReport(path, cfg, matcher, spellLang)
		if err != nil {
			return nil, err
		}
		out.ReportObservations = append(out.ReportObservations, *obs)
	}
	out.ObservedReports = len(out.ReportObservations)

	for _, run := range out.RunObservations {
		for _, sig := range run.Signals {
			out.SignalCounts[sig.Name]++
		}
	}
	for _, obs := range out.ReportObservations {
		for _, sig := range obs.Signals {
			out.SignalCounts[sig.Name]++
		}
	}

	if cfg.Spellcheck {
		summary := summarizeSpellcheck(out.RunObservations, out.ReportObservations, spellLang)
		if summary.TotalMisspellings > 0 {
			out.SignalCounts["spelling_signal"] += summary.TotalMisspellings
		}
		out.Spelling = &summary
	}

	out.Recommendations = buildRecommendations(out.SignalCounts, cfg.Lang)
	logger.Debug("audience session complete",
		zap.Int("runs", out.ObservedRuns),
		zap.Int("reports", out.ObservedReports),
		zap.Int("signals", len(out.SignalCounts)))
	return out, nil
}

// runOnce executes the command template with {target} substituted and the
// target appended when the template never mentions it.
func runOnce(ctx context.Context, cfg Config, runIndex int, matcher *patternMatcher, spellLang string) RunObservation {
	argv := make([]string, len(cfg.ExecTemplate))
	mentionsTarget := false
	for i, part := range cfg.ExecTemplate {
		argv[i] = strings.ReplaceAll(part, "{target}", cfg.Target)
		if i > 0 && (strings.Contains(part, "{target}") || argv[i] == cfg.Target) {
			mentionsTarget = true
		}
	}
	if !mentionsTarget {
		argv = append(argv, cfg.Target)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	obs := RunObservation{
		RunIndex:   runIndex,
		DurationMs: time.Since(start).Milliseconds(),
		TimedOut:   errors.Is(runCtx.Err(), context.DeadlineExceeded),
		Stdout:     clampOutput(stdout.String()),
		Stderr:     clampOutput(stderr.String()),
	}
	if cmd.ProcessState != nil {
		code := cmd.ProcessState.ExitCode()
		if code >= 0 {
			obs.ExitCode = &code
		}
	}
	if err != nil && cmd.ProcessState == nil {
		// Spawn failure is still an observation, not an abort.
		obs.Stderr = err.Error()
	}
	obs.Success = err == nil && !obs.TimedOut

	obs.StdoutHead = headLines(obs.Stdout, cfg.HeadLines)
	obs.StdoutTail = tailLines(obs.Stdout, cfg.TailLines)
	obs.StderrHead = headLines(obs.Stderr, cfg.HeadLines)
	obs.StderrTail = tailLines(obs.Stderr, cfg.TailLines)

	combined := obs.Stdout + "\n" + obs.Stderr
	obs.Matches = matcher.scan(combined)
	obs.Signals = detectSignals(combined, obs.ExitCode, obs.TimedOut, "run-output")
	if cfg.Spellcheck {
		result := spellcheckText(combined, spellLang)
		obs.Spellcheck = &result
	}
	return obs
}

// observeReport scans one stored artifact: assault first because its
// schema overlaps least with the other report kinds.
func observeReport(path string, cfg Config, matcher *patternMatcher, spellLang string) (*ReportObservation, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report %s: %w", path, err)
	}
	text := string(content)

	obs := &ReportObservation{
		Path:        path,
		ExcerptHead: headLines(text, cfg.HeadLines),
		ExcerptTail: tailLines(text, cfg.TailLines),
		Matches:     matcher.scan(text),
	}
	if cfg.Spellcheck {
		result := spellcheckText(text, spellLang)
		obs.Spellcheck = &result
	}

	if assault, err := report.LoadAssault(path); err == nil && assault.AssailReport.SchemaVersion != "" {
		obs.Kind = string(types.ArtifactAssault)
		if assault.TotalCrashes > 0 {
			obs.Signals = append(obs.Signals, Signal{
				Severity: "high",
				Name:     "crash_signal",
				Evidence: fmt.Sprintf("%d crashes in %s", assault.TotalCrashes, path),
			})
		}
		for _, result := range assault.AttackResults {
			if !result.Skipped && !result.Success {
				obs.Signals = append(obs.Signals, Signal{
					Severity: "medium",
					Name:     "attack_failure_signal",
					Evidence: "failed attack results in assault report",
				})
				break
			}
		}
		return obs, nil
	}

	var mutation amuck.Report
	if err := json.Unmarshal(content, &mutation); err == nil && len(mutation.Outcomes) > 0 {
		obs.Kind = string(types.ArtifactMutation)
		applyErrors, execFailures := 0, 0
		for _, outcome := range mutation.Outcomes {
			if outcome.ApplyError != "" {
				applyErrors++
			}
			if outcome.Execution != nil && !outcome.Execution.Success {
				execFailures++
			}
		}
		if applyErrors > 0 {
			obs.Signals = append(obs.Signals, Signal{
				Severity: "medium",
				Name:     "mutation_apply_error_signal",
				Evidence: fmt.Sprintf("%d mutation apply errors", applyErrors),
			})
		}
		if execFailures > 0 {
			obs.Signals = append(obs.Signals, Signal{
				Severity: "medium",
				Name:     "mutation_exec_failure_signal",
				Evidence: fmt.Sprintf("%d mutation execution failures", execFailures),
			})
		}
		return obs, nil
	}

	var isolation abduct.Report
	if err := json.Unmarshal(content, &isolation); err == nil && isolation.WorkspaceDir != "" {
		obs.Kind = string(types.ArtifactIsolation)
		if exe := isolation.Execution; exe != nil {
			if exe.TimedOut {
				obs.Signals = append(obs.Signals, Signal{
					Severity: "high",
					Name:     "abduct_timeout_signal",
					Evidence: "isolation execution timed out",
				})
			} else if !exe.Success {
				obs.Signals = append(obs.Signals, Signal{
					Severity: "medium",
					Name:     "abduct_exec_failure_signal",
					Evidence: "isolation execution failed",
				})
			}
		}
		return obs, nil
	}

	return nil, fmt.Errorf("unsupported report format: %s", path)
}

// detectSignals stays heuristic by design: fast triage first, deep
// investigation later.
func detectSignals(combined string, exitCode *int, timedOut bool, evidencePrefix string) []Signal {
	var signals []Signal
	lower := strings.ToLower(combined)

	if timedOut {
		signals = append(signals, Signal{
			Severity: "high",
			Name:     "timeout_signal",
			Evidence: evidencePrefix + ": process timed out",
		})
	}
	if strings.Contains(lower, "sigsegv") ||
		strings.Contains(lower, "segmentation fault") ||
		strings.Contains(lower, "access violation") {
		signals = append(signals, Signal{
			Severity: "high",
			Name:     "crash_signal",
			Evidence: evidencePrefix + ": segmentation/crash marker",
		})
	}
	if strings.Contains(lower, "panic") ||
		strings.Contains(lower, "fatal") ||
		strings.Contains(lower, "sigabrt") ||
		strings.Contains(lower, "assertion failed") {
		signals = append(signals, Signal{
			Severity: "high",
			Name:     "panic_signal",
			Evidence: evidencePrefix + ": panic/fatal marker",
		})
	}
	if strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "read-only file system") ||
		strings.Contains(lower, "operation not permitted") {
		signals = append(signals, Signal{
			Severity: "info",
			Name:     "lock_reaction_signal",
			Evidence: evidencePrefix + ": lock/permission reaction",
		})
	}
	if strings.Contains(lower, "unknown option") ||
		strings.Contains(lower, "unknown argument") ||
		strings.Contains(lower, "unexpected argument") {
		signals = append(signals, Signal{
			Severity: "low",
			Name:     "interface_mismatch_signal",
			Evidence: evidencePrefix + ": interface mismatch marker",
		})
	}
	if exitCode != nil && *exitCode != 0 && len(signals) == 0 {
		signals = append(signals, Signal{
			Severity: "low",
			Name:     "nonzero_exit_signal",
			Evidence: fmt.Sprintf("%s: non-zero exit code %d", evidencePrefix, *exitCode),
		})
	}
	return signals
}

func buildRecommendations(signalCounts map[string]int, lang Lang) []string {
	var recs []string
	if signalCounts["crash_signal"] > 0 {
		recs = append(recs, tr(lang, "rec_crash"))
	}
	if signalCounts["panic_signal"] > 0 {
		recs = append(recs, tr(lang, "rec_panic"))
	}
	if signalCounts["timeout_signal"] > 0 {
		recs = append(recs, tr(lang, "rec_timeout"))
	}
	if len(recs) == 0 {
		recs = append(recs, tr(lang, "rec_none"))
	}
	return recs
}

func clampOutput(value string) string {
	if len(value) > maxCapturedBytes {
		return value[:maxCapturedBytes] + "\n...<truncated>"
	}
	return value
}

// WriteMarkdown renders the stable, diff-friendly markdown export with
// labels in the report's language.
func WriteMarkdown(rep *Report, path string) error {
	lang := Lang(rep.Language)
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", tr(lang, "audience_report_title"))
	fmt.Fprintf(&b, "%s: `%s`\n", tr(lang, "target"), rep.Target)
	fmt.Fprintf(&b, "%s: `%s`\n", tr(lang, "created_at"), rep.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "%s: `%s`\n", tr(lang, "language"), rep.Language)
	fmt.Fprintf(&b, "%s: %d\n", tr(lang, "observed_runs"), rep.ObservedRuns)
	fmt.Fprintf(&b, "%s: %d\n\n", tr(lang, "observed_reports"), rep.ObservedReports)

	fmt.Fprintf(&b, "## %s\n", tr(lang, "signals"))
	if len(rep.SignalCounts) == 0 {
		fmt.Fprintf(&b, "- %s\n", tr(lang, "none"))
	} else {
		names := make([]string, 0, len(rep.SignalCounts))
		for name := range rep.SignalCounts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "- `%s`: %d\n", name, rep.SignalCounts[name])
		}
	}

	fmt.Fprintf(&b, "\n## %s\n", tr(lang, "recommendations"))
	for _, rec := range rep.Recommendations {
		fmt.Fprintf(&b, "- %s\n", rec)
	}

	if rep.Spelling != nil {
		fmt.Fprintf(&b, "\n## %s\n", tr(lang, "spelling"))
		fmt.Fprintf(&b, "- lang: `%s`\n", rep.Spelling.Lang)
		fmt.Fprintf(&b, "- total misspellings: %d\n", rep.Spelling.TotalMisspellings)
		fmt.Fprintf(&b, "- runs with misspellings: %d\n", rep.Spelling.RunsWithMisspellings)
		fmt.Fprintf(&b, "- reports with misspellings: %d\n", rep.Spelling.ReportsWithMisspellings)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating markdown directory %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
