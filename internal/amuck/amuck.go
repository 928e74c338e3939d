// Package amuck generates mutation variants of a source file into a
// workspace, never mutating the original in place, and optionally runs a
// checker command against each variant.
package amuck

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperpolymath/panic-attacker/internal/logging"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// Preset selects a built-in combination set.
type Preset string

const (
	PresetLight     Preset = "light"
	PresetDangerous Preset = "dangerous"
)

// Operation is one mutation applied to file text.
type Operation struct {
	Op     string `yaml:"op" json:"op"`
	From   string `yaml:"from,omitempty" json:"from,omitempty"`
	To     string `yaml:"to,omitempty" json:"to,omitempty"`
	Needle string `yaml:"needle,omitempty" json:"needle,omitempty"`
	Text   string `yaml:"text,omitempty" json:"text,omitempty"`
	Left   string `yaml:"left,omitempty" json:"left,omitempty"`
	Right  string `yaml:"right,omitempty" json:"right,omitempty"`
	Times  int    `yaml:"times,omitempty" json:"times,omitempty"`
}

// Combo is a named sequence of operations applied together.
type Combo struct {
	Name       string      `yaml:"name" json:"name"`
	Operations []Operation `yaml:"operations" json:"operations"`
}

// SpecFile is the on-disk combination spec.
type SpecFile struct {
	Combos []Combo `yaml:"combos" json:"combos"`
}

// Config describes one mutation run.
type Config struct {
	Target          string
	SpecPath        string
	Preset          Preset
	MaxCombinations int
	OutputDir       string
	ExecTemplate    []string
	ExecTimeout     time.Duration
}

// ExecutionOutcome is the checker result for one variant.
type ExecutionOutcome struct {
	Success    bool   `json:"success"`
	ExitCode   *int   `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	SpawnError string `json:"spawn_error,omitempty"`
}

// Outcome records one combination's application and optional execution.
type Outcome struct {
	ID             int               `json:"id"`
	Name           string            `json:"name"`
	Operations     []string          `json:"operations"`
	AppliedChanges int               `json:"applied_changes"`
	MutatedFile    string            `json:"mutated_file,omitempty"`
	ApplyError     string            `json:"apply_error,omitempty"`
	Execution      *ExecutionOutcome `json:"execution,omitempty"`
}

// Report summarises a mutation run.
type Report struct {
	SchemaVersion       string    `json:"schema_version"`
	GeneratedAt         time.Time `json:"generated_at"`
	Target              string    `json:"target"`
	SourceSpec          string    `json:"source_spec,omitempty"`
	Preset              string    `json:"preset"`
	MaxCombinations     int       `json:"max_combinations"`
	OutputDir           string    `json:"output_dir"`
	CombinationsPlanned int       `json:"combinations_planned"`
	CombinationsRun     int       `json:"combinations_run"`
	Outcomes            []Outcome `json:"outcomes"`
}

// Run applies each combination from the pristine baseline, writes the
// variant to the output directory, and optionally executes the checker.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) (*Report, error) {
	logger = logging.OrNop(logger).Named("amuck")
	if cfg.MaxCombinations < 1 {
		return nil, fmt.Errorf("max combinations must be at least 1")
	}
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

	source, err := os.ReadFile(cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("reading target %s: %w", cfg.Target, err)
	}

	var combos []Combo
	if cfg.SpecPath != "" {
		spec, err := loadSpec(cfg.SpecPath)
		if err != nil {
			return nil, err
		}
		combos = spec.Combos
	} else {
		combos = builtInCombos(cfg.Preset, string(source))
	}
	if len(combos) == 0 {
		return nil, fmt.Errorf("no mutation combinations available")
	}

	planned := len(combos)
	if len(combos) > cfg.MaxCombinations {
		combos = combos[:cfg.MaxCombinations]
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory %s: %w", cfg.OutputDir, err)
	}

	report := &Report{
		SchemaVersion:       types.SchemaVersion,
		GeneratedAt:         time.Now().UTC(),
		Target:              cfg.Target,
		SourceSpec:          cfg.SpecPath,
		Preset:              string(cfg.Preset),
		MaxCombinations:     cfg.MaxCombinations,
		OutputDir:           cfg.OutputDir,
		CombinationsPlanned: planned,
	}

	for idx, combo := range combos {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		id := idx + 1
		name := combo.Name
		if name == "" {
			name = fmt.Sprintf("combo-%03d", id)
		}
		outcome := Outcome{ID: id, Name: name, Operations: describeOps(combo.Operations)}

		// Each combination starts from the pristine baseline so variants
		// stay independent and diffable.
		mutated, changes, applyErr := applyOperations(string(source), combo.Operations)
		if applyErr != nil {
			outcome.ApplyError = applyErr.Error()
			report.Outcomes = append(report.Outcomes, outcome)
			continue
		}
		outcome.AppliedChanges = changes

		variant := variantPath(cfg.Target, cfg.OutputDir, id)
		if err := os.WriteFile(variant, []byte(mutated), 0o644); err != nil {
			outcome.ApplyError = err.Error()
			report.Outcomes = append(report.Outcomes, outcome)
			continue
		}
		outcome.MutatedFile = variant
		report.CombinationsRun++

		if len(cfg.ExecTemplate) > 0 {
			outcome.Execution = runChecker(ctx, cfg.ExecTemplate, variant, cfg.ExecTimeout)
		}
		logger.Debug("combination applied",
			zap.String("name", name), zap.Int("changes", changes))
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return report, nil
}

func loadSpec(path string) (*SpecFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mutation spec %s: %w", path, err)
	}
	var spec SpecFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &spec)
	default:
		err = json.Unmarshal(data, &spec)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing mutation spec %s: %w", path, err)
	}
	return &spec, nil
}

// builtInCombos derives combinations from tokens actually present in the
// source, so presets stay applicable across languages.
func builtInCombos(preset Preset, source string) []Combo {
	var combos []Combo

	if strings.Contains(source, "==") {
		combos = append(combos, Combo{
			Name:       "flip-equality",
			Operations: []Operation{{Op: "replace_first", From: "==", To: "!="}},
		})
	}
	if strings.Contains(source, "<") {
		combos = append(combos, Combo{
			Name:       "flip-comparison",
			Operations: []Operation{{Op: "replace_first", From: "<", To: ">"}},
		})
	}
	if strings.Contains(source, "+") {
		combos = append(combos, Combo{
			Name:       "flip-arithmetic",
			Operations: []Operation{{Op: "replace_first", From: "+", To: "-"}},
		})
	}
	combos = append(combos, Combo{
		Name:       "trailing-noise",
		Operations: []Operation{{Op: "append_text", Text: "\n"}},
	})

	if preset == PresetDangerous {
		if strings.Contains(source, "return") {
			combos = append(combos, Combo{
				Name:       "drop-return",
				Operations: []Operation{{Op: "delete_lines_containing", Needle: "return"}},
			})
		}
		combos = append(combos, Combo{
			Name: "duplicate-assignments",
			Operations: []Operation{
				{Op: "duplicate_lines_containing", Needle: "=", Times: 2},
			},
		})
		combos = append(combos, Combo{
			Name: "swap-boolean",
			Operations: []Operation{
				{Op: "swap_tokens", Left: "true", Right: "false"},
			},
		})
	}
	return combos
}

func applyOperations(source string, ops []Operation) (string, int, error) {
	text := source
	changes := 0
	for _, op := range ops {
		var applied int
		var err error
		text, applied, err = applyOperation(text, op)
		if err != nil {
			return "", changes, err
		}
		changes += applied
	}
	return text, changes, nil
}

func applyOperation(text string, op Operation) (string, int, error) {
	switch op.Op {
	case "replace_first":
		if !strings.Contains(text, op.From) {
			return text, 0, nil
		}
		return strings.Replace(text, op.From, op.To, 1), 1, nil
	case "replace_all":
		n := strings.Count(text, op.From)
		return strings.ReplaceAll(text, op.From, op.To), n, nil
	case "insert_before":
		if !strings.Contains(text, op.Needle) {
			return text, 0, nil
		}
		return strings.Replace(text, op.Needle, op.Text+op.Needle, 1), 1, nil
	case "insert_after":
		if !strings.Contains(text, op.Needle) {
			return text, 0, nil
		}
		return strings.Replace(text, op.Needle, op.Needle+op.Text, 1), 1, nil
	case "delete_lines_containing":
		lines := strings.Split(text, "\n")
		kept := lines[:0]
		removed := 0
		for _, line := range lines {
			if strings.Contains(line, op.Needle) {
				removed++
				continue
			}
			kept = append(kept, line)
		}
		return strings.Join(kept, "\n"), removed, nil
	case "duplicate_lines_containing":
		times := op.Times
		if times < 1 {
			times = 1
		}
		lines := strings.Split(text, "\n")
		var out []string
		duplicated := 0
		for _, line := range lines {
			out = append(out, line)
			if strings.Contains(line, op.Needle) {
				for i := 0; i < times; i++ {
					out = append(out, line)
				}
				duplicated++
			}
		}
		return strings.Join(out, "\n"), duplicated, nil
	case "swap_tokens":
		placeholder := "\x00panic-attack-swap\x00"
		n := strings.Count(text, op.Left) + strings.Count(text, op.Right)
		text = strings.ReplaceAll(text, op.Left, placeholder)
		text = strings.ReplaceAll(text, op.Right, op.Left)
		text = strings.ReplaceAll(text, placeholder, op.Right)
		return text, n, nil
	case "append_text":
		return text + op.Text, 1, nil
	case "prepend_text":
		return op.Text + text, 1, nil
	default:
		return "", 0, fmt.Errorf("unknown mutation operation %q", op.Op)
	}
}

func describeOps(ops []Operation) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.Op
	}
	return out
}

// variantPath names variants main.amuck.001.go style, preserving the
// original extension so checkers treat variants as the same language.
func variantPath(target, outputDir string, id int) string {
	base := filepath.Base(target)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(outputDir, fmt.Sprintf("%s.amuck.%03d%s", stem, id, ext))
}

// runChecker executes the checker template against one variant; the token
// {file} is substituted with the variant path.
func runChecker(ctx context.Context, template []string, variant string, timeout time.Duration) *ExecutionOutcome {
	argv := make([]string, len(template))
	for i, part := range template {
		argv[i] = strings.ReplaceAll(part, "{file}", variant)
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	out := &ExecutionOutcome{}
	stdout, err := cmd.Output()
	out.DurationMs = time.Since(start).Milliseconds()
	out.Stdout = string(stdout)
	if exitErr, ok := err.(*exec.ExitError); ok {
		out.Stderr = string(exitErr.Stderr)
		code := exitErr.ExitCode()
		out.ExitCode = &code
	} else if err != nil {
		out.SpawnError = err.Error()
	} else {
		code := 0
		out.ExitCode = &code
		out.Success = true
	}
	return out
}
