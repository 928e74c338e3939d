package assail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/charmap"

	"github.com/hyperpolymath/panic-attacker/internal/config"
	"github.com/hyperpolymath/panic-attacker/internal/logging"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// ErrTargetNotFound is returned when the scan target does not exist.
var ErrTargetNotFound = errors.New("target does not exist")

// DecodeError records a file undecodable under every configured encoding.
// It is recovered locally: the file is skipped and listed in the report.
type DecodeError struct {
	Path string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %s under any configured encoding", e.Path)
}

// skipDirs are build artifacts and dependency trees never worth scanning.
var skipDirs = map[string]bool{
	"target": true, "build": true, "node_modules": true, ".git": true,
	"vendor": true, "_build": true, "_opam": true, ".stack-work": true,
	"dist-newstyle": true, "deps": true, "_deps": true, "zig-cache": true,
	"zig-out": true, "__pycache__": true, "ebin": true, ".hex": true,
	"obj": true, ".nimble": true, ".dub": true,
}

// Options configures one analyzer run.
type Options struct {
	IncludeTestCode  bool
	IncludeGlobs     []string
	ExcludeGlobs     []string
	EncodingFallback []string
	// Profiles maps a language family to per-category severity overrides.
	Profiles    map[string]map[string]types.Severity
	Parallelism int
}

// OptionsFromConfig derives analyzer options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		IncludeTestCode:  cfg.IncludeTestCode,
		EncodingFallback: cfg.EncodingFallback,
		Parallelism:      cfg.Workspace.Parallelism,
	}
	if len(cfg.LanguageProfiles) > 0 {
		opts.Profiles = make(map[string]map[string]types.Severity, len(cfg.LanguageProfiles))
		for family, profile := range cfg.LanguageProfiles {
			opts.Profiles[family] = profile.SeverityOverrides
		}
	}
	return opts
}

// Analysis bundles the report with the relational facts C5 consumes.
type Analysis struct {
	Report *types.AssailReport
	Facts  []FileFacts
}

// Analyzer walks a source tree and aggregates per-file extractions.
type Analyzer struct {
	target string
	opts   Options
	logger *zap.Logger
}

// NewAnalyzer validates the target and builds an analyzer.
func NewAnalyzer(target string, opts Options, logger *zap.Logger) (*Analyzer, error) {
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, target)
		}
		return nil, fmt.Errorf("stat %s: %w", target, err)
	}
	if !info.IsDir() && !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a file or directory", ErrTargetNotFound, target)
	}
	if len(opts.EncodingFallback) == 0 {
		opts.EncodingFallback = []string{"utf-8", "windows-1252"}
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Analyzer{target: target, opts: opts, logger: logging.OrNop(logger).Named("assail")}, nil
}

type fileResult struct {
	rel        string
	extraction Extraction
	skipped    bool
}

// Analyze runs the full static pass. Per-file work may run in parallel;
// the final report is sorted deterministically so two runs on the same
// input are bit-identical. Cancellation is honoured at file boundaries.
func (a *Analyzer) Analyze(ctx context.Context) (*Analysis, error) {
	files, base, err := a.collectFiles()
	if err != nil {
		return nil, err
	}
	a.logger.Debug("collected source files", zap.Int("count", len(files)))

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Parallelism)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rel := relPath(base, file)
			raw, err := os.ReadFile(file)
			if err != nil {
				a.logger.Debug("skipping unreadable file", zap.String("file", rel), zap.Error(err))
				results[i] = fileResult{rel: rel, skipped: true}
				return nil
			}
			content, ok := decode(raw, a.opts.EncodingFallback)
			if !ok {
				a.logger.Debug("skipping file", zap.Error(&DecodeError{Path: rel}))
				results[i] = fileResult{rel: rel, skipped: true}
				return nil
			}
			cls := Classify(rel, content)
			// A fresh extractor statistics record per file: counts from
			// earlier files must never leak into later ones.
			extractor := NewExtractor(a.opts.Profiles[cls.Language.Family()])
			results[i] = fileResult{rel: rel, extraction: extractor.Extract(rel, content, cls)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := a.assemble(results)
	facts := make([]FileFacts, 0, len(results))
	for _, res := range results {
		if !res.skipped {
			facts = append(facts, res.extraction.Facts)
		}
	}
	return &Analysis{Report: report, Facts: facts}, nil
}

func (a *Analyzer) assemble(results []fileResult) *types.AssailReport {
	report := &types.AssailReport{
		SchemaVersion: types.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		ProgramPath:   a.target,
		Frameworks:    []types.Framework{},
		WeakPoints:    []types.WeakPoint{},
	}

	linesByLanguage := make(map[types.Language]int)
	frameworkSet := make(map[types.Framework]bool)
	sawEntryPoint := false
	sawCLIPattern := false

	for _, res := range results {
		if res.skipped {
			report.SkippedFiles = append(report.SkippedFiles, res.rel)
			continue
		}
		ext := res.extraction
		report.FileStatistics = append(report.FileStatistics, ext.Stats)

		if ext.Stats.IsTestFile && !a.opts.IncludeTestCode {
			report.TestWeakPoints = append(report.TestWeakPoints, ext.WeakPoints...)
		} else {
			report.WeakPoints = append(report.WeakPoints, ext.WeakPoints...)
		}
		report.InfoFindings = append(report.InfoFindings, ext.InfoFindings...)

		if !ext.Stats.IsTestFile {
			report.Statistics.Add(ext.Stats)
			linesByLanguage[ext.Stats.Language] += ext.Stats.Lines
		}

		for _, fw := range ext.Class.Frameworks {
			if fw == types.FrameworkCLI {
				sawCLIPattern = true
				continue
			}
			frameworkSet[fw] = true
		}
		if ext.HasEntryPoint {
			sawEntryPoint = true
		}
	}

	// Guardrail: a server-class framework needs positive evidence, which
	// the hint table already enforces. With no evidence at all the project
	// is a cli when it has an entry point with argument parsing, a library
	// otherwise.
	if sawCLIPattern && sawEntryPoint {
		frameworkSet[types.FrameworkCLI] = true
	}
	if len(frameworkSet) == 0 {
		for lang := range linesByLanguage {
			if lang != types.LangGeneric {
				frameworkSet[types.FrameworkLibrary] = true
				break
			}
		}
	}

	report.Language = dominantLanguage(linesByLanguage)
	report.Frameworks = sortedFrameworks(frameworkSet)
	SortWeakPoints(report.WeakPoints)
	SortWeakPoints(report.TestWeakPoints)
	SortWeakPoints(report.InfoFindings)
	sort.Strings(report.SkippedFiles)
	sort.Slice(report.FileStatistics, func(i, j int) bool {
		return report.FileStatistics[i].Path < report.FileStatistics[j].Path
	})
	report.RecommendedAttacks = RecommendAttacks(report.WeakPoints)
	return report
}

func (a *Analyzer) collectFiles() ([]string, string, error) {
	info, err := os.Stat(a.target)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrTargetNotFound, a.target)
	}
	if !info.IsDir() {
		return []string{a.target}, filepath.Dir(a.target), nil
	}

	var files []string
	err = filepath.WalkDir(a.target, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != a.target && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel := relPath(a.target, path)
		if !a.matchGlobs(rel) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("walking %s: %w", a.target, err)
	}
	sort.Strings(files)
	return files, a.target, nil
}

func (a *Analyzer) matchGlobs(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, glob := range a.opts.ExcludeGlobs {
		if ok, _ := doublestar.Match(glob, rel); ok {
			return false
		}
	}
	if len(a.opts.IncludeGlobs) == 0 {
		return true
	}
	for _, glob := range a.opts.IncludeGlobs {
		if ok, _ := doublestar.Match(glob, rel); ok {
			return true
		}
	}
	return false
}

// decode tries each configured encoding in order. A NUL byte marks binary
// content, which no text encoding should claim.
func decode(raw []byte, encodings []string) (string, bool) {
	if bytes.IndexByte(raw, 0) >= 0 {
		return "", false
	}
	for _, enc := range encodings {
		switch enc {
		case "utf-8", "utf8":
			if utf8.Valid(raw) {
				return string(raw), true
			}
		case "windows-1252", "latin-1", "iso-8859-1":
			decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
			if err == nil {
				return string(decoded), true
			}
		}
	}
	return "", false
}

func relPath(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func dominantLanguage(lines map[types.Language]int) types.Language {
	best := types.LangGeneric
	bestLines := -1
	langs := make([]types.Language, 0, len(lines))
	for lang := range lines {
		langs = append(langs, lang)
	}
	// Deterministic tie-break: language name ascending.
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	for _, lang := range langs {
		if lang == types.LangGeneric {
			continue
		}
		if lines[lang] > bestLines {
			best = lang
			bestLines = lines[lang]
		}
	}
	if bestLines <= 0 {
		return types.LangGeneric
	}
	return best
}

func sortedFrameworks(set map[types.Framework]bool) []types.Framework {
	out := make([]types.Framework, 0, len(set))
	for fw := range set {
		out = append(out, fw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SortWeakPoints orders findings by (severity desc, file asc, line asc,
// category asc) so concurrent runs produce identical reports.
func SortWeakPoints(points []types.WeakPoint) {
	sort.Slice(points, func(i, j int) bool {
		a, b := points[i], points[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.Location.File != b.Location.File {
			return a.Location.File < b.Location.File
		}
		if a.Location.Line != b.Location.Line {
			return a.Location.Line < b.Location.Line
		}
		return a.Category < b.Category
	})
}

// attackWeights scores attack axes from weak-point categories.
var attackWeights = map[types.WeakPointCategory]map[types.AttackAxis]int{
	types.CategoryUnsafeCode:            {types.AxisMemory: 3, types.AxisConcurrency: 1},
	types.CategoryUncheckedAllocation:   {types.AxisMemory: 3},
	types.CategoryPanicPath:             {types.AxisCpu: 2, types.AxisTime: 2},
	types.CategoryUnboundedLoop:         {types.AxisCpu: 3, types.AxisTime: 2},
	types.CategoryBlockingIO:            {types.AxisDisk: 2, types.AxisTime: 1},
	types.CategoryRaceCondition:         {types.AxisConcurrency: 3},
	types.CategoryDeadlockPotential:     {types.AxisConcurrency: 3, types.AxisTime: 1},
	types.CategoryResourceLeak:          {types.AxisConcurrency: 2, types.AxisMemory: 2},
	types.CategoryCommandInjection:      {types.AxisCpu: 1, types.AxisDisk: 1},
	types.CategoryUnsafeDeserialization: {types.AxisMemory: 2, types.AxisCpu: 1},
	types.CategoryDynamicCodeExecution:  {types.AxisCpu: 2, types.AxisMemory: 1},
	types.CategoryAtomExhaustion:        {types.AxisMemory: 3},
	types.CategoryUnsafeFFI:             {types.AxisMemory: 2},
	types.CategoryPathTraversal:         {types.AxisDisk: 2},
	types.CategoryTaintedInput:          {types.AxisNetwork: 2},
	types.CategoryTaintedSink:           {types.AxisNetwork: 2, types.AxisCpu: 1},
}

func RecommendAttacks(points []types.WeakPoint) []types.AttackAxis {
	scores := make(map[types.AttackAxis]int)
	for _, wp := range points {
		for axis, weight := range attackWeights[wp.Category] {
			scores[axis] += weight * (int(wp.Severity) + 1)
		}
	}
	axes := make([]types.AttackAxis, 0, len(scores))
	for axis := range scores {
		axes = append(axes, axis)
	}
	sort.Slice(axes, func(i, j int) bool {
		if scores[axes[i]] != scores[axes[j]] {
			return scores[axes[i]] > scores[axes[j]]
		}
		return axes[i] < axes[j]
	})
	return axes
}
