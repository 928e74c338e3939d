package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperpolymath/panic-attacker/internal/adjudicate"
	"github.com/hyperpolymath/panic-attacker/internal/assail"
	"github.com/hyperpolymath/panic-attacker/internal/kanren"
	"github.com/hyperpolymath/panic-attacker/internal/report"
	"github.com/hyperpolymath/panic-attacker/internal/storage"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

var assailFlags struct {
	output          string
	format          string
	includeTestCode bool
	includeGlobs    []string
	excludeGlobs    []string
	watch           bool
	store           string
}

var assailCmd = &cobra.Command{
	Use:     "assail [path]",
	Aliases: []string{"scan"},
	Short:   "Run static analysis and produce an assail report",
	Long: `Walks the source tree, attributes every file to a language family,
extracts weak points, and derives taint chains and cross-language
boundary risks over the relational engine.

With thresholds configured, the scan also emits a pass/fail verdict and
the exit code reflects it.`,
	Args: cobra.ExactArgs(1),
	RunE: runAssail,
}

func init() {
	assailCmd.Flags().StringVarP(&assailFlags.output, "output", "o", "", "write the report to this path")
	assailCmd.Flags().StringVar(&assailFlags.format, "format", "json", "output format: json, yaml, or sarif")
	assailCmd.Flags().BoolVar(&assailFlags.includeTestCode, "include-test-code", false, "count test-bucket weak points in severity aggregates")
	assailCmd.Flags().StringSliceVar(&assailFlags.includeGlobs, "include", nil, "glob of paths to include (repeatable)")
	assailCmd.Flags().StringSliceVar(&assailFlags.excludeGlobs, "exclude", nil, "glob of paths to exclude (repeatable)")
	assailCmd.Flags().BoolVar(&assailFlags.watch, "watch", false, "rescan whenever source files change")
	assailCmd.Flags().StringVar(&assailFlags.store, "store", "", "persist the report under this store root")
	rootCmd.AddCommand(assailCmd)
}

func runAssail(cmd *cobra.Command, args []string) error {
	target := args[0]
	format, err := report.ParseFormat(assailFlags.format)
	if err != nil {
		return usagef("%v", err)
	}

	opts := assail.OptionsFromConfig(cfg)
	if assailFlags.includeTestCode {
		opts.IncludeTestCode = true
	}
	opts.IncludeGlobs = assailFlags.includeGlobs
	opts.ExcludeGlobs = assailFlags.excludeGlobs

	ctx, cancel := signalContext()
	defer cancel()

	if assailFlags.watch {
		err := assail.Watch(ctx, target, opts, logger, func(analysis *assail.Analysis) {
			enrichReport(analysis)
			printAssailSummary(analysis.Report)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	analyzer, err := assail.NewAnalyzer(target, opts, logger)
	if err != nil {
		return err
	}
	analysis, err := analyzer.Analyze(ctx)
	if err != nil {
		return err
	}
	enrichReport(analysis)
	printAssailSummary(analysis.Report)

	if verbose {
		printFileOrder(analysis)
	}

	if assailFlags.output != "" {
		if err := report.Write(analysis.Report, assailFlags.output, format); err != nil {
			return err
		}
	}
	if assailFlags.store != "" {
		store, err := storage.Open(assailFlags.store)
		if err != nil {
			return err
		}
		defer store.Close()
		path, err := store.Save(analysis.Report, filepath.Base(target), "assail", format)
		if err != nil {
			return err
		}
		logger.Info("report stored", zap.String("path", path))
	}

	return checkThresholds(analysis.Report)
}

// enrichReport runs the relational analyzers over the scan facts and folds
// their findings into the report.
func enrichReport(analysis *assail.Analysis) {
	db := kanren.NewFactDB()
	taint := kanren.NewTaintAnalyzer(logger)
	taint.Ingest(db, analysis.Facts)
	vulns := taint.Analyze(db)

	crosslang := kanren.NewCrossLangAnalyzer(logger)
	risks := crosslang.Analyze(db, analysis.Facts)

	rep := analysis.Report
	rep.WeakPoints = append(rep.WeakPoints, taint.WeakPoints(vulns)...)
	rep.WeakPoints = append(rep.WeakPoints, crosslang.WeakPoints(risks)...)
	assail.SortWeakPoints(rep.WeakPoints)
	rep.RecommendedAttacks = assail.RecommendAttacks(rep.WeakPoints)
}

func printAssailSummary(rep *types.AssailReport) {
	fmt.Printf("Language: %s\n", rep.Language)
	fmt.Printf("Frameworks: %v\n", rep.Frameworks)
	fmt.Printf("Files analysed: %d (%d lines)\n", len(rep.FileStatistics), rep.Statistics.TotalLines)
	fmt.Printf("Weak points: %d", len(rep.WeakPoints))
	counts := rep.SeverityCounts()
	if len(rep.WeakPoints) > 0 {
		fmt.Printf(" (critical %d, high %d, medium %d, low %d)",
			counts[types.SeverityCritical], counts[types.SeverityHigh],
			counts[types.SeverityMedium], counts[types.SeverityLow])
	}
	fmt.Println()
	if len(rep.SkippedFiles) > 0 {
		fmt.Printf("Skipped files: %d\n", len(rep.SkippedFiles))
	}
	fmt.Printf("Recommended attacks: %v\n", rep.RecommendedAttacks)
}

func printFileOrder(analysis *assail.Analysis) {
	boundaryFiles := make(map[string]bool)
	for _, facts := range analysis.Facts {
		if len(facts.Boundaries) > 0 {
			boundaryFiles[facts.Path] = true
		}
	}
	strategy := kanren.SelectStrategy(analysis.Report, len(analysis.Report.FileStatistics), len(boundaryFiles) > 0)
	fmt.Printf("Search strategy: %s\n", strategy)
	for _, risk := range kanren.PrioritiseFiles(analysis.Report, strategy, boundaryFiles) {
		fmt.Printf("  %8.1f  %s\n", risk.RiskScore, risk.Path)
	}
}

// checkThresholds turns configured limits into a verdict-driven exit code.
func checkThresholds(rep *types.AssailReport) error {
	t := cfg.Thresholds
	if t == nil {
		return nil
	}
	var violations []string
	if t.MaxUnsafeBlocks > 0 && rep.Statistics.UnsafeBlocks > t.MaxUnsafeBlocks {
		violations = append(violations, fmt.Sprintf("unsafe blocks %d > %d", rep.Statistics.UnsafeBlocks, t.MaxUnsafeBlocks))
	}
	if t.MaxProductionUnwraps > 0 && rep.Statistics.UnwrapCalls > t.MaxProductionUnwraps {
		violations = append(violations, fmt.Sprintf("production unwraps %d > %d", rep.Statistics.UnwrapCalls, t.MaxProductionUnwraps))
	}
	if t.MaxWeakPoints > 0 && len(rep.WeakPoints) > t.MaxWeakPoints {
		violations = append(violations, fmt.Sprintf("weak points %d > %d", len(rep.WeakPoints), t.MaxWeakPoints))
	}
	for _, wp := range rep.WeakPoints {
		if t.MaxSeverity > types.SeverityInfo && wp.Severity > t.MaxSeverity {
			violations = append(violations, fmt.Sprintf("severity %s exceeds maximum %s", wp.Severity, t.MaxSeverity))
			break
		}
	}
	if t.RequireErrorHandlingLevel > 0 {
		level := adjudicate.ErrorHandlingLevel(rep.Statistics.UnwrapCalls, rep.Statistics.SafeUnwrapVariants)
		if level < t.RequireErrorHandlingLevel {
			violations = append(violations, fmt.Sprintf("error-handling level %d < required %d", level, t.RequireErrorHandlingLevel))
		}
	}
	if len(violations) > 0 {
		for _, v := range violations {
			fmt.Printf("threshold violation: %s\n", v)
		}
		return fmt.Errorf("%w: %d threshold violations", errVerdictFail, len(violations))
	}
	fmt.Println("Verdict: pass")
	return nil
}
