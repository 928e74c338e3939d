package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperpolymath/panic-attacker/internal/assail"
	"github.com/hyperpolymath/panic-attacker/internal/attack"
	"github.com/hyperpolymath/panic-attacker/internal/report"
	"github.com/hyperpolymath/panic-attacker/internal/storage"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

var assaultFlags struct {
	binary    string
	axes      []string
	intensity string
	duration  string
	probe     string
	output    string
	format    string
	store     string
}

var assaultCmd = &cobra.Command{
	Use:     "assault [source-path]",
	Aliases: []string{"full-run"},
	Short:   "Run static analysis, per-axis attacks, and signature inference",
	Long: `A full session: assail the source tree, attack the binary along the
recommended (or requested) axes, infer bug signatures from any crashes,
and assemble the combined assault report with a robustness score.`,
	Args: cobra.ExactArgs(1),
	RunE: runAssault,
}

func init() {
	assaultCmd.Flags().StringVar(&assaultFlags.binary, "binary", "", "target binary (defaults to the source path)")
	assaultCmd.Flags().StringSliceVar(&assaultFlags.axes, "axes", nil, "axes subset (defaults to the scan's recommendations)")
	assaultCmd.Flags().StringVar(&assaultFlags.intensity, "intensity", "medium", "intensity: light, medium, heavy, extreme")
	assaultCmd.Flags().StringVar(&assaultFlags.duration, "duration", "", "per-axis attack duration")
	assaultCmd.Flags().StringVar(&assaultFlags.probe, "probe", "auto", "probe mode: auto, always, never")
	assaultCmd.Flags().StringVarP(&assaultFlags.output, "output", "o", "", "write the assault report to this path")
	assaultCmd.Flags().StringVar(&assaultFlags.format, "format", "json", "output format: json or yaml")
	assaultCmd.Flags().StringVar(&assaultFlags.store, "store", "", "persist the report under this store root")
	rootCmd.AddCommand(assaultCmd)
}

func runAssault(cmd *cobra.Command, args []string) error {
	source := args[0]
	format, err := report.ParseFormat(assaultFlags.format)
	if err != nil {
		return usagef("%v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	analyzer, err := assail.NewAnalyzer(source, assail.OptionsFromConfig(cfg), logger)
	if err != nil {
		return err
	}
	analysis, err := analyzer.Analyze(ctx)
	if err != nil {
		return err
	}
	enrichReport(analysis)
	printAssailSummary(analysis.Report)

	axes, err := resolveAxes(assaultFlags.axes, analysis.Report.RecommendedAttacks)
	if err != nil {
		return err
	}
	binary := assaultFlags.binary
	if binary == "" {
		binary = source
	}

	attackFlags.intensity = assaultFlags.intensity
	attackFlags.duration = assaultFlags.duration
	attackFlags.probe = assaultFlags.probe
	req, err := buildAttackRequest([]string{binary}, axes)
	if err != nil {
		return err
	}
	results, err := attack.NewExecutor(req, logger).Execute(ctx)
	if err != nil {
		return err
	}
	printAttackResults(results)

	assault := report.Assemble(analysis.Report, results)
	fmt.Printf("Robustness score: %.1f/100\n", assault.OverallAssessment.RobustnessScore)
	for _, issue := range assault.OverallAssessment.CriticalIssues {
		fmt.Printf("  critical: %s\n", issue)
	}

	if assaultFlags.output != "" {
		if err := report.Write(assault, assaultFlags.output, format); err != nil {
			return err
		}
	}
	if assaultFlags.store != "" {
		store, err := storage.Open(assaultFlags.store)
		if err != nil {
			return err
		}
		defer store.Close()
		path, err := store.Save(assault, filepath.Base(source), "assault", format)
		if err != nil {
			return err
		}
		logger.Info("report stored", zap.String("path", path))
	}
	return nil
}

func resolveAxes(requested []string, recommended []types.AttackAxis) ([]types.AttackAxis, error) {
	if len(requested) == 0 {
		if len(recommended) > 0 {
			return recommended, nil
		}
		return types.AllAxes(), nil
	}
	axes := make([]types.AttackAxis, 0, len(requested))
	for _, raw := range requested {
		axis, ok := types.ParseAxis(raw)
		if !ok {
			return nil, usagef("unknown attack axis %q", raw)
		}
		axes = append(axes, axis)
	}
	return axes, nil
}
