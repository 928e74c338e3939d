package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperpolymath/panic-attacker/internal/adjudicate"
	"github.com/hyperpolymath/panic-attacker/internal/report"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

var adjudicateFlags struct {
	baseline string
	output   string
}

var adjudicateCmd = &cobra.Command{
	Use:   "adjudicate [artifact...]",
	Short: "Merge campaign artifacts into a single verdict",
	Long: `Normalises assault, mutation, isolation, and audience artifacts into
a uniform fact set and applies the verdict rule catalogue. The exit code
follows the verdict: pass 0, fail 1.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdjudicate,
}

func init() {
	adjudicateCmd.Flags().StringVar(&adjudicateFlags.baseline, "baseline", "", "baseline assail report for regression checks")
	adjudicateCmd.Flags().StringVarP(&adjudicateFlags.output, "output", "o", "", "write the verdict to this path")
	rootCmd.AddCommand(adjudicateCmd)
}

func runAdjudicate(cmd *cobra.Command, args []string) error {
	var baseline *types.AssailReport
	if adjudicateFlags.baseline != "" {
		loaded, err := report.LoadAssail(adjudicateFlags.baseline)
		if err != nil {
			return usagef("%v", err)
		}
		baseline = loaded
	}

	result, err := adjudicate.New(cfg.Thresholds, logger).Run(args, baseline)
	if err != nil {
		return usagef("%v", err)
	}

	fmt.Printf("Verdict: %s (%d artifacts processed, %d failed to parse)\n",
		result.Verdict.Status, result.ProcessedReports, result.FailedReports)
	for _, priority := range result.Verdict.Priorities {
		fmt.Printf("  priority: %s\n", priority)
	}
	for _, rationale := range result.Verdict.Rationale {
		fmt.Printf("  rationale: %s\n", rationale)
	}

	if adjudicateFlags.output != "" {
		if err := report.Write(result, adjudicateFlags.output, report.FormatJSON); err != nil {
			return err
		}
	}
	if result.Verdict.Status == types.VerdictFail {
		return fmt.Errorf("%w: campaign verdict", errVerdictFail)
	}
	return nil
}
