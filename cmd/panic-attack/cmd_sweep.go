package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperpolymath/panic-attacker/internal/assail"
	"github.com/hyperpolymath/panic-attacker/internal/report"
	"github.com/hyperpolymath/panic-attacker/internal/sweep"
)

var sweepFlags struct {
	findingsOnly bool
	minFindings  int
	parallelism  int
	output       string
}

var sweepCmd = &cobra.Command{
	Use:   "sweep [directory]",
	Short: "Batch-scan every git repository under a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepFlags.findingsOnly, "findings-only", false, "only list repositories with findings")
	sweepCmd.Flags().IntVar(&sweepFlags.minFindings, "min-findings", 0, "minimum findings to include a repository")
	sweepCmd.Flags().IntVar(&sweepFlags.parallelism, "parallelism", 0, "concurrent repository scans (default from config)")
	sweepCmd.Flags().StringVarP(&sweepFlags.output, "output", "o", "", "write the sweep report to this path")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	parallelism := sweepFlags.parallelism
	if parallelism < 1 {
		parallelism = cfg.Workspace.Parallelism
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := sweep.Run(ctx, sweep.Config{
		Directory:    args[0],
		FindingsOnly: sweepFlags.findingsOnly,
		MinFindings:  sweepFlags.minFindings,
		Parallelism:  parallelism,
		Analyzer:     assail.OptionsFromConfig(cfg),
	}, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Repos scanned: %d  with findings: %d  total weak points: %d (critical %d)\n",
		result.ReposScanned, result.ReposWithFindings, result.TotalWeakPoints, result.TotalCritical)
	fmt.Printf("  %-32s %6s %6s %6s %8s %8s\n", "repository", "total", "crit", "high", "files", "lines")
	for _, repo := range result.Results {
		if repo.Error != "" {
			fmt.Printf("  %-32s error: %s\n", repo.RepoName, repo.Error)
			continue
		}
		fmt.Printf("  %-32s %6d %6d %6d %8d %8d\n",
			repo.RepoName, repo.WeakPointCount, repo.CriticalCount, repo.HighCount,
			repo.TotalFiles, repo.TotalLines)
	}

	if sweepFlags.output != "" {
		return report.Write(result, sweepFlags.output, report.FormatJSON)
	}
	return nil
}
