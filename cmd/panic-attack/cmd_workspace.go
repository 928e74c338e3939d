package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperpolymath/panic-attacker/internal/assail"
	"github.com/hyperpolymath/panic-attacker/internal/report"
)

var workspaceFlags struct {
	parallelism int
	output      string
}

var workspaceCmd = &cobra.Command{
	Use:   "workspace [root]",
	Short: "Scan every sub-package of a workspace root",
	Long: `Detects a workspace manifest at the root, scans each sub-package
independently (in parallel, sharing no state), and aggregates totals
plus a risk-ranked top-offenders list.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkspace,
}

func init() {
	workspaceCmd.Flags().IntVar(&workspaceFlags.parallelism, "parallelism", 0, "concurrent package scans (default from config)")
	workspaceCmd.Flags().StringVarP(&workspaceFlags.output, "output", "o", "", "write the workspace report to this path")
	rootCmd.AddCommand(workspaceCmd)
}

func runWorkspace(cmd *cobra.Command, args []string) error {
	root := args[0]
	if !assail.IsWorkspace(root) {
		return usagef("%s does not look like a workspace root", root)
	}
	opts := assail.OptionsFromConfig(cfg)
	if workspaceFlags.parallelism > 0 {
		opts.Parallelism = workspaceFlags.parallelism
	}

	ctx, cancel := signalContext()
	defer cancel()

	ws, err := assail.AnalyzeWorkspace(ctx, root, opts, cfg.Workspace.TopOffendersLimit, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Packages: %d  total lines: %d\n", len(ws.Packages), ws.Totals.TotalLines)
	fmt.Println("Top offenders:")
	for _, offender := range ws.TopOffenders {
		fmt.Printf("  %8.1f  %s\n", offender.RiskScore, offender.Package)
	}

	if workspaceFlags.output != "" {
		return report.Write(ws, workspaceFlags.output, report.FormatJSON)
	}
	return nil
}
