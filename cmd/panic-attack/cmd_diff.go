package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperpolymath/panic-attacker/internal/report"
)

var diffFlags struct {
	output string
}

var diffCmd = &cobra.Command{
	Use:   "diff [baseline] [current]",
	Short: "Produce a diff report between two prior scans",
	Long: `Compares two stored assail reports by weak-point identity
(category, file, line, description digest) and reports new, resolved,
and severity-changed findings. Regressions set exit code 1.`,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().StringVarP(&diffFlags.output, "output", "o", "", "write the diff report to this path")
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	baseline, err := report.LoadAssail(args[0])
	if err != nil {
		return usagef("%v", err)
	}
	current, err := report.LoadAssail(args[1])
	if err != nil {
		return usagef("%v", err)
	}

	diff := report.Diff(baseline, current)
	fmt.Printf("New: %d  Resolved: %d  Severity changed: %d\n",
		len(diff.New), len(diff.Resolved), len(diff.SeverityChanged))
	fmt.Printf("Net weak-point delta: %+d  Net severity delta: %+d\n",
		diff.NetWeakPointDelta, diff.NetSeverityDelta)
	for _, wp := range diff.New {
		fmt.Printf("  + [%s] %s %s\n", wp.Severity, wp.Location.File, wp.Description)
	}
	for _, wp := range diff.Resolved {
		fmt.Printf("  - [%s] %s %s\n", wp.Severity, wp.Location.File, wp.Description)
	}
	for _, pair := range diff.SeverityChanged {
		fmt.Printf("  ~ %s: %s -> %s\n", pair.After.Location.File, pair.Before.Severity, pair.After.Severity)
	}

	if diffFlags.output != "" {
		if err := report.Write(diff, diffFlags.output, report.FormatJSON); err != nil {
			return err
		}
	}
	if report.HasRegressions(diff) {
		return fmt.Errorf("%w: regressions against baseline", errVerdictFail)
	}
	return nil
}
