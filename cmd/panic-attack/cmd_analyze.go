package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperpolymath/panic-attacker/internal/report"
	"github.com/hyperpolymath/panic-attacker/internal/signatures"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

var analyzeFlags struct {
	output string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [crash-report]",
	Short: "Run the crash-signature engine on a stored crash report",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFlags.output, "output", "o", "", "write detected signatures to this path")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return usagef("reading crash report: %v", err)
	}
	var crash types.CrashReport
	if err := json.Unmarshal(data, &crash); err != nil {
		return usagef("parsing crash report %s: %v", args[0], err)
	}

	sigs := signatures.NewEngine(logger).Detect(crash)
	if len(sigs) == 0 {
		fmt.Println("No signatures detected")
		return nil
	}
	for _, sig := range sigs {
		fmt.Printf("%-20s confidence %.2f\n", sig.SignatureType, sig.Confidence)
		for _, ev := range sig.Evidence {
			fmt.Printf("    %s\n", ev)
		}
	}

	if analyzeFlags.output != "" {
		return report.Write(sigs, analyzeFlags.output, report.FormatJSON)
	}
	return nil
}
