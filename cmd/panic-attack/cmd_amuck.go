package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperpolymath/panic-attacker/internal/amuck"
	"github.com/hyperpolymath/panic-attacker/internal/report"
)

var amuckFlags struct {
	preset          string
	spec            string
	maxCombinations int
	outputDir       string
	execTemplate    []string
	execTimeout     string
	output          string
}

var amuckCmd = &cobra.Command{
	Use:     "amuck [file]",
	Aliases: []string{"mutate"},
	Short:   "Write mutation variants of a file, never mutating in place",
	Long: `Applies mutation combinations to a copy of the target file, writing
each variant into the output directory. With an exec template, every
variant is checked and the outcome recorded; the original file is never
touched.`,
	Args: cobra.ExactArgs(1),
	RunE: runAmuck,
}

func init() {
	amuckCmd.Flags().StringVar(&amuckFlags.preset, "preset", "light", "built-in combination preset: light or dangerous")
	amuckCmd.Flags().StringVar(&amuckFlags.spec, "spec", "", "explicit combination spec file (YAML or JSON)")
	amuckCmd.Flags().IntVar(&amuckFlags.maxCombinations, "max-combinations", 8, "maximum combinations to run")
	amuckCmd.Flags().StringVar(&amuckFlags.outputDir, "output-dir", "runtime/amuck", "directory for mutated variants")
	amuckCmd.Flags().StringSliceVar(&amuckFlags.execTemplate, "exec", nil, "checker command template; {file} is the variant path")
	amuckCmd.Flags().StringVar(&amuckFlags.execTimeout, "exec-timeout", "60s", "per-variant checker timeout")
	amuckCmd.Flags().StringVarP(&amuckFlags.output, "output", "o", "", "write the mutation report to this path")
	rootCmd.AddCommand(amuckCmd)
}

func runAmuck(cmd *cobra.Command, args []string) error {
	preset := amuck.Preset(amuckFlags.preset)
	if preset != amuck.PresetLight && preset != amuck.PresetDangerous {
		return usagef("unknown preset %q", amuckFlags.preset)
	}
	timeout, err := parseDurationFlag(amuckFlags.execTimeout, 60*time.Second)
	if err != nil {
		return usagef("%v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := amuck.Run(ctx, amuck.Config{
		Target:          args[0],
		SpecPath:        amuckFlags.spec,
		Preset:          preset,
		MaxCombinations: amuckFlags.maxCombinations,
		OutputDir:       amuckFlags.outputDir,
		ExecTemplate:    amuckFlags.execTemplate,
		ExecTimeout:     timeout,
	}, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Mutations: %d planned, %d run\n", result.CombinationsPlanned, result.CombinationsRun)
	for _, outcome := range result.Outcomes {
		status := "written"
		switch {
		case outcome.ApplyError != "":
			status = "apply error: " + outcome.ApplyError
		case outcome.Execution != nil && !outcome.Execution.Success:
			status = "checker failed"
		case outcome.Execution != nil:
			status = "checker passed"
		}
		fmt.Printf("  %-24s %s\n", outcome.Name, status)
	}

	if amuckFlags.output != "" {
		return report.Write(result, amuckFlags.output, report.FormatJSON)
	}
	return nil
}
