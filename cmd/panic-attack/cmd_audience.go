package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperpolymath/panic-attacker/internal/audience"
	"github.com/hyperpolymath/panic-attacker/internal/report"
)

var audienceFlags struct {
	execTemplate  []string
	repeat        int
	timeout       string
	reports       []string
	headLines     int
	tailLines     int
	grepPatterns  []string
	agrepPatterns []string
	agrepDistance int
	lang          string
	spellcheck    bool
	spellLang     string
	output        string
	markdown      string
}

var audienceCmd = &cobra.Command{
	Use:   "audience [target]",
	Short: "Observe target reactions across repeated runs and stored reports",
	Long: `Executes a command against the target repeatedly, scans stored
campaign artifacts, matches exact (grep) and fuzzy (agrep) patterns over
everything observed, and aggregates reaction signals into a localised
audience report for adjudication.`,
	Args: cobra.ExactArgs(1),
	RunE: runAudience,
}

func init() {
	audienceCmd.Flags().StringSliceVar(&audienceFlags.execTemplate, "exec", nil, "command template to observe; {target} is the target path")
	audienceCmd.Flags().IntVar(&audienceFlags.repeat, "repeat", 1, "number of repeated executions")
	audienceCmd.Flags().StringVar(&audienceFlags.timeout, "timeout", "60s", "per-execution timeout")
	audienceCmd.Flags().StringSliceVar(&audienceFlags.reports, "report", nil, "stored report to observe (repeatable)")
	audienceCmd.Flags().IntVar(&audienceFlags.headLines, "head", 10, "lines kept from the start of each observation")
	audienceCmd.Flags().IntVar(&audienceFlags.tailLines, "tail", 10, "lines kept from the end of each observation")
	audienceCmd.Flags().StringSliceVar(&audienceFlags.grepPatterns, "grep", nil, "exact substring pattern (repeatable)")
	audienceCmd.Flags().StringSliceVar(&audienceFlags.agrepPatterns, "agrep", nil, "fuzzy pattern (repeatable)")
	audienceCmd.Flags().IntVar(&audienceFlags.agrepDistance, "agrep-distance", 2, "maximum edit distance for fuzzy patterns")
	audienceCmd.Flags().StringVar(&audienceFlags.lang, "lang", "en", "report language: en, es, fr, de")
	audienceCmd.Flags().BoolVar(&audienceFlags.spellcheck, "spellcheck", false, "run aspell over observed text")
	audienceCmd.Flags().StringVar(&audienceFlags.spellLang, "spellcheck-lang", "", "aspell language (defaults to --lang)")
	audienceCmd.Flags().StringVarP(&audienceFlags.output, "output", "o", "", "write the audience report to this path")
	audienceCmd.Flags().StringVar(&audienceFlags.markdown, "markdown", "", "also write a markdown rendering to this path")
	rootCmd.AddCommand(audienceCmd)
}

func runAudience(cmd *cobra.Command, args []string) error {
	lang, ok := audience.ParseLang(audienceFlags.lang)
	if !ok {
		return usagef("unknown language %q", audienceFlags.lang)
	}
	timeout, err := parseDurationFlag(audienceFlags.timeout, 60*time.Second)
	if err != nil {
		return usagef("%v", err)
	}
	if len(audienceFlags.execTemplate) == 0 && len(audienceFlags.reports) == 0 {
		return usagef("audience needs --exec or at least one --report")
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := audience.Run(ctx, audience.Config{
		Target:        args[0],
		ExecTemplate:  audienceFlags.execTemplate,
		Repeat:        audienceFlags.repeat,
		Timeout:       timeout,
		Reports:       audienceFlags.reports,
		HeadLines:     audienceFlags.headLines,
		TailLines:     audienceFlags.tailLines,
		GrepPatterns:  audienceFlags.grepPatterns,
		AgrepPatterns: audienceFlags.agrepPatterns,
		AgrepDistance: audienceFlags.agrepDistance,
		Lang:          lang,
		Spellcheck:    audienceFlags.spellcheck,
		SpellLang:     audienceFlags.spellLang,
	}, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Observed: %d runs, %d reports\n", result.ObservedRuns, result.ObservedReports)
	if len(result.SignalCounts) == 0 {
		fmt.Println("Signals: none")
	} else {
		names := make([]string, 0, len(result.SignalCounts))
		for name := range result.SignalCounts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  signal %s: %d\n", name, result.SignalCounts[name])
		}
	}
	for _, rec := range result.Recommendations {
		fmt.Printf("  recommendation: %s\n", rec)
	}

	if audienceFlags.output != "" {
		if err := report.Write(result, audienceFlags.output, report.FormatJSON); err != nil {
			return err
		}
	}
	if audienceFlags.markdown != "" {
		if err := audience.WriteMarkdown(result, audienceFlags.markdown); err != nil {
			return err
		}
	}
	return nil
}
