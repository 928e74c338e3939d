package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperpolymath/panic-attacker/internal/ambush"
	"github.com/hyperpolymath/panic-attacker/internal/report"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

var ambushFlags struct {
	timeline  string
	intensity string
	output    string
}

var ambushCmd = &cobra.Command{
	Use:   "ambush",
	Short: "Run a target under concurrent ambient stressors per a timeline",
	Long: `Loads a timeline specification (YAML or JSON) describing per-axis
stressor tracks, runs the target for the timeline duration, and fires
each event at its offset. Overlapping events on one axis are rejected.`,
	RunE: runAmbush,
}

func init() {
	ambushCmd.Flags().StringVar(&ambushFlags.timeline, "timeline", "", "timeline specification file (required)")
	ambushCmd.Flags().StringVar(&ambushFlags.intensity, "intensity", "medium", "default intensity for events without one")
	ambushCmd.Flags().StringVarP(&ambushFlags.output, "output", "o", "", "write the ambush report to this path")
	_ = ambushCmd.MarkFlagRequired("timeline")
	rootCmd.AddCommand(ambushCmd)
}

func runAmbush(cmd *cobra.Command, args []string) error {
	intensity, ok := types.ParseIntensity(ambushFlags.intensity)
	if !ok {
		return usagef("unknown intensity %q", ambushFlags.intensity)
	}
	plan, err := ambush.LoadTimeline(ambushFlags.timeline, intensity)
	if err != nil {
		return usagef("%v", err)
	}
	if plan.Program == "" {
		return usagef("timeline does not name a program")
	}

	ctx, cancel := signalContext()
	defer cancel()

	stressor := &ambush.CommandStressor{Commands: stressorCommands()}
	result, err := ambush.NewRunner(stressor, logger).Run(ctx, plan)
	if err != nil {
		return err
	}

	fmt.Printf("Ambush complete: %d/%d events ran\n", countRan(result), len(result.Events))
	if result.Target.TimedOut {
		fmt.Println("Target survived the full timeline")
	} else if !result.Target.Success {
		fmt.Println("Target exited abnormally under ambient pressure")
	}

	if ambushFlags.output != "" {
		return report.Write(result, ambushFlags.output, report.FormatJSON)
	}
	return nil
}

// stressorCommands builds the per-axis stressor commands from the attack
// profile's axis arguments; axes without configuration run no stressor.
func stressorCommands() map[types.AttackAxis][]string {
	commands := make(map[types.AttackAxis][]string)
	for axis, args := range cfg.Attack.AxisArgs {
		if len(args) > 0 {
			commands[axis] = args
		}
	}
	return commands
}

func countRan(result *ambush.Report) int {
	n := 0
	for _, ev := range result.Events {
		if ev.Ran {
			n++
		}
	}
	return n
}
