package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperpolymath/panic-attacker/internal/attack"
	"github.com/hyperpolymath/panic-attacker/internal/report"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

var attackFlags struct {
	axis      string
	intensity string
	duration  string
	probe     string
	output    string
	args      []string
}

var attackCmd = &cobra.Command{
	Use:   "attack [binary]",
	Short: "Execute one attack axis against a target binary",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttack,
}

func init() {
	attackCmd.Flags().StringVar(&attackFlags.axis, "axis", "cpu", "attack axis: cpu, memory, disk, network, concurrency, time")
	attackCmd.Flags().StringVar(&attackFlags.intensity, "intensity", "medium", "intensity: light, medium, heavy, extreme")
	attackCmd.Flags().StringVar(&attackFlags.duration, "duration", "", "attack duration (e.g. 30s)")
	attackCmd.Flags().StringVar(&attackFlags.probe, "probe", "auto", "probe mode: auto, always, never")
	attackCmd.Flags().StringVarP(&attackFlags.output, "output", "o", "", "write attack results to this path")
	attackCmd.Flags().StringSliceVar(&attackFlags.args, "args", nil, "extra arguments passed to the target")
	rootCmd.AddCommand(attackCmd)
}

func buildAttackRequest(targets []string, axes []types.AttackAxis) (attack.Request, error) {
	req := attack.RequestFromConfig(cfg, targets, axes)
	if attackFlags.intensity != "" {
		intensity, ok := types.ParseIntensity(attackFlags.intensity)
		if !ok {
			return attack.Request{}, usagef("unknown intensity %q", attackFlags.intensity)
		}
		req.Intensity = intensity
	}
	duration, err := parseDurationFlag(attackFlags.duration, req.Duration)
	if err != nil {
		return attack.Request{}, usagef("%v", err)
	}
	req.Duration = duration
	switch attackFlags.probe {
	case "auto":
		req.ProbeMode = types.ProbeAuto
	case "always":
		req.ProbeMode = types.ProbeAlways
	case "never":
		req.ProbeMode = types.ProbeNever
	default:
		return attack.Request{}, usagef("unknown probe mode %q", attackFlags.probe)
	}
	req.CommonArgs = append(req.CommonArgs, attackFlags.args...)
	return req, nil
}

func runAttack(cmd *cobra.Command, args []string) error {
	axis, ok := types.ParseAxis(attackFlags.axis)
	if !ok {
		return usagef("unknown attack axis %q", attackFlags.axis)
	}
	req, err := buildAttackRequest(args, []types.AttackAxis{axis})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	results, err := attack.NewExecutor(req, logger).Execute(ctx)
	if err != nil {
		return err
	}
	printAttackResults(results)

	if attackFlags.output != "" {
		if err := report.Write(results, attackFlags.output, report.FormatJSON); err != nil {
			return err
		}
	}
	return nil
}

func printAttackResults(results []types.AttackResult) {
	for _, result := range results {
		status := "passed"
		switch {
		case result.Skipped:
			status = "skipped (" + result.SkipReason + ")"
		case result.TimedOut:
			status = "survived attack window"
		case !result.Success:
			status = fmt.Sprintf("failed (%d crashes, %d signatures)",
				len(result.Crashes), len(result.SignaturesDetected))
		}
		fmt.Printf("%-12s %s\n", result.Axis, status)
		for _, sig := range result.SignaturesDetected {
			fmt.Printf("  signature: %s (confidence %.2f)\n", sig.SignatureType, sig.Confidence)
		}
	}
}
