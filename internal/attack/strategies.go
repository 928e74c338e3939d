package attack

import (
	"fmt"

	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// Strategy names the stressor approach for one axis.
type Strategy string

const (
	StrategyCpuStress        Strategy = "cpu-stress"
	StrategyMemoryExhaustion Strategy = "memory-exhaustion"
	StrategyDiskThrashing    Strategy = "disk-thrashing"
	StrategyNetworkFlood     Strategy = "network-flood"
	StrategyConcurrencyStorm Strategy = "concurrency-storm"
	StrategyTimeBomb         Strategy = "time-bomb"
)

// strategyFor maps each axis to its stressor strategy.
func strategyFor(axis types.AttackAxis) Strategy {
	switch axis {
	case types.AxisCpu:
		return StrategyCpuStress
	case types.AxisMemory:
		return StrategyMemoryExhaustion
	case types.AxisDisk:
		return StrategyDiskThrashing
	case types.AxisNetwork:
		return StrategyNetworkFlood
	case types.AxisConcurrency:
		return StrategyConcurrencyStorm
	default:
		return StrategyTimeBomb
	}
}

// Description explains the strategy for logging.
func (s Strategy) Description() string {
	switch s {
	case StrategyCpuStress:
		return "drive compute-heavy workloads"
	case StrategyMemoryExhaustion:
		return "force allocation pressure toward OOM"
	case StrategyDiskThrashing:
		return "saturate disk with read/write churn"
	case StrategyNetworkFlood:
		return "flood connections and requests"
	case StrategyConcurrencyStorm:
		return "maximise contention across workers"
	default:
		return "stretch deadlines and clock-sensitive paths"
	}
}

// axisArgs builds the default target arguments for an axis scaled by
// intensity. Custom per-axis arguments from the attack profile override
// these entirely.
func axisArgs(axis types.AttackAxis, intensity types.IntensityLevel) []string {
	mult := intensity.Multiplier()
	switch axis {
	case types.AxisCpu:
		return []string{"--iterations", fmt.Sprintf("%d", int(1000*mult))}
	case types.AxisMemory:
		return []string{"--alloc-mb", fmt.Sprintf("%d", int(64*mult))}
	case types.AxisDisk:
		return []string{"--write-mb", fmt.Sprintf("%d", int(32*mult))}
	case types.AxisNetwork:
		return []string{"--connections", fmt.Sprintf("%d", int(100*mult))}
	case types.AxisConcurrency:
		return []string{"--threads", fmt.Sprintf("%d", int(10*mult))}
	default:
		return []string{"--delay-ms", fmt.Sprintf("%d", int(100*mult))}
	}
}

// requiredFlags lists the target flags an axis depends on; probe mode
// skips axes whose flags are absent from the probed help text.
func requiredFlags(axis types.AttackAxis) []string {
	switch axis {
	case types.AxisCpu:
		return []string{"--iterations"}
	case types.AxisMemory:
		return []string{"--alloc-mb"}
	case types.AxisDisk:
		return []string{"--write-mb"}
	case types.AxisNetwork:
		return []string{"--connections"}
	case types.AxisConcurrency:
		return []string{"--threads"}
	default:
		return []string{"--delay-ms"}
	}
}
