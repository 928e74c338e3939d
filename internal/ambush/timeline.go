// Package ambush runs a target under ambient concurrent stressors driven
// by a timeline specification.
package ambush

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// Plan is a validated, flattened timeline ready to execute.
type Plan struct {
	Program  string
	Args     []string
	Duration time.Duration
	Events   []Event
}

// Event is one scheduled stressor activation.
type Event struct {
	ID          string
	Axis        types.AttackAxis
	StartOffset time.Duration
	Duration    time.Duration
	Intensity   types.IntensityLevel
	Args        []string
}

// timelineSpec is the on-disk YAML/JSON shape.
type timelineSpec struct {
	Program  string      `yaml:"program" json:"program"`
	Args     []string    `yaml:"args" json:"args"`
	Duration string      `yaml:"duration" json:"duration"`
	Tracks   []trackSpec `yaml:"tracks" json:"tracks"`
}

type trackSpec struct {
	Axis   string      `yaml:"axis" json:"axis"`
	Events []eventSpec `yaml:"events" json:"events"`
}

type eventSpec struct {
	ID        string   `yaml:"id" json:"id"`
	At        string   `yaml:"at" json:"at"`
	For       string   `yaml:"for" json:"for"`
	Intensity string   `yaml:"intensity" json:"intensity"`
	Args      []string `yaml:"args" json:"args"`
}

// LoadTimeline parses a timeline file. YAML and JSON are both accepted;
// the extension decides the parser.
func LoadTimeline(path string, defaultIntensity types.IntensityLevel) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading timeline %s: %w", path, err)
	}

	var spec timelineSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("parsing yaml timeline %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("parsing json timeline %s: %w", path, err)
		}
	}
	return buildPlan(spec, defaultIntensity)
}

func buildPlan(spec timelineSpec, defaultIntensity types.IntensityLevel) (*Plan, error) {
	if defaultIntensity == "" {
		defaultIntensity = types.IntensityMedium
	}
	plan := &Plan{Program: spec.Program, Args: spec.Args}

	if spec.Duration != "" {
		d, err := time.ParseDuration(spec.Duration)
		if err != nil {
			return nil, fmt.Errorf("timeline duration: %w", err)
		}
		plan.Duration = d
	}

	for _, track := range spec.Tracks {
		axis, ok := types.ParseAxis(track.Axis)
		if !ok {
			return nil, fmt.Errorf("unknown axis %q", track.Axis)
		}
		for i, ev := range track.Events {
			id := ev.ID
			if id == "" {
				id = fmt.Sprintf("%s-%d", axis, i+1)
			}
			at, err := time.ParseDuration(ev.At)
			if err != nil {
				return nil, fmt.Errorf("event %s at: %w", id, err)
			}
			dur, err := time.ParseDuration(ev.For)
			if err != nil {
				return nil, fmt.Errorf("event %s for: %w", id, err)
			}
			intensity := defaultIntensity
			if ev.Intensity != "" {
				parsed, ok := types.ParseIntensity(ev.Intensity)
				if !ok {
					return nil, fmt.Errorf("event %s: unknown intensity %q", id, ev.Intensity)
				}
				intensity = parsed
			}
			plan.Events = append(plan.Events, Event{
				ID:          id,
				Axis:        axis,
				StartOffset: at,
				Duration:    dur,
				Intensity:   intensity,
				Args:        ev.Args,
			})
		}
	}

	sort.Slice(plan.Events, func(i, j int) bool {
		if plan.Events[i].StartOffset != plan.Events[j].StartOffset {
			return plan.Events[i].StartOffset < plan.Events[j].StartOffset
		}
		return plan.Events[i].ID < plan.Events[j].ID
	})

	if err := checkOverlaps(plan.Events); err != nil {
		return nil, err
	}

	if plan.Duration == 0 {
		for _, ev := range plan.Events {
			if end := ev.StartOffset + ev.Duration; end > plan.Duration {
				plan.Duration = end
			}
		}
	}
	if plan.Duration == 0 {
		return nil, fmt.Errorf("timeline has no duration and no events")
	}
	return plan, nil
}

// checkOverlaps rejects plans that would run two stressors on the same
// axis at once: the orchestrator contract allows at most one per axis.
func checkOverlaps(events []Event) error {
	byAxis := make(map[types.AttackAxis][]Event)
	for _, ev := range events {
		byAxis[ev.Axis] = append(byAxis[ev.Axis], ev)
	}
	for axis, evs := range byAxis {
		for i := 1; i < len(evs); i++ {
			prev, cur := evs[i-1], evs[i]
			if prev.StartOffset+prev.Duration > cur.StartOffset {
				return fmt.Errorf("axis %s: events %s and %s overlap", axis, prev.ID, cur.ID)
			}
		}
	}
	return nil
}
