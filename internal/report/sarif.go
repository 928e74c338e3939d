package report

import (
	"encoding/json"
	"sort"

	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// SARIF 2.1.0 output for security-dashboard integration.
const (
	sarifSchema  = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json"
	sarifVersion = "2.1.0"
	toolName     = "panic-attack"
	toolInfoURI  = "https://github.com/hyperpolymath/panic-attacker"
)

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	ShortDescription sarifMessage `json:"shortDescription"`
	DefaultConfig    sarifLevel   `json:"defaultConfiguration"`
}

type sarifLevel struct {
	Level string `json:"level"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

// sarifRuleIDs maps categories to stable rule identifiers.
var sarifRuleIDs = map[types.WeakPointCategory]string{
	types.CategoryUncheckedAllocation:   "PA001",
	types.CategoryUnboundedLoop:         "PA002",
	types.CategoryBlockingIO:            "PA003",
	types.CategoryUnsafeCode:            "PA004",
	types.CategoryPanicPath:             "PA005",
	types.CategoryRaceCondition:         "PA006",
	types.CategoryDeadlockPotential:     "PA007",
	types.CategoryResourceLeak:          "PA008",
	types.CategoryCommandInjection:      "PA009",
	types.CategoryUnsafeDeserialization: "PA010",
	types.CategoryDynamicCodeExecution:  "PA011",
	types.CategoryUnsafeFFI:             "PA012",
	types.CategoryAtomExhaustion:        "PA013",
	types.CategoryPathTraversal:         "PA014",
	types.CategoryHardcodedSecret:       "PA015",
	types.CategoryTaintedInput:          "PA016",
	types.CategoryTaintedSink:           "PA017",
	types.CategoryUnwrapOrSafe:          "PA018",
}

func sarifLevelFor(sev types.Severity) string {
	switch {
	case sev >= types.SeverityHigh:
		return "error"
	case sev == types.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}

func marshalSARIF(assail *types.AssailReport) ([]byte, error) {
	rulesSeen := make(map[string]sarifRule)
	results := make([]sarifResult, 0, len(assail.WeakPoints))

	for _, wp := range assail.WeakPoints {
		id, ok := sarifRuleIDs[wp.Category]
		if !ok {
			id = "PA000"
		}
		rulesSeen[id] = sarifRule{
			ID:               id,
			Name:             string(wp.Category),
			ShortDescription: sarifMessage{Text: string(wp.Category)},
			DefaultConfig:    sarifLevel{Level: sarifLevelFor(wp.Severity)},
		}

		loc := sarifLocation{
			PhysicalLocation: sarifPhysicalLocation{
				ArtifactLocation: sarifArtifactLocation{URI: wp.Location.File},
			},
		}
		if wp.Location.Line > 0 {
			loc.PhysicalLocation.Region = &sarifRegion{StartLine: wp.Location.Line}
		}
		results = append(results, sarifResult{
			RuleID:    id,
			Level:     sarifLevelFor(wp.Severity),
			Message:   sarifMessage{Text: wp.Description},
			Locations: []sarifLocation{loc},
		})
	}

	rules := make([]sarifRule, 0, len(rulesSeen))
	for _, rule := range rulesSeen {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	log := sarifLog{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:           toolName,
				Version:        types.SchemaVersion,
				InformationURI: toolInfoURI,
				Rules:          rules,
			}},
			Results: results,
		}},
	}
	return json.MarshalIndent(log, "", "  ")
}
