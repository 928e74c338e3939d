// Package adjudicate merges heterogeneous campaign artifacts into a single
// verdict via a compact rule system over the relational engine.
package adjudicate

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperpolymath/panic-attacker/internal/abduct"
	"github.com/hyperpolymath/panic-attacker/internal/amuck"
	"github.com/hyperpolymath/panic-attacker/internal/audience"
	"github.com/hyperpolymath/panic-attacker/internal/config"
	"github.com/hyperpolymath/panic-attacker/internal/kanren"
	"github.com/hyperpolymath/panic-attacker/internal/logging"
	"github.com/hyperpolymath/panic-attacker/internal/report"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// taintFailConfidence is the confidence at or above which a detected bug
// signature counts as high confidence. Taint findings reach the fail
// verdict through their severity instead: the taint analyzer rates a chain
// high severity from confidence 0.8.
const taintFailConfidence = 0.8

// Totals is the deterministic numeric summary kept independent of rule
// evolution.
type Totals struct {
	AssaultReports       int `json:"assault_reports"`
	MutationReports      int `json:"mutation_reports"`
	IsolationReports     int `json:"isolation_reports"`
	AudienceReports      int `json:"audience_reports"`
	AudienceSignals      int `json:"audience_signals"`
	TotalCrashes         int `json:"total_crashes"`
	TotalSignatures      int `json:"total_signatures"`
	CriticalWeakPoints   int `json:"critical_weak_points"`
	HighWeakPoints       int `json:"high_weak_points"`
	FailedAttacks        int `json:"failed_attacks"`
	MutationApplyErrors  int `json:"mutation_apply_errors"`
	MutationExecFailures int `json:"mutation_exec_failures"`
	IsolationFailures    int `json:"isolation_failures"`
	IsolationTimeouts    int `json:"isolation_timeouts"`
}

// Result is the adjudicator's full output: verdict plus bookkeeping.
type Result struct {
	Verdict          types.Verdict `json:"verdict"`
	Totals           Totals        `json:"totals"`
	ProcessedReports int           `json:"processed_reports"`
	FailedReports    int           `json:"failed_reports"`
	Notes            []string      `json:"notes,omitempty"`
}

// Adjudicator aggregates artifacts and applies the verdict rules.
type Adjudicator struct {
	thresholds *config.Thresholds
	logger     *zap.Logger
}

// New builds an adjudicator; thresholds may be nil.
func New(thresholds *config.Thresholds, logger *zap.Logger) *Adjudicator {
	return &Adjudicator{thresholds: thresholds, logger: logging.OrNop(logger).Named("adjudicate")}
}

type parsedArtifact struct {
	assault   *types.AssaultReport
	mutation  *amuck.Report
	isolation *abduct.Report
	audience  *audience.Report
}

// Run parses every artifact path, normalises the contents into facts,
// chains the verdict rules, and ranks priorities.
func (a *Adjudicator) Run(paths []string, baseline *types.AssailReport) (*Result, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("provide at least one artifact path")
	}

	result := &Result{}
	db := kanren.NewFactDB()
	isolatedCovered := false

	for idx, path := range paths {
		id := fmt.Sprintf("artifact-%d", idx+1)
		parsed, err := parseArtifact(path)
		if err != nil {
			result.FailedReports++
			result.Notes = append(result.Notes, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		result.ProcessedReports++

		switch {
		case parsed.assault != nil:
			a.ingestAssault(db, id, parsed.assault, &result.Totals)
		case parsed.mutation != nil:
			a.ingestMutation(db, id, parsed.mutation, &result.Totals)
		case parsed.isolation != nil:
			isolatedCovered = true
			a.ingestIsolation(db, id, parsed.isolation, &result.Totals)
		case parsed.audience != nil:
			a.ingestAudience(db, id, parsed.audience, &result.Totals)
		}
	}
	if isolatedCovered {
		db.Assert(kanren.NewFact("isolation_covered", kanren.Atom("campaign")))
	}

	if baseline != nil {
		a.ingestBaseline(db, baseline, result.Totals)
	}
	a.applyThresholds(db, result.Totals)

	loadVerdictRules(db)
	_, applications := db.ForwardChain()

	status := types.VerdictPass
	if db.Count("campaign_fail") > 0 {
		status = types.VerdictFail
	} else if db.Count("campaign_warn") > 0 {
		status = types.VerdictWarn
	}

	result.Verdict = types.Verdict{
		SchemaVersion: types.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Status:        status,
		Priorities:    buildPriorities(result.Totals, applications),
		Rationale:     buildRationale(applications),
	}
	a.logger.Debug("adjudication complete",
		zap.String("status", string(status)),
		zap.Int("processed", result.ProcessedReports),
		zap.Int("failed", result.FailedReports))
	return result, nil
}

func parseArtifact(path string) (parsedArtifact, error) {
	// Envelope first: the kind tag routes to the right schema.
	data, err := os.ReadFile(path)
	if err != nil {
		return parsedArtifact{}, err
	}
	var envelope types.ArtifactEnvelope
	_ = json.Unmarshal(data, &envelope)

	switch envelope.Kind {
	case types.ArtifactMutation:
		var r amuck.Report
		if err := json.Unmarshal(data, &r); err == nil {
			return parsedArtifact{mutation: &r}, nil
		}
	case types.ArtifactIsolation:
		var r abduct.Report
		if err := json.Unmarshal(data, &r); err == nil {
			return parsedArtifact{isolation: &r}, nil
		}
	case types.ArtifactAudience:
		var r audience.Report
		if err := json.Unmarshal(data, &r); err == nil {
			return parsedArtifact{audience: &r}, nil
		}
	}

	// Untagged artifacts: try the most structured schema first.
	if assault, err := report.LoadAssault(path); err == nil {
		if len(assault.AttackResults) > 0 || assault.AssailReport.SchemaVersion != "" {
			return parsedArtifact{assault: assault}, nil
		}
	}
	var mutation amuck.Report
	if err := json.Unmarshal(data, &mutation); err == nil && len(mutation.Outcomes) > 0 {
		return parsedArtifact{mutation: &mutation}, nil
	}
	var isolation abduct.Report
	if err := json.Unmarshal(data, &isolation); err == nil && isolation.WorkspaceDir != "" {
		return parsedArtifact{isolation: &isolation}, nil
	}
	var observed audience.Report
	if err := json.Unmarshal(data, &observed); err == nil && observed.Language != "" && observed.SignalCounts != nil {
		return parsedArtifact{audience: &observed}, nil
	}
	return parsedArtifact{}, fmt.Errorf("unsupported artifact format")
}

func (a *Adjudicator) ingestAssault(db *kanren.FactDB, id string, assault *types.AssaultReport, totals *Totals) {
	totals.AssaultReports++
	totals.TotalCrashes += assault.TotalCrashes
	totals.TotalSignatures += assault.TotalSignatures

	db.Assert(kanren.NewFact("artifact", kanren.Atom(id)))
	for _, wp := range assault.AssailReport.WeakPoints {
		switch wp.Severity {
		case types.SeverityCritical:
			totals.CriticalWeakPoints++
			db.Assert(kanren.NewFact("critical_weak_point", kanren.Atom(id), kanren.Atom(wp.Location.File)))
		case types.SeverityHigh:
			totals.HighWeakPoints++
			db.Assert(kanren.NewFact("high_weak_point", kanren.Atom(id), kanren.Atom(wp.Location.File)))
		}
		if wp.Category == types.CategoryTaintedSink && wp.Severity >= types.SeverityHigh {
			db.Assert(kanren.NewFact("taint_vulnerability", kanren.Atom(id), kanren.Atom(wp.Location.File)))
		}
	}
	for _, attack := range assault.AttackResults {
		if attack.Skipped {
			continue
		}
		if len(attack.Crashes) > 0 {
			db.Assert(kanren.NewFact("crash", kanren.Atom(id), kanren.Atom(string(attack.Axis))))
			if attack.Axis == types.AxisMemory || attack.Axis == types.AxisConcurrency {
				db.Assert(kanren.NewFact("crash_critical_axis", kanren.Atom(id), kanren.Atom(string(attack.Axis))))
			}
		}
		if !attack.Success {
			totals.FailedAttacks++
		}
		for _, sig := range attack.SignaturesDetected {
			if sig.Confidence >= taintFailConfidence {
				db.Assert(kanren.NewFact("high_confidence_signature", kanren.Atom(id), kanren.Atom(string(sig.SignatureType))))
			}
		}
	}
}

func (a *Adjudicator) ingestMutation(db *kanren.FactDB, id string, mutation *amuck.Report, totals *Totals) {
	totals.MutationReports++
	db.Assert(kanren.NewFact("artifact", kanren.Atom(id)))
	survivors := 0
	for _, outcome := range mutation.Outcomes {
		if outcome.ApplyError != "" {
			totals.MutationApplyErrors++
		}
		if exe := outcome.Execution; exe != nil {
			if !exe.Success {
				totals.MutationExecFailures++
			} else {
				// A mutant the checker accepts survived.
				survivors++
			}
		}
	}
	if survivors > 0 {
		db.Assert(kanren.NewFact("mutation_survivors", kanren.Atom(id), kanren.Int(int64(survivors))))
	}
	if totals.MutationApplyErrors > 0 || totals.MutationExecFailures > 0 {
		db.Assert(kanren.NewFact("mutation_issue", kanren.Atom(id)))
	}
}

func (a *Adjudicator) ingestIsolation(db *kanren.FactDB, id string, isolation *abduct.Report, totals *Totals) {
	totals.IsolationReports++
	db.Assert(kanren.NewFact("artifact", kanren.Atom(id)))
	if exe := isolation.Execution; exe != nil {
		if exe.TimedOut {
			totals.IsolationTimeouts++
			// Delayed-trigger hunting treats isolation timeouts as high signal.
			db.Assert(kanren.NewFact("isolation_timeout", kanren.Atom(id)))
		}
		if !exe.Success && !exe.TimedOut {
			totals.IsolationFailures++
			db.Assert(kanren.NewFact("isolation_failure", kanren.Atom(id)))
		}
	}
}

func (a *Adjudicator) ingestAudience(db *kanren.FactDB, id string, observed *audience.Report, totals *Totals) {
	totals.AudienceReports++
	db.Assert(kanren.NewFact("artifact", kanren.Atom(id)))
	for name, count := range observed.SignalCounts {
		if count == 0 {
			continue
		}
		totals.AudienceSignals += count
		db.Assert(kanren.NewFact("audience_signal", kanren.Atom(id), kanren.Atom(name)))
		// Crash and timeout reactions carry the same weight as their
		// dynamic-run counterparts.
		switch name {
		case "crash_signal":
			db.Assert(kanren.NewFact("audience_crash", kanren.Atom(id)))
		case "timeout_signal", "abduct_timeout_signal":
			db.Assert(kanren.NewFact("audience_timeout", kanren.Atom(id)))
		}
	}
}

func (a *Adjudicator) ingestBaseline(db *kanren.FactDB, baseline *types.AssailReport, totals Totals) {
	baselineCritical := 0
	for _, wp := range baseline.WeakPoints {
		if wp.Severity == types.SeverityCritical {
			baselineCritical++
		}
	}
	if totals.CriticalWeakPoints > baselineCritical {
		db.Assert(kanren.NewFact("regression", kanren.Atom("critical_weak_points")))
	}
}

func (a *Adjudicator) applyThresholds(db *kanren.FactDB, totals Totals) {
	t := a.thresholds
	if t == nil {
		return
	}
	if t.MaxWeakPoints > 0 && totals.CriticalWeakPoints+totals.HighWeakPoints > t.MaxWeakPoints {
		db.Assert(kanren.NewFact("threshold_exceeded", kanren.Atom("max_weak_points")))
	}
	if t.MaxSeverity > types.SeverityInfo && t.MaxSeverity < types.SeverityCritical && totals.CriticalWeakPoints > 0 {
		db.Assert(kanren.NewFact("threshold_exceeded", kanren.Atom("max_severity")))
	}
	if t.MaxSeverity > types.SeverityInfo && t.MaxSeverity < types.SeverityHigh && totals.HighWeakPoints > 0 {
		db.Assert(kanren.NewFact("threshold_exceeded", kanren.Atom("max_severity")))
	}
}

func buildPriorities(totals Totals, applications []kanren.RuleApplication) []string {
	type ranked struct {
		score   float64
		message string
	}
	var items []ranked
	if totals.TotalCrashes > 0 {
		items = append(items, ranked{10, fmt.Sprintf("%d crashes detected across assault artifacts", totals.TotalCrashes)})
	}
	if totals.CriticalWeakPoints > 0 {
		items = append(items, ranked{9, fmt.Sprintf("%d critical weak points in static results", totals.CriticalWeakPoints)})
	}
	if totals.IsolationTimeouts > 0 {
		items = append(items, ranked{8, fmt.Sprintf("%d isolation execution timeouts observed", totals.IsolationTimeouts)})
	}
	if totals.FailedAttacks > 0 {
		items = append(items, ranked{5, fmt.Sprintf("%d failed attack executions need review", totals.FailedAttacks)})
	}
	if totals.MutationApplyErrors > 0 || totals.MutationExecFailures > 0 {
		items = append(items, ranked{4, fmt.Sprintf("mutation runs produced %d apply errors and %d execution failures",
			totals.MutationApplyErrors, totals.MutationExecFailures)})
	}
	if totals.AudienceSignals > 0 {
		items = append(items, ranked{3, fmt.Sprintf("%d reaction signals observed across audience sessions", totals.AudienceSignals)})
	}
	for _, app := range applications {
		items = append(items, ranked{app.Confidence * float64(app.Priority) / 10, fmt.Sprintf("rule %s fired (%d derivations)", app.Name, app.Derived)})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].score > items[j].score })

	out := make([]string, 0, len(items))
	seen := make(map[string]bool)
	for _, item := range items {
		if !seen[item.message] {
			seen[item.message] = true
			out = append(out, item.message)
		}
	}
	return out
}

func buildRationale(applications []kanren.RuleApplication) []string {
	var rationale []string
	for _, app := range applications {
		rationale = append(rationale, fmt.Sprintf(
			"%s derived %d facts (confidence %.2f)", app.Name, app.Derived, app.Confidence))
	}
	if len(rationale) == 0 {
		rationale = append(rationale, "no verdict rules fired; campaign passes by default")
	}
	sort.Strings(rationale)
	return rationale
}
