package adjudicate

import "github.com/hyperpolymath/panic-attacker/internal/kanren"

// loadVerdictRules installs the compact verdict catalogue:
//
//	fail <= critical weak point not covered by an isolation artifact
//	fail <= crash under memory or concurrency axes
//	fail <= taint vulnerability at high confidence
//	fail <= crash signature detected at high confidence
//	fail <= configured threshold exceeded
//	fail <= isolation execution timed out
//	fail <= crash reaction observed by an audience session
//	warn <= high-severity weak points without crashes
//	warn <= regression against the provided baseline
//	warn <= mutation issues, isolation failures, or audience signals
func loadVerdictRules(db *kanren.FactDB) {
	r := kanren.Var("R")
	x := kanren.Var("X")

	db.MustAddRule(kanren.Rule{
		Name: "fail_on_uncovered_critical",
		Head: kanren.Pred("campaign_fail", kanren.Atom("uncovered-critical")),
		Body: []kanren.BodyItem{
			kanren.Body(kanren.Pred("critical_weak_point", r, x)),
			kanren.Not(kanren.Pred("isolation_covered", kanren.Atom("campaign"))),
		},
		Confidence: 0.95,
		Priority:   100,
	})
	db.MustAddRule(kanren.Rule{
		Name: "fail_on_critical_axis_crash",
		Head: kanren.Pred("campaign_fail", kanren.Atom("crash-critical-axis")),
		Body: []kanren.BodyItem{
			kanren.Body(kanren.Pred("crash_critical_axis", r, x)),
		},
		Confidence: 0.95,
		Priority:   100,
	})
	db.MustAddRule(kanren.Rule{
		Name: "fail_on_taint_vulnerability",
		Head: kanren.Pred("campaign_fail", kanren.Atom("taint")),
		Body: []kanren.BodyItem{
			kanren.Body(kanren.Pred("taint_vulnerability", r, x)),
		},
		Confidence: 0.9,
		Priority:   95,
	})
	db.MustAddRule(kanren.Rule{
		Name: "fail_on_high_confidence_signature",
		Head: kanren.Pred("campaign_fail", kanren.Atom("signature")),
		Body: []kanren.BodyItem{
			kanren.Body(kanren.Pred("high_confidence_signature", r, x)),
		},
		Confidence: 0.9,
		Priority:   95,
	})
	db.MustAddRule(kanren.Rule{
		Name: "fail_on_threshold",
		Head: kanren.Pred("campaign_fail", kanren.Atom("threshold")),
		Body: []kanren.BodyItem{
			kanren.Body(kanren.Pred("threshold_exceeded", x)),
		},
		Confidence: 1.0,
		Priority:   100,
	})

	db.MustAddRule(kanren.Rule{
		Name: "warn_on_high_without_crash",
		Head: kanren.Pred("campaign_warn", kanren.Atom("high-weak-points")),
		Body: []kanren.BodyItem{
			kanren.Body(kanren.Pred("high_weak_point", r, x)),
			kanren.Not(kanren.Pred("crash", r, kanren.Var("Axis"))),
		},
		Confidence: 0.8,
		Priority:   60,
	})
	db.MustAddRule(kanren.Rule{
		Name: "warn_on_regression",
		Head: kanren.Pred("campaign_warn", kanren.Atom("regression")),
		Body: []kanren.BodyItem{
			kanren.Body(kanren.Pred("regression", x)),
		},
		Confidence: 0.85,
		Priority:   70,
	})
	db.MustAddRule(kanren.Rule{
		Name: "warn_on_mutation_issue",
		Head: kanren.Pred("campaign_warn", kanren.Atom("mutation")),
		Body: []kanren.BodyItem{
			kanren.Body(kanren.Pred("mutation_issue", r)),
		},
		Confidence: 0.75,
		Priority:   50,
	})
	db.MustAddRule(kanren.Rule{
		Name: "warn_on_isolation_failure",
		Head: kanren.Pred("campaign_warn", kanren.Atom("isolation")),
		Body: []kanren.BodyItem{
			kanren.Body(kanren.Pred("isolation_failure", r)),
		},
		Confidence: 0.75,
		Priority:   55,
	})
	db.MustAddRule(kanren.Rule{
		Name: "fail_on_audience_crash",
		Head: kanren.Pred("campaign_fail", kanren.Atom("audience-crash")),
		Body: []kanren.BodyItem{
			kanren.Body(kanren.Pred("audience_crash", r)),
		},
		Confidence: 0.85,
		Priority:   90,
	})
	db.MustAddRule(kanren.Rule{
		Name: "warn_on_audience_signal",
		Head: kanren.Pred("campaign_warn", kanren.Atom("audience")),
		Body: []kanren.BodyItem{
			kanren.Body(kanren.Pred("audience_signal", r, x)),
			kanren.Not(kanren.Pred("audience_crash", r)),
		},
		Confidence: 0.7,
		Priority:   45,
	})
	db.MustAddRule(kanren.Rule{
		Name: "fail_on_isolation_timeout",
		Head: kanren.Pred("campaign_fail", kanren.Atom("isolation-timeout")),
		Body: []kanren.BodyItem{
			kanren.Body(kanren.Pred("isolation_timeout", r)),
		},
		Confidence: 0.85,
		Priority:   90,
	})
}

// ErrorHandlingLevel infers the 0-3 error-handling maturity from static
// statistics: defensive unwrap variants against panic-capable ones.
func ErrorHandlingLevel(unwrapCalls, safeVariants int) int {
	switch {
	case unwrapCalls == 0 && safeVariants > 0:
		return 3
	case safeVariants >= unwrapCalls && safeVariants > 0:
		return 2
	case safeVariants > 0:
		return 1
	default:
		return 0
	}
}
