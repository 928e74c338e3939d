package kanren

import (
	"sort"

	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// SearchStrategy orders files for analysis and display.
type SearchStrategy string

const (
	StrategyRiskWeighted   SearchStrategy = "risk-weighted"
	StrategyBoundaryFirst  SearchStrategy = "boundary-first"
	StrategyLanguageFamily SearchStrategy = "language-family"
	StrategyBreadthFirst   SearchStrategy = "breadth-first"
	StrategyDepthFirst     SearchStrategy = "depth-first"
)

// strategyPrecedence resolves multiple derivable strategies: the most
// specific wins.
var strategyPrecedence = []SearchStrategy{
	StrategyBoundaryFirst,
	StrategyRiskWeighted,
	StrategyBreadthFirst,
	StrategyLanguageFamily,
	StrategyDepthFirst,
}

// largeProjectFiles is the file count above which a project counts as large.
const largeProjectFiles = 100

// SelectStrategy derives the preferred strategy from project
// characteristics via a backward query: the report is translated into
// facts, strategy rules are loaded, and preferred_strategy(S) is proven.
func SelectStrategy(report *types.AssailReport, files int, boundaries bool) SearchStrategy {
	db := NewFactDB()
	if boundaries {
		db.Assert(NewFact("has_cross_language_boundaries", Atom("project")))
	}
	if files > largeProjectFiles {
		db.Assert(NewFact("is_large_project", Atom("project")))
	}
	for _, wp := range report.WeakPoints {
		if wp.Severity >= types.SeverityHigh {
			db.Assert(NewFact("has_high_risk_category", Atom("project")))
			break
		}
	}

	p := Var("P")
	db.MustAddRule(Rule{
		Name: "prefer_boundary_first",
		Head: Pred("preferred_strategy", Atom(string(StrategyBoundaryFirst)), p),
		Body: []BodyItem{
			Body(Pred("has_cross_language_boundaries", p)),
			Body(Pred("has_high_risk_category", p)),
		},
		Confidence: 0.9,
	})
	db.MustAddRule(Rule{
		Name:       "prefer_risk_weighted",
		Head:       Pred("preferred_strategy", Atom(string(StrategyRiskWeighted)), p),
		Body:       []BodyItem{Body(Pred("has_high_risk_category", p))},
		Confidence: 0.8,
	})
	db.MustAddRule(Rule{
		Name:       "prefer_breadth_first",
		Head:       Pred("preferred_strategy", Atom(string(StrategyBreadthFirst)), p),
		Body:       []BodyItem{Body(Pred("is_large_project", p))},
		Confidence: 0.7,
	})
	db.MustAddRule(Rule{
		Name:       "prefer_language_family",
		Head:       Pred("preferred_strategy", Atom(string(StrategyLanguageFamily)), p),
		Body:       []BodyItem{Body(Pred("has_cross_language_boundaries", p))},
		Confidence: 0.6,
	})

	derivable := make(map[SearchStrategy]bool)
	s := Var("S")
	for _, subst := range db.Query(Pred("preferred_strategy", s, Atom("project"))) {
		if term, ok := subst.Lookup("S"); ok && term.Kind == KindAtom {
			derivable[SearchStrategy(term.Sym)] = true
		}
	}
	for _, strategy := range strategyPrecedence {
		if derivable[strategy] {
			return strategy
		}
	}
	return StrategyDepthFirst
}

// FileRisk scores one file for prioritisation.
type FileRisk struct {
	Path      string
	Language  types.Language
	RiskScore float64
	Lines     int
}

// riskWeights are the per-counter weights of the linear risk model; the
// model is intentionally explainable, not a black box.
const (
	weightUnsafe    = 3.0
	weightPanic     = 2.5
	weightThreading = 2.0
	weightIO        = 1.5
	weightUnwrap    = 1.0
	weightAlloc     = 1.0
	weightSize      = 0.5
)

func scoreFile(fs types.FileStatistics, boundaryBonus float64) FileRisk {
	score := weightUnsafe*float64(fs.UnsafeBlocks) +
		weightPanic*float64(fs.PanicSites) +
		weightThreading*float64(fs.ThreadingConstructs) +
		weightIO*float64(fs.IOOperations) +
		weightUnwrap*float64(fs.UnwrapCalls) +
		weightAlloc*float64(fs.AllocationSites)
	if fs.Lines > 500 {
		sizeFactor := float64(fs.Lines) / 500.0
		if sizeFactor > 5.0 {
			sizeFactor = 5.0
		}
		score += weightSize * sizeFactor
	}
	score += boundaryBonus
	return FileRisk{Path: fs.Path, Language: fs.Language, RiskScore: score, Lines: fs.Lines}
}

// PrioritiseFiles orders the report's files under the given strategy.
// Every ordering is deterministic: ties break on path ascending.
func PrioritiseFiles(report *types.AssailReport, strategy SearchStrategy, boundaryFiles map[string]bool) []FileRisk {
	scored := make([]FileRisk, 0, len(report.FileStatistics))
	for _, fs := range report.FileStatistics {
		bonus := 0.0
		if boundaryFiles[fs.Path] {
			bonus = 5.0
		}
		scored = append(scored, scoreFile(fs, bonus))
	}

	switch strategy {
	case StrategyRiskWeighted, StrategyBoundaryFirst:
		sort.Slice(scored, func(i, j int) bool {
			if scored[i].RiskScore != scored[j].RiskScore {
				return scored[i].RiskScore > scored[j].RiskScore
			}
			return scored[i].Path < scored[j].Path
		})
	case StrategyLanguageFamily:
		sort.Slice(scored, func(i, j int) bool {
			fi, fj := scored[i].Language.Family(), scored[j].Language.Family()
			if fi != fj {
				return fi < fj
			}
			if scored[i].RiskScore != scored[j].RiskScore {
				return scored[i].RiskScore > scored[j].RiskScore
			}
			return scored[i].Path < scored[j].Path
		})
	case StrategyBreadthFirst:
		sort.Slice(scored, func(i, j int) bool {
			if scored[i].Lines != scored[j].Lines {
				return scored[i].Lines < scored[j].Lines
			}
			return scored[i].Path < scored[j].Path
		})
	default: // depth-first targets the largest files first
		sort.Slice(scored, func(i, j int) bool {
			if scored[i].Lines != scored[j].Lines {
				return scored[i].Lines > scored[j].Lines
			}
			return scored[i].Path < scored[j].Path
		})
	}
	return scored
}
