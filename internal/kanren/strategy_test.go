package kanren

import (
	"fmt"
	"testing"

	"github.com/hyperpolymath/panic-attacker/internal/types"
)

func statsFile(path string, lang types.Language, unsafe, panics, lines int) types.FileStatistics {
	return types.FileStatistics{
		Path: path, Language: lang, Lines: lines,
		UnsafeBlocks: unsafe, PanicSites: panics,
	}
}

func TestSelectStrategyDefault(t *testing.T) {
	report := &types.AssailReport{
		FileStatistics: []types.FileStatistics{statsFile("main.rs", types.LangRust, 0, 0, 100)},
	}
	if got := SelectStrategy(report, 1, false); got != StrategyDepthFirst {
		t.Fatalf("small quiet project should be depth-first, got %s", got)
	}
}

func TestSelectStrategyHighRisk(t *testing.T) {
	report := &types.AssailReport{
		WeakPoints: []types.WeakPoint{{
			Category: types.CategoryUnsafeCode,
			Location: types.Location{File: "a.rs"},
			Severity: types.SeverityCritical,
		}},
	}
	if got := SelectStrategy(report, 5, false); got != StrategyRiskWeighted {
		t.Fatalf("high-risk project should be risk-weighted, got %s", got)
	}
	if got := SelectStrategy(report, 5, true); got != StrategyBoundaryFirst {
		t.Fatalf("polyglot high-risk project should be boundary-first, got %s", got)
	}
}

func TestSelectStrategyLargeProject(t *testing.T) {
	report := &types.AssailReport{}
	if got := SelectStrategy(report, 500, false); got != StrategyBreadthFirst {
		t.Fatalf("large project should be breadth-first, got %s", got)
	}
}

func TestSelectStrategyPolyglotLowRisk(t *testing.T) {
	report := &types.AssailReport{}
	if got := SelectStrategy(report, 10, true); got != StrategyLanguageFamily {
		t.Fatalf("polyglot low-risk project should group by family, got %s", got)
	}
}

func TestRiskScoring(t *testing.T) {
	risk := scoreFile(statsFile("engine.rs", types.LangRust, 3, 2, 100), 0)
	// 3 unsafe * 3.0 + 2 panic * 2.5 = 14.0
	if diff := risk.RiskScore - 14.0; diff > 0.01 || diff < -0.01 {
		t.Fatalf("expected score 14.0, got %f", risk.RiskScore)
	}
}

func TestPrioritiseRiskWeighted(t *testing.T) {
	report := &types.AssailReport{
		FileStatistics: []types.FileStatistics{
			statsFile("safe.rs", types.LangRust, 0, 0, 100),
			statsFile("risky.rs", types.LangRust, 3, 2, 100),
			statsFile("moderate.rs", types.LangRust, 1, 0, 100),
		},
	}
	ordered := PrioritiseFiles(report, StrategyRiskWeighted, nil)
	want := []string{"risky.rs", "moderate.rs", "safe.rs"}
	for i, path := range want {
		if ordered[i].Path != path {
			t.Fatalf("position %d: want %s, got %s", i, path, ordered[i].Path)
		}
	}
}

func TestPrioritiseBoundaryBonus(t *testing.T) {
	report := &types.AssailReport{
		FileStatistics: []types.FileStatistics{
			statsFile("plain.rs", types.LangRust, 1, 0, 100),
			statsFile("bridge.rs", types.LangRust, 1, 0, 100),
		},
	}
	ordered := PrioritiseFiles(report, StrategyBoundaryFirst, map[string]bool{"bridge.rs": true})
	if ordered[0].Path != "bridge.rs" {
		t.Fatalf("boundary file should rank first, got %s", ordered[0].Path)
	}
}

func TestPrioritiseDeterministic(t *testing.T) {
	report := &types.AssailReport{}
	for i := 0; i < 20; i++ {
		report.FileStatistics = append(report.FileStatistics,
			statsFile(fmt.Sprintf("f%02d.py", i), types.LangPython, 0, 0, 50))
	}
	first := PrioritiseFiles(report, StrategyBreadthFirst, nil)
	second := PrioritiseFiles(report, StrategyBreadthFirst, nil)
	for i := range first {
		if first[i].Path != second[i].Path {
			t.Fatalf("ordering must be deterministic; diverged at %d", i)
		}
	}
}
