package kanren

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperpolymath/panic-attacker/internal/assail"
	"github.com/hyperpolymath/panic-attacker/internal/logging"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// CrossBoundaryRisk is a security-relevant interaction between two
// language families.
type CrossBoundaryRisk struct {
	FromFamily string         `json:"from_family"`
	ToFamily   string         `json:"to_family"`
	Mechanism  string         `json:"mechanism"`
	Location   string         `json:"location"`
	Severity   types.Severity `json:"severity"`
}

// CrossLangAnalyzer detects risky language-boundary interactions.
type CrossLangAnalyzer struct {
	logger *zap.Logger
}

// NewCrossLangAnalyzer builds a cross-language analyzer.
func NewCrossLangAnalyzer(logger *zap.Logger) *CrossLangAnalyzer {
	return &CrossLangAnalyzer{logger: logging.OrNop(logger).Named("crosslang")}
}

// Analyze pairs boundary files across families and scores each boundary.
// Severity is elevated when a dynamic language faces a systems language,
// and again when tainted data intersects the boundary file.
func (c *CrossLangAnalyzer) Analyze(db *FactDB, files []assail.FileFacts) []CrossBoundaryRisk {
	byFamily := make(map[string][]assail.FileFacts)
	for _, f := range files {
		byFamily[f.Language.Family()] = append(byFamily[f.Language.Family()], f)
	}
	families := make([]string, 0, len(byFamily))
	for fam := range byFamily {
		families = append(families, fam)
	}
	sort.Strings(families)

	taintedFiles := c.taintedFiles(db)

	var risks []CrossBoundaryRisk
	seen := make(map[string]bool)
	for _, fromFam := range families {
		for _, toFam := range families {
			if fromFam == toFam {
				continue
			}
			for _, from := range byFamily[fromFam] {
				if len(from.Boundaries) == 0 {
					continue
				}
				if len(byFamily[toFam]) == 0 {
					continue
				}
				for _, boundary := range from.Boundaries {
					key := fmt.Sprintf("%s|%s|%s|%d", fromFam, toFam, from.Path, boundary.Line)
					if seen[key] {
						continue
					}
					seen[key] = true

					sev := types.SeverityMedium
					dynamicToSystems := (isDynamicFamily(fromFam) && toFam == "systems") ||
						(fromFam == "systems" && isDynamicFamily(toFam))
					if dynamicToSystems {
						sev = types.SeverityHigh
					}
					if taintedFiles[from.Path] {
						sev = types.SeverityCritical
					}

					loc := locAtom(from.Path, boundary.Line)
					db.Assert(NewFact("cross_boundary_risk",
						Atom(fromFam), Atom(toFam), Atom(loc), Atom(sev.String())))
					risks = append(risks, CrossBoundaryRisk{
						FromFamily: fromFam,
						ToFamily:   toFam,
						Mechanism:  boundary.Kind,
						Location:   loc,
						Severity:   sev,
					})
				}
			}
		}
	}

	sort.Slice(risks, func(i, j int) bool {
		if risks[i].Severity != risks[j].Severity {
			return risks[i].Severity > risks[j].Severity
		}
		return risks[i].Location < risks[j].Location
	})
	c.logger.Debug("cross-language analysis complete", zap.Int("risks", len(risks)))
	return risks
}

// taintedFiles maps file paths whose variables carry taint.
func (c *CrossLangAnalyzer) taintedFiles(db *FactDB) map[string]bool {
	out := make(map[string]bool)
	for _, fact := range db.Facts("tainted") {
		v := fact.Args[0].Sym
		for i := 0; i < len(v)-1; i++ {
			if v[i] == ':' && v[i+1] == ':' {
				out[v[:i]] = true
				break
			}
		}
	}
	return out
}

func isDynamicFamily(family string) bool {
	return family == "scripting" || family == "lisp"
}

// WeakPoints converts boundary risks into report findings.
func (c *CrossLangAnalyzer) WeakPoints(risks []CrossBoundaryRisk) []types.WeakPoint {
	points := make([]types.WeakPoint, 0, len(risks))
	for _, r := range risks {
		points = append(points, types.WeakPoint{
			Category:        types.CategoryUnsafeFFI,
			Location:        types.Location{File: r.Location},
			Severity:        r.Severity,
			Description:     fmt.Sprintf("%s boundary from %s to %s", r.Mechanism, r.FromFamily, r.ToFamily),
			RecommendedAxes: []types.AttackAxis{types.AxisMemory, types.AxisConcurrency},
		})
	}
	return points
}
