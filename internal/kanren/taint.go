package kanren

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperpolymath/panic-attacker/internal/assail"
	"github.com/hyperpolymath/panic-attacker/internal/logging"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// maxTaintConfidence caps the path-length confidence bonus.
const maxTaintConfidence = 0.95

// TaintVulnerability is a proven source-to-sink chain.
type TaintVulnerability struct {
	Var        string   `json:"var"`
	SourceKind string   `json:"source_kind"`
	SinkKind   string   `json:"sink_kind"`
	SinkLoc    string   `json:"sink_loc"`
	Path       []string `json:"path"`
	Confidence float64  `json:"confidence"`
}

// TaintAnalyzer derives taint chains over the relational database.
type TaintAnalyzer struct {
	logger *zap.Logger
}

// NewTaintAnalyzer builds a taint analyzer.
func NewTaintAnalyzer(logger *zap.Logger) *TaintAnalyzer {
	return &TaintAnalyzer{logger: logging.OrNop(logger).Named("taint")}
}

// scopedVar qualifies a variable name by its file so identical identifiers
// in different files stay distinct.
func scopedVar(file, name string) string {
	return file + "::" + name
}

func locAtom(file string, line int) string {
	return fmt.Sprintf("%s:%d", file, line)
}

// Ingest asserts source, sink, and data-flow facts for every file, then
// bridges variables across language boundaries: when two boundary files in
// different families mention the same variable name, data is assumed to
// flow through the boundary.
func (t *TaintAnalyzer) Ingest(db *FactDB, files []assail.FileFacts) {
	for _, file := range files {
		db.Assert(NewFact("file_lang", Atom(file.Path), Atom(file.Language.Family())))
		for _, src := range file.Sources {
			db.Assert(NewFact("source",
				Atom(scopedVar(file.Path, src.Var)), Atom(locAtom(file.Path, src.Line)), Atom(src.Kind)))
		}
		for _, sink := range file.Sinks {
			db.Assert(NewFact("sink",
				Atom(scopedVar(file.Path, sink.Var)), Atom(locAtom(file.Path, sink.Line)), Atom(sink.Kind)))
		}
		for _, flow := range file.Flows {
			db.Assert(NewFact("data_flow",
				Atom(scopedVar(file.Path, flow.From)),
				Atom(scopedVar(file.Path, flow.To)),
				Atom(locAtom(file.Path, flow.Line))))
		}
		for _, boundary := range file.Boundaries {
			db.Assert(NewFact("boundary",
				Atom(boundary.Kind), Atom(file.Language.Family()), Atom(locAtom(file.Path, boundary.Line))))
		}
	}

	t.bridgeBoundaries(db, files)
}

func (t *TaintAnalyzer) bridgeBoundaries(db *FactDB, files []assail.FileFacts) {
	for i := range files {
		for j := range files {
			if i == j {
				continue
			}
			from, to := files[i], files[j]
			if from.Language.Family() == to.Language.Family() {
				continue
			}
			if len(from.Boundaries) == 0 {
				continue
			}
			boundaryLoc := locAtom(from.Path, from.Boundaries[0].Line)
			fromVars := varNames(from)
			for name := range varNames(to) {
				if !fromVars[name] {
					continue
				}
				db.Assert(NewFact("data_flow",
					Atom(scopedVar(from.Path, name)),
					Atom(scopedVar(to.Path, name)),
					Atom(boundaryLoc)))
				t.logger.Debug("bridged variable across boundary",
					zap.String("var", name),
					zap.String("from", from.Path),
					zap.String("to", to.Path))
			}
		}
	}
}

func varNames(f assail.FileFacts) map[string]bool {
	names := make(map[string]bool)
	for _, s := range f.Sources {
		names[s.Var] = true
	}
	for _, s := range f.Sinks {
		names[s.Var] = true
	}
	for _, fl := range f.Flows {
		names[fl.From] = true
		names[fl.To] = true
	}
	return names
}

// taintState tracks the shortest proven path from a source to a variable.
type taintState struct {
	path       []string
	sourceKind string
}

// Analyze propagates taint to fixpoint and reports every chain that
// reaches a sink. Propagation accumulates location paths, which carry more
// structure than range-restricted rule heads allow, so the chain rule runs
// as a dedicated fixpoint; the resulting tainted facts land in the shared
// database for downstream rules.
func (t *TaintAnalyzer) Analyze(db *FactDB) []TaintVulnerability {
	tainted := make(map[string]taintState)
	for _, src := range db.Facts("source") {
		v, loc, kind := src.Args[0].Sym, src.Args[1].Sym, src.Args[2].Sym
		if _, ok := tainted[v]; !ok {
			tainted[v] = taintState{path: []string{loc}, sourceKind: kind}
		}
	}

	flows := db.Facts("data_flow")
	// The fact set is deduplicated, so cyclic flow graphs terminate: a
	// variable is only re-visited when a strictly shorter path appears.
	for changed := true; changed; {
		changed = false
		for _, flow := range flows {
			from, to, loc := flow.Args[0].Sym, flow.Args[1].Sym, flow.Args[2].Sym
			state, ok := tainted[from]
			if !ok {
				continue
			}
			candidate := append(append([]string{}, state.path...), loc)
			if existing, ok := tainted[to]; !ok || len(candidate) < len(existing.path) {
				tainted[to] = taintState{path: candidate, sourceKind: state.sourceKind}
				changed = true
			}
		}
	}

	for v := range tainted {
		db.Assert(NewFact("tainted", Atom(v)))
	}

	var vulns []TaintVulnerability
	for _, sink := range db.Facts("sink") {
		v, loc, kind := sink.Args[0].Sym, sink.Args[1].Sym, sink.Args[2].Sym
		state, ok := tainted[v]
		if !ok {
			continue
		}
		confidence := 0.5 + 0.1*float64(len(state.path))
		if confidence > maxTaintConfidence {
			confidence = maxTaintConfidence
		}
		db.Assert(NewFact("vulnerability", Atom("taint"), Atom(loc)))
		vulns = append(vulns, TaintVulnerability{
			Var:        v,
			SourceKind: state.sourceKind,
			SinkKind:   kind,
			SinkLoc:    loc,
			Path:       state.path,
			Confidence: confidence,
		})
	}

	sort.Slice(vulns, func(i, j int) bool {
		if vulns[i].Confidence != vulns[j].Confidence {
			return vulns[i].Confidence > vulns[j].Confidence
		}
		return vulns[i].SinkLoc < vulns[j].SinkLoc
	})
	t.logger.Debug("taint analysis complete",
		zap.Int("tainted_vars", len(tainted)),
		zap.Int("vulnerabilities", len(vulns)))
	return vulns
}

// WeakPoints converts taint chains into report findings.
func (t *TaintAnalyzer) WeakPoints(vulns []TaintVulnerability) []types.WeakPoint {
	points := make([]types.WeakPoint, 0, len(vulns))
	for _, v := range vulns {
		sev := types.SeverityMedium
		if v.Confidence >= 0.8 {
			sev = types.SeverityHigh
		}
		points = append(points, types.WeakPoint{
			Category:        types.CategoryTaintedSink,
			Location:        types.Location{File: v.SinkLoc},
			Severity:        sev,
			Description:     fmt.Sprintf("%s data reaches %s sink (confidence %.2f)", v.SourceKind, v.SinkKind, v.Confidence),
			RecommendedAxes: []types.AttackAxis{types.AxisNetwork, types.AxisCpu},
		})
	}
	return points
}
