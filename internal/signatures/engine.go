// Package signatures infers named bug signatures from crash evidence using
// the relational engine: stderr is parsed into facts, signature rules are
// chained forward, and derived facts become confidence-scored signatures.
package signatures

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperpolymath/panic-attacker/internal/kanren"
	"github.com/hyperpolymath/panic-attacker/internal/logging"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// Engine detects bug signatures from crash reports.
type Engine struct {
	logger *zap.Logger
}

// NewEngine builds a signature engine.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logging.OrNop(logger).Named("signatures")}
}

// Structured evidence lines like "free of buf at 100" or
// "use of buf at line 150" are parsed into located facts; sanitizer and
// runtime output commonly carries this shape.
var evidenceRes = []struct {
	relation string
	re       *regexp.Regexp
}{
	{"alloc", regexp.MustCompile(`(?i)\balloc(?:ation)?\s+(?:of\s+)?([\w.]+|0x[0-9a-fA-F]+)\s+at\s+(?:line\s+)?(\d+)`)},
	{"free", regexp.MustCompile(`(?i)\bfreed?\s+(?:of\s+)?([\w.]+|0x[0-9a-fA-F]+)\s+at\s+(?:line\s+)?(\d+)`)},
	{"use", regexp.MustCompile(`(?i)\b(?:use|access(?:ed)?)\s+(?:of\s+)?([\w.]+|0x[0-9a-fA-F]+)\s+at\s+(?:line\s+)?(\d+)`)},
	{"write", regexp.MustCompile(`(?i)\bwrite\s+(?:to\s+)?([\w.]+|0x[0-9a-fA-F]+)\s+at\s+(?:line\s+)?(\d+)`)},
	{"read", regexp.MustCompile(`(?i)\bread\s+(?:of|from)?\s*([\w.]+|0x[0-9a-fA-F]+)\s+at\s+(?:line\s+)?(\d+)`)},
	{"lock", regexp.MustCompile(`(?i)\block(?:ed)?\s+([\w.]+)\s+at\s+(?:line\s+)?(\d+)`)},
}

var (
	threadEvidenceRe = regexp.MustCompile(`(?i)\b(thread|goroutine|spawn)\b`)
	stackFrameRe     = regexp.MustCompile(`(?m)^\s*(?:#\d+\s+|at\s+)([\w:.<>]+)\s+\(?([\w./-]+:\d+)\)?`)
)

// ExtractFacts parses a crash report into a fresh fact database.
func (e *Engine) ExtractFacts(crash types.CrashReport) *kanren.FactDB {
	db := kanren.NewFactDB()
	stderr := crash.Stderr

	if crash.Signal != "" {
		db.Assert(kanren.NewFact("signal", kanren.Atom(crash.Signal)))
	}
	for i, line := range strings.Split(stderr, "\n") {
		if strings.Contains(strings.ToLower(line), "error") {
			db.Assert(kanren.NewFact("error_line", kanren.Int(int64(i+1))))
		}
	}
	for _, m := range stackFrameRe.FindAllStringSubmatch(crash.Backtrace+"\n"+stderr, -1) {
		db.Assert(kanren.NewFact("stack_frame", kanren.Atom(m[1]), kanren.Atom(m[2])))
	}

	var locs []int64
	for _, ev := range evidenceRes {
		for _, m := range ev.re.FindAllStringSubmatch(stderr, -1) {
			loc, err := strconv.ParseInt(m[2], 10, 64)
			if err != nil {
				continue
			}
			db.Assert(kanren.NewFact(ev.relation, kanren.Atom(m[1]), kanren.Int(loc)))
			locs = append(locs, loc)
		}
	}

	// Observed location order is program order for single-threaded
	// evidence; with thread evidence present, distinct locations are also
	// potentially concurrent unless synchronisation was reported.
	sort.Slice(locs, func(i, j int) bool { return locs[i] < locs[j] })
	for i := 0; i < len(locs); i++ {
		for j := i + 1; j < len(locs); j++ {
			if locs[i] == locs[j] {
				continue
			}
			db.Assert(kanren.NewFact("ordering", kanren.Int(locs[i]), kanren.Int(locs[j])))
		}
	}
	if threadEvidenceRe.MatchString(stderr) {
		for i := 0; i < len(locs); i++ {
			for j := 0; j < len(locs); j++ {
				if locs[i] != locs[j] {
					db.Assert(kanren.NewFact("concurrent", kanren.Int(locs[i]), kanren.Int(locs[j])))
				}
			}
		}
		if regexp.MustCompile(`(?i)\b(mutex|synchroni[sz]ed|atomic)\b`).MatchString(stderr) {
			for i := 0; i < len(locs); i++ {
				for j := 0; j < len(locs); j++ {
					if locs[i] != locs[j] {
						db.Assert(kanren.NewFact("synchronized", kanren.Int(locs[i]), kanren.Int(locs[j])))
					}
				}
			}
		}
	}

	return db
}

// Detect runs fact extraction, chains the signature rules, and merges in
// the lexical stderr heuristics. Output is deduplicated per signature type
// (highest confidence wins) and sorted by confidence descending.
func (e *Engine) Detect(crash types.CrashReport) []types.BugSignature {
	db := e.ExtractFacts(crash)
	loadSignatureRules(db)
	derived, _ := db.ForwardChain()
	e.logger.Debug("signature inference", zap.Int("derived", derived), zap.Int("facts", db.Len()))

	var sigs []types.BugSignature
	sigs = append(sigs, e.ruleSignatures(db)...)
	sigs = append(sigs, e.lexicalSignatures(crash, db)...)
	return dedupe(sigs)
}

func (e *Engine) ruleSignatures(db *kanren.FactDB) []types.BugSignature {
	var sigs []types.BugSignature

	for _, f := range db.Facts("use_after_free") {
		v, freeLoc, useLoc := f.Args[0].Sym, f.Args[1].Int, f.Args[2].Int
		sigs = append(sigs, types.BugSignature{
			SignatureType: types.SigUseAfterFree,
			Confidence:    0.85,
			Evidence: []string{
				fmt.Sprintf("free of %s at %d", v, freeLoc),
				fmt.Sprintf("use of %s at %d", v, useLoc),
				"temporal ordering violation",
			},
			Location: fmt.Sprintf("location %d", useLoc),
		})
	}
	for _, f := range db.Facts("double_free") {
		v, l1, l2 := f.Args[0].Sym, f.Args[1].Int, f.Args[2].Int
		sigs = append(sigs, types.BugSignature{
			SignatureType: types.SigDoubleFree,
			Confidence:    0.9,
			Evidence: []string{
				fmt.Sprintf("%s freed at %d and again at %d", v, l1, l2),
			},
			Location: fmt.Sprintf("location %d", l2),
		})
	}
	for _, f := range db.Facts("deadlock") {
		m1, m2 := f.Args[0].Sym, f.Args[1].Sym
		sigs = append(sigs, types.BugSignature{
			SignatureType: types.SigDeadlock,
			Confidence:    0.7,
			Evidence: []string{
				fmt.Sprintf("reversed lock order between %s and %s", m1, m2),
			},
		})
	}
	for _, f := range db.Facts("data_race") {
		v, l1, l2 := f.Args[0].Sym, f.Args[1].Int, f.Args[2].Int
		sigs = append(sigs, types.BugSignature{
			SignatureType: types.SigDataRace,
			Confidence:    0.65,
			Evidence: []string{
				fmt.Sprintf("unsynchronised write at %d and read at %d of %s", l1, l2, v),
			},
		})
	}
	for _, f := range db.Facts("memory_leak") {
		v := f.Args[0].Sym
		sigs = append(sigs, types.BugSignature{
			SignatureType: types.SigMemoryLeak,
			Confidence:    0.6,
			Evidence:      []string{fmt.Sprintf("allocation of %s with no matching free", v)},
		})
	}

	// Corroboration: extra supporting facts raise confidence slightly.
	factCount := db.Len()
	for i := range sigs {
		bonus := 0.01 * float64(factCount)
		if bonus > 0.1 {
			bonus = 0.1
		}
		if sigs[i].Confidence+bonus <= 0.98 {
			sigs[i].Confidence += bonus
		}
	}
	return sigs
}

// lexicalPatterns match direct mentions in crash text: a sanitizer naming
// the bug outright is the strongest evidence available.
var lexicalPatterns = []struct {
	sigType types.SignatureType
	re      *regexp.Regexp
	note    string
}{
	{types.SigUseAfterFree, regexp.MustCompile(`(?i)use.after.free|heap-use-after-free`), "direct mention in error output"},
	{types.SigDoubleFree, regexp.MustCompile(`(?i)double.free|freed twice`), "direct mention in error output"},
	{types.SigDataRace, regexp.MustCompile(`(?i)data race|race condition|ThreadSanitizer`), "race reported by runtime or sanitizer"},
	{types.SigDeadlock, regexp.MustCompile(`(?i)deadlock|all goroutines are asleep`), "deadlock reported by runtime"},
	{types.SigBufferOverflow, regexp.MustCompile(`(?i)buffer overflow|stack smashing|heap corruption|AddressSanitizer|index out of (range|bounds)`), "bounds violation reported"},
	{types.SigIntegerOverflow, regexp.MustCompile(`(?i)integer overflow|attempt to (add|subtract|multiply) with overflow`), "arithmetic overflow reported"},
	{types.SigNullDereference, regexp.MustCompile(`(?i)null pointer|nullptr|nil pointer dereference|address 0x0`), "null dereference reported"},
	{types.SigUnhandledError, regexp.MustCompile(`(?i)panicked at|unhandled (exception|error)|uncaught exception|RuntimeError`), "unhandled failure reported"},
}

var oomRe = regexp.MustCompile(`(?i)out of memory|oom-?kill|cannot allocate memory|allocation fail`)

func (e *Engine) lexicalSignatures(crash types.CrashReport, db *kanren.FactDB) []types.BugSignature {
	var sigs []types.BugSignature
	text := crash.Stderr + "\n" + crash.Stdout

	for _, p := range lexicalPatterns {
		if p.re.MatchString(text) {
			sigs = append(sigs, types.BugSignature{
				SignatureType: p.sigType,
				Confidence:    0.95,
				Evidence:      []string{p.note},
			})
		}
	}

	if crash.Signal == "SIGSEGV" {
		sigs = append(sigs, types.BugSignature{
			SignatureType: types.SigNullDereference,
			Confidence:    0.9,
			Evidence:      []string{"SIGSEGV received"},
		})
	}

	// Memory leak needs the OOM signal set with no balancing free fact.
	if oomRe.MatchString(text) && db.Count("free") == 0 {
		sigs = append(sigs, types.BugSignature{
			SignatureType: types.SigMemoryLeak,
			Confidence:    0.8,
			Evidence:      []string{"allocation failure with no observed free"},
		})
	}
	return sigs
}

func dedupe(sigs []types.BugSignature) []types.BugSignature {
	best := make(map[types.SignatureType]types.BugSignature)
	for _, sig := range sigs {
		if cur, ok := best[sig.SignatureType]; !ok || sig.Confidence > cur.Confidence {
			best[sig.SignatureType] = sig
		}
	}
	out := make([]types.BugSignature, 0, len(best))
	for _, sig := range best {
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].SignatureType < out[j].SignatureType
	})
	return out
}
