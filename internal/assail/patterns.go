package assail

import (
	"regexp"

	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// counterField names the FileStatistics counter a rule increments.
type counterField int

const (
	counterNone counterField = iota
	counterUnsafe
	counterPanic
	counterUnwrap
	counterSafeUnwrap
	counterAlloc
	counterIO
	counterThreading
)

// ruleKind selects how a match is reported.
type ruleKind int

const (
	// kindCounter only bumps a counter; weak points for these rules are
	// rolled up per file by the severity table.
	kindCounter ruleKind = iota
	// kindSite emits one weak point per (category, line) pair.
	kindSite
	// kindAlloc bumps the allocation counter and classifies the argument
	// with the sliding-window heuristic.
	kindAlloc
)

// patternRule is one entry of a language catalogue. Patterns are
// line-anchored: they run against individual logical lines.
type patternRule struct {
	re       *regexp.Regexp
	kind     ruleKind
	counter  counterField
	category types.WeakPointCategory
	severity types.Severity
	axes     []types.AttackAxis
	note     string
}

// Patterns are compiled with MustCompile: a catalogue entry that fails to
// compile is a programmer error and must fail at initialisation, never at
// scan time.
func site(re string, cat types.WeakPointCategory, sev types.Severity, note string, axes ...types.AttackAxis) patternRule {
	return patternRule{re: regexp.MustCompile(re), kind: kindSite, category: cat, severity: sev, note: note, axes: axes}
}

func count(re string, c counterField) patternRule {
	return patternRule{re: regexp.MustCompile(re), kind: kindCounter, counter: c}
}

func alloc(re string) patternRule {
	return patternRule{re: regexp.MustCompile(re), kind: kindAlloc, counter: counterAlloc}
}

// systemsRules covers the systems family (rust, c, cpp, go, zig, ada, odin,
// nim, d, pony). Panic-capable and defensive unwrap forms are deliberately
// separate rules: only the panic-capable form feeds unwrap_calls.
var systemsRules = []patternRule{
	count(`\bunsafe\s*(\{|fn\b)`, counterUnsafe),
	count(`@ptrCast\(|@intToPtr\(|System\.Address|cast\(ptr\b`, counterUnsafe),

	count(`\b(panic!|unreachable!|todo!|unimplemented!)\(`, counterPanic),
	count(`\bpanic\(`, counterPanic),
	count(`\babort\(\)`, counterPanic),
	count(`@panic\(`, counterPanic),

	count(`\.unwrap\(\)`, counterUnwrap),
	count(`\.expect\(`, counterUnwrap),
	count(`\.unwrap_or\(|\.unwrap_or_default\(\)|\.unwrap_or_else\(`, counterSafeUnwrap),

	alloc(`\bVec::with_capacity\(\s*([^),]*)`),
	alloc(`\bBox::new\(`),
	alloc(`\bVec::new\(\)`),
	alloc(`\bString::with_capacity\(\s*([^),]*)`),
	alloc(`\b(?:malloc|calloc|realloc)\(\s*([^),]*)`),
	alloc(`\bmake\(\s*[\[\]\w]+\s*,\s*([^),]*)`),
	alloc(`\balloc\.alloc\(`),

	count(`\bstd::(fs|io)::|\bfopen\(|\bfread\(|\bfwrite\(|\bos\.(Open|ReadFile|WriteFile|Create)\(`, counterIO),
	count(`\bstd::thread::|\bstd::sync::|\bpthread_\w+|\bgo func\b|\bsync\.(Mutex|RWMutex|WaitGroup)\b|\btokio::spawn\b`, counterThreading),

	site(`\b(Command::new|exec\.Command|system|popen)\(`, types.CategoryCommandInjection, types.SeverityHigh,
		"subprocess construction", types.AxisCpu, types.AxisDisk),
	site(`\bextern\s+"C"|#\[no_mangle\]|\bimport "C"|@cImport\(`, types.CategoryUnsafeFFI, types.SeverityMedium,
		"foreign function boundary", types.AxisMemory),
	site(`\b(while\s*\(\s*(true|1)\s*\)|for\s*\(\s*;\s*;\s*\))`, types.CategoryUnboundedLoop, types.SeverityMedium,
		"unbounded loop", types.AxisCpu, types.AxisTime),
	site(`(?i)\b(api[_-]?key|secret|passwd|password|token)\s*[:=]\s*"[^"]{8,}"`, types.CategoryHardcodedSecret,
		types.SeverityHigh, "hardcoded credential"),
	site(`\bstdin\(\)\.read_line\(|\bio\.ReadAll\(os\.Stdin\)|\bbufio\.NewScanner\(os\.Stdin\)`,
		types.CategoryBlockingIO, types.SeverityLow, "blocking read from stdin", types.AxisTime),
}

// scriptingRules covers python, javascript, typescript, ruby, lua, shell.
var scriptingRules = []patternRule{
	site(`\b(eval|exec)\s*\(`, types.CategoryDynamicCodeExecution, types.SeverityCritical,
		"dynamic code execution", types.AxisCpu, types.AxisMemory),
	site(`\b(os\.system|subprocess\.(call|run|Popen)|child_process\.\w+|Process\.spawn|popen)\s*\(`,
		types.CategoryCommandInjection, types.SeverityHigh, "shell command construction",
		types.AxisCpu, types.AxisDisk),
	site("`[^`]+\\$", types.CategoryCommandInjection, types.SeverityHigh, "interpolated backtick command",
		types.AxisCpu, types.AxisDisk),
	site(`\b(pickle\.loads?|yaml\.load\(|Marshal\.load|JSON\.parseExn)\b`,
		types.CategoryUnsafeDeserialization, types.SeverityHigh, "unsafe deserialisation",
		types.AxisMemory, types.AxisCpu),
	site(`\bwhile\s+(True|true)\s*:|\bwhile\s*\(\s*true\s*\)|\bwhile\s+true\s+do\b`,
		types.CategoryUnboundedLoop, types.SeverityHigh, "unbounded loop", types.AxisCpu, types.AxisTime),
	site(`(open|readFile|File\.open)\([^)]*(\+|%s|\$\{|#\{)`, types.CategoryPathTraversal,
		types.SeverityMedium, "path built from runtime data", types.AxisDisk),
	site(`(?i)\b(api[_-]?key|secret|passwd|password|token)\s*[:=]\s*['"][^'"]{8,}['"]`,
		types.CategoryHardcodedSecret, types.SeverityHigh, "hardcoded credential"),
	site(`\b(ctypes\.|ffi\.|require\(['"]ffi)`, types.CategoryUnsafeFFI, types.SeverityMedium,
		"foreign call from dynamic code", types.AxisMemory),

	count(`\bsys\.exit\(|\bprocess\.exit\(|\bexit!\(|\bos\.exit\(`, counterPanic),
	count(`\bopen\(|\bfs\.(readFile|writeFile|createReadStream)|\bFile\.(open|read|write)|\bIO\.(read|write)|\bio\.open\(`, counterIO),
	count(`\bthreading\.|\bmultiprocessing\.|\bnew Worker\b|\bWorker\(|\bThread\.new\b|\bcoroutine\.`, counterThreading),
	alloc(`\bbytearray\(\s*([^),]*)`),
	alloc(`\bBuffer\.alloc\(\s*([^),]*)`),
	alloc(`\bnew Array\(\s*([^),]*)`),
}

// beamRules covers erlang, elixir, gleam.
var beamRules = []patternRule{
	site(`\b(String\.to_atom|list_to_atom|binary_to_atom)\(`, types.CategoryAtomExhaustion,
		types.SeverityHigh, "dynamic atom creation", types.AxisMemory),
	site(`\b(System\.cmd|:os\.cmd|os:cmd|Port\.open|open_port)\(`, types.CategoryCommandInjection,
		types.SeverityHigh, "external command via port", types.AxisCpu, types.AxisDisk),
	site(`\b(:erlang\.binary_to_term|binary_to_term)\(`, types.CategoryUnsafeDeserialization,
		types.SeverityHigh, "term deserialisation", types.AxisMemory),
	site(`(?i)\b(api[_-]?key|secret|password|token)\s*[:=]\s*"[^"]{8,}"`,
		types.CategoryHardcodedSecret, types.SeverityHigh, "hardcoded credential"),

	// Bang functions raise on error; they are the BEAM unwrap analogue.
	count(`\w+!\(`, counterUnwrap),
	count(`\b(throw|exit)\(`, counterPanic),
	count(`\b(spawn|spawn_link|spawn_monitor|Task\.(async|start))\b|\buse GenServer\b|\bgen_server:`, counterThreading),
	count(`\bFile\.(read|write|open)|\bfile:(read|write|open)`, counterIO),
	alloc(`\b:binary\.copy\(\s*([^),]*)`),
}

// mlRules covers ocaml, sml, haskell, purescript, rescript, julia.
var mlRules = []patternRule{
	count(`\bunsafePerformIO\b|\bObj\.magic\b|\bunsafeCoerce\b|\bUnsafe\.`, counterUnsafe),
	count(`\b(failwith|invalid_arg|error\s+")`, counterPanic),
	count(`\b(Option\.get|Option\.valOf|fromJust|valOf|Belt\.Option\.getExn)\b`, counterUnwrap),
	count(`\b(Option\.value|fromMaybe|Belt\.Option\.getWithDefault)\b`, counterSafeUnwrap),
	count(`\b(open_in|open_out|readFile|writeFile|In_channel|Out_channel)\b`, counterIO),
	count(`\b(Thread\.create|forkIO|Domain\.spawn|@spawn|Threads\.@threads)\b`, counterThreading),
	site(`\bMarshal\.(from_channel|from_string)\b`, types.CategoryUnsafeDeserialization,
		types.SeverityHigh, "unsafe marshal input", types.AxisMemory),
	site(`\bSys\.command\b|\bcallCommand\b|\bUnix\.system\b`, types.CategoryCommandInjection,
		types.SeverityHigh, "external command", types.AxisCpu),
	alloc(`\bArray\.(make|create)\(\s*([^),]*)`),
	alloc(`\bBytes\.create\(\s*([^),]*)`),
}

// lispRules covers scheme and racket.
var lispRules = []patternRule{
	site(`\(eval\b`, types.CategoryDynamicCodeExecution, types.SeverityCritical,
		"dynamic evaluation", types.AxisCpu, types.AxisMemory),
	site(`\(system\b|\(process\b`, types.CategoryCommandInjection, types.SeverityHigh,
		"external command", types.AxisCpu),
	count(`\(car\b|\(cdr\b|\(vector-ref\b`, counterUnwrap),
	count(`\(error\b|\(raise\b`, counterPanic),
	count(`\(open-input-file\b|\(open-output-file\b`, counterIO),
	count(`\(thread\b|\(future\b|\(place\b`, counterThreading),
	alloc(`\(make-vector\s+([^)\s]*)`),
}

// proofRules covers idris, lean, agda: escape hatches defeat the checker.
var proofRules = []patternRule{
	count(`\b(believe_me|really_believe_me|unsafeCoerce|trustMe|postulate|sorry|admit)\b`, counterUnsafe),
	count(`\b(idris_crash|panic!|unreachable)\b`, counterPanic),
	site(`\bpostulate\b|\bsorry\b`, types.CategoryUnsafeCode, types.SeverityMedium,
		"unproven assumption", types.AxisCpu),
}

// logicRules covers prolog, logtalk, datalog.
var logicRules = []patternRule{
	site(`\b(assert[az]?|retract)\(`, types.CategoryDynamicCodeExecution, types.SeverityMedium,
		"dynamic clause database mutation", types.AxisMemory),
	site(`\bshell\(|\bprocess_create\(`, types.CategoryCommandInjection, types.SeverityHigh,
		"external command", types.AxisCpu),
	count(`\bcall\(`, counterUnwrap),
	count(`\bthread_create\(`, counterThreading),
	count(`\bopen\(`, counterIO),
}

// configRules covers nickel and nix.
var configRules = []patternRule{
	site(`\bbuiltins\.(exec|fetchurl|fetchGit)\b`, types.CategoryCommandInjection,
		types.SeverityMedium, "impure fetch or exec during evaluation", types.AxisNetwork, types.AxisDisk),
	site(`(?i)\b(password|secret|token)\s*=\s*"[^"]{8,}"`, types.CategoryHardcodedSecret,
		types.SeverityHigh, "credential in configuration"),
	count(`\bimport\s+<`, counterIO),
}

// shellRules adds shell-specific hazards on top of the scripting table.
var shellRules = []patternRule{
	site(`\beval\b`, types.CategoryDynamicCodeExecution, types.SeverityCritical,
		"shell eval", types.AxisCpu),
	site(`curl[^|]*\|\s*(ba)?sh`, types.CategoryCommandInjection, types.SeverityCritical,
		"piping download into shell", types.AxisNetwork, types.AxisCpu),
	site(`\brm\s+-rf?\s+("\$|\$\{?\w)`, types.CategoryPathTraversal, types.SeverityHigh,
		"recursive delete of variable path", types.AxisDisk),
	count(`\bexit\s+[1-9]`, counterPanic),
	count(`>\s*/dev/|\bdd\b|\bmkfifo\b`, counterIO),
	count(`&\s*$|\bwait\b`, counterThreading),
}

// nextgenRules is the shared catalogue for the project-specific DSL tags.
var nextgenRules = []patternRule{
	count(`\b(unsafe|trust|coerce)\b`, counterUnsafe),
	count(`\b(panic|abort|crash)\b`, counterPanic),
	site(`\b(exec|spawn|shell)\s*\(`, types.CategoryCommandInjection, types.SeverityHigh,
		"external command", types.AxisCpu),
}

// genericRules runs on files no family claims.
var genericRules = []patternRule{
	site(`(?i)\b(api[_-]?key|secret|password|token)\s*[:=]\s*['"][^'"]{8,}['"]`,
		types.CategoryHardcodedSecret, types.SeverityHigh, "hardcoded credential"),
}

// catalogueFor returns the rule catalogue for a language. New languages are
// added by extending a table, not by adding code paths.
func catalogueFor(lang types.Language) []patternRule {
	switch lang.Family() {
	case "systems":
		return systemsRules
	case "scripting":
		if lang == types.LangShell {
			rules := make([]patternRule, 0, len(scriptingRules)+len(shellRules))
			rules = append(rules, shellRules...)
			rules = append(rules, scriptingRules...)
			return rules
		}
		return scriptingRules
	case "beam":
		return beamRules
	case "ml":
		return mlRules
	case "lisp":
		return lispRules
	case "proof":
		return proofRules
	case "logic":
		return logicRules
	case "config":
		return configRules
	case "nextgen-dsl":
		return nextgenRules
	default:
		return genericRules
	}
}
