// Package assail implements the static-analysis pipeline: language
// classification, per-file weak-point extraction, and project aggregation.
package assail

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// extensionTable maps file extensions (without dot) to languages. The most
// specific extension wins; ambiguous extensions fall through to shebang and
// content tiebreakers.
var extensionTable = map[string]types.Language{
	"rs": types.LangRust,
	"c":  types.LangC, "h": types.LangC,
	"cpp": types.LangCpp, "cc": types.LangCpp, "cxx": types.LangCpp,
	"hpp": types.LangCpp, "hxx": types.LangCpp,
	"go":  types.LangGo,
	"zig": types.LangZig,
	"adb": types.LangAda, "ads": types.LangAda, "gpr": types.LangAda,
	"odin": types.LangOdin,
	"nim":  types.LangNim, "nims": types.LangNim, "nimble": types.LangNim,
	"d": types.LangD, "di": types.LangD,
	"pony": types.LangPony,

	"py": types.LangPython, "pyw": types.LangPython,
	"js": types.LangJavaScript, "mjs": types.LangJavaScript, "cjs": types.LangJavaScript,
	"jsx": types.LangJavaScript,
	"ts":  types.LangTypeScript, "tsx": types.LangTypeScript,
	"rb":  types.LangRuby,
	"lua": types.LangLua, "luau": types.LangLua,
	"sh": types.LangShell, "bash": types.LangShell, "zsh": types.LangShell,
	"fish": types.LangShell,

	"erl": types.LangErlang, "hrl": types.LangErlang,
	"ex": types.LangElixir, "exs": types.LangElixir,
	"gleam": types.LangGleam,

	"ml": types.LangOCaml, "mli": types.LangOCaml,
	"sml": types.LangSML, "sig": types.LangSML, "fun": types.LangSML,
	"hs": types.LangHaskell, "lhs": types.LangHaskell,
	"purs": types.LangPureScript,
	"res":  types.LangReScript, "resi": types.LangReScript,
	"jl": types.LangJulia,

	"scm": types.LangScheme, "ss": types.LangScheme, "sld": types.LangScheme,
	"rkt": types.LangRacket, "scrbl": types.LangRacket,

	"idr": types.LangIdris, "ipkg": types.LangIdris,
	"lean": types.LangLean,
	"agda": types.LangAgda, "lagda": types.LangAgda,

	"pro": types.LangProlog,
	"lgt": types.LangLogtalk, "logtalk": types.LangLogtalk,
	"dl": types.LangDatalog,

	"ncl": types.LangNickel,
	"nix": types.LangNix,

	"woke":    types.LangWokeLang,
	"ecl":     types.LangEclexia,
	"my":      types.LangMyLang,
	"aff":     types.LangAffineScript,
	"ephapax": types.LangEphapax, "eph": types.LangEphapax,
}

// ambiguousExtensions need a content tiebreaker: .pl is Prolog or Perl-ish
// shell glue, .m could be several things we do not classify.
var ambiguousExtensions = map[string][]types.Language{
	"pl": {types.LangProlog, types.LangShell},
	"P":  {types.LangProlog},
}

// shebangTable maps interpreter names from a #! first line to languages.
var shebangTable = map[string]types.Language{
	"python":  types.LangPython,
	"python3": types.LangPython,
	"node":    types.LangJavaScript,
	"ruby":    types.LangRuby,
	"lua":     types.LangLua,
	"sh":      types.LangShell,
	"bash":    types.LangShell,
	"zsh":     types.LangShell,
	"fish":    types.LangShell,
	"escript": types.LangErlang,
	"elixir":  types.LangElixir,
	"julia":   types.LangJulia,
	"swipl":   types.LangProlog,
}

// contentTiebreakers resolve ambiguous candidates with up to a handful of
// distinctive regexes per language.
var contentTiebreakers = []struct {
	lang types.Language
	re   *regexp.Regexp
}{
	{types.LangProlog, regexp.MustCompile(`(?m)^\s*:-\s*(module|use_module|dynamic)`)},
	{types.LangProlog, regexp.MustCompile(`(?m)^[a-z]\w*\([^)]*\)\s*:-`)},
	{types.LangShell, regexp.MustCompile(`(?m)^\s*(if \[\[|esac\b|fi\b|export \w+=)`)},
	{types.LangPython, regexp.MustCompile(`(?m)^\s*(def |import |from \w+ import )`)},
	{types.LangRuby, regexp.MustCompile(`(?m)^\s*(require ['"]|module \w+|end\s*$)`)},
	{types.LangErlang, regexp.MustCompile(`(?m)^-module\(`)},
	{types.LangOCaml, regexp.MustCompile(`(?m)^\s*let \w+ =`)},
	{types.LangJavaScript, regexp.MustCompile(`(?m)^\s*(const |let |function |=>)`)},
}

// maxTiebreakers bounds how many content regexes run per classification.
const maxTiebreakers = 8

// Classification is the classifier's verdict for one file.
type Classification struct {
	Language   types.Language
	IsTestFile bool
	Frameworks []types.Framework
}

// Classify maps a file path and its decoded content to a language, a
// test-file flag, and framework hints. The classifier is total: anything
// unrecognised is generic.
func Classify(path string, content string) Classification {
	lang := classifyLanguage(path, content)
	return Classification{
		Language:   lang,
		IsTestFile: isTestFile(path, content, lang),
		Frameworks: frameworkHints(lang, content),
	}
}

func classifyLanguage(path string, content string) types.Language {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")

	if candidates, ambiguous := ambiguousExtensions[ext]; ambiguous {
		if lang, ok := breakTie(candidates, content); ok {
			return lang
		}
		return candidates[0]
	}
	if lang, ok := extensionTable[ext]; ok {
		return lang
	}
	if lang, ok := shebangLanguage(content); ok {
		return lang
	}
	return types.LangGeneric
}

func shebangLanguage(content string) (types.Language, bool) {
	line, _, _ := strings.Cut(content, "\n")
	if !strings.HasPrefix(line, "#!") {
		return "", false
	}
	// Resolve both "#!/usr/bin/ruby" and "#!/usr/bin/env ruby".
	fields := strings.Fields(strings.TrimPrefix(line, "#!"))
	if len(fields) == 0 {
		return "", false
	}
	interp := filepath.Base(fields[0])
	if interp == "env" && len(fields) > 1 {
		interp = fields[1]
	}
	interp = strings.TrimRightFunc(interp, func(r rune) bool { return r >= '0' && r <= '9' || r == '.' })
	if lang, ok := shebangTable[interp]; ok {
		return lang, true
	}
	return "", false
}

func breakTie(candidates []types.Language, content string) (types.Language, bool) {
	applied := 0
	for _, tb := range contentTiebreakers {
		if applied >= maxTiebreakers {
			break
		}
		for _, cand := range candidates {
			if tb.lang != cand {
				continue
			}
			applied++
			if tb.re.MatchString(content) {
				return cand, true
			}
		}
	}
	return "", false
}

// testMarkers holds per-language lexical markers of in-file test modules.
var testMarkers = map[types.Language][]*regexp.Regexp{
	types.LangRust:       {regexp.MustCompile(`#\[cfg\(test\)\]`), regexp.MustCompile(`#\[test\]`)},
	types.LangGo:         {regexp.MustCompile(`(?m)^func Test\w+\(t \*testing\.T\)`)},
	types.LangPython:     {regexp.MustCompile(`(?m)^\s*def test_\w+`), regexp.MustCompile(`import (unittest|pytest)`)},
	types.LangJavaScript: {regexp.MustCompile(`(?m)^\s*(describe|it|test)\(`)},
	types.LangTypeScript: {regexp.MustCompile(`(?m)^\s*(describe|it|test)\(`)},
	types.LangRuby:       {regexp.MustCompile(`(?m)^\s*(describe|it) ['"]`), regexp.MustCompile(`< Minitest::Test`)},
	types.LangElixir:     {regexp.MustCompile(`use ExUnit\.Case`)},
	types.LangErlang:     {regexp.MustCompile(`-include_lib\("eunit`)},
	types.LangHaskell:    {regexp.MustCompile(`(?m)^(spec ::|hspec|prop_\w+)`)},
	types.LangOCaml:      {regexp.MustCompile(`let%test`)},
	types.LangZig:        {regexp.MustCompile(`(?m)^test\s+"`)},
	types.LangJulia:      {regexp.MustCompile(`@testset`)},
}

var testPathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(^|/)tests?(/|$)`),
	regexp.MustCompile(`(^|/)test_[^/]+$`),
	regexp.MustCompile(`[^/]+_test\.[^/.]+$`),
	regexp.MustCompile(`[^/]+\.test\.[^/.]+$`),
	regexp.MustCompile(`(^|/)spec(/|$)`),
	regexp.MustCompile(`[^/]+_spec\.[^/.]+$`),
	regexp.MustCompile(`[^/]+\.spec\.[^/.]+$`),
}

// isTestFile is derived purely from the path and lexical markers.
func isTestFile(path string, content string, lang types.Language) bool {
	norm := filepath.ToSlash(path)
	for _, re := range testPathPatterns {
		if re.MatchString(norm) {
			return true
		}
	}
	for _, re := range testMarkers[lang] {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// frameworkHint pairs a positive-evidence regex with the framework it
// implies. A hit requires real evidence (route declaration, listener
// construction, handler macro) rather than mere language-family presence.
type frameworkHint struct {
	framework types.Framework
	re        *regexp.Regexp
}

var frameworkHintTable = []frameworkHint{
	// Web servers need listener or route evidence.
	{types.FrameworkWebServer, regexp.MustCompile(`(HttpServer|TcpListener::bind|http\.ListenAndServe|app\.listen\(|Sinatra|@app\.route|Flask\(|express\(\)|Plug\.Router|Phoenix\.Router|cowboy_router)`)},
	{types.FrameworkDatabase, regexp.MustCompile(`(?i)(sql\.Open\(|SELECT .+ FROM|INSERT INTO|Ecto\.Repo|rusqlite|diesel::|sqlx::|pg_connect|sqlite3)`)},
	{types.FrameworkMessageQueue, regexp.MustCompile(`(?i)(amqp|rabbitmq|kafka|nats\.Connect|GenServer\.cast|zmq|pubsub)`)},
	{types.FrameworkCache, regexp.MustCompile(`(?i)(redis|memcache|lru_cache|LruCache|golang-lru)`)},
	{types.FrameworkFileSystem, regexp.MustCompile(`(std::fs::|os\.(Open|ReadFile|WriteFile)|File\.(open|read|write)|fs\.(readFile|writeFile)|ioutil\.)`)},
	{types.FrameworkNetworking, regexp.MustCompile(`(TcpStream|UdpSocket|net\.Dial|socket\.(socket|connect)|gen_tcp|Socket\.)`)},
	{types.FrameworkConcurrent, regexp.MustCompile(`(std::thread::spawn|go func|threading\.Thread|Task\.async|spawn_link|tokio::spawn|rayon::)`)},
	{types.FrameworkCLI, regexp.MustCompile(`(clap::|structopt|argparse|cobra\.Command|OptionParser|flag\.Parse\(|getopts)`)},
}

func frameworkHints(lang types.Language, content string) []types.Framework {
	var hints []types.Framework
	seen := make(map[types.Framework]bool)
	for _, hint := range frameworkHintTable {
		if seen[hint.framework] {
			continue
		}
		if hint.re.MatchString(content) {
			seen[hint.framework] = true
			hints = append(hints, hint.framework)
		}
	}
	_ = lang
	return hints
}

// hasEntryPoint reports whether the content looks like a binary entry point
// for the language; used by the aggregator's library/cli guardrail.
var entryPointPatterns = map[string]*regexp.Regexp{
	"systems":   regexp.MustCompile(`(?m)^(fn main\(|func main\(|int main\(|pub fn main|proc main)`),
	"scripting": regexp.MustCompile(`(?m)^(if __name__ == ['"]__main__['"]|def main\b)`),
	"beam":      regexp.MustCompile(`(?m)^def main\(|(?m)^-export\(\[main/`),
}

func hasEntryPoint(lang types.Language, content string) bool {
	if re, ok := entryPointPatterns[lang.Family()]; ok {
		return re.MatchString(content)
	}
	return false
}
