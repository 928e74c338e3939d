package assail

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperpolymath/panic-attacker/internal/types"
)

func TestClassifyByExtension(t *testing.T) {
	cases := map[string]types.Language{
		"src/main.rs":      types.LangRust,
		"lib/util.c":       types.LangC,
		"app/handler.py":   types.LangPython,
		"web/index.ts":     types.LangTypeScript,
		"srv/router.ex":    types.LangElixir,
		"core/parse.ml":    types.LangOCaml,
		"proofs/nat.lean":  types.LangLean,
		"conf/default.nix": types.LangNix,
		"scripts/run.sh":   types.LangShell,
		"notes/readme.txt": types.LangGeneric,
	}
	for path, want := range cases {
		got := Classify(path, "")
		assert.Equal(t, want, got.Language, "path %s", path)
	}
}

func TestClassifyShebang(t *testing.T) {
	got := Classify("bin/tool", "#!/usr/bin/env ruby\nputs 'hi'\n")
	assert.Equal(t, types.LangRuby, got.Language)

	got = Classify("bin/deploy", "#!/bin/bash\nset -e\n")
	assert.Equal(t, types.LangShell, got.Language)

	got = Classify("bin/job", "#!/usr/bin/python3\nprint('x')\n")
	assert.Equal(t, types.LangPython, got.Language)
}

func TestClassifyAmbiguousExtension(t *testing.T) {
	prolog := Classify("db/rules.pl", ":- module(rules, []).\nancestor(X, Y) :- parent(X, Y).\n")
	assert.Equal(t, types.LangProlog, prolog.Language)
}

func TestClassifyTotality(t *testing.T) {
	got := Classify("weird/noext", "\x01\x02 binary-ish text")
	assert.Equal(t, types.LangGeneric, got.Language, "classifier must be total")
}

func TestIsTestFileByPath(t *testing.T) {
	assert.True(t, Classify("tests/parser.rs", "").IsTestFile)
	assert.True(t, Classify("pkg/test_util.py", "").IsTestFile)
	assert.True(t, Classify("pkg/util_test.go", "").IsTestFile)
	assert.True(t, Classify("src/app.spec.ts", "").IsTestFile)
	assert.False(t, Classify("src/testing_docs.md", "").IsTestFile)
	assert.False(t, Classify("src/app.rs", "").IsTestFile)
}

func TestIsTestFileByMarker(t *testing.T) {
	rust := "fn helper() {}\n#[cfg(test)]\nmod tests {}\n"
	assert.True(t, Classify("src/lib.rs", rust).IsTestFile)

	python := "import unittest\n\ndef test_roundtrip():\n    pass\n"
	assert.True(t, Classify("pkg/roundtrip.py", python).IsTestFile)

	plain := "fn main() {}\n"
	assert.False(t, Classify("src/main.rs", plain).IsTestFile)
}

func TestFrameworkHintsNeedPositiveEvidence(t *testing.T) {
	server := Classify("src/server.go", "func main() { http.ListenAndServe(\":8080\", nil) }\n")
	assert.Contains(t, server.Frameworks, types.FrameworkWebServer)

	// Mentioning HTTP in a comment is not listener evidence.
	library := Classify("src/docs.go", "// This library does not start an HTTP server.\n")
	assert.NotContains(t, library.Frameworks, types.FrameworkWebServer)
}

func TestEntryPointDetection(t *testing.T) {
	assert.True(t, hasEntryPoint(types.LangRust, "fn main() {\n}\n"))
	assert.True(t, hasEntryPoint(types.LangGo, "func main() {\n}\n"))
	assert.True(t, hasEntryPoint(types.LangPython, "if __name__ == '__main__':\n    run()\n"))
	assert.False(t, hasEntryPoint(types.LangRust, "pub fn helper() {}\n"))
}
