package audience

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperpolymath/panic-attacker/internal/amuck"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

func writeTarget(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.rs")
	require.NoError(t, os.WriteFile(path, []byte("fn main() {}\n"), 0o644))
	return path
}

func TestAudienceReadsMutationReportSignals(t *testing.T) {
	target := writeTarget(t)

	mutation := amuck.Report{
		SchemaVersion: types.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Target:        target,
		Preset:        "dangerous",
		Outcomes: []amuck.Outcome{{
			ID:         1,
			Name:       "bad",
			Operations: []string{"replace_first"},
			ApplyError: "combination produced no change",
		}},
	}
	data, err := json.Marshal(mutation)
	require.NoError(t, err)
	reportPath := filepath.Join(t.TempDir(), "amuck.json")
	require.NoError(t, os.WriteFile(reportPath, data, 0o644))

	out, err := Run(context.Background(), Config{
		Target:        target,
		Repeat:        1,
		Reports:       []string{reportPath},
		HeadLines:     3,
		TailLines:     3,
		GrepPatterns:  []string{"combination"},
		AgrepPatterns: []string{"combinatoin"},
		AgrepDistance: 2,
		Lang:          LangEn,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, out.ObservedReports)
	assert.NotEmpty(t, out.SignalCounts)
	assert.Equal(t, 1, out.SignalCounts["mutation_apply_error_signal"])
	require.Len(t, out.ReportObservations, 1)
	assert.Equal(t, "mutation", out.ReportObservations[0].Kind)
	assert.NotEmpty(t, out.ReportObservations[0].Matches, "grep and agrep matches expected")
}

func TestRepeatedExecutionObservations(t *testing.T) {
	target := writeTarget(t)
	out, err := Run(context.Background(), Config{
		Target:       target,
		ExecTemplate: []string{"sh", "-c", "echo observing {target}; echo 'panic: boom' >&2; exit 1"},
		Repeat:       3,
		Timeout:      5 * time.Second,
		HeadLines:    5,
		TailLines:    5,
		Lang:         LangEn,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, out.ObservedRuns)
	require.Len(t, out.RunObservations, 3)
	for _, run := range out.RunObservations {
		assert.False(t, run.Success)
		require.NotNil(t, run.ExitCode)
		assert.Equal(t, 1, *run.ExitCode)
		assert.Contains(t, run.Stdout, target)
	}
	// Each failing run contributes one panic reaction.
	assert.Equal(t, 3, out.SignalCounts["panic_signal"])
	assert.Contains(t, out.Recommendations, tr(LangEn, "rec_panic"))
}

func TestTimeoutSignal(t *testing.T) {
	target := writeTarget(t)
	out, err := Run(context.Background(), Config{
		Target:       target,
		ExecTemplate: []string{"sh", "-c", "exec sleep 30"},
		Repeat:       1,
		Timeout:      200 * time.Millisecond,
		Lang:         LangEn,
	}, nil)
	require.NoError(t, err)

	require.Len(t, out.RunObservations, 1)
	assert.True(t, out.RunObservations[0].TimedOut)
	assert.Equal(t, 1, out.SignalCounts["timeout_signal"])
	assert.Contains(t, out.Recommendations, tr(LangEn, "rec_timeout"))
}

func TestValidationRejectsBadConfig(t *testing.T) {
	target := writeTarget(t)

	_, err := Run(context.Background(), Config{Target: target, Repeat: 0,
		ExecTemplate: []string{"true"}}, nil)
	assert.Error(t, err, "repeat below 1")

	_, err = Run(context.Background(), Config{Target: target, Repeat: 1}, nil)
	assert.Error(t, err, "needs exec or reports")

	_, err = Run(context.Background(), Config{Target: target, Repeat: 1,
		ExecTemplate: []string{"true"}, HeadLines: 5000}, nil)
	assert.Error(t, err, "head above limit")

	_, err = Run(context.Background(), Config{Target: target, Repeat: 1,
		ExecTemplate: []string{"true"}, AgrepDistance: 20}, nil)
	assert.Error(t, err, "agrep distance above limit")

	_, err = Run(context.Background(), Config{Target: "/missing", Repeat: 1,
		ExecTemplate: []string{"true"}}, nil)
	assert.Error(t, err, "missing target")
}

func TestFuzzyMatcher(t *testing.T) {
	m := &patternMatcher{
		grep:     []string{"overflow"},
		agrep:    []string{"oveflow"},
		distance: 2,
	}
	hits := m.scan("buffer overflow detected\nnothing here\n")
	require.Len(t, hits, 2)
	assert.Equal(t, "grep", hits[0].Mode)
	assert.Equal(t, 1, hits[0].LineNo)
	assert.Equal(t, "agrep", hits[1].Mode)
	require.NotNil(t, hits[1].Distance)
	assert.LessOrEqual(t, *hits[1].Distance, 2)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("same", "same"))
	assert.Equal(t, 1, levenshtein("panic", "panik"))
	assert.Equal(t, 5, levenshtein("", "hello"))
	assert.Equal(t, 3, levenshtein("abc", "xyz"))
}

func TestHeadTailLines(t *testing.T) {
	text := "a\nb\nc\nd"
	assert.Equal(t, []string{"a", "b"}, headLines(text, 2))
	assert.Equal(t, []string{"c", "d"}, tailLines(text, 2))
	assert.Nil(t, headLines(text, 0))
	assert.Equal(t, []string{"a", "b", "c", "d"}, headLines(text, 10))
}

func TestMarkdownWriter(t *testing.T) {
	rep := &Report{
		SchemaVersion:   types.SchemaVersion,
		GeneratedAt:     time.Now().UTC(),
		Target:          "src/main.rs",
		Repeat:          1,
		Language:        "en",
		SignalCounts:    map[string]int{"panic_signal": 2},
		Recommendations: []string{tr(LangEn, "rec_panic")},
	}
	path := filepath.Join(t.TempDir(), "audience.md")
	require.NoError(t, WriteMarkdown(rep, path))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Audience Report")
	assert.Contains(t, string(body), "`panic_signal`: 2")
}

func TestMarkdownWriterLocalised(t *testing.T) {
	rep := &Report{
		GeneratedAt:     time.Now().UTC(),
		Target:          "src/main.rs",
		Language:        "de",
		SignalCounts:    map[string]int{},
		Recommendations: []string{tr(LangDe, "rec_none")},
	}
	path := filepath.Join(t.TempDir(), "audience-de.md")
	require.NoError(t, WriteMarkdown(rep, path))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Audience Bericht")
	assert.Contains(t, string(body), "keine")
}

func TestParseLang(t *testing.T) {
	for code, want := range map[string]Lang{"en": LangEn, "es": LangEs, "fr": LangFr, "de": LangDe, "": LangEn} {
		got, ok := ParseLang(code)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	got, ok := ParseLang("tlh")
	assert.False(t, ok)
	assert.Equal(t, LangEn, got)
}

func TestTranslationsFallBackToEnglish(t *testing.T) {
	assert.Equal(t, "Senales", tr(LangEs, "signals"))
	assert.Equal(t, tr(LangEn, "rec_crash"), tr(Lang("pt"), "rec_crash"))
	assert.Equal(t, "no_such_key", tr(LangEn, "no_such_key"))
}
