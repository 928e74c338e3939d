package audience

import (
	"os/exec"
	"sort"
	"strings"
)

// SpellcheckResult holds one aspell pass over observed text. A missing or
// failing aspell binary disables the check for that observation rather
// than failing the session.
type SpellcheckResult struct {
	Enabled      bool     `json:"enabled"`
	Lang         string   `json:"lang"`
	Misspellings []string `json:"misspellings,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// SpellcheckSummary aggregates spellcheck results across a session.
type SpellcheckSummary struct {
	Lang                    string `json:"lang"`
	TotalMisspellings       int    `json:"total_misspellings"`
	RunsWithMisspellings    int    `json:"runs_with_misspellings"`
	ReportsWithMisspellings int    `json:"reports_with_misspellings"`
}

// spellcheckText pipes text through `aspell list` and collects the unique
// misspelled words. Suspicious wording drift in output is itself a signal.
func spellcheckText(text, lang string) SpellcheckResult {
	cmd := exec.Command("aspell", "list", "--lang", lang)
	cmd.Stdin = strings.NewReader(text)
	out, err := cmd.Output()
	if err != nil {
		msg := err.Error()
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			msg = strings.TrimSpace(string(exitErr.Stderr))
		}
		return SpellcheckResult{Lang: lang, Error: msg}
	}

	uniq := make(map[string]bool)
	for _, word := range strings.Split(string(out), "\n") {
		word = strings.TrimSpace(word)
		if word != "" {
			uniq[word] = true
		}
	}
	words := make([]string, 0, len(uniq))
	for word := range uniq {
		words = append(words, word)
	}
	sort.Strings(words)
	return SpellcheckResult{Enabled: true, Lang: lang, Misspellings: words}
}

func summarizeSpellcheck(runs []RunObservation, reports []ReportObservation, lang string) SpellcheckSummary {
	summary := SpellcheckSummary{Lang: lang}
	for _, run := range runs {
		if run.Spellcheck != nil {
			summary.TotalMisspellings += len(run.Spellcheck.Misspellings)
			if len(run.Spellcheck.Misspellings) > 0 {
				summary.RunsWithMisspellings++
			}
		}
	}
	for _, obs := range reports {
		if obs.Spellcheck != nil {
			summary.TotalMisspellings += len(obs.Spellcheck.Misspellings)
			if len(obs.Spellcheck.Misspellings) > 0 {
				summary.ReportsWithMisspellings++
			}
		}
	}
	return summary
}
