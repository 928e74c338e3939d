package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityInfo < SeverityLow)
	assert.True(t, SeverityLow < SeverityMedium)
	assert.True(t, SeverityMedium < SeverityHigh)
	assert.True(t, SeverityHigh < SeverityCritical)
}

func TestSeverityTextRoundTrip(t *testing.T) {
	for _, sev := range []Severity{SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		data, err := json.Marshal(sev)
		require.NoError(t, err)
		var back Severity
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, sev, back)
	}
}

func TestParseSeverity(t *testing.T) {
	got, ok := ParseSeverity("HIGH")
	assert.True(t, ok)
	assert.Equal(t, SeverityHigh, got)
	_, ok = ParseSeverity("catastrophic")
	assert.False(t, ok)
}

func TestParseAxis(t *testing.T) {
	got, ok := ParseAxis("mem")
	assert.True(t, ok)
	assert.Equal(t, AxisMemory, got)
	_, ok = ParseAxis("gravity")
	assert.False(t, ok)
	assert.Len(t, AllAxes(), 6)
}

func TestLanguageFamilies(t *testing.T) {
	assert.Equal(t, "systems", LangRust.Family())
	assert.Equal(t, "systems", LangZig.Family())
	assert.Equal(t, "scripting", LangPython.Family())
	assert.Equal(t, "beam", LangElixir.Family())
	assert.Equal(t, "ml", LangOCaml.Family())
	assert.Equal(t, "proof", LangLean.Family())
	assert.Equal(t, "logic", LangProlog.Family())
	assert.Equal(t, "config", LangNix.Family())
	assert.Equal(t, "generic", LangGeneric.Family())

	assert.True(t, LangC.IsSystems())
	assert.True(t, LangRuby.IsDynamic())
	assert.False(t, LangHaskell.IsDynamic())
}

func TestProgramStatisticsAdd(t *testing.T) {
	var total ProgramStatistics
	total.Add(FileStatistics{Lines: 10, UnwrapCalls: 2, UnsafeBlocks: 1})
	total.Add(FileStatistics{Lines: 5, SafeUnwrapVariants: 3, IOOperations: 4})

	assert.Equal(t, 15, total.TotalLines)
	assert.Equal(t, 2, total.UnwrapCalls)
	assert.Equal(t, 1, total.UnsafeBlocks)
	assert.Equal(t, 3, total.SafeUnwrapVariants)
	assert.Equal(t, 4, total.IOOperations)
}

func TestIntensityMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, IntensityLight.Multiplier())
	assert.Equal(t, 50.0, IntensityExtreme.Multiplier())
	assert.Equal(t, 5.0, IntensityLevel("bogus").Multiplier())
}

func TestSeverityCounts(t *testing.T) {
	rep := AssailReport{WeakPoints: []WeakPoint{
		{Severity: SeverityHigh}, {Severity: SeverityHigh}, {Severity: SeverityLow},
	}}
	counts := rep.SeverityCounts()
	assert.Equal(t, 2, counts[SeverityHigh])
	assert.Equal(t, 1, counts[SeverityLow])
}
