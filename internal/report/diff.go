package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// diffKey identifies a weak point across scans: category, file, line, and
// a digest of the description. Severity is excluded so tier changes of the
// same finding are tracked rather than reported as new+resolved.
func diffKey(wp types.WeakPoint) string {
	digest := sha256.Sum256([]byte(wp.Description))
	return fmt.Sprintf("%s|%s|%d|%s",
		wp.Category, wp.Location.File, wp.Location.Line, hex.EncodeToString(digest[:8]))
}

// Diff compares two assail reports. Diff(r, r) is empty with zero deltas.
func Diff(baseline, current *types.AssailReport) *types.DiffReport {
	baseByKey := make(map[string]types.WeakPoint)
	for _, wp := range baseline.WeakPoints {
		baseByKey[diffKey(wp)] = wp
	}
	currentByKey := make(map[string]types.WeakPoint)
	for _, wp := range current.WeakPoints {
		currentByKey[diffKey(wp)] = wp
	}

	diff := &types.DiffReport{
		SchemaVersion:   types.SchemaVersion,
		GeneratedAt:     time.Now().UTC(),
		Baseline:        baseline.ProgramPath,
		Current:         current.ProgramPath,
		New:             []types.WeakPoint{},
		Resolved:        []types.WeakPoint{},
		SeverityChanged: []types.DiffPair{},
	}

	for key, wp := range currentByKey {
		base, existed := baseByKey[key]
		switch {
		case !existed:
			diff.New = append(diff.New, wp)
		case base.Severity != wp.Severity:
			diff.SeverityChanged = append(diff.SeverityChanged, types.DiffPair{Before: base, After: wp})
			diff.NetSeverityDelta += int(wp.Severity) - int(base.Severity)
		}
	}
	for key, wp := range baseByKey {
		if _, still := currentByKey[key]; !still {
			diff.Resolved = append(diff.Resolved, wp)
		}
	}

	sortPoints(diff.New)
	sortPoints(diff.Resolved)
	sort.Slice(diff.SeverityChanged, func(i, j int) bool {
		return diffKey(diff.SeverityChanged[i].After) < diffKey(diff.SeverityChanged[j].After)
	})

	diff.NetWeakPointDelta = len(current.WeakPoints) - len(baseline.WeakPoints)
	for _, wp := range diff.New {
		diff.NetSeverityDelta += int(wp.Severity)
	}
	for _, wp := range diff.Resolved {
		diff.NetSeverityDelta -= int(wp.Severity)
	}
	return diff
}

// HasRegressions reports whether the diff should fail a gated run.
func HasRegressions(diff *types.DiffReport) bool {
	if len(diff.New) > 0 {
		return true
	}
	for _, pair := range diff.SeverityChanged {
		if pair.After.Severity > pair.Before.Severity {
			return true
		}
	}
	return false
}

func sortPoints(points []types.WeakPoint) {
	sort.Slice(points, func(i, j int) bool {
		return diffKey(points[i]) < diffKey(points[j])
	})
}
