// Package report assembles, serialises, and compares analysis reports.
package report

import (
	"fmt"
	"time"

	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// Robustness score penalties: each crash, critical weak point, and unsafe
// construct subtracts from a 100-point baseline.
const (
	penaltyPerCrash    = 10.0
	penaltyPerCritical = 20.0
	penaltyPerUnsafe   = 5.0
)

// Assemble materialises one immutable assault report from the static scan
// and the dynamic attack results.
func Assemble(assail *types.AssailReport, attacks []types.AttackResult) *types.AssaultReport {
	totalCrashes := 0
	totalSignatures := 0
	for _, result := range attacks {
		totalCrashes += len(result.Crashes)
		totalSignatures += len(result.SignaturesDetected)
	}

	return &types.AssaultReport{
		SchemaVersion:     types.SchemaVersion,
		GeneratedAt:       time.Now().UTC(),
		AssailReport:      *assail,
		AttackResults:     attacks,
		TotalCrashes:      totalCrashes,
		TotalSignatures:   totalSignatures,
		OverallAssessment: assess(assail, attacks, totalCrashes),
	}
}

func assess(assail *types.AssailReport, attacks []types.AttackResult, crashes int) types.OverallAssessment {
	criticalWeakPoints := 0
	for _, wp := range assail.WeakPoints {
		if wp.Severity == types.SeverityCritical {
			criticalWeakPoints++
		}
	}

	score := 100.0
	score -= float64(crashes) * penaltyPerCrash
	score -= float64(criticalWeakPoints) * penaltyPerCritical
	score -= float64(assail.Statistics.UnsafeBlocks) * penaltyPerUnsafe
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	var critical []string
	for _, result := range attacks {
		if len(result.Crashes) > 0 {
			critical = append(critical, fmt.Sprintf(
				"program crashed under %s attack (%d crashes)", result.Axis, len(result.Crashes)))
		}
		for _, sig := range result.SignaturesDetected {
			if sig.Confidence > 0.8 {
				critical = append(critical, fmt.Sprintf(
					"high-confidence %s detected (confidence %.2f)", sig.SignatureType, sig.Confidence))
			}
		}
	}

	var recs []string
	if crashes > 0 {
		recs = append(recs, "add comprehensive error handling for edge cases")
	}
	if assail.Statistics.UnwrapCalls > 10 {
		recs = append(recs, "replace panic-capable unwraps with fallible handling")
	}
	if assail.Statistics.UnsafeBlocks > 0 {
		recs = append(recs, "audit unsafe blocks for memory safety violations")
	}
	if hasSignature(attacks, types.SigDataRace) {
		recs = append(recs, "add synchronisation to prevent data races")
	}
	if hasSignature(attacks, types.SigDeadlock) {
		recs = append(recs, "review lock ordering to prevent deadlocks")
	}
	if score < 50 {
		recs = append(recs, "consider comprehensive refactoring for robustness")
	}

	return types.OverallAssessment{
		RobustnessScore: score,
		CriticalIssues:  critical,
		Recommendations: recs,
	}
}

func hasSignature(attacks []types.AttackResult, sigType types.SignatureType) bool {
	for _, result := range attacks {
		for _, sig := range result.SignaturesDetected {
			if sig.SignatureType == sigType {
				return true
			}
		}
	}
	return false
}
