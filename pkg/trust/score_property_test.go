//go:build property
// +build property

package trust

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/mend/pkg/ledger"
)

// TestScoreAlwaysClamped verifies the bound law: for any outcome history,
// the global trust score stays within [0.5, 1.5].
func TestScoreAlwaysClamped(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	statusGen := gen.OneConstOf(
		ledger.StatusOK, ledger.StatusRecovered, ledger.StatusFailed,
		ledger.StatusReverted, ledger.StatusNoop,
	)

	properties.Property("score within bounds", prop.ForAll(
		func(statuses []string) bool {
			entries := make([]ledger.Entry, len(statuses))
			for i, st := range statuses {
				entries[i] = ledger.Entry{Payload: ledger.Payload{Status: st}}
			}
			score := ComputeScore(entries)
			return score >= ScoreFloor && score <= ScoreCeiling
		},
		gen.SliceOf(statusGen),
	))

	properties.TestingRun(t)
}
