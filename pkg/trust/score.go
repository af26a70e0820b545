// Package trust derives confidence from completed runs. The global trust
// score is a read-model recomputed from ledger history on demand; per-recipe
// records are rolling success statistics updated exactly once per completed
// run. History is never mutated in place.
package trust

import (
	"math"

	"github.com/Mindburn-Labs/mend/pkg/ledger"
)

// Window is how many recent ledger entries feed the global trust score.
const Window = 10

// Global trust score bounds. 1.0 is neutral.
const (
	ScoreFloor   = 0.5
	ScoreCeiling = 1.5
	ScoreNeutral = 1.0
)

// ComputeScore derives the global trust score from the most recent
// min(Window, N) completed runs:
//
//	score = clamp(1 + (successes - total/2)/total, 0.5, 1.5)
//
// "ok" and "recovered" both count as successes; a clean rollback is still
// a correctly functioning control plane. No-op marker entries carry no
// signal either way and are skipped before the window applies. Empty (or
// all-noop) history is neutral (1.0). The result is rounded to two
// decimals.
func ComputeScore(history []ledger.Entry) float64 {
	recent := make([]ledger.Entry, 0, len(history))
	for _, e := range history {
		if e.Payload.Status == ledger.StatusNoop {
			continue
		}
		recent = append(recent, e)
	}
	if len(recent) == 0 {
		return ScoreNeutral
	}
	if len(recent) > Window {
		recent = recent[len(recent)-Window:]
	}

	total := float64(len(recent))
	var successes float64
	for _, e := range recent {
		if e.Payload.Status == ledger.StatusOK || e.Payload.Status == ledger.StatusRecovered {
			successes++
		}
	}

	score := 1 + (successes-total/2)/total
	score = math.Max(ScoreFloor, math.Min(ScoreCeiling, score))
	return math.Round(score*100) / 100
}
