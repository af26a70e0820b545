package governance

import "math"

// Adjust derives the next run's limits from the current aggregate trust
// score and recent consecutive failures. High trust widens the caps
// proportionally; low trust or any failure streak narrows them down to the
// floors. The returned Policy is a fresh value; the input is not mutated,
// and adjusted limits are never persisted mid-run.
//
// trust is the global trust score in [0.5, 1.5] (1.0 neutral).
func Adjust(p Policy, trust float64, consecutiveFailures int) Policy {
	adjusted := p

	scale := trust
	if consecutiveFailures > 0 {
		// Each consecutive failure halves the effective scale.
		scale = scale / math.Pow(2, float64(consecutiveFailures))
	}

	adjusted.MaxFiles = int(math.Round(float64(p.MaxFiles) * scale))
	adjusted.MaxLocPerFile = int(math.Round(float64(p.MaxLocPerFile) * scale))

	if adjusted.MaxFiles < FloorMaxFiles {
		adjusted.MaxFiles = FloorMaxFiles
	}
	if adjusted.MaxLocPerFile < FloorMaxLocPerFile {
		adjusted.MaxLocPerFile = FloorMaxLocPerFile
	}
	return adjusted
}
