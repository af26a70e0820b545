package gates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/mend/pkg/filerisk"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func findGate(t *testing.T, results []Result, name string) Result {
	t.Helper()
	for _, r := range results {
		if r.Gate == name {
			return r
		}
	}
	t.Fatalf("gate %s not found", name)
	return Result{}
}

func TestConfidenceGateSensitivityScaling(t *testing.T) {
	e := NewEvaluator(nil, nil)

	// brainConfidence=60, threshold=75, sensitivity=high ->
	// adjusted = 75*1.2 = 90 -> fail citing both values.
	r := findGate(t, e.RunAllGates(Input{
		BrainConfidence:     60,
		ConfidenceThreshold: 75,
		Sensitivity:         SensitivityHigh,
	}), "confidence")
	assert.False(t, r.Pass)
	assert.Contains(t, r.Reason, "60.0")
	assert.Contains(t, r.Reason, "90.0")

	r = findGate(t, e.RunAllGates(Input{
		BrainConfidence: 80,
		Sensitivity:     SensitivityLow,
	}), "confidence")
	assert.True(t, r.Pass)
}

func TestConfidenceGateDefaultThreshold(t *testing.T) {
	e := NewEvaluator(nil, nil)
	r := findGate(t, e.RunAllGates(Input{BrainConfidence: 74.9}), "confidence")
	assert.False(t, r.Pass)

	r = findGate(t, e.RunAllGates(Input{BrainConfidence: 75}), "confidence")
	assert.True(t, r.Pass)
}

func TestPerformanceGateVitals(t *testing.T) {
	e := NewEvaluator(nil, nil)

	r := findGate(t, e.RunAllGates(Input{
		BrainConfidence: 100,
		Performance: &PerformanceSignals{
			Lighthouse: 95,
			LCPMs:      floatPtr(2400),
			FIDMs:      floatPtr(90),
			CLS:        floatPtr(0.05),
		},
	}), "performance")
	assert.True(t, r.Pass)

	r = findGate(t, e.RunAllGates(Input{
		BrainConfidence: 100,
		Performance: &PerformanceSignals{
			Lighthouse: 95,
			LCPMs:      floatPtr(3000),
		},
	}), "performance")
	assert.False(t, r.Pass)
	assert.Contains(t, r.Reason, "LCP")

	r = findGate(t, e.RunAllGates(Input{
		BrainConfidence: 100,
		Performance:     &PerformanceSignals{Lighthouse: 80},
	}), "performance")
	assert.False(t, r.Pass)
	assert.Contains(t, r.Reason, "lighthouse")
}

func TestPerformanceGatePermissiveWithoutSignals(t *testing.T) {
	e := NewEvaluator(nil, nil)
	r := findGate(t, e.RunAllGates(Input{BrainConfidence: 100}), "performance")
	assert.True(t, r.Pass)
}

func TestRegressionGate(t *testing.T) {
	e := NewEvaluator(nil, nil)

	r := findGate(t, e.RunAllGates(Input{Regressions: intPtr(0)}), "regression")
	assert.True(t, r.Pass)

	r = findGate(t, e.RunAllGates(Input{Regressions: intPtr(1)}), "regression")
	assert.False(t, r.Pass)

	// No baseline: permissive pass with a warning.
	r = findGate(t, e.RunAllGates(Input{}), "regression")
	assert.True(t, r.Pass)
	assert.Contains(t, r.Reason, "warning")
}

func TestSecurityGate(t *testing.T) {
	e := NewEvaluator(nil, nil)

	r := findGate(t, e.RunAllGates(Input{SecurityRisk: floatPtr(0.69)}), "security")
	assert.True(t, r.Pass)

	r = findGate(t, e.RunAllGates(Input{SecurityRisk: floatPtr(0.7)}), "security")
	assert.False(t, r.Pass)

	r = findGate(t, e.RunAllGates(Input{}), "security")
	assert.True(t, r.Pass)
}

func TestFileRiskGate(t *testing.T) {
	idx := filerisk.NewDefaultIndex()
	e := NewEvaluator(idx, nil)

	// Low-risk files pass cleanly.
	r := findGate(t, e.RunAllGates(Input{ChangedFiles: []string{"a.css", "b.md"}}), "file-risk")
	assert.True(t, r.Pass)

	// A single critical file fails the gate outright.
	r = findGate(t, e.RunAllGates(Input{ChangedFiles: []string{"a.css", "migrate.sql"}}), "file-risk")
	assert.False(t, r.Pass)

	// Index unavailable: permissive.
	none := NewEvaluator(nil, nil)
	r = findGate(t, none.RunAllGates(Input{ChangedFiles: []string{"migrate.sql"}}), "file-risk")
	assert.True(t, r.Pass)
}

func TestFileRiskGateCautionBand(t *testing.T) {
	idx := filerisk.NewDefaultIndex()
	e := NewEvaluator(idx, nil)

	// config (.yaml) scores 0.55: inside the caution band.
	r := findGate(t, e.RunAllGates(Input{ChangedFiles: []string{"app.yaml"}}), "file-risk")
	assert.True(t, r.Pass)
	assert.Contains(t, r.Reason, "caution")
}

func TestRunGuardianCIAggregation(t *testing.T) {
	e := NewEvaluator(nil, nil)
	d := e.RunGuardianCI(Input{BrainConfidence: 80, FusionScore: 90})

	// All five gates pass: 0.5*80 + 0.3*90 + 0.2*100 = 87
	assert.True(t, d.CanDeploy)
	assert.InDelta(t, 87.0, d.FinalConfidence, 1e-9)
	assert.Len(t, d.Gates, 5)
	assert.Len(t, d.Reasoning, 5)
}

func TestRunGuardianCIRejection(t *testing.T) {
	e := NewEvaluator(nil, nil)
	d := e.RunGuardianCI(Input{BrainConfidence: 50, FusionScore: 50})

	// Confidence gate fails: 4/5 pass.
	assert.False(t, d.CanDeploy)
	assert.InDelta(t, 0.5*50+0.3*50+0.2*80, d.FinalConfidence, 1e-9)
}

func TestRunGuardianCIForceOverride(t *testing.T) {
	e := NewEvaluator(nil, nil)
	d := e.RunGuardianCI(Input{BrainConfidence: 10, ForceOverride: true})

	require.False(t, findGate(t, d.Gates, "confidence").Pass)
	assert.True(t, d.CanDeploy)
	assert.Contains(t, d.Reasoning[len(d.Reasoning)-1], "force-override")
}

type panickyTelemetry struct{}

func (panickyTelemetry) RecordGateEvaluation(int, int, []string) { panic("sink down") }

func TestTelemetryFailureNeverAborts(t *testing.T) {
	e := NewEvaluator(nil, panickyTelemetry{})
	assert.NotPanics(t, func() {
		d := e.RunGuardianCI(Input{BrainConfidence: 90})
		assert.True(t, d.CanDeploy)
	})
}

type countingTelemetry struct {
	passed, failed int
	failedGates    []string
	calls          int
}

func (c *countingTelemetry) RecordGateEvaluation(passed, failed int, failedGates []string) {
	c.passed, c.failed, c.failedGates = passed, failed, failedGates
	c.calls++
}

func TestTelemetryEmittedEveryEvaluation(t *testing.T) {
	sink := &countingTelemetry{}
	e := NewEvaluator(nil, sink)

	e.RunGuardianCI(Input{BrainConfidence: 50})
	require.Equal(t, 1, sink.calls)
	assert.Equal(t, 4, sink.passed)
	assert.Equal(t, 1, sink.failed)
	assert.Equal(t, []string{"confidence"}, sink.failedGates)
}
