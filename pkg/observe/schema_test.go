package observe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/mend/pkg/contracts"
)

func TestValidateMetricsAcceptsWellFormed(t *testing.T) {
	m := &contracts.Metrics{
		RunID:       "run-1",
		Timestamp:   "2026-08-31T12:00:00Z",
		TotalIssues: 3,
		Counts:      map[string]int{"lint": 2, "security": 1},
	}
	assert.NoError(t, ValidateMetrics(m))
}

func TestValidateMetricsRejectsSumMismatch(t *testing.T) {
	m := &contracts.Metrics{
		RunID:       "run-2",
		Timestamp:   "2026-08-31T12:00:00Z",
		TotalIssues: 5,
		Counts:      map[string]int{"lint": 2},
	}
	err := ValidateMetrics(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum of counts")
}

func TestValidateMetricsRejectsMissingRunID(t *testing.T) {
	m := &contracts.Metrics{
		Timestamp:   "2026-08-31T12:00:00Z",
		TotalIssues: 0,
		Counts:      map[string]int{},
	}
	assert.Error(t, ValidateMetrics(m))
}

func TestParseMetricsRoundsThroughSchema(t *testing.T) {
	raw := []byte(`{
		"run_id": "run-3",
		"timestamp": "2026-08-31T12:00:00Z",
		"total_issues": 1,
		"counts": {"lint": 1},
		"details": {"lint": [{"file": "a.go", "rule": "unused", "risk": 0.3, "priority": 4}]}
	}`)
	m, err := ParseMetrics(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Counts["lint"])
	require.Len(t, m.Details["lint"], 1)

	_, err = ParseMetrics([]byte(`{"total_issues": -1}`))
	assert.Error(t, err)
}
