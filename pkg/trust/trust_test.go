package trust

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/mend/pkg/ledger"
)

func entriesWithStatuses(statuses ...string) []ledger.Entry {
	entries := make([]ledger.Entry, len(statuses))
	for i, st := range statuses {
		entries[i] = ledger.Entry{Sequence: uint64(i + 1), Payload: ledger.Payload{Status: st}}
	}
	return entries
}

func TestComputeScoreEmptyHistoryIsNeutral(t *testing.T) {
	assert.Equal(t, 1.0, ComputeScore(nil))
}

func TestComputeScoreAllSuccessesHitsCeiling(t *testing.T) {
	statuses := make([]string, 10)
	for i := range statuses {
		statuses[i] = ledger.StatusOK
	}
	assert.Equal(t, 1.5, ComputeScore(entriesWithStatuses(statuses...)))
}

func TestComputeScoreAllFailuresHitsFloor(t *testing.T) {
	statuses := make([]string, 10)
	for i := range statuses {
		statuses[i] = ledger.StatusFailed
	}
	assert.Equal(t, 0.5, ComputeScore(entriesWithStatuses(statuses...)))
}

func TestComputeScoreRecoveredCountsAsSuccess(t *testing.T) {
	score := ComputeScore(entriesWithStatuses(
		ledger.StatusRecovered, ledger.StatusRecovered,
		ledger.StatusFailed, ledger.StatusFailed,
	))
	assert.Equal(t, 1.0, score)
}

func TestComputeScoreNoopHistoryStaysNeutral(t *testing.T) {
	statuses := make([]string, 10)
	for i := range statuses {
		statuses[i] = ledger.StatusNoop
	}
	assert.Equal(t, 1.0, ComputeScore(entriesWithStatuses(statuses...)))
}

func TestComputeScoreSkipsNoopMarkers(t *testing.T) {
	// Two completed runs, one success each way; the no-op markers
	// in between carry no signal.
	score := ComputeScore(entriesWithStatuses(
		ledger.StatusOK, ledger.StatusNoop, ledger.StatusNoop, ledger.StatusFailed,
	))
	assert.Equal(t, 1.0, score)
}

func TestComputeScoreUsesOnlyRecentWindow(t *testing.T) {
	// 10 old failures followed by 10 successes: only the window counts.
	statuses := make([]string, 0, 20)
	for i := 0; i < 10; i++ {
		statuses = append(statuses, ledger.StatusFailed)
	}
	for i := 0; i < 10; i++ {
		statuses = append(statuses, ledger.StatusOK)
	}
	assert.Equal(t, 1.5, ComputeScore(entriesWithStatuses(statuses...)))
}

func TestComputeScoreRounding(t *testing.T) {
	// 2 of 3 successes: 1 + (2-1.5)/3 = 1.1666... -> 1.17
	score := ComputeScore(entriesWithStatuses(ledger.StatusOK, ledger.StatusOK, ledger.StatusFailed))
	assert.Equal(t, 1.17, score)
}

func TestStoreUpdateWeightedAverage(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "trust.json"))
	require.NoError(t, err)

	r, err := s.Update("fix-eslint", true)
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.SuccessRate)
	assert.Equal(t, 1, r.TotalRuns)

	r, err = s.Update("fix-eslint", false)
	require.NoError(t, err)
	assert.Equal(t, 0.5, r.SuccessRate)
	assert.Equal(t, 2, r.TotalRuns)
	assert.Equal(t, 1, r.ConsecutiveFailures)

	r, err = s.Update("fix-eslint", true)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, r.SuccessRate, 0.001)
	assert.Equal(t, 0, r.ConsecutiveFailures)
}

func TestStorePersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust.json")
	s, err := NewStore(path)
	require.NoError(t, err)
	_, err = s.Update("fix-imports", true)
	require.NoError(t, err)

	reloaded, err := NewStore(path)
	require.NoError(t, err)
	r, ok := reloaded.Get("fix-imports")
	require.True(t, ok)
	assert.Equal(t, 1, r.TotalRuns)
}

func TestBlacklistOnConsecutiveFailures(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "trust.json"))
	require.NoError(t, err)

	// Successes first so success rate stays above the floor.
	for i := 0; i < 12; i++ {
		_, err = s.Update("flaky", true)
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err = s.Update("flaky", false)
		require.NoError(t, err)
	}
	r, _ := s.Get("flaky")
	assert.False(t, r.Blacklisted())

	_, err = s.Update("flaky", false)
	require.NoError(t, err)
	r, _ = s.Get("flaky")
	assert.Equal(t, 3, r.ConsecutiveFailures)
	assert.True(t, r.Blacklisted())
}

func TestBlacklistOnLowSuccessRate(t *testing.T) {
	r := Record{SuccessRate: 0.19, TotalRuns: 20, ConsecutiveFailures: 1}
	assert.True(t, r.Blacklisted())

	r = Record{SuccessRate: 0.2, TotalRuns: 20}
	assert.False(t, r.Blacklisted())
}

func TestNewRecipeIsNotBlacklisted(t *testing.T) {
	var r Record
	assert.False(t, r.Blacklisted())
}

func TestResetClearsBlacklist(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "trust.json"))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = s.Update("bad", false)
		require.NoError(t, err)
	}
	r, _ := s.Get("bad")
	require.True(t, r.Blacklisted())

	require.NoError(t, s.Reset("bad"))
	_, ok := s.Get("bad")
	assert.False(t, ok)
}
