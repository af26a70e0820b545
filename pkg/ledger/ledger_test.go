package ledger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/mend/pkg/contracts"
)

func TestAppendWritesSignedEntry(t *testing.T) {
	s := NewStore(t.TempDir())
	path, err := s.Append("run-1", Payload{
		Status:     StatusOK,
		RecipeID:   "fix-eslint",
		SnapshotID: "run-1",
		Edits:      []contracts.Edit{{Path: "a.go", DiffLineCount: 3}},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "run-1.json"))

	e, err := s.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, e.Payload.Status)
	assert.True(t, strings.HasPrefix(e.Signature, "sha256:"))
	assert.Equal(t, "genesis", e.PrevHash)
	assert.Equal(t, uint64(1), e.Sequence)
}

func TestAppendRejectsDuplicateRun(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Append("run-1", Payload{Status: StatusOK})
	require.NoError(t, err)
	_, err = s.Append("run-1", Payload{Status: StatusFailed})
	assert.Error(t, err)
}

func TestHistoryOrderAndLimit(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, id := range []string{"r1", "r2", "r3"} {
		_, err := s.Append(id, Payload{Status: StatusOK})
		require.NoError(t, err)
	}

	all, err := s.History(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r1", all[0].RunID)
	assert.Equal(t, "r3", all[2].RunID)

	last2, err := s.History(2)
	require.NoError(t, err)
	require.Len(t, last2, 2)
	assert.Equal(t, "r2", last2[0].RunID)
	assert.Equal(t, "r3", last2[1].RunID)
}

func TestChainLinksAndVerify(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Append("r1", Payload{Status: StatusOK})
	require.NoError(t, err)
	_, err = s.Append("r2", Payload{Status: StatusRecovered, Reason: "disk full"})
	require.NoError(t, err)

	e1, err := s.Get("r1")
	require.NoError(t, err)
	e2, err := s.Get("r2")
	require.NoError(t, err)
	assert.Equal(t, e1.EntryHash, e2.PrevHash)

	ok, reason := s.Verify()
	assert.True(t, ok, reason)
}

func TestVerifyDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	_, err := s.Append("r1", Payload{Status: StatusOK, RecipeID: "fix-eslint"})
	require.NoError(t, err)

	// Tamper: rewrite the payload without recomputing the signature.
	e, err := s.Get("r1")
	require.NoError(t, err)
	e.Payload.Status = StatusFailed
	tampered := *e
	writeEntryFile(t, filepath.Join(dir, "r1.json"), &tampered)

	ok, reason := s.Verify()
	assert.False(t, ok)
	assert.Contains(t, reason, "signature mismatch")
}

func TestVerifyDetectsTimestampTampering(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	_, err := s.Append("r1", Payload{Status: StatusOK})
	require.NoError(t, err)

	// Backdate the entry without recomputing the entry hash.
	e, err := s.Get("r1")
	require.NoError(t, err)
	e.Timestamp = e.Timestamp.Add(-24 * time.Hour)
	writeEntryFile(t, filepath.Join(dir, "r1.json"), e)

	ok, reason := s.Verify()
	assert.False(t, ok)
	assert.Contains(t, reason, "entry hash mismatch")
}

func writeEntryFile(t *testing.T, path string, e *Entry) {
	t.Helper()
	raw, err := json.MarshalIndent(e, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))
}

func TestGetNotFound(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttestationImprovementAndDigest(t *testing.T) {
	a := NewAttestor(t.TempDir()).WithClock(func() time.Time {
		return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	})
	att, err := a.Create("fix-eslint",
		map[string]float64{"eslintIssues": 10, "typescriptIssues": 2},
		map[string]float64{"eslintIssues": 1, "typescriptIssues": 2},
	)
	require.NoError(t, err)
	assert.Equal(t, 9.0, att.Improvement["eslintIssues"])
	assert.Equal(t, 0.0, att.Improvement["typescriptIssues"])
	assert.True(t, strings.HasPrefix(att.Hash, "sha256:"))

	ok, err := VerifyAttestation(att)
	require.NoError(t, err)
	assert.True(t, ok)

	att.Before["eslintIssues"] = 99
	ok, err = VerifyAttestation(att)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLIndexRebuildAndQuery(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Append("r1", Payload{Status: StatusOK, RecipeID: "fix-eslint"})
	require.NoError(t, err)
	_, err = s.Append("r2", Payload{Status: StatusFailed, RecipeID: "fix-eslint"})
	require.NoError(t, err)
	_, err = s.Append("r3", Payload{Status: StatusOK, RecipeID: "fix-imports"})
	require.NoError(t, err)

	idx, err := OpenSQLIndex(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Rebuild(ctx, s))

	outcomes, err := idx.OutcomesByRecipe(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "fix-eslint", outcomes[0].RecipeID)
	assert.Equal(t, 2, outcomes[0].Total)
	assert.Equal(t, 1, outcomes[0].OK)

	recent, err := idx.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "r3", recent[0].RunID)
}
