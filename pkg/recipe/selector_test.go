package recipe

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/mend/pkg/contracts"
	"github.com/Mindburn-Labs/mend/pkg/trust"
)

// stubPredictor returns fixed scores for deterministic ranking tests.
type stubPredictor struct {
	ml      float64
	fusion  float64
	mlErr   error
	fuseErr error
}

func (s stubPredictor) Predict(Features) (Prediction, error) {
	if s.mlErr != nil {
		return Prediction{}, s.mlErr
	}
	return Prediction{HeuristicPrediction: s.ml, EnsembleFailureProbability: 1 - s.ml}, nil
}

func (s stubPredictor) Fuse(FusionInputs) (float64, error) {
	if s.fuseErr != nil {
		return 0, s.fuseErr
	}
	return s.fusion, nil
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := ParseCatalog([]byte(`
version: "1.0.0"
engine: ">= 1.0.0"
recipes:
  - id: fix-eslint
    name: Fix ESLint findings
    category: eslintIssues
    priority: 10
    default_trust: 0.9
  - id: fix-typescript
    name: Fix TypeScript diagnostics
    category: typescriptIssues
    priority: 5
    default_trust: 0.7
`))
	require.NoError(t, err)
	return c
}

func newTrustStore(t *testing.T) *trust.Store {
	t.Helper()
	s, err := trust.NewStore(filepath.Join(t.TempDir(), "trust.json"))
	require.NoError(t, err)
	return s
}

func TestSelectTopCandidateScenario(t *testing.T) {
	// Metrics {eslintIssues: 10, typescriptIssues: 0}, trust 0.9,
	// mlScore 0.8, fusionScore 0.85:
	// final = 0.4*0.8 + 0.3*0.9 + 0.3*0.85 = 0.845, safe, top-1.
	catalog := testCatalog(t)
	sel := NewSelector(catalog, newTrustStore(t), stubPredictor{ml: 0.8, fusion: 0.85}, nil)

	m := &contracts.Metrics{
		RunID:       "r1",
		TotalIssues: 10,
		Counts:      map[string]int{"eslintIssues": 10, "typescriptIssues": 0},
	}
	out := sel.Select(m, Options{})
	require.Len(t, out, 1)

	top := out[0]
	assert.Equal(t, "fix-eslint", top.Recipe.ID)
	assert.InDelta(t, 0.845, top.Scores.Final, 1e-9)
	assert.Equal(t, SafetySafe, top.Safety)
	assert.Equal(t, []string{"eslintIssues"}, top.Issues)
	assert.NotEmpty(t, top.Justification)
}

func TestSelectExcludesBlacklistedRecipe(t *testing.T) {
	catalog := testCatalog(t)
	store := newTrustStore(t)
	for i := 0; i < 3; i++ {
		_, err := store.Update("fix-eslint", false)
		require.NoError(t, err)
	}

	// Even a perfect score cannot resurrect a blacklisted recipe.
	sel := NewSelector(catalog, store, stubPredictor{ml: 1.0, fusion: 1.0}, nil)
	m := &contracts.Metrics{TotalIssues: 10, Counts: map[string]int{"eslintIssues": 10}}
	out := sel.Select(m, Options{})
	assert.Empty(t, out)
}

func TestSelectSafetyFloorDropsReviewCandidates(t *testing.T) {
	catalog := testCatalog(t)
	// ml 0.6 keeps the candidate below the "safe" ML threshold.
	sel := NewSelector(catalog, newTrustStore(t), stubPredictor{ml: 0.6, fusion: 0.9}, nil)
	m := &contracts.Metrics{TotalIssues: 5, Counts: map[string]int{"eslintIssues": 5}}

	assert.Empty(t, sel.Select(m, Options{}))

	// Relaxing the floor admits the same candidate.
	out := sel.Select(m, Options{SafetyFloor: SafetyReview})
	require.Len(t, out, 1)
	assert.Equal(t, SafetyReview, out[0].Safety)
}

func TestSelectAggressivenessRelaxesFloorToReview(t *testing.T) {
	catalog := testCatalog(t)
	sel := NewSelector(catalog, newTrustStore(t), stubPredictor{ml: 0.6, fusion: 0.9}, nil)
	m := &contracts.Metrics{TotalIssues: 5, Counts: map[string]int{"eslintIssues": 5}}

	assert.Empty(t, sel.Select(m, Options{Aggressiveness: 0.3}))

	out := sel.Select(m, Options{Aggressiveness: 0.8})
	require.Len(t, out, 1)
	assert.Equal(t, SafetyReview, out[0].Safety)
}

func TestSelectFusionFallbackWhenEnsembleUnavailable(t *testing.T) {
	catalog := testCatalog(t)
	sel := NewSelector(catalog, newTrustStore(t),
		stubPredictor{ml: 0.8, fuseErr: ErrPredictorUnavailable}, nil)
	m := &contracts.Metrics{TotalIssues: 10, Counts: map[string]int{"eslintIssues": 10}}

	out := sel.Select(m, Options{})
	require.Len(t, out, 1)
	// fusion degrades to 0.6*0.8 + 0.4*0.9 = 0.84
	assert.InDelta(t, 0.84, out[0].Scores.Fusion, 1e-9)
}

func TestSelectOrdersByFinalScoreAndCaps(t *testing.T) {
	catalog := testCatalog(t)
	sel := NewSelector(catalog, newTrustStore(t), stubPredictor{ml: 0.9, fusion: 0.9}, nil)
	m := &contracts.Metrics{
		TotalIssues: 15,
		Counts:      map[string]int{"eslintIssues": 10, "typescriptIssues": 5},
	}

	out := sel.Select(m, Options{SafetyFloor: SafetyReview})
	require.Len(t, out, 2)
	// fix-eslint has default trust 0.9 vs 0.7, so it scores higher.
	assert.Equal(t, "fix-eslint", out[0].Recipe.ID)
	assert.Greater(t, out[0].Scores.Final, out[1].Scores.Final)

	capped := sel.Select(m, Options{SafetyFloor: SafetyReview, MaxRecipes: 1})
	require.Len(t, capped, 1)
	assert.Equal(t, "fix-eslint", capped[0].Recipe.ID)
}

func TestSelectNoMatchingRecipes(t *testing.T) {
	catalog := testCatalog(t)
	sel := NewSelector(catalog, newTrustStore(t), stubPredictor{ml: 0.9, fusion: 0.9}, nil)
	m := &contracts.Metrics{TotalIssues: 3, Counts: map[string]int{"securityIssues": 3}}
	assert.Empty(t, sel.Select(m, Options{}))
}

func TestHeuristicPredictorBounds(t *testing.T) {
	p := HeuristicPredictor{}
	pred, err := p.Predict(Features{IssueCount: 100, FileTypeRisk: 1, AvgIssueRisk: 1})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pred.HeuristicPrediction, 0.0)
	assert.LessOrEqual(t, pred.HeuristicPrediction, 1.0)

	fused, err := p.Fuse(FusionInputs{Heuristic: 1, Neural: 1, MultiTask: 1, Bayesian: 1, FileTypeRisk: 0})
	require.NoError(t, err)
	assert.LessOrEqual(t, fused, 1.0)
}
