package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Mindburn-Labs/mend/pkg/canonicalize"
)

// Attestation is a cryptographically hashed proof binding a recipe, its
// before/after metrics, and a timestamp. One is created only when a run is
// both applied and gate-approved. The digest provides tamper-evidence
// (any party can recompute and compare) but is not used for access control.
type Attestation struct {
	Hash        string             `json:"hash"`
	RecipeID    string             `json:"recipe_id"`
	Timestamp   time.Time          `json:"timestamp"`
	Before      map[string]float64 `json:"before_metrics"`
	After       map[string]float64 `json:"after_metrics"`
	Improvement map[string]float64 `json:"improvement"`
}

// Attestor creates and persists attestations under a directory, grouped
// by kind.
type Attestor struct {
	dir   string
	clock func() time.Time
}

// NewAttestor creates an attestor writing under dir.
func NewAttestor(dir string) *Attestor {
	return &Attestor{dir: dir, clock: time.Now}
}

// WithClock overrides the clock for testing.
func (a *Attestor) WithClock(clock func() time.Time) *Attestor {
	a.clock = clock
	return a
}

// Create computes per-metric improvement (before - after) and a digest over
// {recipeID, before, after, timestamp}, then persists the attestation.
func (a *Attestor) Create(recipeID string, before, after map[string]float64) (*Attestation, error) {
	improvement := make(map[string]float64, len(before))
	for name, b := range before {
		improvement[name] = b - after[name]
	}

	att := &Attestation{
		RecipeID:    recipeID,
		Timestamp:   a.clock().UTC(),
		Before:      before,
		After:       after,
		Improvement: improvement,
	}

	hash, err := canonicalize.CanonicalHash(map[string]interface{}{
		"recipe_id":      att.RecipeID,
		"before_metrics": att.Before,
		"after_metrics":  att.After,
		"timestamp":      att.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("attestation: digest: %w", err)
	}
	att.Hash = hash

	kindDir := filepath.Join(a.dir, "improvement")
	if err := os.MkdirAll(kindDir, 0o750); err != nil {
		return nil, fmt.Errorf("attestation: create dir: %w", err)
	}
	raw, err := json.MarshalIndent(att, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("attestation: marshal: %w", err)
	}
	name := fmt.Sprintf("%s-%d.json", recipeID, att.Timestamp.UnixNano())
	if err := os.WriteFile(filepath.Join(kindDir, name), raw, 0o600); err != nil {
		return nil, fmt.Errorf("attestation: write: %w", err)
	}
	return att, nil
}

// VerifyAttestation recomputes the digest of an attestation and compares.
func VerifyAttestation(att *Attestation) (bool, error) {
	hash, err := canonicalize.CanonicalHash(map[string]interface{}{
		"recipe_id":      att.RecipeID,
		"before_metrics": att.Before,
		"after_metrics":  att.After,
		"timestamp":      att.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		return false, err
	}
	return hash == att.Hash, nil
}
