// Package archive assembles evidence bundles for completed runs (the
// ledger entry, its snapshot manifest and any attestations) and
// optionally ships them off-box for retention.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Mindburn-Labs/mend/pkg/canonicalize"
	"github.com/Mindburn-Labs/mend/pkg/ledger"
	"github.com/Mindburn-Labs/mend/pkg/snapshot"
)

// Bundle is the exported evidence for one run. BundleHash covers the
// canonical form of everything above it, so a bundle is self-verifying.
type Bundle struct {
	RunID        string               `json:"run_id"`
	GeneratedAt  time.Time            `json:"generated_at"`
	Entry        *ledger.Entry        `json:"entry"`
	Manifest     *snapshot.Manifest   `json:"manifest,omitempty"`
	Attestations []ledger.Attestation `json:"attestations,omitempty"`
	BundleHash   string               `json:"bundle_hash"`
}

// Store persists an exported bundle and returns its content hash.
type Store interface {
	Store(ctx context.Context, data []byte) (string, error)
}

// Exporter builds bundles from the run stores.
type Exporter struct {
	ledger    *ledger.Store
	snapshots *snapshot.Store
	attDir    string // attestations root; empty disables inclusion
	remote    Store  // optional off-box retention
	logger    *slog.Logger
	clock     func() time.Time
}

// NewExporter wires an exporter. remote may be nil for local-only use.
func NewExporter(led *ledger.Store, snaps *snapshot.Store, attestationsDir string, remote Store) *Exporter {
	return &Exporter{
		ledger:    led,
		snapshots: snaps,
		attDir:    attestationsDir,
		remote:    remote,
		logger:    slog.Default().With("component", "archive"),
		clock:     time.Now,
	}
}

// WithClock overrides the clock for testing.
func (e *Exporter) WithClock(clock func() time.Time) *Exporter {
	e.clock = clock
	return e
}

// Export assembles the bundle for a run, writes it under outDir, and
// uploads it when a remote store is configured. The remote hash is
// returned alongside the local path; an upload failure fails the
// export, never the run it evidences.
func (e *Exporter) Export(ctx context.Context, runID, outDir string) (string, string, error) {
	bundle, err := e.build(runID)
	if err != nil {
		return "", "", err
	}

	raw, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("archive: marshal bundle: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return "", "", fmt.Errorf("archive: create %s: %w", outDir, err)
	}
	path := filepath.Join(outDir, runID+".bundle.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return "", "", fmt.Errorf("archive: write bundle: %w", err)
	}

	var remoteHash string
	if e.remote != nil {
		remoteHash, err = e.remote.Store(ctx, raw)
		if err != nil {
			return path, "", fmt.Errorf("archive: remote store: %w", err)
		}
		e.logger.Info("bundle uploaded", "run_id", runID, "hash", remoteHash)
	}
	return path, remoteHash, nil
}

func (e *Exporter) build(runID string) (*Bundle, error) {
	entry, err := e.ledger.Get(runID)
	if err != nil {
		return nil, fmt.Errorf("archive: run %s: %w", runID, err)
	}

	bundle := &Bundle{
		RunID:       runID,
		GeneratedAt: e.clock().UTC(),
		Entry:       entry,
	}

	if entry.Payload.SnapshotID != "" {
		manifest, err := e.snapshots.Load(entry.Payload.SnapshotID)
		if err != nil && err != snapshot.ErrNotFound {
			return nil, fmt.Errorf("archive: load manifest: %w", err)
		}
		bundle.Manifest = manifest
	}

	if e.attDir != "" && entry.Payload.RecipeID != "" {
		atts, err := collectAttestations(e.attDir, entry.Payload.RecipeID)
		if err != nil {
			return nil, err
		}
		bundle.Attestations = atts
	}

	hash, err := canonicalize.CanonicalHash(struct {
		RunID        string               `json:"run_id"`
		Entry        *ledger.Entry        `json:"entry"`
		Manifest     *snapshot.Manifest   `json:"manifest,omitempty"`
		Attestations []ledger.Attestation `json:"attestations,omitempty"`
	}{bundle.RunID, bundle.Entry, bundle.Manifest, bundle.Attestations})
	if err != nil {
		return nil, fmt.Errorf("archive: hash bundle: %w", err)
	}
	bundle.BundleHash = hash
	return bundle, nil
}

// collectAttestations gathers the improvement attestations recorded
// for a recipe. A missing directory just means none were made.
func collectAttestations(root, recipeID string) ([]ledger.Attestation, error) {
	dir := filepath.Join(root, "improvement")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: read attestations: %w", err)
	}

	var out []ledger.Attestation
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, de.Name()))
		if err != nil {
			return nil, fmt.Errorf("archive: read attestation %s: %w", de.Name(), err)
		}
		var att ledger.Attestation
		if err := json.Unmarshal(raw, &att); err != nil {
			return nil, fmt.Errorf("archive: parse attestation %s: %w", de.Name(), err)
		}
		if att.RecipeID == recipeID {
			out = append(out, att)
		}
	}
	return out, nil
}
