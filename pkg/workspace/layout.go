// Package workspace resolves the per-workspace state root that holds all
// durable control-plane files: policy, snapshots, ledger, trust and
// attestations. Everything is plain files; no external database is required.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout resolves paths under the state root.
type Layout struct {
	Root string
}

// NewLayout creates the layout rooted at root, creating the directory
// structure if needed.
func NewLayout(root string) (*Layout, error) {
	l := &Layout{Root: root}
	for _, dir := range []string{root, l.SnapshotsDir(), l.LedgerDir(), l.AttestationsDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("workspace: create %s: %w", dir, err)
		}
	}
	return l, nil
}

// PolicyFile is the primary governance policy source.
func (l *Layout) PolicyFile() string { return filepath.Join(l.Root, "policy.yaml") }

// LegacyGatesFile is the legacy JSON fallback consulted when the primary
// policy file does not exist.
func (l *Layout) LegacyGatesFile() string { return filepath.Join(l.Root, "gates.json") }

// SnapshotsDir holds one subdirectory per run.
func (l *Layout) SnapshotsDir() string { return filepath.Join(l.Root, "snapshots") }

// LedgerDir holds one immutable entry file per run.
func (l *Layout) LedgerDir() string { return filepath.Join(l.Root, "ledger") }

// TrustFile holds the per-recipe trust records.
func (l *Layout) TrustFile() string { return filepath.Join(l.Root, "trust.json") }

// AttestationsDir holds signed improvement proofs.
func (l *Layout) AttestationsDir() string { return filepath.Join(l.Root, "attestations") }

// LedgerIndexFile is the optional SQLite read-model over ledger history.
func (l *Layout) LedgerIndexFile() string { return filepath.Join(l.Root, "ledger.db") }
