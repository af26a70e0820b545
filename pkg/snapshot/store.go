// Package snapshot provides content-addressed pre-mutation backups, keyed by
// run identifier. A snapshot is created immediately before any edit is
// applied, is read-only once written, and is used exactly once for rollback
// if the run fails.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Mindburn-Labs/mend/pkg/canonicalize"
)

// ErrNotFound is returned when no snapshot exists for the given id.
var ErrNotFound = errors.New("snapshot not found")

// FileRecord maps one backed-up path to its content-addressed blob.
type FileRecord struct {
	Path string `json:"path"`
	Hash string `json:"hash"` // sha256: digest of the pre-run bytes
	Size int64  `json:"size"`
	Mode uint32 `json:"mode"`
}

// Manifest describes one snapshot.
type Manifest struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	Files     []FileRecord `json:"files"`
}

// Store persists snapshots under <root>/<snapshotID>/, with blobs named by
// their content hash and a manifest.json mapping paths to blobs.
type Store struct {
	root  string
	clock func() time.Time
}

// NewStore creates a snapshot store rooted at root.
func NewStore(root string) *Store {
	return &Store{root: root, clock: time.Now}
}

// WithClock overrides the clock for testing.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

func (s *Store) dir(id string) string { return filepath.Join(s.root, id) }

func (s *Store) manifestPath(id string) string {
	return filepath.Join(s.dir(id), "manifest.json")
}

// Create backs up the current bytes of every path that exists. Paths that
// do not exist are skipped: they represent file creation and have nothing
// to restore. The returned manifest is immutable once written.
func (s *Store) Create(snapshotID string, paths []string) (*Manifest, error) {
	dir := s.dir(snapshotID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}

	m := &Manifest{ID: snapshotID, CreatedAt: s.clock(), Files: []FileRecord{}}
	for _, p := range paths {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("snapshot: stat %s: %w", p, err)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("snapshot: read %s: %w", p, err)
		}

		hash := canonicalize.HashBytes(data)
		blob := filepath.Join(dir, blobName(hash))
		if err := os.WriteFile(blob, data, 0o600); err != nil {
			return nil, fmt.Errorf("snapshot: write blob for %s: %w", p, err)
		}

		m.Files = append(m.Files, FileRecord{
			Path: p,
			Hash: hash,
			Size: info.Size(),
			Mode: uint32(info.Mode().Perm()),
		})
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal manifest: %w", err)
	}
	if err := os.WriteFile(s.manifestPath(snapshotID), raw, 0o600); err != nil {
		return nil, fmt.Errorf("snapshot: write manifest: %w", err)
	}
	return m, nil
}

// Load reads the manifest for a snapshot.
func (s *Store) Load(snapshotID string) (*Manifest, error) {
	raw, err := os.ReadFile(s.manifestPath(snapshotID))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("snapshot: parse manifest: %w", err)
	}
	return &m, nil
}

// Restore writes every snapshotted file back to its pre-run bytes. A
// write-ahead marker is placed before the first write and removed by
// ClearRestoreMarker only after the recovery ledger entry has been
// appended, so a crash mid-restore is detectable on the next start.
func (s *Store) Restore(snapshotID string) error {
	m, err := s.Load(snapshotID)
	if err != nil {
		return err
	}

	if err := s.writeRestoreMarker(snapshotID); err != nil {
		return err
	}

	for _, f := range m.Files {
		data, err := os.ReadFile(filepath.Join(s.dir(snapshotID), blobName(f.Hash)))
		if err != nil {
			return fmt.Errorf("snapshot: read blob %s: %w", f.Hash, err)
		}
		if canonicalize.HashBytes(data) != f.Hash {
			return fmt.Errorf("snapshot: blob corruption for %s: digest mismatch", f.Path)
		}
		mode := os.FileMode(f.Mode)
		if mode == 0 {
			mode = 0o600
		}
		if err := os.WriteFile(f.Path, data, mode); err != nil {
			return fmt.Errorf("snapshot: restore %s: %w", f.Path, err)
		}
	}
	return nil
}

// Delete removes a snapshot per the retention policy.
func (s *Store) Delete(snapshotID string) error {
	return os.RemoveAll(s.dir(snapshotID))
}

// markerPath is the write-ahead restore marker location for a snapshot.
func (s *Store) markerPath(snapshotID string) string {
	return filepath.Join(s.dir(snapshotID), ".restoring")
}

func (s *Store) writeRestoreMarker(snapshotID string) error {
	if err := os.WriteFile(s.markerPath(snapshotID), []byte(s.clock().UTC().Format(time.RFC3339)), 0o600); err != nil {
		return fmt.Errorf("snapshot: write restore marker: %w", err)
	}
	return nil
}

// ClearRestoreMarker removes the write-ahead marker once the recovery
// ledger entry has been durably appended.
func (s *Store) ClearRestoreMarker(snapshotID string) error {
	err := os.Remove(s.markerPath(snapshotID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("snapshot: clear restore marker: %w", err)
	}
	return nil
}

// PendingRestore reports whether a restore marker was left behind by a
// crash between restore and the recovery ledger append.
func (s *Store) PendingRestore(snapshotID string) bool {
	_, err := os.Stat(s.markerPath(snapshotID))
	return err == nil
}

func blobName(hash string) string {
	// "sha256:<hex>" -> "<hex>.blob"
	if len(hash) > 7 {
		return hash[7:] + ".blob"
	}
	return hash + ".blob"
}
