// Package ledger is the immutable, append-only record of run outcomes.
//
// Each run produces exactly one entry, stored under its own file in the
// ledger directory. Entries carry a signature (SHA-256 over the RFC 8785
// canonical serialization of the payload) and are hash-chained to the
// previous head, so any mutation of history is detectable by recomputation.
// No update or delete operation exists.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Mindburn-Labs/mend/pkg/canonicalize"
	"github.com/Mindburn-Labs/mend/pkg/contracts"
)

// Run outcome statuses recorded in ledger payloads.
const (
	StatusOK        = "ok"        // all edits applied
	StatusRecovered = "recovered" // failure mid-apply, all files restored
	StatusFailed    = "failed"    // failure, restoration incomplete or not needed
	StatusReverted  = "reverted"  // applied, then rolled back by gate decision
	StatusNoop      = "noop"      // nothing to do this run
)

// ErrNotFound is returned when no entry exists for a run.
var ErrNotFound = errors.New("ledger entry not found")

// Payload is the signed body of a ledger entry.
type Payload struct {
	Status     string           `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	RecipeID   string           `json:"recipe_id,omitempty"`
	SnapshotID string           `json:"snapshot_id,omitempty"`
	Edits      []contracts.Edit `json:"edits,omitempty"`
}

// Entry is one immutable run record.
type Entry struct {
	RunID     string    `json:"run_id"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Signature string    `json:"signature"` // sha256: digest over canonical payload
	PrevHash  string    `json:"prev_hash"` // chain link to the previous head
	EntryHash string    `json:"entry_hash"`
	Payload   Payload   `json:"payload"`
}

// Store appends and reads entries under a directory, one file per run.
type Store struct {
	mu    sync.Mutex
	dir   string
	clock func() time.Time
}

// NewStore creates a ledger store writing to dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, clock: time.Now}
}

// WithClock overrides the clock for testing.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

func (s *Store) entryPath(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

// Append durably records the outcome of one run and returns the written
// path. Appending twice for the same run is an error: one durable outcome
// per run.
func (s *Store) Append(runID string, payload Payload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.entryPath(runID)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("ledger: entry for run %s already exists", runID)
	}

	entries, err := s.readAllLocked()
	if err != nil {
		return "", err
	}

	prevHash := "genesis"
	var seq uint64 = 1
	if n := len(entries); n > 0 {
		prevHash = entries[n-1].EntryHash
		seq = entries[n-1].Sequence + 1
	}

	sig, err := canonicalize.CanonicalHash(payload)
	if err != nil {
		return "", fmt.Errorf("ledger: sign payload: %w", err)
	}

	entry := Entry{
		RunID:     runID,
		Sequence:  seq,
		Timestamp: s.clock().UTC(),
		Signature: sig,
		PrevHash:  prevHash,
		Payload:   payload,
	}
	entry.EntryHash, err = entryHash(&entry)
	if err != nil {
		return "", err
	}

	raw, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", fmt.Errorf("ledger: marshal entry: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return "", fmt.Errorf("ledger: create dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return "", fmt.Errorf("ledger: write entry: %w", err)
	}
	return path, nil
}

// Get reads the entry for one run.
func (s *Store) Get(runID string) (*Entry, error) {
	raw, err := os.ReadFile(s.entryPath(runID))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: read entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("ledger: parse entry: %w", err)
	}
	return &e, nil
}

// History returns up to limit most recent entries, oldest first.
// limit <= 0 returns everything.
func (s *Store) History(limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAllLocked()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Verify recomputes every signature and chain link. Returns false with a
// reason at the first discrepancy.
func (s *Store) Verify() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAllLocked()
	if err != nil {
		return false, err.Error()
	}

	prevHash := "genesis"
	for i, e := range entries {
		if e.PrevHash != prevHash {
			return false, fmt.Sprintf("chain broken at %s: expected prev %s, got %s", e.RunID, prevHash, e.PrevHash)
		}
		sig, err := canonicalize.CanonicalHash(e.Payload)
		if err != nil {
			return false, fmt.Sprintf("entry %d: %v", i+1, err)
		}
		if sig != e.Signature {
			return false, fmt.Sprintf("signature mismatch for %s", e.RunID)
		}
		computed, err := entryHash(&e)
		if err != nil {
			return false, fmt.Sprintf("entry %d: %v", i+1, err)
		}
		if computed != e.EntryHash {
			return false, fmt.Sprintf("entry hash mismatch for %s", e.RunID)
		}
		prevHash = e.EntryHash
	}
	return true, "chain verified"
}

func (s *Store) readAllLocked() ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(matches))
	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("ledger: read %s: %w", path, err)
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("ledger: parse %s: %w", path, err)
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Sequence < entries[j].Sequence })
	return entries, nil
}

// entryHash covers everything except the hash field itself.
func entryHash(e *Entry) (string, error) {
	return canonicalize.CanonicalHash(map[string]interface{}{
		"run_id":    e.RunID,
		"sequence":  e.Sequence,
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
		"signature": e.Signature,
		"prev_hash": e.PrevHash,
	})
}
