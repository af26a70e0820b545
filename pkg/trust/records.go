package trust

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"
)

// Blacklisting thresholds. A recipe crossing either is excluded from
// selection until an explicit reset.
const (
	BlacklistConsecutiveFailures = 3
	BlacklistSuccessRateFloor    = 0.2
)

// Record holds rolling outcome statistics for one recipe.
type Record struct {
	SuccessRate         float64 `json:"success_rate"`
	TotalRuns           int     `json:"total_runs"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
}

// Blacklisted reports whether this record crosses a blacklist threshold.
func (r Record) Blacklisted() bool {
	if r.ConsecutiveFailures >= BlacklistConsecutiveFailures {
		return true
	}
	return r.TotalRuns > 0 && r.SuccessRate < BlacklistSuccessRateFloor
}

// Store persists per-recipe records to a JSON file. Records are read at the
// start of a run and written exactly once at its end, so no run observes
// another run's half-written state.
type Store struct {
	mu      sync.RWMutex
	path    string
	records map[string]Record
}

// NewStore loads (or initializes) the trust store at path.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, records: make(map[string]Record)}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("trust: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &s.records); err != nil {
		return nil, fmt.Errorf("trust: parse %s: %w", path, err)
	}
	return s, nil
}

// Get returns the record for a recipe and whether one exists.
func (s *Store) Get(recipeID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recipeID]
	return r, ok
}

// All returns a copy of every record.
func (s *Store) All() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

// Update folds one completed run's outcome into the recipe's record as a
// weighted average over all runs, then persists.
func (s *Store) Update(recipeID string, success bool) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.records[recipeID]
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	r.SuccessRate = (r.SuccessRate*float64(r.TotalRuns) + outcome) / float64(r.TotalRuns+1)
	r.SuccessRate = math.Round(r.SuccessRate*10000) / 10000
	r.TotalRuns++
	if success {
		r.ConsecutiveFailures = 0
	} else {
		r.ConsecutiveFailures++
	}
	s.records[recipeID] = r

	if err := s.saveLocked(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Reset clears a recipe's record, making a blacklisted recipe eligible
// again. This is the only path out of a blacklist.
func (s *Store) Reset(recipeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, recipeID)
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	raw, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("trust: marshal: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("trust: write %s: %w", s.path, err)
	}
	return nil
}
