package ledger

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLIndex is an optional read-model over ledger history, rebuilt from the
// append-only files on demand. The files remain the source of truth; the
// index only serves history queries (run listings, per-recipe outcomes)
// without rescanning the directory.
type SQLIndex struct {
	db *sql.DB
}

// OpenSQLIndex opens (creating if needed) the index database at path.
func OpenSQLIndex(path string) (*SQLIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger index: open: %w", err)
	}
	idx := &SQLIndex{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (i *SQLIndex) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS entries (
		run_id TEXT PRIMARY KEY,
		sequence INTEGER NOT NULL,
		status TEXT NOT NULL,
		recipe_id TEXT NOT NULL DEFAULT '',
		snapshot_id TEXT NOT NULL DEFAULT '',
		signature TEXT NOT NULL,
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_recipe ON entries(recipe_id);`
	_, err := i.db.ExecContext(context.Background(), query)
	return err
}

// Rebuild replaces the index contents with the current ledger history.
func (i *SQLIndex) Rebuild(ctx context.Context, store *Store) error {
	entries, err := store.History(0)
	if err != nil {
		return err
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger index: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("ledger index: clear: %w", err)
	}
	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO entries (run_id, sequence, status, recipe_id, snapshot_id, signature, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.RunID, e.Sequence, e.Payload.Status, e.Payload.RecipeID, e.Payload.SnapshotID, e.Signature, e.Timestamp)
		if err != nil {
			return fmt.Errorf("ledger index: insert %s: %w", e.RunID, err)
		}
	}
	return tx.Commit()
}

// RecipeOutcome summarizes indexed outcomes for one recipe.
type RecipeOutcome struct {
	RecipeID string
	Total    int
	OK       int
}

// OutcomesByRecipe returns per-recipe outcome counts, most-run first.
func (i *SQLIndex) OutcomesByRecipe(ctx context.Context) ([]RecipeOutcome, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT recipe_id, COUNT(*), SUM(CASE WHEN status = 'ok' THEN 1 ELSE 0 END)
		FROM entries WHERE recipe_id != ''
		GROUP BY recipe_id ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("ledger index: query: %w", err)
	}
	defer rows.Close()

	var out []RecipeOutcome
	for rows.Next() {
		var o RecipeOutcome
		if err := rows.Scan(&o.RecipeID, &o.Total, &o.OK); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// RecentRuns returns the latest limit runs, newest first.
func (i *SQLIndex) RecentRuns(ctx context.Context, limit int) ([]RecipeOutcomeRow, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT run_id, status, recipe_id, signature
		FROM entries ORDER BY sequence DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger index: query: %w", err)
	}
	defer rows.Close()

	var out []RecipeOutcomeRow
	for rows.Next() {
		var r RecipeOutcomeRow
		if err := rows.Scan(&r.RunID, &r.Status, &r.RecipeID, &r.Signature); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecipeOutcomeRow is one indexed run row.
type RecipeOutcomeRow struct {
	RunID     string
	Status    string
	RecipeID  string
	Signature string
}

// Close releases the database handle.
func (i *SQLIndex) Close() error { return i.db.Close() }
