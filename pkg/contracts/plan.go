// Package contracts holds the shared value types exchanged between the
// control-plane components: proposed edits, plans, and observed metrics.
// Values here are created once and never mutated after construction.
package contracts

import "time"

// Edit is one proposed file mutation. It is consumed exactly once by the
// transactional executor and never mutated after creation.
type Edit struct {
	Path          string `json:"path"`
	NewContent    string `json:"new_content"`
	DiffLineCount int    `json:"diff_line_count"`
}

// Plan is a named, ordered set of edits produced by a recipe's actions.
// The plan itself is discarded after the Act phase; its outcome lives in
// the ledger entry for the run.
type Plan struct {
	ID        string    `json:"id"`
	RecipeID  string    `json:"recipe_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Edits     []Edit    `json:"edits"`
}

// Paths returns the target paths of all edits, in plan order.
func (p *Plan) Paths() []string {
	paths := make([]string, len(p.Edits))
	for i, e := range p.Edits {
		paths[i] = e.Path
	}
	return paths
}
