package governance

import (
	"fmt"

	"github.com/Mindburn-Labs/mend/pkg/contracts"
)

// Violation is returned when an edit set exceeds the governance limits.
// It carries the specific path and limit for operator diagnosis and is
// always recoverable: nothing has been mutated when it is raised.
type Violation struct {
	Rule   string // "max_files" | "protected_path" | "max_loc_per_file"
	Path   string // offending path, empty for set-level rules
	Limit  int
	Actual int
}

func (v *Violation) Error() string {
	switch v.Rule {
	case "max_files":
		return fmt.Sprintf("policy violation: %d edits exceed max_files %d", v.Actual, v.Limit)
	case "protected_path":
		return fmt.Sprintf("policy violation: %s matches a protected path", v.Path)
	case "max_loc_per_file":
		return fmt.Sprintf("policy violation: %s changes %d lines, exceeds max_loc_per_file %d", v.Path, v.Actual, v.Limit)
	default:
		return "policy violation"
	}
}

// Guard validates proposed edit sets against a Policy. It has no side
// effects and is idempotent; it MUST run before any filesystem mutation.
type Guard struct{}

// NewGuard creates a Guard.
func NewGuard() *Guard { return &Guard{} }

// Validate checks the edit set against policy, short-circuiting on the
// first violation. Evaluation order does not matter for correctness.
func (g *Guard) Validate(edits []contracts.Edit, policy Policy) error {
	if len(edits) > policy.MaxFiles {
		return &Violation{Rule: "max_files", Limit: policy.MaxFiles, Actual: len(edits)}
	}
	for _, e := range edits {
		for _, pattern := range policy.ProtectedPaths {
			if matchProtected(pattern, e.Path) {
				return &Violation{Rule: "protected_path", Path: e.Path}
			}
		}
		if e.DiffLineCount > policy.MaxLocPerFile {
			return &Violation{Rule: "max_loc_per_file", Path: e.Path, Limit: policy.MaxLocPerFile, Actual: e.DiffLineCount}
		}
	}
	return nil
}
