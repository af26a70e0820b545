package contracts

// Metrics is the flat record produced by the external Observe stage: named
// issue counts per detector category plus optional per-category detail lists.
// The control plane does not care how it was produced, only that TotalIssues
// equals the sum of the category counts.
type Metrics struct {
	RunID       string                   `json:"run_id"`
	Timestamp   string                   `json:"timestamp"` // ISO 8601
	TotalIssues int                      `json:"total_issues"`
	Counts      map[string]int           `json:"counts"`
	Details     map[string][]IssueDetail `json:"details,omitempty"`
}

// IssueDetail is one observed issue within a category.
type IssueDetail struct {
	File     string  `json:"file,omitempty"`
	Rule     string  `json:"rule,omitempty"`
	Message  string  `json:"message,omitempty"`
	Risk     float64 `json:"risk,omitempty"`
	Priority int     `json:"priority,omitempty"`
}

// Consistent reports whether TotalIssues matches the sum of category counts.
func (m *Metrics) Consistent() bool {
	sum := 0
	for _, c := range m.Counts {
		sum += c
	}
	return sum == m.TotalIssues
}

// Files returns the distinct files referenced by issue details, in no
// particular order.
func (m *Metrics) Files() []string {
	seen := make(map[string]struct{})
	var files []string
	for _, details := range m.Details {
		for _, d := range details {
			if d.File == "" {
				continue
			}
			if _, dup := seen[d.File]; dup {
				continue
			}
			seen[d.File] = struct{}{}
			files = append(files, d.File)
		}
	}
	return files
}
