// Package recipe defines the remediation catalog and the multi-signal
// selector that ranks candidate fixes for one run.
package recipe

import "github.com/Mindburn-Labs/mend/pkg/contracts"

// Action is one remediation step inside a recipe.
type Action struct {
	Type    string            `yaml:"type" json:"type"` // e.g. "rewrite", "command"
	Target  string            `yaml:"target,omitempty" json:"target,omitempty"`
	Payload map[string]string `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// Recipe is a named, reusable bundle of remediation actions targeting one
// issue category. DefaultTrust is the selector's fallback trust score when
// no run history exists for the recipe.
type Recipe struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	Category     string   `yaml:"category" json:"category"` // metrics count key it addresses
	Priority     int      `yaml:"priority" json:"priority"`
	DefaultTrust float64  `yaml:"default_trust" json:"default_trust"` // 0.6-0.95
	Condition    string   `yaml:"condition" json:"condition"`         // CEL over the metrics document
	Actions      []Action `yaml:"actions" json:"actions"`
}

// SafetyClass is the three-level verdict on unattended execution.
type SafetyClass string

const (
	SafetyUnsafe SafetyClass = "unsafe"
	SafetyReview SafetyClass = "review"
	SafetySafe   SafetyClass = "safe"
)

// rank orders safety classes: unsafe < review < safe.
func (s SafetyClass) rank() int {
	switch s {
	case SafetySafe:
		return 2
	case SafetyReview:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s meets the floor f.
func (s SafetyClass) AtLeast(f SafetyClass) bool { return s.rank() >= f.rank() }

// Scores breaks down the ranking signals for one candidate.
type Scores struct {
	ML     float64 `json:"ml_score"`
	Trust  float64 `json:"trust_score"`
	Fusion float64 `json:"fusion_score"`
	Final  float64 `json:"final_score"`
}

// Selected is one ranked, safety-classified candidate. Justification is a
// human-readable audit trail of how the scores and verdict were derived.
type Selected struct {
	Recipe        *Recipe     `json:"recipe"`
	Scores        Scores      `json:"scores"`
	Safety        SafetyClass `json:"safety_class"`
	Issues        []string    `json:"issues"` // matched metric categories
	Justification []string    `json:"justification"`
}

// Planner builds a concrete edit plan from a recipe and observed metrics.
// The control plane treats plan construction as external: detectors know
// what the fix looks like, the core only governs whether it may land.
type Planner interface {
	Plan(r *Recipe, metrics *contracts.Metrics) (*contracts.Plan, error)
}
