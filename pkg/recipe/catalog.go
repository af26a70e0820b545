package recipe

import (
	"fmt"
	"os"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/mend/pkg/contracts"
)

// EngineVersion is the catalog compatibility version of this build.
const EngineVersion = "1.0.0"

// Catalog is a versioned collection of recipes loaded from YAML.
type Catalog struct {
	Version string   `yaml:"version"`
	Engine  string   `yaml:"engine,omitempty"` // semver constraint on EngineVersion
	Recipes []Recipe `yaml:"recipes"`

	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// LoadCatalog reads and validates a recipe catalog. Recipes with invalid
// CEL conditions or an incompatible engine constraint are rejected at load
// time, not at selection time.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog builds a catalog from raw YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}

	if c.Engine != "" {
		constraint, err := semver.NewConstraint(c.Engine)
		if err != nil {
			return nil, fmt.Errorf("catalog: engine constraint %q: %w", c.Engine, err)
		}
		if !constraint.Check(semver.MustParse(EngineVersion)) {
			return nil, fmt.Errorf("catalog: requires engine %q, this build is %s", c.Engine, EngineVersion)
		}
	}

	env, err := cel.NewEnv(
		cel.Variable("counts", cel.DynType),
		cel.Variable("total_issues", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("catalog: cel env: %w", err)
	}
	c.env = env
	c.programs = make(map[string]cel.Program)

	seen := make(map[string]struct{}, len(c.Recipes))
	for i := range c.Recipes {
		r := &c.Recipes[i]
		if r.ID == "" {
			return nil, fmt.Errorf("catalog: recipe %d has no id", i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate recipe id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
		if r.DefaultTrust == 0 {
			r.DefaultTrust = 0.6
		}
		if r.Condition != "" {
			if _, err := c.program(r.Condition); err != nil {
				return nil, fmt.Errorf("catalog: recipe %q condition: %w", r.ID, err)
			}
		}
	}
	return &c, nil
}

// Matches evaluates a recipe's admission condition against the metrics
// document. A recipe with no condition matches when its category count is
// positive. Evaluation errors fail closed: the recipe does not match.
func (c *Catalog) Matches(r *Recipe, m *contracts.Metrics) bool {
	if r.Condition == "" {
		return m.Counts[r.Category] > 0
	}

	prg, err := c.program(r.Condition)
	if err != nil {
		return false
	}

	counts := make(map[string]interface{}, len(m.Counts))
	for k, v := range m.Counts {
		counts[k] = v
	}
	out, _, err := prg.Eval(map[string]interface{}{
		"counts":       counts,
		"total_issues": m.TotalIssues,
	})
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

func (c *Catalog) program(expr string) (cel.Program, error) {
	c.mu.RLock()
	prg, hit := c.programs[expr]
	c.mu.RUnlock()
	if hit {
		return prg, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prg, hit = c.programs[expr]; hit {
		return prg, nil
	}

	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := c.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	c.programs[expr] = prg
	return prg, nil
}

// Get returns a recipe by id.
func (c *Catalog) Get(id string) (*Recipe, bool) {
	for i := range c.Recipes {
		if c.Recipes[i].ID == id {
			return &c.Recipes[i], true
		}
	}
	return nil, false
}
