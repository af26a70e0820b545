package observe

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/mend/pkg/contracts"
)

const metricsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["run_id", "timestamp", "total_issues", "counts"],
  "properties": {
    "run_id": {"type": "string", "minLength": 1},
    "timestamp": {"type": "string", "minLength": 1},
    "total_issues": {"type": "integer", "minimum": 0},
    "counts": {
      "type": "object",
      "additionalProperties": {"type": "integer", "minimum": 0}
    },
    "details": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": {
          "type": "object",
          "properties": {
            "file": {"type": "string"},
            "rule": {"type": "string"},
            "message": {"type": "string"},
            "risk": {"type": "number", "minimum": 0, "maximum": 1},
            "priority": {"type": "integer"}
          }
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		const url = "https://mend.schemas.local/observe/metrics.schema.json"
		if err := c.AddResource(url, strings.NewReader(metricsSchema)); err != nil {
			schemaErr = fmt.Errorf("observe: schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(url)
	})
	return compiledSchema, schemaErr
}

// ValidateMetrics checks a metrics document against the boundary
// schema and the count-sum invariant. Documents arriving from outside
// the process pass through here before anything downstream sees them.
func ValidateMetrics(m *contracts.Metrics) error {
	if m == nil {
		return fmt.Errorf("observe: nil metrics")
	}
	s, err := compiled()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("observe: marshal metrics: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("observe: decode metrics: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("observe: metrics schema violation: %w", err)
	}
	if !m.Consistent() {
		return fmt.Errorf("observe: total_issues %d does not equal sum of counts", m.TotalIssues)
	}
	return nil
}

// ParseMetrics decodes and validates a metrics document from raw JSON.
func ParseMetrics(raw []byte) (*contracts.Metrics, error) {
	var m contracts.Metrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("observe: parse metrics: %w", err)
	}
	if err := ValidateMetrics(&m); err != nil {
		return nil, err
	}
	return &m, nil
}
