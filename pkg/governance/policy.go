// Package governance bounds the blast radius of a single remediation run.
//
// The guard is pure validation: it never touches the filesystem and it is
// agnostic to how the policy values were derived. Policy values themselves
// are adaptive: a companion adjuster widens or narrows the caps between
// runs based on aggregate trust.
package governance

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy holds the current blast-radius limits for one run. It is loaded at
// run start and treated as immutable for the duration of the run.
type Policy struct {
	MaxFiles       int      `yaml:"max_files" json:"max_files"`
	MaxLocPerFile  int      `yaml:"max_loc_per_file" json:"max_loc_per_file"`
	ProtectedPaths []string `yaml:"protected_paths" json:"protected_paths"`
}

// Floors below which adaptive narrowing never goes.
const (
	FloorMaxFiles      = 1
	FloorMaxLocPerFile = 10
)

// DefaultPolicy returns the conservative baseline limits.
func DefaultPolicy() Policy {
	return Policy{
		MaxFiles:      5,
		MaxLocPerFile: 120,
		ProtectedPaths: []string{
			".git/**",
			"go.sum",
			"**/*.pem",
			"**/*.key",
		},
	}
}

// LoadPolicy resolves the governance policy with explicit priority:
// the primary YAML file, then the legacy JSON fallback, then defaults.
// It returns one immutable Policy value; callers never mutate a shared
// configuration object.
func LoadPolicy(primaryPath, legacyPath string) (Policy, error) {
	if data, err := os.ReadFile(primaryPath); err == nil {
		var p Policy
		if err := yaml.Unmarshal(data, &p); err != nil {
			return Policy{}, fmt.Errorf("governance: parse %s: %w", primaryPath, err)
		}
		return p.withDefaults(), nil
	} else if !os.IsNotExist(err) {
		return Policy{}, fmt.Errorf("governance: read %s: %w", primaryPath, err)
	}

	if legacyPath != "" {
		if data, err := os.ReadFile(legacyPath); err == nil {
			var p Policy
			// Legacy gates files are JSON; yaml.v3 parses JSON as a subset.
			if err := yaml.Unmarshal(data, &p); err != nil {
				return Policy{}, fmt.Errorf("governance: parse legacy %s: %w", legacyPath, err)
			}
			return p.withDefaults(), nil
		} else if !os.IsNotExist(err) {
			return Policy{}, fmt.Errorf("governance: read legacy %s: %w", legacyPath, err)
		}
	}

	return DefaultPolicy(), nil
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxFiles <= 0 {
		p.MaxFiles = d.MaxFiles
	}
	if p.MaxLocPerFile <= 0 {
		p.MaxLocPerFile = d.MaxLocPerFile
	}
	return p
}

// matchProtected reports whether target matches a protected-path pattern.
// Patterns are glob-style and case-sensitive. A trailing "/**" protects an
// entire subtree; a leading "**/" matches the basename anywhere.
func matchProtected(pattern, target string) bool {
	target = path.Clean(strings.ReplaceAll(target, "\\", "/"))

	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return target == prefix || strings.HasPrefix(target, prefix+"/")
	}
	if strings.HasPrefix(pattern, "**/") {
		if ok, _ := path.Match(strings.TrimPrefix(pattern, "**/"), path.Base(target)); ok {
			return true
		}
	}
	ok, _ := path.Match(pattern, target)
	return ok
}
