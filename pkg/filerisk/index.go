// Package filerisk maps file paths to type definitions and risk scores.
// Absence of a resolvable type never fails the caller; consumers degrade
// to a permissive default.
package filerisk

import (
	"path/filepath"
	"strings"
)

// FileType describes one recognized file category.
type FileType struct {
	Name       string  // e.g. "typescript-source"
	Extensions []string
	BaseRisk   float64 // 0..1, how dangerous an automated edit to this type is
	Critical   bool    // deployment descriptors, lockfiles, migrations
}

// Index resolves paths to file types.
type Index struct {
	byExt map[string]*FileType
}

// NewDefaultIndex returns the built-in risk index.
func NewDefaultIndex() *Index {
	types := []*FileType{
		{Name: "javascript-source", Extensions: []string{".js", ".jsx", ".mjs"}, BaseRisk: 0.3},
		{Name: "typescript-source", Extensions: []string{".ts", ".tsx"}, BaseRisk: 0.3},
		{Name: "go-source", Extensions: []string{".go"}, BaseRisk: 0.35},
		{Name: "stylesheet", Extensions: []string{".css", ".scss"}, BaseRisk: 0.15},
		{Name: "markup", Extensions: []string{".html", ".md"}, BaseRisk: 0.1},
		{Name: "config", Extensions: []string{".json", ".yaml", ".yml", ".toml"}, BaseRisk: 0.55},
		{Name: "ci-pipeline", Extensions: []string{".gitlab-ci.yml"}, BaseRisk: 0.8, Critical: true},
		{Name: "lockfile", Extensions: []string{".lock", ".sum"}, BaseRisk: 0.85, Critical: true},
		{Name: "sql-migration", Extensions: []string{".sql"}, BaseRisk: 0.9, Critical: true},
		{Name: "shell-script", Extensions: []string{".sh", ".bash"}, BaseRisk: 0.7, Critical: true},
	}
	idx := &Index{byExt: make(map[string]*FileType)}
	for _, ft := range types {
		for _, ext := range ft.Extensions {
			idx.byExt[ext] = ft
		}
	}
	return idx
}

// Resolve returns the file type for a path, or nil when unrecognized.
func (i *Index) Resolve(path string) *FileType {
	base := filepath.Base(path)
	// Special names take precedence over extensions.
	switch base {
	case "package-lock.json", "yarn.lock", "go.sum":
		return i.byExt[".lock"]
	case "Dockerfile", "Makefile":
		return i.byExt[".sh"]
	case ".gitlab-ci.yml":
		return i.byExt[".gitlab-ci.yml"]
	}
	ext := strings.ToLower(filepath.Ext(base))
	return i.byExt[ext]
}

// RiskScore computes the risk score in [0,1] for a resolved type.
// A nil type scores the neutral default.
func (i *Index) RiskScore(ft *FileType) float64 {
	if ft == nil {
		return 0.4
	}
	score := ft.BaseRisk
	if ft.Critical && score < 0.7 {
		score = 0.7
	}
	if score > 1 {
		score = 1
	}
	return score
}
