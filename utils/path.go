package utils

import (
	"path/filepath"
	"strings"
)

// IsPathWithin returns true if the given path is within any of the roots.
func IsPathWithin(path string, roots []string) bool {
	return getPathGuard(roots).Contains(path)
}

// PathGuard answers containment queries against a fixed set of roots. Roots
// are resolved once.
type PathGuard struct {
	roots []string
}

func NewPathGuard(roots []string) *PathGuard {
	return getPathGuard(roots)
}

func getPathGuard(roots []string) *PathGuard {
	g := &PathGuard{roots: make([]string, 0, len(roots))}
	for _, root := range roots {
		if abs, ok := resolvePath(root); ok {
			g.roots = append(g.roots, abs)
		}
	}
	return g
}

// Contains reports whether path equals or lies below one of the roots.
func (g *PathGuard) Contains(path string) bool {
	absPath, ok := resolvePath(path)
	if !ok {
		return false
	}
	for _, absRoot := range g.roots {
		rel, err := filepath.Rel(absRoot, absPath)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func resolvePath(path string) (string, bool) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", false
	}
	return abs, true
}
