package bundle

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/gobwas/glob"
)

// DefaultIgnore lists the patterns never staged or watched: dependency
// trees, hidden entries and editor scratch files.
var DefaultIgnore = []string{"node_modules", ".*", "*~", "*.swp", "#*"}

// Matcher tests project-relative paths against ignore patterns. A pattern
// matches when it matches either the whole slash-separated path or its
// base name.
type Matcher struct {
	patterns []string
	globs    []glob.Glob
}

// NewMatcher compiles patterns.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}

	for _, p := range patterns {
		if p == "" {
			continue
		}

		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}

		m.patterns = append(m.patterns, p)
		m.globs = append(m.globs, g)
	}

	return m, nil
}

// Match reports whether rel is ignored.
func (m *Matcher) Match(rel string) bool {
	if m == nil {
		return false
	}

	rel = filepath.ToSlash(rel)
	base := path.Base(rel)

	for _, g := range m.globs {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}

	return false
}

// Patterns returns the compiled pattern sources.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}

	return append([]string(nil), m.patterns...)
}
