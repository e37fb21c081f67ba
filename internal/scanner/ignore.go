package scanner

import (
	"path/filepath"
	"strings"
)

type ignorePattern struct {
	pattern   string
	matchPath bool
}

// IgnoreMatcher matches relative paths against glob patterns.
// Patterns without '/' match the basename of any path element; patterns with
// '/' match the full slash-separated relative path.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher skips blank patterns and lines starting with '#'.
func NewIgnoreMatcher(raw []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		patterns = append(patterns, ignorePattern{pattern: p, matchPath: strings.Contains(p, "/")})
	}
	return &IgnoreMatcher{patterns: patterns}
}

func (m *IgnoreMatcher) Match(relPath string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}

	normalized := filepath.ToSlash(relPath)
	base := filepath.Base(relPath)

	for _, p := range m.patterns {
		target := base
		if p.matchPath {
			target = normalized
		}
		matched, err := filepath.Match(p.pattern, target)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
