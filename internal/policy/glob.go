// Package policy compiles a PolicyProfile into an immutable decision
// object evaluated per tool call: tool allow/deny lists, read/write path
// rules with workspace-escape detection, approval gates, and network host
// rules.
package policy

import (
	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

// compilePatterns validates a pattern list, silently dropping entries
// doublestar cannot parse. Invalid patterns are a caller mistake, not a
// reason to refuse the whole profile.
func compilePatterns(patterns []string, field string, log *zap.Logger) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			log.Warn("dropping invalid policy glob",
				zap.String("field", field),
				zap.String("pattern", p))
			continue
		}
		out = append(out, p)
	}
	return out
}

// matchAny reports whether subject matches any of the compiled patterns.
// Patterns use shell-style semantics: * matches within one path segment,
// ** matches any depth including zero, ? matches a single character.
func matchAny(patterns []string, subject string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, subject); err == nil && ok {
			return true
		}
	}
	return false
}

// WorkspaceFilter evaluates workspace include/exclude globs. Exclude
// always wins; an empty include list passes every path.
type WorkspaceFilter struct {
	include []string
	exclude []string
}

// NewWorkspaceFilter compiles a filter from include/exclude pattern
// lists. Invalid patterns are dropped.
func NewWorkspaceFilter(include, exclude []string, log *zap.Logger) *WorkspaceFilter {
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkspaceFilter{
		include: compilePatterns(include, "include", log),
		exclude: compilePatterns(exclude, "exclude", log),
	}
}

// Allows reports whether relPath passes the filter.
func (f *WorkspaceFilter) Allows(relPath string) bool {
	if matchAny(f.exclude, relPath) {
		return false
	}
	if len(f.include) > 0 && !matchAny(f.include, relPath) {
		return false
	}
	return true
}
