package engine

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter selects measured files by project-relative glob patterns.
type Filter struct {
	include []string
	omit    []string
}

// NewFilter validates the patterns and returns a Filter. No include
// patterns means every file is included.
func NewFilter(include, omit []string) (*Filter, error) {
	for _, p := range append(append([]string{}, include...), omit...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern: %q", p)
		}
	}
	return &Filter{include: include, omit: omit}, nil
}

// Match reports whether the forward-slash relative path passes the filter.
func (f *Filter) Match(rel string) bool {
	if f == nil {
		return true
	}
	rel = strings.ReplaceAll(rel, `\`, "/")
	if len(f.include) > 0 && !matchAny(rel, f.include) {
		return false
	}
	return !matchAny(rel, f.omit)
}

func matchAny(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
		// Patterns without a separator also match the base name.
		if !strings.Contains(pattern, "/") {
			if matched, err := doublestar.Match(pattern, path.Base(rel)); err == nil && matched {
				return true
			}
		}
	}
	return false
}
