package gokairos

import (
	"fmt"
	"regexp"
)

// DefaultIncludeMetrics matches every metric name.
var DefaultIncludeMetrics = []string{".*"}

// DefaultExcludeMetrics rejects names which still contain an unresolved %{field} token.
var DefaultExcludeMetrics = []string{`%\{[^}]+\}`}

// PatternSet decides which metric names are emitted, based on ordered lists of include
// and exclude regular expressions. It is immutable once created.
type PatternSet struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewPatternSet compiles the include and exclude patterns.
func NewPatternSet(include, exclude []string) (*PatternSet, error) {
	inc, err := compilePatterns("include", include)
	if err != nil {
		return nil, err
	}
	exc, err := compilePatterns("exclude", exclude)
	if err != nil {
		return nil, err
	}
	return &PatternSet{
		include: inc,
		exclude: exc,
	}, nil
}

func compilePatterns(kind string, patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern %q: %v", kind, p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Match indicates if name passes the set: an empty include list matches everything, and
// an exclude match always wins.
func (ps *PatternSet) Match(name string) bool {
	return ps.included(name) && !matchAny(ps.exclude, name)
}

func (ps *PatternSet) included(name string) bool {
	return len(ps.include) == 0 || matchAny(ps.include, name)
}

// matchAny returns false if the list is empty.
func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
