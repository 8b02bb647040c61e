// Copyright (c) 2025 hgpaktools
// SPDX-License-Identifier: MIT

package hgpak

import (
	"fmt"
	"regexp"
	"strings"
)

// MatchFunc reports whether an archive path is selected. Selection is
// case-sensitive against the path as recorded in the name table.
type MatchFunc func(path string) bool

// matchAny reports whether path matches any of the given predicates.
// An empty set selects everything.
func matchAny(include []MatchFunc, path string) bool {
	if len(include) == 0 {
		return true
	}
	for _, m := range include {
		if m(path) {
			return true
		}
	}
	return false
}

// Pattern is a compiled shell-style wildcard pattern. `*` matches any
// run of characters, including `/`, and `?` matches one character, so
// `*debris*` selects a path in any directory whose name mentions
// debris. A pattern without wildcards only matches the exact path.
type Pattern struct {
	src string
	re  *regexp.Regexp
}

// CompilePattern compiles a wildcard pattern.
func CompilePattern(pattern string) (*Pattern, error) {
	var b strings.Builder
	b.WriteString(`\A`)
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`\z`)

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return &Pattern{src: pattern, re: re}, nil
}

// MustCompilePattern is CompilePattern for patterns known to be valid.
func MustCompilePattern(pattern string) *Pattern {
	p, err := CompilePattern(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether path matches the pattern.
func (p *Pattern) Match(path string) bool {
	return p.re.MatchString(path)
}

// String returns the pattern source.
func (p *Pattern) String() string { return p.src }

// CompilePatterns compiles each pattern into a MatchFunc, for use as
// an include set.
func CompilePatterns(patterns []string) ([]MatchFunc, error) {
	funcs := make([]MatchFunc, 0, len(patterns))
	for _, s := range patterns {
		p, err := CompilePattern(s)
		if err != nil {
			return nil, err
		}
		funcs = append(funcs, p.Match)
	}
	return funcs, nil
}
