package utils

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// regexPrefix marks a pattern as a regular expression; everything else is a
// glob.
const regexPrefix = "re:"

// PatternMatcher filters slash separated names. A glob without a slash is
// matched against the last element, a glob with one against the whole name.
type PatternMatcher struct {
	includeGlobs []string
	includeRegex []*regexp.Regexp
	excludeGlobs []string
	excludeRegex []*regexp.Regexp
}

func NewPatternMatcher(includePatterns, excludePatterns []string) *PatternMatcher {
	inGlobs, inRegex := splitPatterns(includePatterns)
	exGlobs, exRegex := splitPatterns(excludePatterns)
	return &PatternMatcher{
		includeGlobs: inGlobs,
		includeRegex: inRegex,
		excludeGlobs: exGlobs,
		excludeRegex: exRegex,
	}
}

// ValidatePatterns reports the first malformed glob or regex.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if strings.HasPrefix(p, regexPrefix) {
			if _, err := regexp.Compile(strings.TrimPrefix(p, regexPrefix)); err != nil {
				return err
			}
			continue
		}
		if _, err := path.Match(p, ""); err != nil {
			return err
		}
	}
	return nil
}

func (m *PatternMatcher) ShouldInclude(name string) bool {
	if m == nil {
		return true
	}
	if (len(m.includeGlobs) > 0 || len(m.includeRegex) > 0) && !m.matches(name, m.includeGlobs, m.includeRegex) {
		return false
	}
	if (len(m.excludeGlobs) > 0 || len(m.excludeRegex) > 0) && m.matches(name, m.excludeGlobs, m.excludeRegex) {
		return false
	}
	return true
}

// Empty reports whether the matcher accepts everything.
func (m *PatternMatcher) Empty() bool {
	return m == nil || len(m.includeGlobs)+len(m.includeRegex)+len(m.excludeGlobs)+len(m.excludeRegex) == 0
}

func (m *PatternMatcher) matches(name string, globs []string, regexes []*regexp.Regexp) bool {
	slashed := filepath.ToSlash(name)
	for _, pattern := range globs {
		target := path.Base(slashed)
		if strings.Contains(pattern, "/") {
			target = slashed
		}
		if matched, _ := path.Match(pattern, target); matched {
			return true
		}
	}
	for _, re := range regexes {
		if re.MatchString(slashed) {
			return true
		}
	}
	return false
}

func splitPatterns(patterns []string) ([]string, []*regexp.Regexp) {
	var globs []string
	var compiled []*regexp.Regexp
	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, regexPrefix) {
			if re, err := regexp.Compile(strings.TrimPrefix(pattern, regexPrefix)); err == nil {
				compiled = append(compiled, re)
			}
			continue
		}
		globs = append(globs, pattern)
	}
	return globs, compiled
}
