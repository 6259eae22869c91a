package scanner

import (
	"fmt"
	"path"
	"strings"
)

// PatternMatcher handles include/exclude pattern matching for tree paths.
type PatternMatcher struct {
	include []string
	exclude []string
}

// NewPatternMatcher creates a new pattern matcher. Excludes take precedence
// over includes; with no include patterns every non-excluded path is kept.
func NewPatternMatcher(include, exclude []string) *PatternMatcher {
	return &PatternMatcher{
		include: append([]string(nil), include...),
		exclude: append([]string(nil), exclude...),
	}
}

// ShouldInclude determines if the tree-relative path should be part of a snapshot.
func (pm *PatternMatcher) ShouldInclude(relPath string) bool {
	for _, pattern := range pm.exclude {
		if matchesPattern(relPath, pattern) {
			return false
		}
	}

	if len(pm.include) == 0 {
		return true
	}
	for _, pattern := range pm.include {
		if matchesPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

// matchesPattern checks if a slash-separated path matches a glob pattern.
// Directory patterns end with "/", "**" acts as a recursive wildcard, and a
// pattern without any "/" is also tried against the base name.
func matchesPattern(p, pattern string) bool {
	if strings.HasSuffix(pattern, "/") {
		dir := strings.TrimSuffix(pattern, "/")
		if strings.HasPrefix(p, dir+"/") {
			return true
		}
		// A bare directory name matches at any depth.
		return !strings.Contains(dir, "/") && strings.Contains("/"+p, "/"+dir+"/")
	}

	if strings.Contains(pattern, "**") {
		return matchesGlobPattern(p, pattern)
	}

	if ok, err := path.Match(pattern, p); err == nil && ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, err := path.Match(pattern, path.Base(p))
		return err == nil && ok
	}
	return false
}

// matchesGlobPattern handles patterns of the form "prefix**suffix".
func matchesGlobPattern(p, pattern string) bool {
	parts := strings.Split(pattern, "**")
	if len(parts) != 2 {
		return false
	}

	prefix, suffix := parts[0], parts[1]
	if !strings.HasPrefix(p, prefix) {
		return false
	}
	if suffix == "" {
		return true
	}
	rest := strings.TrimPrefix(p, prefix)
	if strings.HasSuffix(rest, suffix) {
		return true
	}
	// "**/*.md" style suffixes are matched against the base name.
	if tail := strings.TrimPrefix(suffix, "/"); !strings.Contains(tail, "/") {
		ok, err := path.Match(tail, path.Base(rest))
		return err == nil && ok
	}
	return false
}

// ValidatePatterns validates that the given patterns are syntactically correct.
func ValidatePatterns(patterns []string) []error {
	var errs []error

	for i, pattern := range patterns {
		if strings.Count(pattern, "**") > 1 {
			errs = append(errs, &PatternError{
				Pattern: pattern,
				Index:   i,
				Err:     fmt.Errorf("at most one ** is supported"),
			})
			continue
		}

		glob := strings.ReplaceAll(strings.TrimSuffix(pattern, "/"), "**", "*")
		if _, err := path.Match(glob, "dummy"); err != nil {
			errs = append(errs, &PatternError{
				Pattern: pattern,
				Index:   i,
				Err:     err,
			})
		}
	}

	return errs
}

// PatternError represents an error with a pattern.
type PatternError struct {
	Pattern string
	Index   int
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern at index %d '%s': %v", e.Index, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// ExcludesDir reports whether a directory pattern excludes the whole directory,
// letting the walk prune it without visiting its contents.
func (pm *PatternMatcher) ExcludesDir(relDir string) bool {
	for _, pattern := range pm.exclude {
		if strings.HasSuffix(pattern, "/") && matchesPattern(relDir+"/", pattern) {
			return true
		}
	}
	return false
}
