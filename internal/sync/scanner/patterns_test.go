package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatternMatcher_ShouldInclude(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		path    string
		want    bool
	}{
		{"no patterns", nil, nil, "a/b.md", true},
		{"exclude dir prefix", nil, []string{".git/"}, ".git/config", false},
		{"exclude nested dir", nil, []string{".git/"}, "sub/.git/config", false},
		{"exclude basename", nil, []string{".DS_Store"}, "a/b/.DS_Store", false},
		{"exclude glob", nil, []string{"*.tmp"}, "a/x.tmp", false},
		{"include glob", []string{"*.md"}, nil, "x.md", true},
		{"include miss", []string{"*.md"}, nil, "x.txt", false},
		{"include recursive", []string{"notes/**"}, nil, "notes/a/b.md", true},
		{"include recursive suffix", []string{"**/*.md"}, nil, "a/b/c.md", true},
		{"exclude wins", []string{"*.md"}, []string{"secret.md"}, "secret.md", false},
		{"anchored pattern", nil, []string{"docs/*.md"}, "other/docs/a.md", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := NewPatternMatcher(tt.include, tt.exclude)
			assert.Equal(t, tt.want, pm.ShouldInclude(tt.path))
		})
	}
}

func TestPatternMatcher_ExcludesDir(t *testing.T) {
	pm := NewPatternMatcher(nil, []string{".git/", "*.tmp"})
	assert.True(t, pm.ExcludesDir(".git"))
	assert.True(t, pm.ExcludesDir("a/.git"))
	assert.False(t, pm.ExcludesDir("notes"))
	assert.False(t, pm.ExcludesDir("x.tmp"))
}

func TestValidatePatterns(t *testing.T) {
	errs := ValidatePatterns([]string{"*.md", "[", "a/**/b/**", "notes/"})
	if assert.Len(t, errs, 2) {
		assert.Equal(t, 1, errs[0].(*PatternError).Index)
		assert.Equal(t, 2, errs[1].(*PatternError).Index)
	}
}
