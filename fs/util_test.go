package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAbs(t *testing.T) {
	t.Run("absolute path passthrough", func(t *testing.T) {
		got, err := GetAbs("/tmp")
		require.NoError(t, err)
		assert.Equal(t, "/tmp", got)
	})

	t.Run("relative path conversion", func(t *testing.T) {
		got, err := GetAbs(".")
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(got))
	})
}

func TestExists(t *testing.T) {
	t.Run("existing file returns true", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "present")
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))

		ok, err := Exists(p)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("missing file returns false without error", func(t *testing.T) {
		ok, err := Exists(filepath.Join(t.TempDir(), "does-not-exist"))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRelAbs(t *testing.T) {
	tests := []struct {
		walk string
		rel  string
	}{
		{"/", ""},
		{"/a.md", "a.md"},
		{"/notes/daily/b.md", "notes/daily/b.md"},
		{"notes/c.md", "notes/c.md"},
	}

	for _, tt := range tests {
		t.Run(tt.walk, func(t *testing.T) {
			assert.Equal(t, tt.rel, Rel(tt.walk))
		})
	}

	assert.Equal(t, "/notes/a.md", Abs("notes/a.md"))
	assert.Equal(t, "/notes/a.md", Abs("/notes/a.md"))
}
