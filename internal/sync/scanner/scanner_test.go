package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/fs"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/fs/billy"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/synctypes"
)

// flakyFS fails Open for selected paths, simulating files that vanish mid-scan.
type flakyFS struct {
	*billy.FS
	fail map[string]bool
}

//nolint:ireturn // test double mirrors the interface signature
func (f *flakyFS) Open(name string) (fs.File, error) {
	if f.fail[name] {
		return nil, errors.New("input/output error")
	}
	return f.FS.Open(name)
}

func writeTree(t *testing.T, files map[string]string) *billy.FS {
	t.Helper()
	mem := billy.NewInMemoryFS()
	for p, content := range files {
		require.NoError(t, mem.WriteFile(fs.Abs(p), []byte(content), 0o644))
	}
	return mem
}

func TestScanner_Build(t *testing.T) {
	mem := writeTree(t, map[string]string{
		"a.md":             "alpha",
		"notes/b.md":       "beta",
		"notes/deep/c.txt": "gamma",
		"empty.md":         "",
	})
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	s := New(mem, WithClock(clock), WithIdentity("vault", "/home/me/vault"))
	snap, err := s.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, synctypes.SnapshotSchemaVersion, snap.SchemaVersion)
	assert.Equal(t, TreeID("vault", "/home/me/vault"), snap.TreeID)
	assert.Equal(t, clock.Now(), snap.CreatedAt)
	assert.Equal(t, clock.Now(), snap.UpdatedAt)
	require.Len(t, snap.Files, 4)

	for p, entry := range snap.Files {
		assert.Equal(t, p, entry.Path, "entry path must equal its key")
	}

	b := snap.Files["notes/b.md"]
	assert.Equal(t, HashBytes([]byte("beta")), b.ContentHash)
	assert.Equal(t, int64(4), b.Size)
	assert.Equal(t, int64(0), snap.Files["empty.md"].Size)
	assert.Contains(t, snap.Files, "notes/deep/c.txt")
}

func TestScanner_BuildIsRepeatable(t *testing.T) {
	mem := writeTree(t, map[string]string{"a.md": "one"})
	s := New(mem)

	first, err := s.Build(context.Background())
	require.NoError(t, err)

	require.NoError(t, mem.WriteFile("/a.md", []byte("two"), 0o644))
	require.NoError(t, mem.WriteFile("/b.md", []byte("new"), 0o644))

	second, err := s.Build(context.Background())
	require.NoError(t, err)

	assert.Len(t, first.Files, 1)
	assert.Len(t, second.Files, 2)
	assert.NotEqual(t, first.Files["a.md"].ContentHash, second.Files["a.md"].ContentHash)
	assert.Equal(t, HashBytes([]byte("two")), second.Files["a.md"].ContentHash)
}

func TestScanner_SkipsUnreadableFiles(t *testing.T) {
	mem := writeTree(t, map[string]string{
		"ok.md":     "fine",
		"broken.md": "lost",
	})
	flaky := &flakyFS{FS: mem, fail: map[string]bool{"/broken.md": true}}

	snap, err := New(flaky).Build(context.Background())
	require.NoError(t, err)

	assert.Contains(t, snap.Files, "ok.md")
	assert.NotContains(t, snap.Files, "broken.md")
}

func TestScanner_Patterns(t *testing.T) {
	mem := writeTree(t, map[string]string{
		"a.md":             "a",
		"b.txt":            "b",
		".git/config":      "c",
		"sub/.git/HEAD":    "d",
		"sub/.DS_Store":    "e",
		"sub/keep.md":      "f",
		"drafts/secret.md": "g",
	})

	tests := []struct {
		name    string
		include []string
		exclude []string
		want    []string
	}{
		{
			name:    "default excludes",
			exclude: []string{".git/", ".DS_Store"},
			want:    []string{"a.md", "b.txt", "drafts/secret.md", "sub/keep.md"},
		},
		{
			name:    "include markdown only",
			include: []string{"**/*.md"},
			exclude: []string{"drafts/"},
			want:    []string{"a.md", "sub/keep.md"},
		},
		{
			name: "no patterns",
			want: []string{".git/config", "a.md", "b.txt", "drafts/secret.md", "sub/.DS_Store", "sub/.git/HEAD", "sub/keep.md"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := New(mem, WithPatterns(tt.include, tt.exclude)).Build(context.Background())
			require.NoError(t, err)

			var got []string
			for p := range snap.Files {
				got = append(got, p)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestScanner_SkipsSymlinks(t *testing.T) {
	mem := writeTree(t, map[string]string{"real.md": "x"})
	require.NoError(t, mem.Raw().Symlink("/real.md", "/link.md"))

	snap, err := New(mem).Build(context.Background())
	require.NoError(t, err)

	assert.Contains(t, snap.Files, "real.md")
	assert.NotContains(t, snap.Files, "link.md")
}

func TestScanner_Cancelled(t *testing.T) {
	mem := writeTree(t, map[string]string{"a.md": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, err := New(mem).Build(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, snap)
}

func TestScanner_EmptyTree(t *testing.T) {
	snap, err := New(billy.NewInMemoryFS()).Build(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Files)
	assert.NotNil(t, snap.Files)
}

func TestScanner_MissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "unmounted")

	snap, err := New(billy.NewOSFS(root)).Build(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, tserrors.ErrNotReadable)
	assert.Nil(t, snap)
}

func TestScanner_RootRemovedBetweenScans(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes", "a.md"), []byte("a"), 0o644))
	s := New(billy.NewOSFS(root))

	snap, err := s.Build(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Files, 1)

	require.NoError(t, os.Rename(root, root+".moved"))
	_, err = s.Build(context.Background())
	assert.ErrorIs(t, err, tserrors.ErrNotReadable)
}

func TestTreeID(t *testing.T) {
	a := TreeID("vault", "/data/vault")
	assert.Len(t, a, 64)
	assert.Equal(t, a, TreeID("vault", "/data/vault"))
	assert.NotEqual(t, a, TreeID("vault", "/data/other"))
	assert.NotEqual(t, a, TreeID("other", "/data/vault"))
	assert.Equal(t, TreeID("vault", ""), TreeID("vault", ""))
	assert.NotEqual(t, TreeID("vault", ""), a)
}
