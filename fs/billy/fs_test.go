package billy

import (
	"errors"
	"io"
	"os"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	parentfs "github.com/input-output-hk/catalyst-forge-libs/treesync/fs"
)

// backends returns one fresh instance of every backend.
func backends(t *testing.T) map[string]parentfs.Filesystem {
	return map[string]parentfs.Filesystem{
		"memfs": NewInMemoryFS(),
		"osfs":  NewOSFS(t.TempDir()),
	}
}

func TestFS_ReadWrite(t *testing.T) {
	for name, files := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, files.MkdirAll("/notes/daily", 0o755))
			require.NoError(t, files.WriteFile("/notes/daily/mon.md", []byte("monday"), 0o644))

			data, err := files.ReadFile("/notes/daily/mon.md")
			require.NoError(t, err)
			assert.Equal(t, "monday", string(data))

			info, err := files.Stat("/notes/daily")
			require.NoError(t, err)
			assert.True(t, info.IsDir())

			f, err := files.Open("/notes/daily/mon.md")
			require.NoError(t, err)
			streamed, err := io.ReadAll(f)
			require.NoError(t, err)
			require.NoError(t, f.Close())
			assert.Equal(t, data, streamed)

			ok, err := files.Exists("/notes/daily/mon.md")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, files.Remove("/notes/daily/mon.md"))
			ok, err = files.Exists("/notes/daily/mon.md")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestFS_NotExistIsPathError(t *testing.T) {
	for name, files := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := files.ReadFile("/missing.md")
			require.Error(t, err)
			assert.True(t, errors.Is(err, os.ErrNotExist))

			var pe *os.PathError
			require.ErrorAs(t, err, &pe)

			_, err = files.Stat("/missing.md")
			assert.True(t, errors.Is(err, os.ErrNotExist))

			_, err = files.Open("/missing.md")
			assert.True(t, errors.Is(err, os.ErrNotExist))
		})
	}
}

func TestFS_TempFileRename(t *testing.T) {
	for name, files := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, files.MkdirAll("/state", 0o755))
			require.NoError(t, files.WriteFile("/state/tree.json", []byte("old"), 0o644))

			tmp, err := files.TempFile("/state", ".tree.json-")
			require.NoError(t, err)
			_, err = tmp.Write([]byte("new"))
			require.NoError(t, err)
			require.NoError(t, tmp.Close())
			require.NoError(t, files.Rename(tmp.Name(), "/state/tree.json"))

			data, err := files.ReadFile("/state/tree.json")
			require.NoError(t, err)
			assert.Equal(t, "new", string(data))
		})
	}
}

func TestFS_Walk(t *testing.T) {
	for name, files := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, files.MkdirAll("/tree/x/y", 0o755))
			require.NoError(t, files.WriteFile("/tree/x/y/z.md", []byte("z"), 0o644))
			require.NoError(t, files.WriteFile("/tree/top.md", []byte("t"), 0o644))

			var got []string
			require.NoError(t, files.Walk("/tree", func(p string, info os.FileInfo, err error) error {
				require.NoError(t, err)
				if !info.IsDir() {
					got = append(got, parentfs.Rel(p))
				}
				return nil
			}))
			sort.Strings(got)
			assert.Equal(t, []string{"tree/top.md", "tree/x/y/z.md"}, got)
		})
	}
}

func TestFS_TempFileSyncsOnHost(t *testing.T) {
	files := NewOSFS(t.TempDir())
	require.NoError(t, files.MkdirAll("/state", 0o755))

	tmp, err := files.TempFile("/state", ".tree.json-")
	require.NoError(t, err)
	assert.Regexp(t, `^/state/\.tree\.json-`, tmp.Name())

	syncer, ok := tmp.(interface{ Sync() error })
	require.True(t, ok, "host temp files expose Sync")
	_, err = tmp.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, syncer.Sync())
	require.NoError(t, tmp.Close())

	_, err = files.TempFile("/absent", "x-")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
