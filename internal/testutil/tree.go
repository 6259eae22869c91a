package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/treesync/fs"
)

// WriteTree writes every path/content pair of files into dst.
// Paths are tree-relative.
func WriteTree(t *testing.T, dst fs.Filesystem, files map[string]string) {
	t.Helper()
	for p, content := range files {
		require.NoError(t, dst.WriteFile(fs.Abs(p), []byte(content), 0o644), "write %s", p)
	}
}
