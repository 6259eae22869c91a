// Package fs defines the local file store abstraction the sync engine reads
// from and the file-backed collaborators write to.
//
// Paths handed to a Filesystem are slash-separated and interpreted relative to
// the filesystem root ("/" names the root itself).
package fs

import (
	"os"
	"path/filepath"
)

// Filesystem is the minimal set of operations treesync needs from a file tree.
// Implementations must be safe for concurrent readers.
type Filesystem interface {
	// Open opens the named file for reading.
	Open(name string) (File, error)

	// TempFile creates a new temporary file in dir whose name begins with prefix.
	TempFile(dir, prefix string) (File, error)

	// ReadFile reads the whole named file.
	ReadFile(name string) ([]byte, error)

	// WriteFile writes data to the named file, creating it if necessary.
	WriteFile(name string, data []byte, perm os.FileMode) error

	// Stat returns file info, following symlinks.
	Stat(name string) (os.FileInfo, error)

	// Exists reports whether the named file exists.
	Exists(name string) (bool, error)

	// MkdirAll creates a directory and all parents.
	MkdirAll(path string, perm os.FileMode) error

	// Remove removes the named file or empty directory.
	Remove(name string) error

	// Rename atomically replaces newpath with oldpath where the backend allows it.
	Rename(oldpath, newpath string) error

	// Walk walks the tree rooted at root, calling walkFn for each entry.
	// Symlinks are reported but not followed.
	Walk(root string, walkFn filepath.WalkFunc) error
}
