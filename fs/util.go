package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GetAbs returns path unchanged when it is absolute, otherwise joined to the working directory.
func GetAbs(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("fs: abs %q: %w", path, err)
	}
	return abs, nil
}

// Exists reports whether path exists on the host filesystem.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("fs: stat %q: %w", path, err)
	}
}

// Rel converts a walk path into the tree-relative form used in snapshots:
// slash-separated with no leading slash. The root itself maps to "".
func Rel(walkPath string) string {
	p := filepath.ToSlash(walkPath)
	return strings.TrimLeft(p, "/")
}

// Abs converts a tree-relative path back into a Filesystem path.
func Abs(rel string) string {
	return "/" + strings.TrimLeft(rel, "/")
}
