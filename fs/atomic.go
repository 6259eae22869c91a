package fs

import (
	"fmt"
	"path"
)

// WriteAtomic writes data to name through a temporary sibling that is renamed
// over the target, creating parent directories as needed. Readers observe
// either the old or the new content.
func WriteAtomic(files Filesystem, name string, data []byte) error {
	dir := path.Dir(name)
	if err := files.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fs: mkdir %q: %w", dir, err)
	}

	tmp, err := files.TempFile(dir, "."+path.Base(name)+"-")
	if err != nil {
		return fmt.Errorf("fs: temp file in %q: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = files.Remove(tmpName)
		return fmt.Errorf("fs: write %q: %w", tmpName, err)
	}
	// Flush to stable storage before the rename publishes the file, where the
	// backend supports it.
	if syncer, ok := tmp.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			_ = tmp.Close()
			_ = files.Remove(tmpName)
			return fmt.Errorf("fs: sync %q: %w", tmpName, err)
		}
	}
	if err := tmp.Close(); err != nil {
		_ = files.Remove(tmpName)
		return fmt.Errorf("fs: close %q: %w", tmpName, err)
	}
	if err := files.Rename(tmpName, name); err != nil {
		_ = files.Remove(tmpName)
		return fmt.Errorf("fs: rename %q: %w", name, err)
	}
	return nil
}
