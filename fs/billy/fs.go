// Package billy backs fs.Filesystem with go-billy, either on the host
// (osfs, chrooted to a directory) or in memory (memfs).
package billy

import (
	"errors"
	"os"
	"path"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	parentfs "github.com/input-output-hk/catalyst-forge-libs/treesync/fs"
)

// FS is an fs.Filesystem over a go-billy filesystem. Every error it returns
// is an *os.PathError, so errors.Is(err, os.ErrNotExist) works for both backends.
type FS struct {
	fs billy.Filesystem

	// root is the host directory behind an osfs backend, empty for memfs
	root string
}

var _ parentfs.Filesystem = (*FS)(nil)

// NewInMemoryFS creates an empty in-memory filesystem whose root exists.
func NewInMemoryFS() *FS {
	mem := memfs.New()
	_ = mem.MkdirAll("/", 0o755)
	return &FS{fs: mem}
}

// NewOSFS creates a filesystem chrooted to the host directory root.
func NewOSFS(root string) *FS {
	return &FS{fs: osfs.New(root), root: root}
}

// Raw returns the underlying go-billy filesystem.
//
//nolint:ireturn // exposes the adapter target for tests and billy helpers.
func (b *FS) Raw() billy.Filesystem {
	return b.fs
}

//nolint:ireturn // billy.File already satisfies fs.File.
func (b *FS) Open(name string) (parentfs.File, error) {
	f, err := b.fs.Open(name)
	if err != nil {
		return nil, pathError("open", name, err)
	}
	return f, nil
}

// TempFile creates a new temporary file in dir. Files on a host backend
// expose Sync, so callers can flush them before publishing.
//
//nolint:ireturn // billy.File already satisfies fs.File.
func (b *FS) TempFile(dir, prefix string) (parentfs.File, error) {
	if b.root != "" {
		f, err := b.hostTempFile(dir, prefix)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	f, err := util.TempFile(b.fs, dir, prefix)
	if err != nil {
		return nil, pathError("tempfile", filepath.Join(dir, prefix), err)
	}
	return f, nil
}

// hostFile is a temporary file on the host, named relative to the backend root.
type hostFile struct {
	*os.File
	name string
}

func (f *hostFile) Name() string {
	return f.name
}

// hostTempFile bypasses the chroot, whose file wrapper hides (*os.File).Sync.
func (b *FS) hostTempFile(dir, prefix string) (*hostFile, error) {
	rel := path.Clean("/" + filepath.ToSlash(dir))
	f, err := os.CreateTemp(filepath.Join(b.root, filepath.FromSlash(rel)), prefix)
	if err != nil {
		return nil, pathError("tempfile", path.Join(rel, prefix), err)
	}
	return &hostFile{File: f, name: path.Join(rel, filepath.Base(f.Name()))}, nil
}

func (b *FS) ReadFile(name string) ([]byte, error) {
	data, err := util.ReadFile(b.fs, name)
	return data, pathError("read", name, err)
}

func (b *FS) WriteFile(name string, data []byte, perm os.FileMode) error {
	return pathError("write", name, util.WriteFile(b.fs, name, data, perm))
}

func (b *FS) Stat(name string) (os.FileInfo, error) {
	info, err := b.fs.Stat(name)
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	return info, nil
}

// Exists reports whether name exists. Only errors other than not-exist are returned.
func (b *FS) Exists(name string) (bool, error) {
	_, err := b.fs.Stat(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, pathError("stat", name, err)
	}
}

func (b *FS) MkdirAll(name string, perm os.FileMode) error {
	return pathError("mkdir", name, b.fs.MkdirAll(name, perm))
}

func (b *FS) Remove(name string) error {
	return pathError("remove", name, b.fs.Remove(name))
}

func (b *FS) Rename(oldpath, newpath string) error {
	if err := b.fs.Rename(oldpath, newpath); err != nil {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: unwrapPath(err)}
	}
	return nil
}

// Walk visits root and everything below it in lexical order. Symlinks are
// reported via Lstat and never followed.
func (b *FS) Walk(root string, walkFn filepath.WalkFunc) error {
	return util.Walk(b.fs, root, walkFn)
}

// pathError returns nil for a nil err, and otherwise err as an *os.PathError
// naming op and name.
func pathError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	var pe *os.PathError
	if errors.As(err, &pe) {
		return err
	}
	return &os.PathError{Op: op, Path: name, Err: err}
}

func unwrapPath(err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}
