// Package file implements a store.Store that keeps the state as one JSON file.
// Writes go through fs.WriteAtomic, so a crash leaves either the old or the
// new state, never a torn file.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/treesync/fs"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/fs/billy"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/store"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/synctypes"
)

// Store is a JSON file backed state store.
type Store struct {
	files fs.Filesystem
	path  string

	// mu serializes writers
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

// New creates a store that keeps its state at name inside files.
func New(files fs.Filesystem, name string) *Store {
	return &Store{
		files: files,
		path:  fs.Abs(filepath.ToSlash(name)),
	}
}

// Open creates a store for a host file path, creating its directory if needed.
func Open(hostPath string) (*Store, error) {
	abs, err := fs.GetAbs(hostPath)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", dir, err)
	}
	return New(billy.NewOSFS(dir), filepath.Base(abs)), nil
}

// Load implements store.Store.
func (s *Store) Load(ctx context.Context) (*synctypes.PersistedState, error) {
	ok, err := s.files.Exists(s.path)
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", s.path, err)
	}
	if !ok {
		return store.Empty(), nil
	}

	data, err := s.files.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", s.path, err)
	}
	return store.Decode(data)
}

// Save implements store.Store.
func (s *Store) Save(ctx context.Context, state *synctypes.PersistedState) error {
	data, err := store.Encode(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fs.WriteAtomic(s.files, s.path, data); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Path returns the state file path inside the store's filesystem.
func (s *Store) Path() string {
	return s.path
}

// Close implements store.Store.
func (s *Store) Close() error {
	return nil
}
