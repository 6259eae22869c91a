// Package scanner builds content-addressed snapshots of the local tree.
//
// A scan is best effort for entries below the root: a file that disappears or
// cannot be read while the walk is in progress is skipped. An unreadable root
// or context cancellation aborts it.
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"

	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/fs"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/synctypes"
)

// Scanner walks a Filesystem and produces LocalSnapshots.
// It holds no per-scan state, so Build may be called repeatedly and concurrently.
type Scanner struct {
	files    fs.Filesystem
	matcher  *PatternMatcher
	clock    clockwork.Clock
	logger   *slog.Logger
	treeName string
	treeRoot string
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithPatterns sets include and exclude patterns.
func WithPatterns(include, exclude []string) Option {
	return func(s *Scanner) {
		s.matcher = NewPatternMatcher(include, exclude)
	}
}

// WithClock sets the clock used for snapshot timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Scanner) {
		s.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// WithIdentity sets the tree name and root used to derive the snapshot tree id.
func WithIdentity(name, root string) Option {
	return func(s *Scanner) {
		s.treeName = name
		s.treeRoot = root
	}
}

// New creates a new scanner over files.
func New(files fs.Filesystem, opts ...Option) *Scanner {
	s := &Scanner{
		files:   files,
		matcher: NewPatternMatcher(nil, nil),
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TreeID returns the identifier stamped on snapshots built by this scanner.
func (s *Scanner) TreeID() string {
	return TreeID(s.treeName, s.treeRoot)
}

// Build walks the whole tree and hashes every readable regular file.
func (s *Scanner) Build(ctx context.Context) (*synctypes.LocalSnapshot, error) {
	now := s.clock.Now()
	snap := &synctypes.LocalSnapshot{
		SchemaVersion: synctypes.SnapshotSchemaVersion,
		TreeID:        s.TreeID(),
		CreatedAt:     now,
		UpdatedAt:     now,
		Files:         make(map[string]synctypes.IndexEntry),
	}

	var skipped int
	err := s.files.Walk("/", func(walkPath string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel := fs.Rel(walkPath)
		if err != nil && rel == "" {
			// A missing root is an unmounted or moved tree, not an empty one.
			return tserrors.NewPathError("scan", walkPath, fmt.Errorf("%w: tree root: %w", tserrors.ErrNotReadable, err))
		}
		if err != nil {
			// Entries that vanish or cannot be listed mid-walk are skipped.
			s.logger.Debug("skipping unreadable entry", "path", rel, "error", err)
			skipped++
			return nil
		}

		switch {
		case rel == "":
			return nil
		case info.IsDir():
			if s.matcher.ExcludesDir(rel) {
				return filepath.SkipDir
			}
			return nil
		case !info.Mode().IsRegular():
			// Symlinks, sockets and devices are never synced.
			return nil
		case !s.matcher.ShouldInclude(rel):
			return nil
		}

		entry, err := s.hashFile(rel, info)
		if err != nil {
			s.logger.Debug("skipping unreadable file", "path", rel, "error", err)
			skipped++
			return nil
		}
		snap.Files[rel] = entry
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("scan cancelled: %w", ctxErr)
		}
		return nil, err
	}

	s.logger.Debug("snapshot built", "files", len(snap.Files), "skipped", skipped)
	return snap, nil
}

// hashFile streams the file through SHA-256. The recorded size is the number
// of bytes hashed, so entry and digest always describe the same content.
func (s *Scanner) hashFile(rel string, info os.FileInfo) (synctypes.IndexEntry, error) {
	f, err := s.files.Open(fs.Abs(rel))
	if err != nil {
		return synctypes.IndexEntry{}, tserrors.NewPathError("read", rel, fmt.Errorf("%w: %w", tserrors.ErrNotReadable, err))
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return synctypes.IndexEntry{}, tserrors.NewPathError("read", rel, fmt.Errorf("%w: %w", tserrors.ErrNotReadable, err))
	}

	return synctypes.IndexEntry{
		Path:        rel,
		ContentHash: hex.EncodeToString(h.Sum(nil)),
		Size:        n,
		ModifiedAt:  info.ModTime(),
	}, nil
}

// HashBytes returns the content hash Build would record for data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
