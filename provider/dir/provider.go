// Package dir provides a remote provider that mirrors the tree into another
// directory, such as a mounted network share.
package dir

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/input-output-hk/catalyst-forge-libs/treesync/fs"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/fs/billy"
	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider"
)

// ID is the registry identifier of the directory provider.
const ID = "dir"

// Provider writes files into a destination filesystem. Credentials are ignored.
type Provider struct {
	files  fs.Filesystem
	prefix string
}

var _ provider.Provider = (*Provider)(nil)

// New creates a provider writing under prefix inside files.
func New(files fs.Filesystem, prefix string) *Provider {
	return &Provider{files: files, prefix: prefix}
}

// Open creates a provider mirroring into the host directory root.
func Open(root, prefix string) (*Provider, error) {
	abs, err := fs.GetAbs(root)
	if err != nil {
		return nil, err
	}
	return New(billy.NewOSFS(abs), prefix), nil
}

// ID returns the provider identifier.
func (p *Provider) ID() string { return ID }

// Name returns a human readable name.
func (p *Provider) Name() string { return "Local directory" }

// CheckConnection verifies the destination root is a directory.
func (p *Provider) CheckConnection(ctx context.Context, _ provider.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	root := p.abs("")
	info, err := p.files.Stat(root)
	if err != nil {
		return tserrors.NewPathError("check", root, err)
	}
	if !info.IsDir() {
		return tserrors.NewPathError("check", root, errors.New("not a directory"))
	}
	return nil
}

// HasRemoteMarker reports whether the marker file exists.
func (p *Provider) HasRemoteMarker(ctx context.Context, _ provider.Credentials) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := p.files.Exists(p.abs(provider.MarkerPath))
	if err != nil {
		return false, tserrors.NewPathError("has-marker", provider.MarkerPath, err)
	}
	return ok, nil
}

// WriteRemoteMarker replaces the marker file.
func (p *Provider) WriteRemoteMarker(ctx context.Context, _ provider.Credentials, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fs.WriteAtomic(p.files, p.abs(provider.MarkerPath), payload); err != nil {
		return tserrors.NewPathError("marker", provider.MarkerPath, err)
	}
	return nil
}

// UploadFile writes data to path, creating missing parent directories.
func (p *Provider) UploadFile(ctx context.Context, _ provider.Credentials, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fs.WriteAtomic(p.files, p.abs(path), data); err != nil {
		return tserrors.NewPathError("upload", path, err)
	}
	return nil
}

// DeleteFile removes path. A missing file is not an error. Emptied parent
// directories are left in place.
func (p *Provider) DeleteFile(ctx context.Context, _ provider.Credentials, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.files.Remove(p.abs(path))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return tserrors.NewPathError("delete", path, fmt.Errorf("remove: %w", err))
	}
	return nil
}

// Close implements provider.Provider.
func (p *Provider) Close() error {
	return nil
}

func (p *Provider) abs(rel string) string {
	return fs.Abs(provider.JoinKey(p.prefix, rel))
}
