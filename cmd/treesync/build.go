package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/treesync"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/config"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/credentials"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider/dir"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider/memory"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider/minio"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider/s3"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/store"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/store/file"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/store/sqlite"
)

// knownProviders lists every provider type the CLI can build.
var knownProviders = []provider.Info{
	{ID: s3.ID, Name: "Amazon S3"},
	{ID: minio.ID, Name: "MinIO"},
	{ID: dir.ID, Name: "Local directory"},
	{ID: memory.ID, Name: "In-memory (testing)"},
}

// buildRegistry registers every provider whose configuration section is
// complete. The memory provider is always available.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	add := func(p provider.Provider, err error) error {
		if err != nil {
			return err
		}
		return reg.Register(p)
	}

	if s := cfg.Provider.S3; s.Bucket != "" {
		if err := add(s3.New(s3.Config{
			Bucket:         s.Bucket,
			Prefix:         s.Prefix,
			Region:         s.Region,
			Endpoint:       s.Endpoint,
			ForcePathStyle: s.ForcePathStyle,
			Timeout:        s.Timeout,
		}, s3.WithLogger(logger))); err != nil {
			return nil, fmt.Errorf("s3 provider: %w", err)
		}
	}
	if m := cfg.Provider.MinIO; m.Bucket != "" && m.Endpoint != "" {
		if err := add(minio.New(minio.Config{
			Endpoint: m.Endpoint,
			Bucket:   m.Bucket,
			Prefix:   m.Prefix,
			Region:   m.Region,
			Secure:   m.Secure,
		}, minio.WithLogger(logger))); err != nil {
			return nil, fmt.Errorf("minio provider: %w", err)
		}
	}
	if d := cfg.Provider.Dir; d.Path != "" {
		if err := add(dir.Open(d.Path, d.Prefix)); err != nil {
			return nil, fmt.Errorf("dir provider: %w", err)
		}
	}
	if err := reg.Register(memory.New()); err != nil {
		return nil, err
	}
	return reg, nil
}

// buildStore opens the configured state backend.
//
//nolint:ireturn // the backend is chosen at runtime.
func buildStore(cfg *config.Config) (store.Store, error) {
	path := cfg.StatePath()
	if cfg.State.Backend == config.StateSQLite {
		db, err := sqlite.Open(path, cfg.TreeName())
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	f, err := file.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// resolveCredentials resolves the credential references. The Secrets Manager
// scheme is only wired up when a reference uses it, so no AWS configuration is
// loaded otherwise.
func resolveCredentials(ctx context.Context, cfg *config.Config, logger *slog.Logger) (provider.Credentials, error) {
	resolver := credentials.NewResolver(credentials.WithLogger(logger))

	c := cfg.Credentials
	prefix := credentials.SchemeAWSSM + ":"
	for _, ref := range []string{c.Token, c.AccessKeyID, c.SecretAccessKey, c.SessionToken} {
		if strings.HasPrefix(ref, prefix) {
			src, err := credentials.NewDefaultSecretsManagerSource(ctx)
			if err != nil {
				return provider.Credentials{}, err
			}
			resolver.Register(credentials.SchemeAWSSM, src)
			break
		}
	}
	return resolver.Resolve(ctx, c)
}

// newClient builds a client for the configured tree, remote and state store.
func newClient(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...treesync.Option) (*treesync.Client, error) {
	reg, err := buildRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}
	remote, err := reg.Get(cfg.Provider.Type)
	if err != nil {
		_ = reg.Close()
		return nil, err
	}

	creds, err := resolveCredentials(ctx, cfg, logger)
	if err != nil {
		_ = reg.Close()
		return nil, err
	}

	state, err := buildStore(cfg)
	if err != nil {
		_ = reg.Close()
		return nil, err
	}

	base := []treesync.Option{
		treesync.WithTree(cfg.TreeName(), cfg.Tree.Root),
		treesync.WithProvider(remote),
		treesync.WithCredentials(creds),
		treesync.WithStore(state),
		treesync.WithPatterns(cfg.Tree.Include, cfg.Tree.Exclude),
		treesync.WithConcurrency(cfg.Sync.MaxConcurrentUploads),
		treesync.WithMaxRetries(cfg.Sync.MaxRetries),
		treesync.WithLogger(logger),
	}
	client, err := treesync.New(append(base, opts...)...)
	if err != nil {
		_ = reg.Close()
		_ = state.Close()
		return nil, err
	}
	return client, nil
}
