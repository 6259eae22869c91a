// Package credentials resolves credential references from the configuration
// into provider credentials.
//
// A reference is either a literal value or one of:
//
//	env:NAME                 the value of environment variable NAME
//	file:/path/to/secret     the trimmed content of a file
//	awssm:secret-id          an AWS Secrets Manager secret string
//	awssm:secret-id#key      one key of a JSON secret string
//
// Resolved values are never logged.
package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/treesync/config"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/fs"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/fs/billy"
	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider"
)

// Source resolves the part of a reference after its scheme.
type Source interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, ref string) (string, error)

// Resolve implements Source.
func (f SourceFunc) Resolve(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// Resolver dispatches references to sources by scheme.
type Resolver struct {
	sources map[string]Source
	logger  *slog.Logger
	mu      sync.RWMutex
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSource registers (or replaces) the source for scheme.
func WithSource(scheme string, src Source) Option {
	return func(r *Resolver) {
		r.sources[scheme] = src
	}
}

// WithLogger configures the resolver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver with the env and file schemes registered.
// The awssm scheme is registered with WithSource(SchemeAWSSM, ...).
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		sources: map[string]Source{
			SchemeEnv:  EnvSource(os.LookupEnv),
			SchemeFile: FileSource(billy.NewOSFS("/")),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Reference schemes.
const (
	SchemeEnv   = "env"
	SchemeFile  = "file"
	SchemeAWSSM = "awssm"
)

// Register adds or replaces the source for scheme.
func (r *Resolver) Register(scheme string, src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[scheme] = src
}

// ResolveRef resolves a single reference. Values without a registered
// scheme prefix are returned as literals.
func (r *Resolver) ResolveRef(ctx context.Context, ref string) (string, error) {
	scheme, rest, ok := strings.Cut(ref, ":")
	if !ok {
		return ref, nil
	}

	r.mu.RLock()
	src, known := r.sources[scheme]
	r.mu.RUnlock()
	if !known {
		return ref, nil
	}

	if rest == "" {
		return "", fmt.Errorf("%w: empty %s reference", tserrors.ErrInvalidInput, scheme)
	}
	value, err := src.Resolve(ctx, rest)
	if err != nil {
		return "", fmt.Errorf("resolve %s reference: %w", scheme, err)
	}
	r.logger.Debug("credential reference resolved", "scheme", scheme)
	return value, nil
}

// Resolve resolves every configured reference into provider credentials.
func (r *Resolver) Resolve(ctx context.Context, cfg config.CredentialsConfig) (provider.Credentials, error) {
	var creds provider.Credentials
	fields := []struct {
		name string
		ref  string
		dst  *string
	}{
		{"token", cfg.Token, &creds.Token},
		{"access_key_id", cfg.AccessKeyID, &creds.AccessKeyID},
		{"secret_access_key", cfg.SecretAccessKey, &creds.SecretAccessKey},
		{"session_token", cfg.SessionToken, &creds.SessionToken},
	}
	for _, f := range fields {
		if f.ref == "" {
			continue
		}
		v, err := r.ResolveRef(ctx, f.ref)
		if err != nil {
			return provider.Credentials{}, fmt.Errorf("credentials.%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return creds, nil
}

// EnvSource resolves environment variable names through lookup.
func EnvSource(lookup func(string) (string, bool)) Source {
	return SourceFunc(func(_ context.Context, name string) (string, error) {
		v, ok := lookup(name)
		if !ok {
			return "", fmt.Errorf("%w: environment variable %s is not set", tserrors.ErrMissingCredentials, name)
		}
		return v, nil
	})
}

// FileSource reads secrets from files, trimming surrounding whitespace.
func FileSource(files fs.Filesystem) Source {
	return SourceFunc(func(_ context.Context, path string) (string, error) {
		abs, err := fs.GetAbs(path)
		if err != nil {
			return "", err
		}
		data, err := files.ReadFile(abs)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	})
}
