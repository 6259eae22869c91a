// Package provider defines the remote storage capability set consumed by the
// sync engine, and a registry of provider implementations keyed by identifier.
package provider

import (
	"context"
	"path"
	"strings"
)

// MarkerPath is where every provider stores the remote marker, relative to its prefix.
const MarkerPath = ".treesync/state.json"

// Credentials carries whatever secret material a provider needs.
// Each provider documents which fields it reads; unused fields are ignored.
type Credentials struct {
	// Token is a bearer token for token-based remotes.
	Token string

	// AccessKeyID and SecretAccessKey are static key-pair credentials.
	AccessKeyID     string
	SecretAccessKey string

	// SessionToken is an optional temporary session token.
	SessionToken string
}

// IsZero reports whether no credential material was supplied.
func (c Credentials) IsZero() bool {
	return c == Credentials{}
}

// String never reveals secret material.
func (c Credentials) String() string {
	if c.IsZero() {
		return "credentials(none)"
	}
	return "credentials(redacted)"
}

// Provider is a remote storage location the engine pushes a tree to.
// Paths are tree-relative and slash-separated. Implementations must be safe
// for concurrent use by multiple workers.
type Provider interface {
	// ID returns the registry identifier (e.g., "s3", "minio", "dir", "memory").
	ID() string

	// Name returns a human readable name.
	Name() string

	// CheckConnection verifies the remote is reachable with creds.
	CheckConnection(ctx context.Context, creds Credentials) error

	// HasRemoteMarker reports whether the remote has ever received a marker.
	HasRemoteMarker(ctx context.Context, creds Credentials) (bool, error)

	// WriteRemoteMarker replaces the remote marker with payload.
	WriteRemoteMarker(ctx context.Context, creds Credentials, payload []byte) error

	// UploadFile stores data at path, replacing any previous content.
	UploadFile(ctx context.Context, creds Credentials, path string, data []byte) error

	// DeleteFile removes path. Deleting an absent path succeeds.
	DeleteFile(ctx context.Context, creds Credentials, path string) error

	// Close releases any resources held by the provider.
	Close() error
}

// CredentialsValidator is implemented by providers that can reject obviously
// unusable credentials before any network call.
type CredentialsValidator interface {
	ValidateCredentials(creds Credentials) error
}

// JoinKey joins a remote prefix and a tree-relative path into an object key.
func JoinKey(prefix, rel string) string {
	prefix = strings.Trim(prefix, "/")
	rel = strings.TrimLeft(rel, "/")
	if prefix == "" {
		return rel
	}
	return path.Join(prefix, rel)
}
