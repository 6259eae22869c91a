// Package minio provides a remote provider backed by a MinIO server.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider"
)

// ID is the registry identifier of the MinIO provider.
const ID = "minio"

// API is the subset of *minio.Client used by the provider.
type API interface {
	PutObject(
		ctx context.Context,
		bucket, key string,
		reader io.Reader,
		size int64,
		opts minio.PutObjectOptions,
	) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

var _ API = (*minio.Client)(nil)

// Config describes the MinIO bucket a tree is pushed to.
type Config struct {
	// Endpoint is host:port of the server, without scheme
	Endpoint string

	// Bucket is the target bucket name (required)
	Bucket string

	// Prefix is prepended to every object key
	Prefix string

	// Region is optional for MinIO
	Region string

	// Secure enables TLS
	Secure bool
}

// Option configures a Provider.
type Option func(*Provider)

// WithClient makes the provider use client for every call.
func WithClient(client API) Option {
	return func(p *Provider) {
		p.fixed = client
	}
}

// WithLogger configures the provider logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// Provider pushes files to a MinIO bucket.
type Provider struct {
	cfg    Config
	logger *slog.Logger
	fixed  API

	clients map[provider.Credentials]API
	mu      sync.Mutex
}

var (
	_ provider.Provider             = (*Provider)(nil)
	_ provider.CredentialsValidator = (*Provider)(nil)
)

// New creates a new MinIO provider.
func New(cfg Config, opts ...Option) (*Provider, error) {
	p := &Provider{
		cfg:     cfg,
		clients: make(map[provider.Credentials]API),
	}
	for _, opt := range opts {
		opt(p)
	}
	if cfg.Bucket == "" {
		return nil, tserrors.NewError("minio.new", tserrors.ErrInvalidInput).
			WithMessage("bucket name cannot be empty")
	}
	if cfg.Endpoint == "" && p.fixed == nil {
		return nil, tserrors.NewError("minio.new", tserrors.ErrInvalidInput).
			WithMessage("endpoint cannot be empty")
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// ID returns the provider identifier.
func (p *Provider) ID() string { return ID }

// Name returns a human readable name.
func (p *Provider) Name() string { return "MinIO" }

// ValidateCredentials requires an access key pair.
func (p *Provider) ValidateCredentials(creds provider.Credentials) error {
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return fmt.Errorf("%w: access key id and secret access key are required", tserrors.ErrMissingCredentials)
	}
	return nil
}

// CheckConnection verifies the bucket exists.
func (p *Provider) CheckConnection(ctx context.Context, creds provider.Credentials) error {
	client, err := p.client(creds)
	if err != nil {
		return err
	}
	ok, err := client.BucketExists(ctx, p.cfg.Bucket)
	if err != nil {
		return tserrors.NewError("check", translateError(err)).WithPath(p.cfg.Bucket)
	}
	if !ok {
		return tserrors.NewPathError("check", p.cfg.Bucket, errors.New("bucket does not exist"))
	}
	return nil
}

// HasRemoteMarker reports whether the marker object exists.
func (p *Provider) HasRemoteMarker(ctx context.Context, creds provider.Credentials) (bool, error) {
	client, err := p.client(creds)
	if err != nil {
		return false, err
	}
	key := provider.JoinKey(p.cfg.Prefix, provider.MarkerPath)
	if _, err := client.StatObject(ctx, p.cfg.Bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, tserrors.NewPathError("has-marker", key, translateError(err))
	}
	return true, nil
}

// WriteRemoteMarker stores the marker object.
func (p *Provider) WriteRemoteMarker(ctx context.Context, creds provider.Credentials, payload []byte) error {
	key := provider.JoinKey(p.cfg.Prefix, provider.MarkerPath)
	if err := p.put(ctx, creds, key, payload, "application/json"); err != nil {
		return tserrors.NewPathError("marker", key, err)
	}
	return nil
}

// UploadFile stores data as the object for path.
func (p *Provider) UploadFile(ctx context.Context, creds provider.Credentials, path string, data []byte) error {
	key := provider.JoinKey(p.cfg.Prefix, path)
	if err := p.put(ctx, creds, key, data, provider.DetectContentType(path, data)); err != nil {
		return tserrors.NewPathError("upload", path, err)
	}
	p.logger.Debug("object uploaded", "bucket", p.cfg.Bucket, "key", key, "size", len(data))
	return nil
}

// DeleteFile removes the object for path. A missing object is not an error.
func (p *Provider) DeleteFile(ctx context.Context, creds provider.Credentials, path string) error {
	client, err := p.client(creds)
	if err != nil {
		return err
	}
	key := provider.JoinKey(p.cfg.Prefix, path)
	err = client.RemoveObject(ctx, p.cfg.Bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return tserrors.NewPathError("delete", path, translateError(err))
	}
	return nil
}

// Close drops the cached clients.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients = make(map[provider.Credentials]API)
	return nil
}

func (p *Provider) put(ctx context.Context, creds provider.Credentials, key string, data []byte, contentType string) error {
	client, err := p.client(creds)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, p.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return translateError(err)
}

func (p *Provider) client(creds provider.Credentials) (API, error) {
	if p.fixed != nil {
		return p.fixed, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[creds]; ok {
		return c, nil
	}

	c, err := minio.New(p.cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		Secure: p.cfg.Secure,
		Region: p.cfg.Region,
	})
	if err != nil {
		return nil, tserrors.NewError("minio.client", err)
	}
	p.clients[creds] = c
	return c, nil
}

// translateError tags MinIO error responses with the matching treesync sentinel.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return err
	}

	switch resp.Code {
	case "SlowDown", "SlowDownWrite", "SlowDownRead", "TooManyRequests":
		return fmt.Errorf("%w: %w", tserrors.ErrRateLimited, err)
	case "ServiceUnavailable", "XMinioServerNotInitialized", "InternalError":
		return fmt.Errorf("%w: %w", tserrors.ErrUnavailable, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
		return fmt.Errorf("%w: %w", tserrors.ErrInvalidCredentials, err)
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", tserrors.ErrRateLimited, err)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w", tserrors.ErrUnavailable, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", tserrors.ErrInvalidCredentials, err)
	}
	return err
}

func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return false
	}
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
