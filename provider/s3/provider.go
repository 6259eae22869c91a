// Package s3 provides a remote provider backed by Amazon S3 or any
// S3-compatible object store.
//
// Files are stored as objects under Config.Prefix; the remote marker lives at
// <prefix>/.treesync/state.json. Credentials with an access key pair are used
// as static credentials; empty credentials fall back to the default AWS
// credential chain (environment, shared config, instance roles).
package s3

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider"
)

// ID is the registry identifier of the S3 provider.
const ID = "s3"

// Provider pushes files to an S3 bucket.
type Provider struct {
	cfg       Config
	awsConfig *aws.Config
	logger    *slog.Logger

	// fixed, when set, serves every call
	fixed API

	// clients caches one client per credential set
	clients map[provider.Credentials]API
	mu      sync.Mutex
}

var (
	_ provider.Provider             = (*Provider)(nil)
	_ provider.CredentialsValidator = (*Provider)(nil)
)

// New creates a new S3 provider.
func New(cfg Config, opts ...Option) (*Provider, error) {
	if cfg.Bucket == "" {
		return nil, tserrors.NewError("s3.new", tserrors.ErrInvalidInput).
			WithMessage("bucket name cannot be empty")
	}

	p := &Provider{
		cfg:     cfg,
		clients: make(map[provider.Credentials]API),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// ID returns the provider identifier.
func (p *Provider) ID() string { return ID }

// Name returns a human readable name.
func (p *Provider) Name() string { return "Amazon S3" }

// ValidateCredentials rejects half-specified key pairs. Empty credentials are
// accepted and resolved through the default AWS credential chain.
func (p *Provider) ValidateCredentials(creds provider.Credentials) error {
	if (creds.AccessKeyID == "") != (creds.SecretAccessKey == "") {
		return fmt.Errorf("%w: access key id and secret access key must be set together",
			tserrors.ErrMissingCredentials)
	}
	return nil
}

// CheckConnection verifies the bucket exists and is accessible.
func (p *Provider) CheckConnection(ctx context.Context, creds provider.Credentials) error {
	client, err := p.client(ctx, creds)
	if err != nil {
		return err
	}
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.cfg.Bucket)})
	if err != nil {
		return tserrors.NewError("check", convertAWSError(err)).WithPath(p.cfg.Bucket)
	}
	return nil
}

// HasRemoteMarker reports whether the marker object exists.
func (p *Provider) HasRemoteMarker(ctx context.Context, creds provider.Credentials) (bool, error) {
	client, err := p.client(ctx, creds)
	if err != nil {
		return false, err
	}

	key := provider.JoinKey(p.cfg.Prefix, provider.MarkerPath)
	_, err = client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, tserrors.NewPathError("has-marker", key, convertAWSError(err))
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
	client, err := p.client(ctx, creds)
	if err != nil {
		return err
	}

	key := provider.JoinKey(p.cfg.Prefix, path)
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return tserrors.NewPathError("delete", path, convertAWSError(err))
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
	client, err := p.client(ctx, creds)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	return convertAWSError(err)
}

// client returns the client for creds, creating it on first use.
func (p *Provider) client(ctx context.Context, creds provider.Credentials) (API, error) {
	if p.fixed != nil {
		return p.fixed, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[creds]; ok {
		return c, nil
	}

	cfg, err := p.loadConfig(ctx, creds)
	if err != nil {
		return nil, tserrors.NewError("s3.client", err)
	}

	var s3Opts []func(*s3.Options)
	if p.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	if p.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(p.cfg.Endpoint)
		})
	}
	if p.cfg.Timeout > 0 {
		httpClient := &http.Client{Timeout: p.cfg.Timeout}
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.HTTPClient = httpClient
		})
	}

	c := s3.NewFromConfig(cfg, s3Opts...)
	p.clients[creds] = c
	return c, nil
}

func (p *Provider) loadConfig(ctx context.Context, creds provider.Credentials) (aws.Config, error) {
	var cfg aws.Config
	if p.awsConfig != nil {
		cfg = p.awsConfig.Copy()
	} else {
		var err error
		cfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, err
		}
	}

	if p.cfg.Region != "" {
		cfg.Region = p.cfg.Region
	} else if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	if creds.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID,
			creds.SecretAccessKey,
			creds.SessionToken,
		))
	}

	// The executor owns retries and backoff.
	cfg.RetryMaxAttempts = 1
	return cfg, nil
}
