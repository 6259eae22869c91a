package s3

import (
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Config describes the bucket a tree is pushed to.
type Config struct {
	// Bucket is the target bucket name (required)
	Bucket string

	// Prefix is prepended to every object key, e.g. "backups/notes"
	Prefix string

	// Region defaults to the AWS config's region, then "us-east-1"
	Region string

	// Endpoint overrides the service endpoint for S3-compatible stores
	Endpoint string

	// ForcePathStyle enables path-style addressing (required by most
	// S3-compatible stores)
	ForcePathStyle bool

	// Timeout bounds every HTTP request. Zero means no timeout.
	Timeout time.Duration
}

// Option configures a Provider.
type Option func(*Provider)

// WithClient makes the provider use client for every call, regardless of the
// credentials passed in. Mostly useful for tests.
func WithClient(client API) Option {
	return func(p *Provider) {
		p.fixed = client
	}
}

// WithAWSConfig uses cfg instead of loading the default AWS configuration.
func WithAWSConfig(cfg aws.Config) Option {
	return func(p *Provider) {
		p.awsConfig = &cfg
	}
}

// WithLogger configures the provider logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}
