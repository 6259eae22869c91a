package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
	"github.com/testcontainers/testcontainers-go/wait"
)

// LocalStackRegion is the region every LocalStack client is configured for.
const LocalStackRegion = "us-east-1"

// LocalStack is a running LocalStack container serving S3 and Secrets Manager.
type LocalStack struct {
	endpoint string
}

// SetupLocalStack starts LocalStack for a test and terminates it on cleanup.
func SetupLocalStack(t *testing.T) *LocalStack {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := localstack.Run(ctx,
		"localstack/localstack:latest",
		testcontainers.WithEnv(map[string]string{"SERVICES": "s3,secretsmanager"}),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/_localstack/health").
				WithPort("4566").
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start LocalStack container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate LocalStack container: %v", err)
		}
	})

	endpoint, err := mappedEndpoint(ctx, container, "4566")
	if err != nil {
		t.Fatalf("Failed to resolve LocalStack endpoint: %v", err)
	}
	return &LocalStack{endpoint: endpoint}
}

// Endpoint returns the LocalStack edge URL.
func (l *LocalStack) Endpoint() string {
	return l.endpoint
}

// Region returns the region used by LocalStack clients.
func (l *LocalStack) Region() string {
	return LocalStackRegion
}

// AWSConfig returns an AWS configuration pointed at LocalStack with its
// static "test" credentials.
func (l *LocalStack) AWSConfig(ctx context.Context) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(LocalStackRegion),
		awsconfig.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider("test", "test", "")),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.BaseEndpoint = aws.String(l.endpoint)
	return cfg, nil
}

// S3Client returns a path-style S3 client for LocalStack.
func (l *LocalStack) S3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := l.AWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) { o.UsePathStyle = true }), nil
}

// SecretsManagerClient returns a Secrets Manager client for LocalStack.
func (l *LocalStack) SecretsManagerClient(ctx context.Context) (*secretsmanager.Client, error) {
	cfg, err := l.AWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// CreateBucket creates bucket through client.
func CreateBucket(ctx context.Context, client *s3.Client, bucket string) error {
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

// ListKeys returns every key in bucket.
func ListKeys(ctx context.Context, client *s3.Client, bucket string) ([]string, error) {
	var keys []string
	pages := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", bucket, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

type portEndpointer interface {
	PortEndpoint(ctx context.Context, port nat.Port, proto string) (string, error)
}

// mappedEndpoint returns the http URL a container port is published on.
func mappedEndpoint(ctx context.Context, c portEndpointer, port string) (string, error) {
	p, err := nat.NewPort("tcp", port)
	if err != nil {
		return "", fmt.Errorf("invalid port %s: %w", port, err)
	}
	uri, err := c.PortEndpoint(ctx, p, "")
	if err != nil {
		return "", fmt.Errorf("port %s not published: %w", port, err)
	}
	if !strings.Contains(uri, "://") {
		uri = "http://" + uri
	}
	return uri, nil
}
