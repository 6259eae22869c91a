package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MinIO root credentials used by the test container.
const (
	MinIOAccessKey = "minioadmin"
	MinIOSecretKey = "minioadmin"
)

// MinIOContainer wraps a MinIO server container for integration tests.
type MinIOContainer struct {
	container testcontainers.Container
	endpoint  string
}

// SetupMinIO starts a MinIO server for a test and terminates it on cleanup.
func SetupMinIO(t *testing.T) *MinIOContainer {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Cmd:          []string{"server", "/data"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     MinIOAccessKey,
				"MINIO_ROOT_PASSWORD": MinIOSecretKey,
			},
			WaitingFor: wait.ForHTTP("/minio/health/live").
				WithPort("9000").
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start MinIO container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate MinIO container: %v", err)
		}
	})

	endpoint, err := mappedEndpoint(ctx, container, "9000")
	if err != nil {
		t.Fatalf("Failed to resolve MinIO endpoint: %v", err)
	}
	return &MinIOContainer{container: container, endpoint: endpoint}
}

// Endpoint returns the MinIO endpoint URL, including the scheme.
func (c *MinIOContainer) Endpoint() string {
	return c.endpoint
}

// HostPort returns the endpoint without its scheme, as minio-go expects it.
func (c *MinIOContainer) HostPort() string {
	return strings.TrimPrefix(c.endpoint, "http://")
}

// BucketName returns a bucket name unique to the test.
func BucketName(t *testing.T) string {
	t.Helper()
	name := strings.ToLower(strings.NewReplacer("/", "-", "_", "-").Replace(t.Name()))
	if len(name) > 40 {
		name = name[:40]
	}
	return fmt.Sprintf("%s-%d", strings.Trim(name, "-"), time.Now().UnixNano()%1_000_000)
}
