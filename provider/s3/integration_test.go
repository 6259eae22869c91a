//go:build integration

package s3_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider/s3"
)

func TestIntegrationProvider(t *testing.T) {
	ctx := context.Background()
	ls := testutil.SetupLocalStack(t)

	client, err := ls.S3Client(ctx)
	require.NoError(t, err)
	bucket := testutil.BucketName(t)
	require.NoError(t, testutil.CreateBucket(ctx, client, bucket))

	cfg, err := ls.AWSConfig(ctx)
	require.NoError(t, err)
	p, err := s3.New(s3.Config{
		Bucket:         bucket,
		Prefix:         "tree",
		Region:         ls.Region(),
		Endpoint:       ls.Endpoint(),
		ForcePathStyle: true,
	}, s3.WithAWSConfig(cfg))
	require.NoError(t, err)
	defer p.Close()

	creds := provider.Credentials{AccessKeyID: "test", SecretAccessKey: "test"}
	require.NoError(t, p.CheckConnection(ctx, creds))

	ok, err := p.HasRemoteMarker(ctx, creds)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.UploadFile(ctx, creds, "notes/a.md", []byte("# a")))
	require.NoError(t, p.UploadFile(ctx, creds, "b.txt", []byte("b")))
	require.NoError(t, p.WriteRemoteMarker(ctx, creds, []byte(`{"schemaVersion":1}`)))
	require.NoError(t, p.DeleteFile(ctx, creds, "b.txt"))
	require.NoError(t, p.DeleteFile(ctx, creds, "never-existed.txt"))

	ok, err = p.HasRemoteMarker(ctx, creds)
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := testutil.ListKeys(ctx, client, bucket)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tree/notes/a.md", "tree/.treesync/state.json"}, keys)
}
