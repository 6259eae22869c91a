//go:build integration

package credentials_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/treesync/config"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/credentials"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/testutil"
)

func TestIntegrationSecretsManager(t *testing.T) {
	ctx := context.Background()
	ls := testutil.SetupLocalStack(t)

	sm, err := ls.SecretsManagerClient(ctx)
	require.NoError(t, err)
	_, err = sm.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String("treesync/remote"),
		SecretString: aws.String(`{"id":"AKIALOCAL","secret":"local-secret"}`),
	})
	require.NoError(t, err)

	r := credentials.NewResolver(
		credentials.WithSource(credentials.SchemeAWSSM, credentials.NewSecretsManagerSource(sm)),
	)
	creds, err := r.Resolve(ctx, config.CredentialsConfig{
		AccessKeyID:     "awssm:treesync/remote#id",
		SecretAccessKey: "awssm:treesync/remote#secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "AKIALOCAL", creds.AccessKeyID)
	assert.Equal(t, "local-secret", creds.SecretAccessKey)

	_, err = r.ResolveRef(ctx, "awssm:treesync/absent")
	assert.Error(t, err)
}
