package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"

	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerSource resolves "secret-id" and "secret-id#key" references.
// Each secret is fetched once per source.
type SecretsManagerSource struct {
	api    SecretsManagerAPI
	values map[string]string
	mu     sync.Mutex
}

// NewSecretsManagerSource creates a source backed by api.
func NewSecretsManagerSource(api SecretsManagerAPI) *SecretsManagerSource {
	return &SecretsManagerSource{api: api, values: make(map[string]string)}
}

// NewDefaultSecretsManagerSource creates a source using the default AWS configuration.
func NewDefaultSecretsManagerSource(ctx context.Context) (*SecretsManagerSource, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSecretsManagerSource(secretsmanager.NewFromConfig(cfg)), nil
}

// Resolve implements Source.
func (s *SecretsManagerSource) Resolve(ctx context.Context, ref string) (string, error) {
	id, key, hasKey := strings.Cut(ref, "#")
	if id == "" {
		return "", fmt.Errorf("%w: secret id cannot be empty", tserrors.ErrInvalidInput)
	}

	value, err := s.secret(ctx, id)
	if err != nil {
		return "", err
	}
	if !hasKey {
		return value, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(value), &fields); err != nil {
		return "", fmt.Errorf("secret %s is not a JSON object: %w", id, err)
	}
	v, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: secret %s has no key %q", tserrors.ErrMissingCredentials, id, key)
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: secret %s key %q is not a string", tserrors.ErrInvalidInput, id, key)
	}
	return str, nil
}

func (s *SecretsManagerSource) secret(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[id]; ok {
		return v, nil
	}

	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "ResourceNotFoundException":
				return "", fmt.Errorf("%w: secret %s not found", tserrors.ErrMissingCredentials, id)
			case "AccessDeniedException":
				return "", fmt.Errorf("%w: access to secret %s denied", tserrors.ErrInvalidCredentials, id)
			}
		}
		return "", fmt.Errorf("get secret %s: %w", id, err)
	}

	var value string
	switch {
	case out.SecretString != nil:
		value = *out.SecretString
	case out.SecretBinary != nil:
		value = string(out.SecretBinary)
	default:
		return "", fmt.Errorf("%w: secret %s has no value", tserrors.ErrMissingCredentials, id)
	}
	s.values[id] = value
	return value, nil
}
