package config

import (
	"fmt"
	"strings"

	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/sync/scanner"
)

// Validate checks the configuration is complete enough to run a sync.
// All problems are reported together.
func (c *Config) Validate() error {
	var problems []string

	if c.Tree.Root == "" {
		problems = append(problems, "tree.root is required")
	}
	for _, err := range scanner.ValidatePatterns(c.Tree.Include) {
		problems = append(problems, fmt.Sprintf("tree.include: %v", err))
	}
	for _, err := range scanner.ValidatePatterns(c.Tree.Exclude) {
		problems = append(problems, fmt.Sprintf("tree.exclude: %v", err))
	}

	problems = append(problems, c.validateProvider()...)

	switch c.State.Backend {
	case StateFile, StateSQLite:
	default:
		problems = append(problems, fmt.Sprintf("state.backend %q is not one of file, sqlite", c.State.Backend))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not one of text, json", c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: configuration validation failed: %s",
			tserrors.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateProvider() []string {
	var problems []string
	switch c.Provider.Type {
	case ProviderS3:
		if c.Provider.S3.Bucket == "" {
			problems = append(problems, "provider.s3.bucket is required")
		}
	case ProviderMinIO:
		if c.Provider.MinIO.Endpoint == "" {
			problems = append(problems, "provider.minio.endpoint is required")
		}
		if c.Provider.MinIO.Bucket == "" {
			problems = append(problems, "provider.minio.bucket is required")
		}
	case ProviderDir:
		if c.Provider.Dir.Path == "" {
			problems = append(problems, "provider.dir.path is required")
		}
	case ProviderMemory:
	default:
		problems = append(problems, fmt.Sprintf("provider.type %q is not one of s3, minio, dir, memory", c.Provider.Type))
	}
	return problems
}
