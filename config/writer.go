package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/input-output-hk/catalyst-forge-libs/treesync/fs"
)

// Write stores cfg as YAML at path, creating parent directories. An existing
// file is only replaced when overwrite is set.
func Write(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		exists, err := fs.Exists(path)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Marshal encodes cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}

// Template returns a starter configuration for the given provider type.
func Template(providerType string) *Config {
	cfg := Default()
	cfg.Tree.Root = "."
	cfg.Provider.Type = providerType

	switch providerType {
	case ProviderS3:
		cfg.Provider.S3.Bucket = "my-bucket"
		cfg.Provider.S3.Prefix = "treesync"
		cfg.Credentials.AccessKeyID = "env:AWS_ACCESS_KEY_ID"
		cfg.Credentials.SecretAccessKey = "env:AWS_SECRET_ACCESS_KEY"
	case ProviderMinIO:
		cfg.Provider.MinIO.Endpoint = "localhost:9000"
		cfg.Provider.MinIO.Bucket = "my-bucket"
		cfg.Credentials.AccessKeyID = "env:MINIO_ACCESS_KEY"
		cfg.Credentials.SecretAccessKey = "env:MINIO_SECRET_KEY"
	case ProviderDir:
		cfg.Provider.Dir.Path = "/mnt/backup"
	}
	return cfg
}
