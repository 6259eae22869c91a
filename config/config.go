// Package config loads and validates treesync configuration.
//
// Configuration comes from a YAML file, TREESYNC_* environment variables and
// built-in defaults, in that order of precedence (environment wins). Secret
// values in the credentials section are references resolved at runtime, see
// internal/credentials.
package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Provider types understood by the CLI.
const (
	ProviderS3     = "s3"
	ProviderMinIO  = "minio"
	ProviderDir    = "dir"
	ProviderMemory = "memory"
)

// State backends.
const (
	StateFile   = "file"
	StateSQLite = "sqlite"
)

// Defaults applied when a value is not configured.
const (
	DefaultConcurrency = 4
	DefaultMaxRetries  = 3
	DefaultDebounce    = 2 * time.Second
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
)

// DefaultExclude keeps VCS metadata and OS litter out of the push.
var DefaultExclude = []string{".git/", ".DS_Store", ".treesync/"}

// Config is the root configuration.
type Config struct {
	Tree        TreeConfig        `mapstructure:"tree" yaml:"tree"`
	Provider    ProviderConfig    `mapstructure:"provider" yaml:"provider"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Sync        SyncConfig        `mapstructure:"sync" yaml:"sync"`
	State       StateConfig       `mapstructure:"state" yaml:"state"`
	Watch       WatchConfig       `mapstructure:"watch" yaml:"watch"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

// TreeConfig selects the local tree.
type TreeConfig struct {
	// Name identifies the tree; defaults to the base name of Root
	Name string `mapstructure:"name" yaml:"name"`

	// Root is the host directory to push
	Root string `mapstructure:"root" yaml:"root"`

	Include []string `mapstructure:"include" yaml:"include,omitempty"`
	Exclude []string `mapstructure:"exclude" yaml:"exclude,omitempty"`
}

// ProviderConfig selects and configures the remote.
type ProviderConfig struct {
	// Type is one of s3, minio, dir or memory
	Type string `mapstructure:"type" yaml:"type"`

	S3    S3Config    `mapstructure:"s3" yaml:"s3,omitempty"`
	MinIO MinIOConfig `mapstructure:"minio" yaml:"minio,omitempty"`
	Dir   DirConfig   `mapstructure:"dir" yaml:"dir,omitempty"`
}

// S3Config configures the s3 provider.
type S3Config struct {
	Bucket         string        `mapstructure:"bucket" yaml:"bucket,omitempty"`
	Prefix         string        `mapstructure:"prefix" yaml:"prefix,omitempty"`
	Region         string        `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	ForcePathStyle bool          `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// MinIOConfig configures the minio provider.
type MinIOConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Bucket   string `mapstructure:"bucket" yaml:"bucket,omitempty"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	Region   string `mapstructure:"region" yaml:"region,omitempty"`
	Secure   bool   `mapstructure:"secure" yaml:"secure,omitempty"`
}

// DirConfig configures the dir provider.
type DirConfig struct {
	Path   string `mapstructure:"path" yaml:"path,omitempty"`
	Prefix string `mapstructure:"prefix" yaml:"prefix,omitempty"`
}

// CredentialsConfig holds credential references. Each value is a literal,
// "env:NAME", "file:/path" or "awssm:secret-id[#json-key]".
type CredentialsConfig struct {
	Token           string `mapstructure:"token" yaml:"token,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	SessionToken    string `mapstructure:"session_token" yaml:"session_token,omitempty"`
}

// SyncConfig tunes the execution engine.
type SyncConfig struct {
	// MaxConcurrentUploads is clamped to [1, 8]
	MaxConcurrentUploads int `mapstructure:"max_concurrent_uploads" yaml:"max_concurrent_uploads"`

	// MaxRetries is clamped to [0, 10]
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// StateConfig selects where the durable state is kept.
type StateConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path" yaml:"path,omitempty"`
}

// WatchConfig tunes `treesync watch`.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`

	// File, when set, routes logs to a rotated file instead of stderr
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups,omitempty"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days,omitempty"`
}

// TreeName returns the configured tree name, or the base name of the root.
func (c *Config) TreeName() string {
	if c.Tree.Name != "" {
		return c.Tree.Name
	}
	if c.Tree.Root == "" {
		return ""
	}
	return filepath.Base(filepath.Clean(c.Tree.Root))
}

// StatePath returns the configured state path, or a per-tree default under
// $XDG_STATE_HOME/treesync.
func (c *Config) StatePath() string {
	if c.State.Path != "" {
		return c.State.Path
	}
	ext := ".json"
	if c.State.Backend == StateSQLite {
		ext = ".db"
	}
	name := c.TreeName()
	if name == "" {
		name = "default"
	}
	return filepath.Join(xdg.StateHome, "treesync", name+ext)
}

// ConfigDir returns the default directory searched for treesync.yaml.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, "treesync")
}
