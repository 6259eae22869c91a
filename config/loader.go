package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/sync/executor"
)

// EnvPrefix is the prefix of environment overrides, e.g. TREESYNC_SYNC_MAX_RETRIES.
const EnvPrefix = "TREESYNC"

// Load reads the configuration. When path is empty, treesync.yaml is searched
// in ConfigDir() and the working directory; a missing file is not an error.
// The result is normalized but not validated.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("treesync")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	cfg := &Config{}
	if err := newViper().Unmarshal(cfg); err != nil {
		// Defaults are static and always decode.
		panic(err)
	}
	cfg.Normalize()
	return cfg
}

// Normalize clamps the engine settings into their supported ranges and fills
// in derived defaults.
func (c *Config) Normalize() {
	c.Sync.MaxConcurrentUploads = executor.ClampConcurrency(c.Sync.MaxConcurrentUploads)
	c.Sync.MaxRetries = executor.ClampRetries(c.Sync.MaxRetries)
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = DefaultDebounce
	}
	c.Provider.Type = strings.ToLower(strings.TrimSpace(c.Provider.Type))
	c.State.Backend = strings.ToLower(strings.TrimSpace(c.State.Backend))
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults registers every key, which also makes each one overridable
// from the environment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("tree.name", "")
	v.SetDefault("tree.root", "")
	v.SetDefault("tree.include", []string{})
	v.SetDefault("tree.exclude", DefaultExclude)

	v.SetDefault("provider.type", ProviderS3)
	v.SetDefault("provider.s3.bucket", "")
	v.SetDefault("provider.s3.prefix", "")
	v.SetDefault("provider.s3.region", "")
	v.SetDefault("provider.s3.endpoint", "")
	v.SetDefault("provider.s3.force_path_style", false)
	v.SetDefault("provider.s3.timeout", "0s")
	v.SetDefault("provider.minio.endpoint", "")
	v.SetDefault("provider.minio.bucket", "")
	v.SetDefault("provider.minio.prefix", "")
	v.SetDefault("provider.minio.region", "")
	v.SetDefault("provider.minio.secure", false)
	v.SetDefault("provider.dir.path", "")
	v.SetDefault("provider.dir.prefix", "")

	v.SetDefault("credentials.token", "")
	v.SetDefault("credentials.access_key_id", "")
	v.SetDefault("credentials.secret_access_key", "")
	v.SetDefault("credentials.session_token", "")

	v.SetDefault("sync.max_concurrent_uploads", DefaultConcurrency)
	v.SetDefault("sync.max_retries", DefaultMaxRetries)

	v.SetDefault("state.backend", StateFile)
	v.SetDefault("state.path", "")

	v.SetDefault("watch.debounce", DefaultDebounce.String())

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}
