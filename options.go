package treesync

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/input-output-hk/catalyst-forge-libs/treesync/fs"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/store"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/synctypes"
)

// Default execution settings.
const (
	DefaultConcurrency = 4
	DefaultMaxRetries  = 3
)

// ClientConfig holds the settings a Client is built from.
type ClientConfig struct {
	Provider    provider.Provider
	Credentials provider.Credentials
	Store       store.Store

	// Filesystem is the tree to push, rooted at the tree root. When nil the
	// host directory TreeRoot is used.
	Filesystem fs.Filesystem

	// TreeName and TreeRoot identify the tree
	TreeName string
	TreeRoot string

	// Concurrency is clamped to [1, 8]
	Concurrency int

	// MaxRetries is clamped to [0, 10]
	MaxRetries int

	Include []string
	Exclude []string

	// RetryBase and RetryCap override the retry backoff when positive
	RetryBase time.Duration
	RetryCap  time.Duration

	Logger   *slog.Logger
	Clock    clockwork.Clock
	Progress synctypes.ProgressFunc
	Observer func(phase synctypes.Phase, err error)
}

// Option configures a Client.
type Option func(*ClientConfig)

// WithProvider sets the remote the tree is pushed to.
// Without a provider every sync fails with errors.ErrNoProvider.
func WithProvider(p provider.Provider) Option {
	return func(c *ClientConfig) {
		c.Provider = p
	}
}

// WithCredentials sets the credentials handed to the provider.
func WithCredentials(creds provider.Credentials) Option {
	return func(c *ClientConfig) {
		c.Credentials = creds
	}
}

// WithStore sets where the sync state is persisted.
// Without a store the state lives in memory and is lost on exit.
func WithStore(s store.Store) Option {
	return func(c *ClientConfig) {
		c.Store = s
	}
}

// WithFilesystem sets the filesystem holding the tree, rooted at the tree root.
func WithFilesystem(files fs.Filesystem) Option {
	return func(c *ClientConfig) {
		c.Filesystem = files
	}
}

// WithTree sets the tree name and its host root directory.
func WithTree(name, root string) Option {
	return func(c *ClientConfig) {
		c.TreeName = name
		c.TreeRoot = root
	}
}

// WithConcurrency sets the number of parallel transfers.
func WithConcurrency(n int) Option {
	return func(c *ClientConfig) {
		c.Concurrency = n
	}
}

// WithMaxRetries sets how often a failed transfer is retried.
func WithMaxRetries(n int) Option {
	return func(c *ClientConfig) {
		c.MaxRetries = n
	}
}

// WithPatterns sets include and exclude patterns for the tree.
func WithPatterns(include, exclude []string) Option {
	return func(c *ClientConfig) {
		c.Include = include
		c.Exclude = exclude
	}
}

// WithRetryBackoff sets the base and cap of the exponential retry backoff.
func WithRetryBackoff(base, limit time.Duration) Option {
	return func(c *ClientConfig) {
		c.RetryBase = base
		c.RetryCap = limit
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ClientConfig) {
		c.Logger = logger
	}
}

// WithClock sets the clock used for timestamps and retry waits.
func WithClock(clock clockwork.Clock) Option {
	return func(c *ClientConfig) {
		c.Clock = clock
	}
}

// WithProgress sets a callback receiving (done, total) after every transfer.
func WithProgress(fn synctypes.ProgressFunc) Option {
	return func(c *ClientConfig) {
		c.Progress = fn
	}
}

// WithPhaseObserver sets a callback notified of every phase transition.
func WithPhaseObserver(fn func(phase synctypes.Phase, err error)) Option {
	return func(c *ClientConfig) {
		c.Observer = fn
	}
}
