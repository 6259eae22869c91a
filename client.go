package treesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/fs"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/fs/billy"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/sync/executor"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/sync/planner"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/sync/scanner"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/sync/sync"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/store/file"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/synctypes"
)

// Client syncs one local tree to one remote.
// It is safe for concurrent use; overlapping syncs are rejected with
// errors.ErrSyncInProgress rather than queued.
type Client struct {
	cfg     ClientConfig
	treeID  string
	manager *sync.Manager
}

// Result describes a completed sync attempt.
type Result struct {
	// SyncID is the id of the last ledger executed, empty if nothing was transferred
	SyncID string

	// Resumed is true when an interrupted sync was completed first
	Resumed bool

	Uploaded int
	Deleted  int

	// Operations is the number of operations started
	Operations int
	Duration   time.Duration
}

// Plan is the set of operations the next sync would run.
type Plan struct {
	Operations []synctypes.SyncOperation
	Uploads    int
	Deletes    int
}

// Empty reports whether the tree is in step with the remote.
func (p *Plan) Empty() bool {
	return len(p.Operations) == 0
}

// Status is a point-in-time view of a Client.
type Status struct {
	Phase                synctypes.Phase
	LastError            string
	LastSuccessfulSyncAt *time.Time
	TreeID               string
	BaselineFiles        int

	// Pending is true while an interrupted sync waits to be resumed
	Pending bool
	Done    int
	Total   int
}

// Dirty returns the number of operations left in an interrupted sync.
func (s Status) Dirty() int {
	return s.Total - s.Done
}

// New creates a Client. Either WithFilesystem or a tree root via WithTree is required.
//
// Example:
//
//	client, err := treesync.New(
//	    treesync.WithTree("notes", "/home/me/notes"),
//	    treesync.WithProvider(remote),
//	    treesync.WithConcurrency(8),
//	)
func New(opts ...Option) (*Client, error) {
	cfg := ClientConfig{
		Concurrency: DefaultConcurrency,
		MaxRetries:  DefaultMaxRetries,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	root := cfg.TreeRoot
	if root != "" {
		abs, err := fs.GetAbs(root)
		if err != nil {
			return nil, tserrors.NewPathError("client initialization", root, err)
		}
		root = abs
	}
	if cfg.Filesystem == nil {
		if root == "" {
			return nil, tserrors.NewError("client initialization",
				fmt.Errorf("%w: a filesystem or tree root is required", tserrors.ErrInvalidInput))
		}
		cfg.Filesystem = billy.NewOSFS(root)
	}
	if cfg.Store == nil {
		cfg.Logger.Warn("no state store configured, sync state will not survive a restart")
		cfg.Store = file.New(billy.NewInMemoryFS(), "state.json")
	}

	backoff := executor.DefaultBackoff()
	if cfg.RetryBase > 0 {
		backoff.Base = cfg.RetryBase
	}
	if cfg.RetryCap > 0 {
		backoff.Cap = cfg.RetryCap
	}

	scan := scanner.New(cfg.Filesystem,
		scanner.WithIdentity(cfg.TreeName, root),
		scanner.WithPatterns(cfg.Include, cfg.Exclude),
		scanner.WithClock(cfg.Clock),
		scanner.WithLogger(cfg.Logger),
	)

	deps := sync.Deps{
		Scanner:  scan,
		Store:    cfg.Store,
		Clock:    cfg.Clock,
		Logger:   cfg.Logger,
		Observer: cfg.Observer,
	}
	// A nil interface must stay nil so the manager reports ErrNoProvider.
	if cfg.Provider != nil {
		deps.Provider = cfg.Provider
		deps.Executor = executor.New(cfg.Provider, cfg.Filesystem,
			executor.WithClock(cfg.Clock),
			executor.WithLogger(cfg.Logger),
			executor.WithBackoff(backoff),
		)
	}

	return &Client{
		cfg:    cfg,
		treeID: scan.TreeID(),
		manager: sync.NewManager(deps, sync.Settings{
			TreeID:      scan.TreeID(),
			Concurrency: cfg.Concurrency,
			MaxRetries:  cfg.MaxRetries,
		}),
	}, nil
}

// TreeID returns the identifier of the synced tree.
func (c *Client) TreeID() string {
	return c.treeID
}

// Reconcile loads the persisted state and rebuilds the baseline when it is
// missing, belongs to another tree, or was written by an older version. It is
// meant to run once at start-up, before the first Sync.
func (c *Client) Reconcile(ctx context.Context) (bool, error) {
	rebuilt, err := c.manager.Reconcile(ctx)
	if err != nil {
		return false, tserrors.NewError("reconcile", err)
	}
	return rebuilt, nil
}

// Sync runs one sync attempt. An interrupted earlier attempt is resumed first.
func (c *Client) Sync(ctx context.Context) (*Result, error) {
	res, err := c.manager.Sync(ctx, c.cfg.Credentials, c.cfg.Progress)
	out := convertResult(res)
	if err != nil {
		return out, tserrors.NewError("sync", err)
	}
	return out, nil
}

// Plan returns what the next Sync would do, without transferring anything.
func (c *Client) Plan(ctx context.Context) (*Plan, error) {
	ops, err := c.manager.Plan(ctx, c.cfg.Credentials)
	if err != nil {
		return nil, tserrors.NewError("plan", err)
	}
	stats := planner.Summarize(ops)
	return &Plan{
		Operations: ops,
		Uploads:    stats.Uploads,
		Deletes:    stats.Deletes,
	}, nil
}

// CheckConnection verifies that the remote is reachable with the configured credentials.
func (c *Client) CheckConnection(ctx context.Context) error {
	if err := c.manager.CheckConnection(ctx, c.cfg.Credentials); err != nil {
		return tserrors.NewError("check connection", err)
	}
	return nil
}

// Status returns the current phase and the state of the last sync.
func (c *Client) Status() Status {
	st := c.manager.Status()
	return Status{
		Phase:                st.Phase,
		LastError:            st.LastError,
		LastSuccessfulSyncAt: st.LastSuccessfulSyncAt,
		TreeID:               st.TreeID,
		BaselineFiles:        st.BaselineFiles,
		Pending:              st.Pending,
		Done:                 st.Done,
		Total:                st.Total,
	}
}

// Close releases the provider and the state store.
func (c *Client) Close() error {
	var errs []error
	if c.cfg.Provider != nil {
		if err := c.cfg.Provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close provider: %w", err))
		}
	}
	if err := c.cfg.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

func convertResult(res *sync.Result) *Result {
	if res == nil {
		return nil
	}
	return &Result{
		SyncID:     res.SyncID,
		Resumed:    res.Resumed,
		Uploaded:   res.Uploaded,
		Deleted:    res.Deleted,
		Operations: res.Operations,
		Duration:   res.Duration,
	}
}
