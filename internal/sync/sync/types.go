package sync

import (
	"context"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/sync/executor"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/synctypes"
)

// Snapshotter builds a snapshot of the local tree.
type Snapshotter interface {
	Build(ctx context.Context) (*synctypes.LocalSnapshot, error)
}

// Runner executes a ledger against the remote.
type Runner interface {
	Execute(
		ctx context.Context,
		l *synctypes.PendingSyncLedger,
		creds provider.Credentials,
		cfg executor.Config,
	) (*executor.Result, error)
}

// PhaseObserver is notified of every orchestrator phase transition.
// err is set when entering PhaseError.
type PhaseObserver func(phase synctypes.Phase, err error)

// Settings holds the per-tree sync settings.
type Settings struct {
	// TreeID identifies the local tree; baselines with another id are rebuilt
	TreeID string

	// Concurrency is the worker pool size, clamped to [1, 8]
	Concurrency int

	// MaxRetries is the per-operation retry bound, clamped to [0, 10]
	MaxRetries int
}

// Result contains the outcome of one sync attempt.
type Result struct {
	// SyncID is the id of the last ledger executed, empty if nothing was transferred
	SyncID string

	// Resumed is true when a pending ledger from an earlier attempt was completed first
	Resumed bool

	// Uploaded is the number of files uploaded
	Uploaded int

	// Deleted is the number of remote files deleted
	Deleted int

	// Operations is the number of operations started
	Operations int

	// Duration is how long the sync took
	Duration time.Duration
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	Phase                synctypes.Phase
	LastError            string
	LastSuccessfulSyncAt *time.Time
	TreeID               string

	// BaselineFiles is the number of files in the committed baseline
	BaselineFiles int

	// Pending is true while an unfinished ledger is persisted
	Pending bool
	Done    int
	Total   int
}

// Dirty returns the number of operations left in the pending ledger.
func (s Status) Dirty() int {
	return s.Total - s.Done
}
