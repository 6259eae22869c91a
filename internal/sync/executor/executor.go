// Package executor runs the operations of a pending-sync ledger against a
// remote provider with bounded parallelism and per-operation retries.
//
// Once any operation fails terminally no new operation is admitted, but
// operations already in flight on other workers run to completion. The ledger
// is checkpointed after every status transition, so a crash redoes at most the
// operations that were in flight.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/fs"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/sync/ledger"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/synctypes"
)

// Limits applied to the execution settings.
const (
	MinConcurrency = 1
	MaxConcurrency = 8
	MaxRetries     = 10
)

// ClampConcurrency limits n to [MinConcurrency, MaxConcurrency].
func ClampConcurrency(n int) int {
	return min(max(n, MinConcurrency), MaxConcurrency)
}

// ClampRetries limits n to [0, MaxRetries].
func ClampRetries(n int) int {
	return min(max(n, 0), MaxRetries)
}

// CheckpointFunc durably persists a snapshot of the ledger.
// It receives a private copy and is never called concurrently.
type CheckpointFunc func(ctx context.Context, l *synctypes.PendingSyncLedger) error

// Config holds the settings of one execution.
type Config struct {
	// Concurrency is the worker pool size, clamped to [1, 8]
	Concurrency int

	// MaxRetries is the number of retries after the first attempt, clamped to [0, 10]
	MaxRetries int

	// Checkpoint is called after every operation transition. Optional.
	Checkpoint CheckpointFunc

	// Progress is called with (done, total) after every operation transition. Optional.
	Progress synctypes.ProgressFunc
}

// Result contains the outcome of an execution.
type Result struct {
	// Ledger is the ledger passed to Execute, updated in place
	Ledger *synctypes.PendingSyncLedger

	// Attempted is the number of operations started
	Attempted int

	// Succeeded is the number of operations that reached done
	Succeeded int

	// Failed is the number of operations marked failed
	Failed int

	// Duration is how long the execution took
	Duration time.Duration
}

// OperationError is the first terminal error of an execution.
type OperationError struct {
	Type synctypes.OperationType
	Path string
	Err  error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("failed %s %s: %v", e.Type, e.Path, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Executor handles the parallel execution of ledger operations.
type Executor struct {
	provider   provider.Provider
	files      fs.Filesystem
	clock      clockwork.Clock
	logger     *slog.Logger
	backoff    Backoff
	randInt63n func(int64) int64
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock sets the clock used for backoff waits and durations.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Executor) {
		e.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithBackoff overrides the retry schedule.
func WithBackoff(b Backoff) Option {
	return func(e *Executor) {
		e.backoff = b
	}
}

// WithRandom overrides the jitter source. fn must return a value in [0, n).
func WithRandom(fn func(n int64) int64) Option {
	return func(e *Executor) {
		e.randInt63n = fn
	}
}

// New creates a new executor that reads upload content from files and
// transfers it with p.
func New(p provider.Provider, files fs.Filesystem, opts ...Option) *Executor {
	e := &Executor{
		provider: p,
		files:    files,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		backoff:  DefaultBackoff(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run is the shared state of one Execute call.
type run struct {
	ledger *synctypes.PendingSyncLedger
	cfg    Config
	creds  provider.Credentials
	result *Result

	// mu guards ledger statuses, result counters, checkpoint and progress calls
	mu sync.Mutex
}

// Execute runs every pending or failed operation of l. Operations already done
// are skipped, which makes re-running a partially completed ledger resume it.
//
// l is mutated in place. On a terminal failure the returned error is an
// *OperationError for the first failure observed and the result still reports
// the ledger as it was left.
func (e *Executor) Execute(
	ctx context.Context,
	l *synctypes.PendingSyncLedger,
	creds provider.Credentials,
	cfg Config,
) (*Result, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: nil ledger", tserrors.ErrInvalidInput)
	}

	start := e.clock.Now()
	cfg.MaxRetries = ClampRetries(cfg.MaxRetries)
	ledger.Recount(l)

	r := &run{
		ledger: l,
		cfg:    cfg,
		creds:  creds,
		result: &Result{Ledger: l},
	}

	eligible := ledger.Eligible(l)
	if len(eligible) == 0 {
		r.result.Duration = e.clock.Since(start)
		return r.result, nil
	}

	workers := min(ClampConcurrency(cfg.Concurrency), len(eligible))
	queue := make(chan int, len(eligible))
	for _, i := range eligible {
		queue <- i
	}
	close(queue)

	e.logger.Debug("executing ledger",
		"sync_id", l.SyncID,
		"eligible", len(eligible),
		"total", l.TotalCount,
		"workers", workers,
	)

	// The group context is the admission signal: it is cancelled when the first
	// worker returns a terminal error. Provider calls use ctx so in-flight work
	// is not interrupted.
	g, admit := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			return e.worker(ctx, admit, queue, r)
		})
	}
	err := g.Wait()
	if left := ledger.Remaining(l); err == nil && left > 0 {
		// Workers stop pulling once ctx is done without failing anything.
		err = fmt.Errorf("execution stopped with %d of %d operations left", left, l.TotalCount)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", err, ctxErr)
		}
	}

	r.result.Duration = e.clock.Since(start)
	if err != nil {
		e.logger.Warn("execution stopped",
			"sync_id", l.SyncID,
			"done", l.DoneCount,
			"total", l.TotalCount,
			"error", err,
		)
		return r.result, err
	}
	return r.result, nil
}

func (e *Executor) worker(ctx, admit context.Context, queue <-chan int, r *run) error {
	for {
		if admit.Err() != nil {
			return nil
		}

		var (
			i  int
			ok bool
		)
		select {
		case <-admit.Done():
			return nil
		case i, ok = <-queue:
			if !ok {
				return nil
			}
		}
		// Both channels may have been ready; admission wins.
		if admit.Err() != nil {
			return nil
		}

		if err := e.runOperation(ctx, i, r); err != nil {
			return err
		}
	}
}

// runOperation attempts operation i until it succeeds, fails terminally, or
// exhausts its retries, then records the outcome.
func (e *Executor) runOperation(ctx context.Context, i int, r *run) error {
	r.mu.Lock()
	op := r.ledger.Operations[i]
	r.result.Attempted++
	r.mu.Unlock()

	for attempt := 0; ; attempt++ {
		err := e.perform(ctx, op, r.creds)
		if err == nil {
			e.logger.Debug("operation done", "sync_id", r.ledger.SyncID, "op", op.Type, "path", op.Path, "attempt", attempt+1)
			return e.transition(ctx, i, op, r, nil)
		}

		if tserrors.IsRetriable(err) && attempt < r.cfg.MaxRetries {
			delay := e.backoff.Delay(attempt, e.randInt63n)
			e.logger.Warn("operation failed, retrying",
				"sync_id", r.ledger.SyncID,
				"op", op.Type,
				"path", op.Path,
				"attempt", attempt+1,
				"backoff", delay,
				"error", err,
			)
			select {
			case <-ctx.Done():
				err = fmt.Errorf("retry wait cancelled: %w", ctx.Err())
			case <-e.clock.After(delay):
				continue
			}
		}

		e.logger.Error("operation failed",
			"sync_id", r.ledger.SyncID,
			"op", op.Type,
			"path", op.Path,
			"attempt", attempt+1,
			"error", err,
		)
		return e.transition(ctx, i, op, r, err)
	}
}

// perform executes a single attempt of op.
func (e *Executor) perform(ctx context.Context, op synctypes.SyncOperation, creds provider.Credentials) error {
	switch op.Type {
	case synctypes.OperationUpload:
		data, err := e.files.ReadFile(fs.Abs(op.Path))
		if err != nil {
			return tserrors.NewPathError("read", op.Path, fmt.Errorf("%w: %w", tserrors.ErrNotReadable, err))
		}
		return e.provider.UploadFile(ctx, creds, op.Path, data)
	case synctypes.OperationDelete:
		return e.provider.DeleteFile(ctx, creds, op.Path)
	default:
		return fmt.Errorf("%w: unknown operation type %q", tserrors.ErrInvalidInput, op.Type)
	}
}

// transition records the outcome of operation i, checkpoints and reports
// progress. opErr nil means success. The returned error is terminal.
func (e *Executor) transition(ctx context.Context, i int, op synctypes.SyncOperation, r *run, opErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var terminal error
	if opErr == nil {
		ledger.MarkDone(r.ledger, i)
		r.result.Succeeded++
	} else {
		ledger.MarkFailed(r.ledger, i, opErr.Error())
		r.result.Failed++
		terminal = &OperationError{Type: op.Type, Path: op.Path, Err: opErr}
	}

	if r.cfg.Checkpoint != nil {
		if err := r.cfg.Checkpoint(ctx, r.ledger.Clone()); err != nil {
			e.logger.Error("checkpoint failed", "sync_id", r.ledger.SyncID, "path", op.Path, "error", err)
			if terminal == nil {
				terminal = &OperationError{
					Type: op.Type,
					Path: op.Path,
					Err:  fmt.Errorf("%w: %w", tserrors.ErrCheckpoint, err),
				}
			}
		}
	}

	if r.cfg.Progress != nil {
		r.cfg.Progress(r.ledger.DoneCount, r.ledger.TotalCount)
	}
	return terminal
}
