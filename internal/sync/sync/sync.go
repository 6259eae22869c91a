// Package sync provides the main sync orchestration logic.
//
// The Manager sequences one sync attempt: resume a pending ledger if any,
// snapshot the tree, diff against the agreed baseline, execute, commit the new
// baseline and publish the remote marker. Only one attempt runs at a time.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/sync/executor"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/sync/ledger"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/sync/planner"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/store"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/synctypes"
)

// Deps are the collaborators of a Manager.
type Deps struct {
	Scanner  Snapshotter
	Executor Runner
	Store    store.Store

	// Provider may be nil, in which case every sync fails with ErrNoProvider
	Provider provider.Provider

	Clock    clockwork.Clock
	Logger   *slog.Logger
	Observer PhaseObserver
}

// Manager coordinates sync attempts for one tree.
type Manager struct {
	deps     Deps
	settings Settings

	// running rejects overlapping attempts
	running atomic.Bool

	// mu guards state, phase and lastErr. Store writes happen under it, so
	// there is a single writer at a time.
	mu      stdsync.Mutex
	state   *synctypes.PersistedState
	phase   synctypes.Phase
	lastErr error
}

// NewManager creates a new sync manager.
func NewManager(deps Deps, settings Settings) *Manager {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	settings.Concurrency = executor.ClampConcurrency(settings.Concurrency)
	settings.MaxRetries = executor.ClampRetries(settings.MaxRetries)

	return &Manager{
		deps:     deps,
		settings: settings,
		phase:    synctypes.PhaseIdle,
	}
}

// Reconcile loads the persisted state and rebuilds the baseline from a fresh
// scan, without diffing, when it is missing, belongs to another tree, or has
// an outdated snapshot schema. A pending ledger of another tree is discarded
// as well. It reports whether the baseline was rebuilt.
func (sm *Manager) Reconcile(ctx context.Context) (bool, error) {
	if !sm.running.CompareAndSwap(false, true) {
		return false, tserrors.ErrSyncInProgress
	}
	defer sm.running.Store(false)

	rebuilt, err := sm.reconcile(ctx)
	if err != nil {
		sm.fail(err)
		return false, err
	}
	sm.setPhase(synctypes.PhaseIdle)
	return rebuilt, nil
}

func (sm *Manager) reconcile(ctx context.Context) (bool, error) {
	state, err := sm.deps.Store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load state: %w", err)
	}

	base := state.Baseline
	foreign := base != nil && base.TreeID != sm.settings.TreeID
	if base != nil && !foreign && base.SchemaVersion == synctypes.SnapshotSchemaVersion {
		sm.mu.Lock()
		sm.state = state
		sm.mu.Unlock()
		return false, nil
	}

	if foreign && state.Pending != nil {
		sm.deps.Logger.Info("discarding pending ledger of another tree",
			"sync_id", state.Pending.SyncID,
			"tree_id", base.TreeID,
		)
		state.Pending = nil
		state.PendingTarget = nil
	}

	sm.setPhase(synctypes.PhaseScanning)
	snap, err := sm.deps.Scanner.Build(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to build snapshot: %w", err)
	}
	state.Baseline = snap

	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.state = state
	if err := sm.saveLocked(ctx); err != nil {
		return false, err
	}
	sm.deps.Logger.Info("baseline rebuilt", "tree_id", snap.TreeID, "files", snap.Len())
	return true, nil
}

// Sync runs one sync attempt. A concurrent call while an attempt (or a
// Reconcile) is running is rejected with ErrSyncInProgress.
func (sm *Manager) Sync(
	ctx context.Context,
	creds provider.Credentials,
	progress synctypes.ProgressFunc,
) (*Result, error) {
	if !sm.running.CompareAndSwap(false, true) {
		return nil, tserrors.ErrSyncInProgress
	}
	defer sm.running.Store(false)

	start := sm.deps.Clock.Now()
	res := &Result{}
	err := sm.sync(ctx, creds, progress, res)
	res.Duration = sm.deps.Clock.Since(start)

	if err != nil {
		sm.fail(err)
		return res, err
	}

	sm.setPhase(synctypes.PhaseIdle)
	sm.deps.Logger.Info("sync complete",
		"sync_id", res.SyncID,
		"resumed", res.Resumed,
		"uploaded", res.Uploaded,
		"deleted", res.Deleted,
		"duration", res.Duration,
	)
	return res, nil
}

func (sm *Manager) sync(
	ctx context.Context,
	creds provider.Credentials,
	progress synctypes.ProgressFunc,
	res *Result,
) error {
	if err := sm.Preflight(creds); err != nil {
		return err
	}
	if err := sm.ensureState(ctx); err != nil {
		return err
	}

	sm.mu.Lock()
	pending := sm.state.Pending != nil
	sm.mu.Unlock()

	if pending {
		sm.setPhase(synctypes.PhaseResuming)
		if err := sm.resume(ctx, creds, progress, res); err != nil {
			return err
		}
		res.Resumed = true
	}

	sm.setPhase(synctypes.PhaseScanning)
	current, err := sm.deps.Scanner.Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build snapshot: %w", err)
	}

	hasMarker, err := sm.deps.Provider.HasRemoteMarker(ctx, creds)
	if err != nil {
		return fmt.Errorf("%w: %w", tserrors.ErrRemoteMarker, err)
	}

	sm.setPhase(synctypes.PhaseDiffing)
	ops := planner.Diff(sm.usableBaseline(hasMarker), current)
	if err := planner.Validate(ops); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}

	if len(ops) == 0 {
		sm.setPhase(synctypes.PhaseCommitting)
		return sm.commit(ctx, creds, current)
	}

	l := ledger.New(ops, sm.deps.Clock.Now())
	sm.mu.Lock()
	sm.state.Pending = l.Clone()
	sm.state.PendingTarget = current
	err = sm.saveLocked(ctx)
	sm.mu.Unlock()
	if err != nil {
		return err
	}
	sm.deps.Logger.Debug("ledger created", "sync_id", l.SyncID, "total", l.TotalCount)

	sm.setPhase(synctypes.PhaseExecuting)
	if err := sm.execute(ctx, l, creds, progress, res); err != nil {
		return err
	}

	sm.setPhase(synctypes.PhaseCommitting)
	return sm.commit(ctx, creds, current)
}

// resume finishes the persisted ledger and commits the snapshot it was derived from.
func (sm *Manager) resume(
	ctx context.Context,
	creds provider.Credentials,
	progress synctypes.ProgressFunc,
	res *Result,
) error {
	sm.mu.Lock()
	l := sm.state.Pending.Clone()
	target := sm.state.PendingTarget.Clone()
	baseline := sm.state.Baseline.Clone()
	sm.mu.Unlock()

	sm.deps.Logger.Info("resuming pending sync",
		"sync_id", l.SyncID,
		"done", ledger.CountDone(l.Operations),
		"total", len(l.Operations),
	)
	if err := sm.execute(ctx, l, creds, progress, res); err != nil {
		return err
	}

	if target == nil {
		// State written before targets were recorded: derive it from the
		// baseline and what the ledger applied.
		target = applyLedger(baseline, l, sm.settings.TreeID, sm.deps.Clock.Now())
	}

	sm.setPhase(synctypes.PhaseCommitting)
	return sm.commit(ctx, creds, target)
}

// execute runs l, checkpointing every transition into the persisted state.
func (sm *Manager) execute(
	ctx context.Context,
	l *synctypes.PendingSyncLedger,
	creds provider.Credentials,
	progress synctypes.ProgressFunc,
	res *Result,
) error {
	var stats planner.Stats
	for _, i := range ledger.Eligible(l) {
		switch l.Operations[i].Type {
		case synctypes.OperationUpload:
			stats.Uploads++
		case synctypes.OperationDelete:
			stats.Deletes++
		}
	}

	out, err := sm.deps.Executor.Execute(ctx, l, creds, executor.Config{
		Concurrency: sm.settings.Concurrency,
		MaxRetries:  sm.settings.MaxRetries,
		Progress:    progress,
		Checkpoint: func(ctx context.Context, snap *synctypes.PendingSyncLedger) error {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			sm.state.Pending = snap
			return sm.saveLocked(ctx)
		},
	})

	res.SyncID = l.SyncID
	if out != nil {
		res.Operations += out.Attempted
	}
	if err == nil && !ledger.Complete(l) {
		err = fmt.Errorf("ledger %s incomplete: %d of %d operations done", l.SyncID, ledger.CountDone(l.Operations), len(l.Operations))
	}

	if err != nil {
		// Checkpoints may have been skipped after a checkpoint failure; try
		// to leave the latest statuses behind.
		sm.mu.Lock()
		sm.state.Pending = l.Clone()
		if saveErr := sm.saveLocked(ctx); saveErr != nil {
			sm.deps.Logger.Warn("failed to persist ledger after error", "sync_id", l.SyncID, "error", saveErr)
		}
		sm.mu.Unlock()
		return err
	}

	res.Uploaded += stats.Uploads
	res.Deleted += stats.Deletes
	return nil
}

// commit publishes the marker for snap and records it as the agreed baseline,
// clearing any pending ledger. If the marker cannot be written the ledger is
// kept, so the next attempt resumes it (with nothing left to transfer).
func (sm *Manager) commit(ctx context.Context, creds provider.Credentials, snap *synctypes.LocalSnapshot) error {
	now := sm.deps.Clock.Now()
	payload, err := json.Marshal(synctypes.RemoteMarker{
		SchemaVersion: synctypes.RemoteMarkerSchemaVersion,
		TreeID:        sm.settings.TreeID,
		FileCount:     snap.Len(),
		UpdatedAt:     now,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", tserrors.ErrRemoteMarker, err)
	}
	if err := sm.deps.Provider.WriteRemoteMarker(ctx, creds, payload); err != nil {
		return fmt.Errorf("%w: %w", tserrors.ErrRemoteMarker, err)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.state.Baseline = snap
	sm.state.Pending = nil
	sm.state.PendingTarget = nil
	sm.state.LastSuccessfulSyncAt = &now
	return sm.saveLocked(ctx)
}

// Plan returns the operations the next sync would perform without changing
// any state. While a ledger is pending its unfinished operations are returned.
func (sm *Manager) Plan(ctx context.Context, creds provider.Credentials) ([]synctypes.SyncOperation, error) {
	if err := sm.Preflight(creds); err != nil {
		return nil, err
	}
	if err := sm.ensureState(ctx); err != nil {
		return nil, err
	}

	sm.mu.Lock()
	if l := sm.state.Pending; l != nil {
		var ops []synctypes.SyncOperation
		for _, i := range ledger.Eligible(l) {
			ops = append(ops, l.Operations[i])
		}
		sm.mu.Unlock()
		return ops, nil
	}
	sm.mu.Unlock()

	current, err := sm.deps.Scanner.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot: %w", err)
	}
	hasMarker, err := sm.deps.Provider.HasRemoteMarker(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tserrors.ErrRemoteMarker, err)
	}
	return planner.Diff(sm.usableBaseline(hasMarker), current), nil
}

// Preflight rejects a sync that cannot possibly succeed before any work is done.
func (sm *Manager) Preflight(creds provider.Credentials) error {
	if sm.deps.Provider == nil {
		return tserrors.ErrNoProvider
	}
	if v, ok := sm.deps.Provider.(provider.CredentialsValidator); ok {
		if err := v.ValidateCredentials(creds); err != nil {
			return err
		}
	}
	return nil
}

// CheckConnection verifies the remote is reachable with creds.
func (sm *Manager) CheckConnection(ctx context.Context, creds provider.Credentials) error {
	if err := sm.Preflight(creds); err != nil {
		return err
	}
	return sm.deps.Provider.CheckConnection(ctx, creds)
}

// Status returns a snapshot of the orchestrator state.
func (sm *Manager) Status() Status {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	st := Status{
		Phase:  sm.phase,
		TreeID: sm.settings.TreeID,
	}
	if sm.lastErr != nil {
		st.LastError = sm.lastErr.Error()
	}
	if sm.state != nil {
		st.BaselineFiles = sm.state.Baseline.Len()
		if t := sm.state.LastSuccessfulSyncAt; t != nil {
			at := *t
			st.LastSuccessfulSyncAt = &at
		}
		if l := sm.state.Pending; l != nil {
			st.Pending = true
			st.Done = l.DoneCount
			st.Total = l.TotalCount
		}
	}
	return st
}

// usableBaseline returns the baseline to diff against. An uninitialized
// remote forces a full push, as does a baseline that does not belong to this
// tree or uses an older snapshot schema.
func (sm *Manager) usableBaseline(hasMarker bool) *synctypes.LocalSnapshot {
	if !hasMarker {
		return nil
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	base := sm.state.Baseline
	if base == nil || base.TreeID != sm.settings.TreeID || base.SchemaVersion != synctypes.SnapshotSchemaVersion {
		return nil
	}
	return base
}

// ensureState loads the persisted state on first use.
func (sm *Manager) ensureState(ctx context.Context) error {
	sm.mu.Lock()
	loaded := sm.state != nil
	sm.mu.Unlock()
	if loaded {
		return nil
	}

	state, err := sm.deps.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	sm.mu.Lock()
	if sm.state == nil {
		sm.state = state
	}
	sm.mu.Unlock()
	return nil
}

// saveLocked persists the current state. Callers hold sm.mu.
func (sm *Manager) saveLocked(ctx context.Context) error {
	if err := sm.deps.Store.Save(ctx, sm.state); err != nil {
		return fmt.Errorf("%w: %w", tserrors.ErrCheckpoint, err)
	}
	return nil
}

func (sm *Manager) setPhase(phase synctypes.Phase) {
	sm.mu.Lock()
	changed := sm.phase != phase
	sm.phase = phase
	if phase != synctypes.PhaseError && phase != synctypes.PhaseIdle {
		sm.lastErr = nil
	}
	sm.mu.Unlock()

	if changed {
		sm.deps.Logger.Debug("phase changed", "phase", phase.String())
		if sm.deps.Observer != nil {
			sm.deps.Observer(phase, nil)
		}
	}
}

// fail surfaces err through the error phase and returns to idle.
func (sm *Manager) fail(err error) {
	sm.mu.Lock()
	sm.phase = synctypes.PhaseError
	sm.lastErr = err
	sm.mu.Unlock()

	level := slog.LevelError
	if errors.Is(err, context.Canceled) {
		level = slog.LevelWarn
	}
	sm.deps.Logger.Log(context.Background(), level, "sync failed", "error", err, "code", tserrors.CodeOf(err))
	if sm.deps.Observer != nil {
		sm.deps.Observer(synctypes.PhaseError, err)
	}
	sm.setPhase(synctypes.PhaseIdle)
}

// applyLedger derives the snapshot a completed ledger moved the remote to.
func applyLedger(
	baseline *synctypes.LocalSnapshot,
	l *synctypes.PendingSyncLedger,
	treeID string,
	now time.Time,
) *synctypes.LocalSnapshot {
	out := baseline.Clone()
	if out == nil {
		out = &synctypes.LocalSnapshot{CreatedAt: now}
	}
	if out.Files == nil {
		out.Files = make(map[string]synctypes.IndexEntry)
	}
	out.SchemaVersion = synctypes.SnapshotSchemaVersion
	out.TreeID = treeID
	out.UpdatedAt = now

	for _, op := range l.Operations {
		switch op.Type {
		case synctypes.OperationUpload:
			entry := out.Files[op.Path]
			entry.Path = op.Path
			entry.ContentHash = op.ContentHash
			out.Files[op.Path] = entry
		case synctypes.OperationDelete:
			delete(out.Files, op.Path)
		}
	}
	return out
}
