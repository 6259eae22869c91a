package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/fs"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/fs/billy"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/sync/executor"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/sync/scanner"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider/memory"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/store"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/synctypes"
)

// memStore is an in-memory store.Store that keeps every saved state.
type memStore struct {
	mu      stdsync.Mutex
	current *synctypes.PersistedState
	saves   int
	failOn  func(state *synctypes.PersistedState) error
}

func (s *memStore) Load(context.Context) (*synctypes.PersistedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return store.Empty(), nil
	}
	return s.current.Clone(), nil
}

func (s *memStore) Save(_ context.Context, state *synctypes.PersistedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != nil {
		if err := s.failOn(state); err != nil {
			return err
		}
	}
	s.current = state.Clone()
	s.saves++
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) snapshot() *synctypes.PersistedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

type harness struct {
	files  *billy.FS
	remote *memory.Provider
	store  *memStore
	clock  *clockwork.FakeClock
	phases []synctypes.Phase
	mgr    *Manager
}

const testTree = "tree-under-test"

func newHarness(t *testing.T, remote *memory.Provider) *harness {
	t.Helper()
	if remote == nil {
		remote = memory.New()
	}
	h := &harness{
		files:  billy.NewInMemoryFS(),
		remote: remote,
		store:  &memStore{},
		clock:  clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)),
	}
	h.mgr = h.build(remote)
	return h
}

func (h *harness) build(p provider.Provider) *Manager {
	deps := Deps{
		Scanner: scanner.New(h.files, scanner.WithIdentity("tree", "/under/test")),
		Executor: executor.New(p, h.files,
			executor.WithBackoff(executor.Backoff{Base: time.Millisecond, Cap: time.Millisecond}),
		),
		Store: h.store,
		Clock: h.clock,
		Observer: func(phase synctypes.Phase, _ error) {
			h.phases = append(h.phases, phase)
		},
	}
	if p != nil {
		deps.Provider = p
	}
	return NewManager(deps, Settings{
		TreeID:      scanner.TreeID("tree", "/under/test"),
		Concurrency: 4,
		MaxRetries:  2,
	})
}

func (h *harness) write(t *testing.T, files map[string]string) {
	t.Helper()
	for p, content := range files {
		require.NoError(t, h.files.WriteFile(fs.Abs(p), []byte(content), 0o644))
	}
}

func (h *harness) remove(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, h.files.Remove(fs.Abs(p)))
	}
}

func baselineHashes(state *synctypes.PersistedState) map[string]string {
	out := map[string]string{}
	if state == nil || state.Baseline == nil {
		return out
	}
	for p, e := range state.Baseline.Files {
		out[p] = e.ContentHash
	}
	return out
}

func TestManager_FirstSyncPushesEverything(t *testing.T) {
	h := newHarness(t, nil)
	h.write(t, map[string]string{"a": "h1"})

	res, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Uploaded)
	assert.Equal(t, 0, res.Deleted)
	assert.False(t, res.Resumed)
	assert.Equal(t, []string{"a"}, h.remote.Paths())

	state := h.store.snapshot()
	assert.Nil(t, state.Pending)
	assert.Nil(t, state.PendingTarget)
	assert.Equal(t, map[string]string{"a": scanner.HashBytes([]byte("h1"))}, baselineHashes(state))
	require.NotNil(t, state.LastSuccessfulSyncAt)
	assert.Equal(t, h.clock.Now(), *state.LastSuccessfulSyncAt)

	var marker synctypes.RemoteMarker
	require.NoError(t, json.Unmarshal(h.remote.Marker(), &marker))
	assert.Equal(t, synctypes.RemoteMarkerSchemaVersion, marker.SchemaVersion)
	assert.Equal(t, scanner.TreeID("tree", "/under/test"), marker.TreeID)
	assert.Equal(t, 1, marker.FileCount)

	assert.Equal(t, []synctypes.Phase{
		synctypes.PhaseScanning,
		synctypes.PhaseDiffing,
		synctypes.PhaseExecuting,
		synctypes.PhaseCommitting,
		synctypes.PhaseIdle,
	}, h.phases)
}

func TestManager_IncrementalSync(t *testing.T) {
	h := newHarness(t, nil)
	h.write(t, map[string]string{"a": "h1", "b": "h2"})
	_, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
	require.NoError(t, err)

	h.remove(t, "b")
	h.write(t, map[string]string{"c": "h3"})

	plan, err := h.mgr.Plan(context.Background(), provider.Credentials{})
	require.NoError(t, err)
	var shape []string
	for _, op := range plan {
		shape = append(shape, fmt.Sprintf("%s %s", op.Type, op.Path))
	}
	assert.ElementsMatch(t, []string{"delete b", "upload c"}, shape)

	res, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Uploaded)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, []string{"a", "c"}, h.remote.Paths())
	assert.Equal(t, 1, h.remote.Uploads("a"), "unchanged files are not re-uploaded")
	assert.ElementsMatch(t, []string{"a", "c"}, keys(baselineHashes(h.store.snapshot())))
}

func TestManager_EmptyDiffStillPublishesMarker(t *testing.T) {
	h := newHarness(t, nil)
	h.write(t, map[string]string{"a": "x"})
	_, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
	require.NoError(t, err)
	first := h.remote.Marker()

	h.clock.Advance(time.Hour)
	res, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Operations)
	assert.Empty(t, res.SyncID)
	assert.NotEqual(t, first, h.remote.Marker())
	assert.Equal(t, 1, h.remote.TotalUploads())
	assert.Equal(t, h.clock.Now(), *h.store.snapshot().LastSuccessfulSyncAt)
}

func TestManager_MissingMarkerForcesFullPush(t *testing.T) {
	h := newHarness(t, nil)
	h.write(t, map[string]string{"a": "1", "b": "2"})

	rebuilt, err := h.mgr.Reconcile(context.Background())
	require.NoError(t, err)
	require.True(t, rebuilt)
	require.Len(t, h.store.snapshot().Baseline.Files, 2)

	res, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Uploaded)
	assert.Equal(t, []string{"a", "b"}, h.remote.Paths())
}

func TestManager_PartialFailureResumes(t *testing.T) {
	var failing stdsync.Map
	failing.Store("f3", true)
	remote := memory.New(memory.WithFault(func(c memory.Call) error {
		if _, bad := failing.Load(c.Path); bad && c.Op == "upload" {
			return errors.New("HTTP 400 bad request")
		}
		return nil
	}))
	h := newHarness(t, remote)
	h.mgr = NewManager(h.mgr.deps, Settings{TreeID: h.mgr.settings.TreeID, Concurrency: 1})

	for i := 0; i < 6; i++ {
		h.write(t, map[string]string{fmt.Sprintf("f%d", i): fmt.Sprintf("content %d", i)})
	}

	_, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
	require.Error(t, err)
	var opErr *executor.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "f3", opErr.Path)

	state := h.store.snapshot()
	require.NotNil(t, state.Pending)
	require.NotNil(t, state.PendingTarget)
	assert.Equal(t, 3, state.Pending.DoneCount)
	assert.Equal(t, 6, state.Pending.TotalCount)
	assert.Nil(t, state.Baseline, "baseline is only committed after full success")
	assert.Nil(t, h.remote.Marker())

	st := h.mgr.Status()
	assert.True(t, st.Pending)
	assert.Equal(t, 3, st.Dirty())
	assert.Equal(t, synctypes.PhaseIdle, st.Phase)
	assert.Contains(t, st.LastError, "failed upload f3")

	failing.Delete("f3")
	res, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, 3, res.Uploaded)

	for i := 0; i < 6; i++ {
		assert.Equal(t, 1, h.remote.Uploads(fmt.Sprintf("f%d", i)), "f%d uploaded exactly once", i)
	}
	state = h.store.snapshot()
	assert.Nil(t, state.Pending)
	assert.Len(t, state.Baseline.Files, 6)
	assert.NotNil(t, h.remote.Marker())
	assert.Empty(t, h.mgr.Status().LastError)
}

func TestManager_ResumeWithoutTargetDerivesBaseline(t *testing.T) {
	h := newHarness(t, nil)
	h.write(t, map[string]string{"a": "A", "b": "B"})
	require.NoError(t, h.remote.WriteRemoteMarker(context.Background(), provider.Credentials{}, []byte("{}")))

	hashA := scanner.HashBytes([]byte("A"))
	hashB := scanner.HashBytes([]byte("B"))
	h.store.current = &synctypes.PersistedState{
		SchemaVersion: synctypes.StateSchemaVersion,
		Baseline: &synctypes.LocalSnapshot{
			SchemaVersion: synctypes.SnapshotSchemaVersion,
			TreeID:        h.mgr.settings.TreeID,
			Files: map[string]synctypes.IndexEntry{
				"a":     {Path: "a", ContentHash: hashA},
				"stale": {Path: "stale", ContentHash: "old"},
			},
		},
		Pending: &synctypes.PendingSyncLedger{
			SyncID: "sync-1",
			Operations: []synctypes.SyncOperation{
				{ID: "op-1", Type: synctypes.OperationUpload, Path: "b", ContentHash: hashB, Status: synctypes.StatusPending},
				{ID: "op-2", Type: synctypes.OperationDelete, Path: "stale", Status: synctypes.StatusDone},
			},
			DoneCount:  1,
			TotalCount: 2,
		},
	}

	res, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, 1, res.Uploaded)
	assert.Equal(t, 0, h.remote.Deletes("stale"), "done operations are not replayed")
	assert.Equal(t, 1, h.remote.Uploads("b"))
	assert.Equal(t, 0, h.remote.Uploads("a"), "derived baseline already covers a")
	assert.Equal(t, map[string]string{"a": hashA, "b": hashB}, baselineHashes(h.store.snapshot()))
}

func TestManager_MarkerFailureKeepsLedger(t *testing.T) {
	var markerDown stdsync.Map
	markerDown.Store("down", true)
	remote := memory.New(memory.WithFault(func(c memory.Call) error {
		if _, down := markerDown.Load("down"); down && c.Op == "marker" {
			return errors.New("marker write refused")
		}
		return nil
	}))
	h := newHarness(t, remote)
	h.write(t, map[string]string{"a": "1"})

	_, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
	require.ErrorIs(t, err, tserrors.ErrRemoteMarker)
	state := h.store.snapshot()
	require.NotNil(t, state.Pending)
	assert.Equal(t, 1, state.Pending.DoneCount)

	markerDown.Delete("down")
	res, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, 1, h.remote.Uploads("a"))
	assert.Nil(t, h.store.snapshot().Pending)
}

func TestManager_RejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	remote := memory.New(memory.WithFault(func(c memory.Call) error {
		if c.Op == "upload" {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
		}
		return nil
	}))
	h := newHarness(t, remote)
	h.write(t, map[string]string{"a": "1"})

	done := make(chan error, 1)
	go func() {
		_, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
		done <- err
	}()
	<-entered

	_, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
	assert.ErrorIs(t, err, tserrors.ErrSyncInProgress)
	_, err = h.mgr.Reconcile(context.Background())
	assert.ErrorIs(t, err, tserrors.ErrSyncInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, h.remote.Uploads("a"))
}

func TestManager_Preflight(t *testing.T) {
	t.Run("no provider", func(t *testing.T) {
		h := newHarness(t, nil)
		h.mgr = h.build(nil)
		_, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
		assert.ErrorIs(t, err, tserrors.ErrNoProvider)
		assert.Equal(t, 0, h.store.saves)
		assert.Equal(t, synctypes.PhaseIdle, h.mgr.Status().Phase)
	})

	t.Run("missing credentials", func(t *testing.T) {
		remote := memory.New(memory.WithRequireCredentials())
		h := newHarness(t, remote)
		h.write(t, map[string]string{"a": "1"})

		_, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
		assert.ErrorIs(t, err, tserrors.ErrMissingCredentials)
		assert.Equal(t, 0, remote.TotalUploads())
		assert.Equal(t, 0, h.store.saves)

		_, err = h.mgr.Sync(context.Background(), provider.Credentials{Token: "t"}, nil)
		assert.NoError(t, err)
	})
}

func TestManager_Reconcile(t *testing.T) {
	h := newHarness(t, nil)
	h.write(t, map[string]string{"a": "1"})

	rebuilt, err := h.mgr.Reconcile(context.Background())
	require.NoError(t, err)
	assert.True(t, rebuilt)

	rebuilt, err = h.mgr.Reconcile(context.Background())
	require.NoError(t, err)
	assert.False(t, rebuilt)

	t.Run("schema mismatch", func(t *testing.T) {
		h.store.current.Baseline.SchemaVersion = 1
		rebuilt, err := h.mgr.Reconcile(context.Background())
		require.NoError(t, err)
		assert.True(t, rebuilt)
		assert.Equal(t, synctypes.SnapshotSchemaVersion, h.store.snapshot().Baseline.SchemaVersion)
	})

	t.Run("foreign tree discards pending ledger", func(t *testing.T) {
		h.store.current.Baseline.TreeID = "someone-else"
		h.store.current.Pending = &synctypes.PendingSyncLedger{SyncID: "sync-old"}
		h.store.current.PendingTarget = &synctypes.LocalSnapshot{}

		rebuilt, err := h.mgr.Reconcile(context.Background())
		require.NoError(t, err)
		assert.True(t, rebuilt)

		state := h.store.snapshot()
		assert.Equal(t, h.mgr.settings.TreeID, state.Baseline.TreeID)
		assert.Nil(t, state.Pending)
		assert.Nil(t, state.PendingTarget)
	})
}

func TestManager_PlanIsDryRun(t *testing.T) {
	h := newHarness(t, nil)
	h.write(t, map[string]string{"a": "1", "b": "2"})

	ops, err := h.mgr.Plan(context.Background(), provider.Credentials{})
	require.NoError(t, err)
	assert.Len(t, ops, 2)
	assert.Equal(t, 0, h.store.saves)
	assert.Equal(t, 0, h.remote.TotalUploads())
	assert.Nil(t, h.remote.Marker())
}

func TestManager_CheckpointFailureSurfaces(t *testing.T) {
	h := newHarness(t, nil)
	h.write(t, map[string]string{"a": "1"})
	h.store.failOn = func(*synctypes.PersistedState) error { return errors.New("read-only filesystem") }

	_, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
	assert.ErrorIs(t, err, tserrors.ErrCheckpoint)
	assert.Equal(t, 0, h.remote.TotalUploads(), "nothing is transferred before the ledger is durable")
}

func TestManager_Progress(t *testing.T) {
	h := newHarness(t, nil)
	h.write(t, map[string]string{"a": "1", "b": "2", "c": "3"})

	var (
		mu    stdsync.Mutex
		calls [][2]int
	)
	_, err := h.mgr.Sync(context.Background(), provider.Credentials{}, func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, [2]int{done, total})
	})
	require.NoError(t, err)
	require.Len(t, calls, 3)
	assert.Equal(t, [2]int{3, 3}, calls[2])
}

func TestManager_CheckConnection(t *testing.T) {
	remote := memory.New(memory.WithFault(func(c memory.Call) error {
		if c.Op == "check" {
			return errors.New("HTTP 401")
		}
		return nil
	}))
	h := newHarness(t, remote)
	assert.EqualError(t, h.mgr.CheckConnection(context.Background(), provider.Credentials{}), "HTTP 401")
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestManager_CancelledMidExecutionKeepsLedger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once stdsync.Once
	remote := memory.New(memory.WithFault(func(c memory.Call) error {
		if c.Op == "upload" {
			once.Do(cancel)
		}
		return nil
	}))
	h := newHarness(t, remote)
	h.mgr = NewManager(h.mgr.deps, Settings{TreeID: h.mgr.settings.TreeID, Concurrency: 1})
	for i := 0; i < 5; i++ {
		h.write(t, map[string]string{fmt.Sprintf("f%d", i): fmt.Sprintf("content %d", i)})
	}

	_, err := h.mgr.Sync(ctx, provider.Credentials{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	state := h.store.snapshot()
	require.NotNil(t, state.Pending)
	assert.Equal(t, 1, state.Pending.DoneCount)
	assert.Equal(t, 5, state.Pending.TotalCount)
	assert.Nil(t, state.Baseline)
	assert.Nil(t, h.remote.Marker())

	res, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	for i := 0; i < 5; i++ {
		assert.Equal(t, 1, h.remote.Uploads(fmt.Sprintf("f%d", i)), "f%d uploaded exactly once", i)
	}
	assert.Nil(t, h.store.snapshot().Pending)
}

// idleRunner reports success without running anything.
type idleRunner struct{}

func (idleRunner) Execute(
	_ context.Context,
	l *synctypes.PendingSyncLedger,
	_ provider.Credentials,
	_ executor.Config,
) (*executor.Result, error) {
	return &executor.Result{Ledger: l}, nil
}

func TestManager_IncompleteLedgerIsNotCommitted(t *testing.T) {
	h := newHarness(t, nil)
	deps := h.mgr.deps
	deps.Executor = idleRunner{}
	h.mgr = NewManager(deps, h.mgr.settings)
	h.write(t, map[string]string{"a": "1", "b": "2"})

	_, err := h.mgr.Sync(context.Background(), provider.Credentials{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete")

	state := h.store.snapshot()
	require.NotNil(t, state.Pending)
	assert.Equal(t, 0, state.Pending.DoneCount)
	assert.Nil(t, state.Baseline)
	assert.Nil(t, h.remote.Marker())
	assert.True(t, h.mgr.Status().Pending)
}
