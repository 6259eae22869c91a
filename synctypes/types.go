// Package synctypes provides shared type definitions for the treesync module.
//
// Every value in this package is plain data: snapshots, operations and the
// ledger carry no behaviour beyond deep copies, so they can be persisted and
// handed between the engine components without aliasing surprises.
package synctypes

import (
	"fmt"
	"time"
)

// Schema versions of the persisted payloads.
const (
	// SnapshotSchemaVersion is bumped whenever the snapshot layout or the
	// content hash changes. A persisted baseline with another version is rebuilt.
	SnapshotSchemaVersion = 2

	// StateSchemaVersion is the version of the PersistedState root.
	StateSchemaVersion = 1

	// RemoteMarkerSchemaVersion is the version of the remote marker payload.
	RemoteMarkerSchemaVersion = 1
)

// IndexEntry is one file's last observed state.
type IndexEntry struct {
	// Path is the slash-separated path relative to the tree root
	Path string `json:"path"`

	// ContentHash is the hex SHA-256 digest of the file bytes
	ContentHash string `json:"contentHash"`

	// Size is the file size in bytes
	Size int64 `json:"size"`

	// ModifiedAt is the file modification time
	ModifiedAt time.Time `json:"modifiedAt"`
}

// LocalSnapshot is a point-in-time content-hash inventory of the local tree.
// Every entry's Path equals its key in Files.
type LocalSnapshot struct {
	SchemaVersion int                   `json:"schemaVersion"`
	TreeID        string                `json:"treeId"`
	CreatedAt     time.Time             `json:"createdAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
	Files         map[string]IndexEntry `json:"files"`
}

// Len returns the number of files in the snapshot. A nil snapshot is empty.
func (s *LocalSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Files)
}

// Clone returns a deep copy of the snapshot.
func (s *LocalSnapshot) Clone() *LocalSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Files = make(map[string]IndexEntry, len(s.Files))
	for k, v := range s.Files {
		out.Files[k] = v
	}
	return &out
}

// OperationType defines the type of transfer operation.
type OperationType string

const (
	// OperationUpload indicates a local file must be pushed to the remote
	OperationUpload OperationType = "upload"

	// OperationDelete indicates a remote file must be removed
	OperationDelete OperationType = "delete"
)

// OperationStatus is the execution status of a SyncOperation.
type OperationStatus string

const (
	// StatusPending is the initial status of every planned operation
	StatusPending OperationStatus = "pending"

	// StatusDone marks an operation the remote has acknowledged
	StatusDone OperationStatus = "done"

	// StatusFailed marks an operation that hit a terminal error or ran out of retries
	StatusFailed OperationStatus = "failed"
)

// SyncOperation is one unit of transfer work.
type SyncOperation struct {
	// ID is unique within its ledger
	ID string `json:"id"`

	// Type is upload or delete
	Type OperationType `json:"type"`

	// Path is the tree-relative path the operation targets
	Path string `json:"path"`

	// ContentHash is set for uploads only
	ContentHash string `json:"contentHash,omitempty"`

	// Status is pending, done or failed
	Status OperationStatus `json:"status"`

	// LastError is the message of the final failed attempt, if any
	LastError string `json:"lastError,omitempty"`
}

// String returns a short human readable form, e.g. "upload notes/a.md".
func (o SyncOperation) String() string {
	return fmt.Sprintf("%s %s", o.Type, o.Path)
}

// PendingSyncLedger is the durable, resumable record of an in-flight operation set.
// The Operations sequence is fixed at creation; only statuses change.
// DoneCount always equals the number of operations with StatusDone.
type PendingSyncLedger struct {
	SyncID     string          `json:"syncId"`
	StartedAt  time.Time       `json:"startedAt"`
	Operations []SyncOperation `json:"operations"`
	DoneCount  int             `json:"doneCount"`
	TotalCount int             `json:"totalCount"`
}

// Clone returns a deep copy of the ledger.
func (l *PendingSyncLedger) Clone() *PendingSyncLedger {
	if l == nil {
		return nil
	}
	out := *l
	out.Operations = append([]SyncOperation(nil), l.Operations...)
	return &out
}

// PersistedState is the engine's durable root.
type PersistedState struct {
	SchemaVersion int `json:"schemaVersion"`

	// Baseline is the snapshot last known to be fully reflected on the remote
	Baseline *LocalSnapshot `json:"baselineSnapshot"`

	// Pending is the ledger of an incomplete sync attempt
	Pending *PendingSyncLedger `json:"pendingLedger"`

	// PendingTarget is the snapshot Pending was derived from. It becomes the
	// baseline once Pending completes.
	PendingTarget *LocalSnapshot `json:"pendingTarget,omitempty"`

	LastSuccessfulSyncAt *time.Time `json:"lastSuccessfulSyncAt"`
}

// Clone returns a deep copy of the state.
func (s *PersistedState) Clone() *PersistedState {
	if s == nil {
		return nil
	}
	out := *s
	out.Baseline = s.Baseline.Clone()
	out.Pending = s.Pending.Clone()
	out.PendingTarget = s.PendingTarget.Clone()
	if s.LastSuccessfulSyncAt != nil {
		t := *s.LastSuccessfulSyncAt
		out.LastSuccessfulSyncAt = &t
	}
	return &out
}

// RemoteMarker is the small payload written to the remote so another client
// can detect that the remote has been initialized. It is never read back for diffing.
type RemoteMarker struct {
	SchemaVersion int       `json:"schemaVersion"`
	TreeID        string    `json:"treeId"`
	FileCount     int       `json:"fileCount"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ProgressFunc is invoked with the ledger's done and total counts at least once
// per completed operation. It is an observability hook only.
type ProgressFunc func(done, total int)

// Phase is the orchestrator's current state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseResuming
	PhaseScanning
	PhaseDiffing
	PhaseExecuting
	PhaseCommitting
	PhaseError
)

var phaseNames = [...]string{
	PhaseIdle:       "idle",
	PhaseResuming:   "resuming",
	PhaseScanning:   "scanning",
	PhaseDiffing:    "diffing",
	PhaseExecuting:  "executing",
	PhaseCommitting: "committing",
	PhaseError:      "error",
}

// String returns the lowercase name of the phase.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}
