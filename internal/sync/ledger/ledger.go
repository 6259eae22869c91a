// Package ledger manages the pending-sync ledger, the resumable record of an
// in-flight operation set. It performs no I/O.
package ledger

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/treesync/synctypes"
)

// seq disambiguates ledgers created within the same millisecond.
var seq atomic.Uint64

// New wraps a freshly planned operation list in a ledger with nothing done yet.
// The operations are copied; the ledger owns its sequence from here on.
func New(ops []synctypes.SyncOperation, startedAt time.Time) *synctypes.PendingSyncLedger {
	owned := make([]synctypes.SyncOperation, len(ops))
	copy(owned, ops)

	return &synctypes.PendingSyncLedger{
		SyncID:     "sync-" + strconv.FormatInt(startedAt.UnixMilli(), 10) + "-" + strconv.FormatUint(seq.Add(1), 10),
		StartedAt:  startedAt,
		Operations: owned,
		DoneCount:  0,
		TotalCount: len(owned),
	}
}

// CountDone returns the number of operations with status done.
func CountDone(ops []synctypes.SyncOperation) int {
	n := 0
	for i := range ops {
		if ops[i].Status == synctypes.StatusDone {
			n++
		}
	}
	return n
}

// Recount recomputes the derived counters of l from its operation statuses.
// It also repairs ledgers loaded from older or hand-edited state.
func Recount(l *synctypes.PendingSyncLedger) {
	if l == nil {
		return
	}
	l.DoneCount = CountDone(l.Operations)
	l.TotalCount = len(l.Operations)
}

// Eligible returns the indices of operations that still need to run, in ledger order.
func Eligible(l *synctypes.PendingSyncLedger) []int {
	if l == nil {
		return nil
	}
	var idx []int
	for i := range l.Operations {
		if l.Operations[i].Status != synctypes.StatusDone {
			idx = append(idx, i)
		}
	}
	return idx
}

// Remaining returns the number of operations not yet done.
func Remaining(l *synctypes.PendingSyncLedger) int {
	if l == nil {
		return 0
	}
	return len(l.Operations) - CountDone(l.Operations)
}

// Complete reports whether every operation in l is done.
// A nil ledger is complete.
func Complete(l *synctypes.PendingSyncLedger) bool {
	return Remaining(l) == 0
}

// MarkDone records a successful operation and recounts.
func MarkDone(l *synctypes.PendingSyncLedger, i int) {
	l.Operations[i].Status = synctypes.StatusDone
	l.Operations[i].LastError = ""
	Recount(l)
}

// MarkFailed records a failed operation with its final error message and recounts.
func MarkFailed(l *synctypes.PendingSyncLedger, i int, msg string) {
	l.Operations[i].Status = synctypes.StatusFailed
	l.Operations[i].LastError = msg
	Recount(l)
}
