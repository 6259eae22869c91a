// Package planner turns two snapshots into the operation set that moves the
// remote from the baseline to the current tree.
//
// Diff is pure: it never mutates its inputs and performs no I/O.
package planner

import (
	"fmt"
	"sort"
	"strconv"

	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/synctypes"
)

// Diff compares baseline against current and returns the pending operations.
//
// Every current path that is new or whose hash changed yields one upload; every
// baseline path missing from current yields one delete. A nil baseline means the
// remote holds nothing, so only uploads are produced. IDs are "op-1", "op-2", ...
// in emission order: uploads by sorted path, then deletes by sorted path.
func Diff(baseline, current *synctypes.LocalSnapshot) []synctypes.SyncOperation {
	var uploads, deletes []string

	var currentFiles map[string]synctypes.IndexEntry
	if current != nil {
		currentFiles = current.Files
	}
	var baseFiles map[string]synctypes.IndexEntry
	if baseline != nil {
		baseFiles = baseline.Files
	}

	for p, entry := range currentFiles {
		prev, ok := baseFiles[p]
		if !ok || prev.ContentHash != entry.ContentHash {
			uploads = append(uploads, p)
		}
	}
	for p := range baseFiles {
		if _, ok := currentFiles[p]; !ok {
			deletes = append(deletes, p)
		}
	}

	sort.Strings(uploads)
	sort.Strings(deletes)

	ops := make([]synctypes.SyncOperation, 0, len(uploads)+len(deletes))
	for _, p := range uploads {
		ops = append(ops, synctypes.SyncOperation{
			ID:          nextID(len(ops)),
			Type:        synctypes.OperationUpload,
			Path:        p,
			ContentHash: currentFiles[p].ContentHash,
			Status:      synctypes.StatusPending,
		})
	}
	for _, p := range deletes {
		ops = append(ops, synctypes.SyncOperation{
			ID:     nextID(len(ops)),
			Type:   synctypes.OperationDelete,
			Path:   p,
			Status: synctypes.StatusPending,
		})
	}
	return ops
}

func nextID(n int) string {
	return "op-" + strconv.Itoa(n+1)
}

// Stats contains statistics about planned operations.
type Stats struct {
	// Number of files to upload
	Uploads int

	// Number of files to delete
	Deletes int
}

// Total returns the number of operations.
func (s Stats) Total() int {
	return s.Uploads + s.Deletes
}

// Summarize counts the operations by type.
func Summarize(ops []synctypes.SyncOperation) Stats {
	var stats Stats
	for _, op := range ops {
		switch op.Type {
		case synctypes.OperationUpload:
			stats.Uploads++
		case synctypes.OperationDelete:
			stats.Deletes++
		}
	}
	return stats
}

// Validate checks that an operation list is well formed: IDs are unique, no
// path is targeted twice, uploads carry a hash and deletes do not.
// An empty list is valid.
func Validate(ops []synctypes.SyncOperation) error {
	ids := make(map[string]struct{}, len(ops))
	paths := make(map[string]synctypes.OperationType, len(ops))

	for _, op := range ops {
		if op.ID == "" {
			return invalid("operation for %s has no id", op.Path)
		}
		if _, dup := ids[op.ID]; dup {
			return invalid("duplicate operation id %s", op.ID)
		}
		ids[op.ID] = struct{}{}

		if prev, dup := paths[op.Path]; dup {
			if prev != op.Type {
				return invalid("conflicting operations on %s: both upload and delete planned", op.Path)
			}
			return invalid("duplicate %s operation on %s", op.Type, op.Path)
		}
		paths[op.Path] = op.Type

		switch op.Type {
		case synctypes.OperationUpload:
			if op.ContentHash == "" {
				return invalid("upload %s has no content hash", op.Path)
			}
		case synctypes.OperationDelete:
			if op.ContentHash != "" {
				return invalid("delete %s carries a content hash", op.Path)
			}
		default:
			return invalid("operation %s has unknown type %q", op.ID, op.Type)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", tserrors.ErrInvalidInput, fmt.Sprintf(format, args...))
}
