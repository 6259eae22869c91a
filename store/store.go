// Package store defines the durable key-value store that holds the engine's
// PersistedState, and the JSON codec shared by its backends.
//
// Every Save fully replaces the previous state or fails without changing it.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/treesync/internal/sync/ledger"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/synctypes"
)

// Store persists the engine state across restarts.
type Store interface {
	// Load returns the persisted state, or an empty state when nothing was saved yet.
	Load(ctx context.Context) (*synctypes.PersistedState, error)

	// Save atomically replaces the persisted state.
	Save(ctx context.Context, state *synctypes.PersistedState) error

	// Close releases the store's resources.
	Close() error
}

// Empty returns the state of a tree that has never been synced.
func Empty() *synctypes.PersistedState {
	return &synctypes.PersistedState{SchemaVersion: synctypes.StateSchemaVersion}
}

// Encode serializes state for storage.
func Encode(state *synctypes.PersistedState) ([]byte, error) {
	if state == nil {
		state = Empty()
	}
	out := *state
	out.SchemaVersion = synctypes.StateSchemaVersion
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// wireSnapshot accepts the older "vaultId" spelling of the tree id.
type wireSnapshot struct {
	synctypes.LocalSnapshot
	VaultID string `json:"vaultId"`
}

func (w *wireSnapshot) snapshot() *synctypes.LocalSnapshot {
	if w == nil {
		return nil
	}
	s := w.LocalSnapshot
	if s.TreeID == "" {
		s.TreeID = w.VaultID
	}
	if s.Files == nil {
		s.Files = make(map[string]synctypes.IndexEntry)
	}
	for p, e := range s.Files {
		if e.Path == "" {
			e.Path = p
			s.Files[p] = e
		}
	}
	return &s
}

// wireState is the union of every payload shape ever written.
type wireState struct {
	SchemaVersion        int                          `json:"schemaVersion"`
	Baseline             *wireSnapshot                `json:"baselineSnapshot"`
	LegacyBaseline       *wireSnapshot                `json:"localIndex"`
	Pending              *synctypes.PendingSyncLedger `json:"pendingLedger"`
	LegacyPending        *synctypes.PendingSyncLedger `json:"pendingSync"`
	PendingTarget        *wireSnapshot                `json:"pendingTarget"`
	LastSuccessfulSyncAt *time.Time                   `json:"lastSuccessfulSyncAt"`
}

// Decode parses a stored payload. Empty input yields an empty state and
// missing fields take their defaults, so blobs written by older versions
// (or holding only unrelated settings) load cleanly.
func Decode(data []byte) (*synctypes.PersistedState, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Empty(), nil
	}

	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}

	baseline := w.Baseline
	if baseline == nil {
		baseline = w.LegacyBaseline
	}
	pending := w.Pending
	if pending == nil {
		pending = w.LegacyPending
	}
	if pending != nil {
		ledger.Recount(pending)
	}

	return &synctypes.PersistedState{
		SchemaVersion:        synctypes.StateSchemaVersion,
		Baseline:             baseline.snapshot(),
		Pending:              pending,
		PendingTarget:        w.PendingTarget.snapshot(),
		LastSuccessfulSyncAt: w.LastSuccessfulSyncAt,
	}, nil
}
