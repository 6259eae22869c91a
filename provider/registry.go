package provider

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
)

// Info describes a registered provider for presentation.
type Info struct {
	ID   string
	Name string
}

// Registry holds the registered providers indexed by ID.
// It is safe for concurrent use.
type Registry struct {
	providers map[string]Provider

	// mu protects concurrent access to the provider registry.
	mu sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider under its ID.
// Returns ErrProviderExists if the ID is already taken.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("%w: provider cannot be nil", tserrors.ErrInvalidInput)
	}
	id := p.ID()
	if id == "" {
		return fmt.Errorf("%w: provider id cannot be empty", tserrors.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("%w: %q", tserrors.ErrProviderExists, id)
	}
	r.providers[id] = p
	return nil
}

// Get returns the provider registered under id.
//
//nolint:ireturn // callers select providers by id.
func (r *Registry) Get(id string) (Provider, error) {
	if id == "" {
		return nil, tserrors.ErrNoProvider
	}

	r.mu.RLock()
	p, ok := r.providers[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", tserrors.ErrProviderNotFound, id)
	}
	return p, nil
}

// List returns every registered provider sorted by ID.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.providers))
	for id, p := range r.providers {
		out = append(out, Info{ID: id, Name: p.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close closes every registered provider and returns the joined errors.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close provider %q: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
