// Package memory provides an in-memory remote provider for testing, dry runs
// and development. It records every call so tests can assert on exactly what
// reached the remote, and supports injecting failures per call.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider"
)

// ID is the registry identifier of the memory provider.
const ID = "memory"

// Call identifies one provider invocation for fault injection.
type Call struct {
	// Op is "upload", "delete", "marker", "has-marker" or "check"
	Op string

	// Path is the tree-relative path, empty for marker and check calls
	Path string

	// Attempt counts calls with the same Op and Path, starting at 1
	Attempt int
}

// FaultFunc decides whether a call fails. Returning nil lets it proceed.
type FaultFunc func(call Call) error

// Provider implements an in-memory remote store.
type Provider struct {
	files    map[string][]byte
	marker   []byte
	attempts map[string]int
	uploads  map[string]int
	deletes  map[string]int

	fault        FaultFunc
	delay        time.Duration
	requireCreds bool

	inFlight    int
	maxInFlight int

	// mu protects all of the above
	mu sync.Mutex
}

// Option configures a Provider.
type Option func(*Provider)

// WithFault installs a fault injection hook.
func WithFault(fn FaultFunc) Option {
	return func(p *Provider) {
		p.fault = fn
	}
}

// WithDelay makes every upload and delete take at least d, which lets tests
// observe worker parallelism.
func WithDelay(d time.Duration) Option {
	return func(p *Provider) {
		p.delay = d
	}
}

// WithRequireCredentials makes the provider reject empty credentials.
func WithRequireCredentials() Option {
	return func(p *Provider) {
		p.requireCreds = true
	}
}

// New creates a new memory provider instance.
func New(opts ...Option) *Provider {
	p := &Provider{
		files:    make(map[string][]byte),
		attempts: make(map[string]int),
		uploads:  make(map[string]int),
		deletes:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var (
	_ provider.Provider             = (*Provider)(nil)
	_ provider.CredentialsValidator = (*Provider)(nil)
)

// ID returns the provider identifier.
func (p *Provider) ID() string { return ID }

// Name returns a human readable name.
func (p *Provider) Name() string { return "In-memory (testing)" }

// ValidateCredentials implements provider.CredentialsValidator.
func (p *Provider) ValidateCredentials(creds provider.Credentials) error {
	if p.requireCreds && creds.IsZero() {
		return tserrors.ErrMissingCredentials
	}
	return nil
}

// CheckConnection always succeeds unless a fault is injected.
func (p *Provider) CheckConnection(ctx context.Context, creds provider.Credentials) error {
	return p.enter(ctx, "check", "", false)
}

// HasRemoteMarker reports whether a marker has been written.
func (p *Provider) HasRemoteMarker(ctx context.Context, creds provider.Credentials) (bool, error) {
	if err := p.enter(ctx, "has-marker", "", false); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.marker != nil, nil
}

// WriteRemoteMarker stores a copy of payload.
func (p *Provider) WriteRemoteMarker(ctx context.Context, creds provider.Credentials, payload []byte) error {
	if err := p.enter(ctx, "marker", "", false); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marker = append([]byte{}, payload...)
	return nil
}

// UploadFile stores a copy of data at path.
func (p *Provider) UploadFile(ctx context.Context, creds provider.Credentials, path string, data []byte) error {
	if err := p.enter(ctx, "upload", path, true); err != nil {
		return err
	}
	defer p.leave()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[path] = append([]byte{}, data...)
	p.uploads[path]++
	return nil
}

// DeleteFile removes path. Absent paths are not an error.
func (p *Provider) DeleteFile(ctx context.Context, creds provider.Credentials, path string) error {
	if err := p.enter(ctx, "delete", path, true); err != nil {
		return err
	}
	defer p.leave()

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.files, path)
	p.deletes[path]++
	return nil
}

// Close clears all stored content.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files = make(map[string][]byte)
	p.marker = nil
	return nil
}

// enter records the attempt, applies the fault hook and, for transfer calls,
// tracks concurrency and applies the configured delay. On success a transfer
// call must be paired with leave.
func (p *Provider) enter(ctx context.Context, op, path string, transfer bool) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory %s cancelled: %w", op, err)
	}

	p.mu.Lock()
	key := op + "\x00" + path
	p.attempts[key]++
	call := Call{Op: op, Path: path, Attempt: p.attempts[key]}
	fault := p.fault
	if transfer {
		p.inFlight++
		if p.inFlight > p.maxInFlight {
			p.maxInFlight = p.inFlight
		}
	}
	p.mu.Unlock()

	if transfer && p.delay > 0 {
		time.Sleep(p.delay)
	}

	if fault != nil {
		if err := fault(call); err != nil {
			if transfer {
				p.leave()
			}
			return err
		}
	}
	return nil
}

func (p *Provider) leave() {
	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
}

// File returns a copy of the stored content at path.
func (p *Provider) File(path string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.files[path]
	if !ok {
		return nil, false
	}
	return append([]byte{}, b...), true
}

// Paths returns the stored paths in sorted order.
func (p *Provider) Paths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.files))
	for k := range p.files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Marker returns a copy of the stored marker, or nil if none was written.
func (p *Provider) Marker() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.marker == nil {
		return nil
	}
	return append([]byte{}, p.marker...)
}

// Attempts returns how many times op was called for path, including failures.
func (p *Provider) Attempts(op, path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[op+"\x00"+path]
}

// Uploads returns the number of successful uploads of path.
func (p *Provider) Uploads(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uploads[path]
}

// Deletes returns the number of successful deletes of path.
func (p *Provider) Deletes(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deletes[path]
}

// TotalUploads returns the number of successful uploads across all paths.
func (p *Provider) TotalUploads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.uploads {
		n += c
	}
	return n
}

// MaxConcurrent returns the highest number of simultaneous transfer calls observed.
func (p *Provider) MaxConcurrent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxInFlight
}

// Seed stores content directly without counting it as an upload.
func (p *Provider) Seed(path string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[path] = append([]byte{}, data...)
}
