// Package errors provides error types and handling for treesync operations.
package errors

import (
	"errors"
	"fmt"
)

// Error represents a sync operation error with context about the operation that failed.
type Error struct {
	// Op is the operation that failed (e.g., "scan", "upload", "checkpoint")
	Op string

	// Path is the tree-relative file path (if applicable)
	Path string

	// Err is the underlying error
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("treesync.%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("treesync.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithPath adds path context to an existing error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewPathError creates a new Error with path context.
func NewPathError(op, path string, err error) *Error {
	return &Error{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// Sentinel errors for common failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrNotReadable indicates that a local file could not be read
	ErrNotReadable = errors.New("treesync: file not readable")

	// ErrSyncInProgress indicates that a sync was requested while another is running
	ErrSyncInProgress = errors.New("treesync: sync already in progress")

	// ErrNoProvider indicates that no remote provider has been selected
	ErrNoProvider = errors.New("treesync: no provider selected")

	// ErrMissingCredentials indicates that the provider requires credentials that were not supplied
	ErrMissingCredentials = errors.New("treesync: missing credentials")

	// ErrInvalidCredentials indicates that the remote rejected the supplied credentials
	ErrInvalidCredentials = errors.New("treesync: invalid credentials")

	// ErrRateLimited indicates that the remote throttled the request
	ErrRateLimited = errors.New("treesync: rate limited")

	// ErrUnavailable indicates that the remote is temporarily unavailable
	ErrUnavailable = errors.New("treesync: remote unavailable")

	// ErrProviderNotFound indicates that no provider is registered under the requested ID
	ErrProviderNotFound = errors.New("treesync: provider not found")

	// ErrProviderExists indicates that a provider is already registered under the ID
	ErrProviderExists = errors.New("treesync: provider already registered")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("treesync: invalid input")

	// ErrCheckpoint indicates that the durable state could not be written
	ErrCheckpoint = errors.New("treesync: checkpoint failed")

	// ErrRemoteMarker indicates that the remote marker could not be read or written
	ErrRemoteMarker = errors.New("treesync: remote marker failed")
)

// IsNotReadable checks if an error indicates that a local file could not be read.
func IsNotReadable(err error) bool {
	return errors.Is(err, ErrNotReadable)
}

// IsSyncInProgress checks if an error is an overlapping sync rejection.
func IsSyncInProgress(err error) bool {
	return errors.Is(err, ErrSyncInProgress)
}

// IsInvalidInput checks if an error indicates invalid input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
