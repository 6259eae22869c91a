package errors

import (
	"context"
	"errors"
)

// ErrorCode represents a specific error condition.
// Error codes are string-based for debuggability and natural JSON serialization.
type ErrorCode string

const (
	// CodeNotFound indicates a requested resource does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeConflict indicates a sync attempt is already running.
	CodeConflict ErrorCode = "CONFLICT"

	// CodeUnauthorized indicates missing or rejected credentials.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidConfig indicates no provider is configured.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// CodeIO indicates a local read or durable write failed.
	CodeIO ErrorCode = "IO_ERROR"

	// CodeNetwork indicates a network operation failed.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeRateLimit indicates the rate limit has been exceeded.
	CodeRateLimit ErrorCode = "RATE_LIMIT_EXCEEDED"

	// CodeCanceled indicates the caller canceled the operation.
	CodeCanceled ErrorCode = "CANCELED"

	// CodeUnavailable indicates the service is temporarily unavailable.
	CodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)

var sentinelCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrSyncInProgress, CodeConflict},
	{ErrNoProvider, CodeInvalidConfig},
	{ErrMissingCredentials, CodeUnauthorized},
	{ErrInvalidCredentials, CodeUnauthorized},
	{ErrRateLimited, CodeRateLimit},
	{ErrUnavailable, CodeUnavailable},
	{ErrProviderNotFound, CodeNotFound},
	{ErrProviderExists, CodeConflict},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrNotReadable, CodeIO},
	{ErrCheckpoint, CodeIO},
	{ErrRemoteMarker, CodeNetwork},
}

// CodeOf returns the ErrorCode that best describes err.
// A nil error has no code and returns the empty string.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return CodeCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}
	if isNetworkError(err) {
		return CodeNetwork
	}
	return CodeUnknown
}
