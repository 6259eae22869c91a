package errors

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// retriableMarkers are substrings that identify throttling or server-side
// unavailability in provider messages. Matching is case-insensitive.
var retriableMarkers = []string{
	"http 429",
	"http 502",
	"http 503",
	"http 504",
}

// networkHints are substrings that identify transient network failures.
var networkHints = []string{
	"timeout",
	"timed out",
	"connection reset",
	"temporarily unavailable",
	"broken pipe",
	"network",
	"socket hang up",
}

// IsRetriable reports whether err is transient and the failed operation may be retried.
// Context cancellation and unreadable local files are always terminal.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}

	// Don't retry on context timeouts/cancellations or local read failures
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrNotReadable) {
		return false
	}

	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable) {
		return true
	}

	if isNetworkError(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range retriableMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	for _, h := range networkHints {
		if strings.Contains(msg, h) {
			return true
		}
	}
	return false
}

// isNetworkError detects typed transport failures without relying on messages.
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
