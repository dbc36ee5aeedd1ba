package paging

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrExhaustedRetries matches every *ExhaustedRetriesError.
	ErrExhaustedRetries = errors.New("retry budget exhausted")
	// ErrInvalidCursor indicates hasNextPage=true without an end cursor.
	ErrInvalidCursor = errors.New("pagination returned empty cursor while hasNextPage=true")
	// ErrCursorStalled indicates the server returned the same cursor twice in a row.
	ErrCursorStalled = errors.New("pagination cursor stalled")
	// ErrTooManyPages indicates the collection exceeded the configured page limit.
	ErrTooManyPages = errors.New("pagination exceeded max page limit")
)

// StatusError wraps a non-success HTTP response. Header is kept so the
// governor can read rate-limit hints from it.
type StatusError struct {
	StatusCode int
	Header     http.Header
	Err        error
}

func (e *StatusError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("http status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExhaustedRetriesError is terminal for the whole collection fetch.
type ExhaustedRetriesError struct {
	Collection string
	Page       int
	Attempts   int
	Err        error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("collection %q page %d: gave up after %d attempts: %v", e.Collection, e.Page, e.Attempts, e.Err)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrExhaustedRetries) match.
func (e *ExhaustedRetriesError) Is(target error) bool { return target == ErrExhaustedRetries }

// StatusCode extracts the wrapped HTTP status code when available.
func StatusCode(err error) (int, bool) {
	var stErr *StatusError
	if errors.As(err, &stErr) {
		return stErr.StatusCode, true
	}
	return 0, false
}

// IsRetryable reports whether a failed page attempt may succeed when repeated:
// any non-success HTTP status and network timeouts. Decode failures and other
// local errors are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var stErr *StatusError
	if errors.As(err, &stErr) {
		return stErr.StatusCode < 200 || stErr.StatusCode > 299
	}

	var netErr net.Error
	if !errors.As(err, &netErr) {
		return false
	}
	if netErr.Timeout() {
		return true
	}

	type temporary interface {
		Temporary() bool
	}
	if temp, ok := any(netErr).(temporary); ok && temp.Temporary() {
		return true
	}
	return false
}

// HasRateLimitHint reports whether a status error carries a rate-limit signal:
// a Retry-After header, an exhausted X-RateLimit-Remaining or a rate-limit
// message.
func HasRateLimitHint(err error) bool {
	var stErr *StatusError
	if !errors.As(err, &stErr) {
		return false
	}
	return hasRateLimitHint(stErr)
}

func hasRateLimitHint(stErr *StatusError) bool {
	if stErr.Header != nil {
		if stErr.Header.Get("Retry-After") != "" {
			return true
		}
		if stErr.Header.Get("X-RateLimit-Remaining") == "0" {
			return true
		}
	}
	return LooksLikeRateLimit(stErr.Err)
}

// LooksLikeRateLimit reports whether an error message mentions a rate limit.
func LooksLikeRateLimit(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "rate limit") || strings.Contains(text, "rate_limited")
}
