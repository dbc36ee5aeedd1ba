package paging

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultFallbackDelay applies when a failed response carries no retry hint.
const DefaultFallbackDelay = 60 * time.Second

// Governor decides how long to back off after a failed page attempt.
type Governor struct {
	Fallback time.Duration
	Now      func() time.Time
}

// NewGovernor returns a governor with the given fallback, or the default when
// fallback is not positive.
func NewGovernor(fallback time.Duration) Governor {
	if fallback <= 0 {
		fallback = DefaultFallbackDelay
	}
	return Governor{Fallback: fallback, Now: time.Now}
}

// ComputeDelay returns the wait derived from response headers. Retry-After
// (seconds or HTTP date) wins, then an exhausted X-RateLimit-Reset window,
// then the fixed fallback.
func (g Governor) ComputeDelay(h http.Header) time.Duration {
	now := g.now()

	if raw := strings.TrimSpace(h.Get("Retry-After")); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(raw); err == nil {
			if at.After(now) {
				return at.Sub(now)
			}
			return 0
		}
	}

	if strings.TrimSpace(h.Get("X-RateLimit-Remaining")) == "0" {
		if secs, err := strconv.ParseInt(strings.TrimSpace(h.Get("X-RateLimit-Reset")), 10, 64); err == nil && secs > 0 {
			if reset := time.Unix(secs, 0); reset.After(now) {
				return reset.Sub(now)
			}
		}
	}

	return g.fallback()
}

// DelayFor is ComputeDelay for an attempt error; failures without a response
// get the fallback.
func (g Governor) DelayFor(err error) time.Duration {
	var stErr *StatusError
	if errors.As(err, &stErr) && stErr.Header != nil {
		return g.ComputeDelay(stErr.Header)
	}
	return g.fallback()
}

func (g Governor) fallback() time.Duration {
	if g.Fallback <= 0 {
		return DefaultFallbackDelay
	}
	return g.Fallback
}

func (g Governor) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}
