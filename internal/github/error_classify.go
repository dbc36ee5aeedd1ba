package github

import (
	"net/http"
	"strings"

	"github.com/johnqtcg/threaddigest/internal/paging"
)

// IsRateLimitError reports whether an error is a GitHub rate limit failure.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	if status, ok := paging.StatusCode(err); ok {
		if status == http.StatusTooManyRequests {
			return true
		}
		if status == http.StatusForbidden && paging.HasRateLimitHint(err) {
			return true
		}
	}

	return paging.LooksLikeRateLimit(err)
}

// IsAuthError reports whether an error is an authentication or authorization failure.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimitError(err) {
		return false
	}

	if status, ok := paging.StatusCode(err); ok {
		return status == http.StatusUnauthorized || status == http.StatusForbidden
	}

	text := strings.ToLower(err.Error())
	return strings.Contains(text, "status 401") ||
		strings.Contains(text, "status 403") ||
		strings.Contains(text, "unauthorized") ||
		strings.Contains(text, "forbidden")
}
