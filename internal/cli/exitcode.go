package cli

import (
	"errors"

	"github.com/johnqtcg/threaddigest/internal/config"
	gh "github.com/johnqtcg/threaddigest/internal/github"
	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/parser"
	"github.com/johnqtcg/threaddigest/internal/source"
	"github.com/johnqtcg/threaddigest/internal/youtube"
)

const (
	// ExitOK indicates all items completed successfully.
	ExitOK = 0
	// ExitRuntime indicates generic runtime failure.
	ExitRuntime = 1
	// ExitInvalidArguments indicates invalid CLI arguments.
	ExitInvalidArguments = 2
	// ExitAuth indicates auth/authz failures.
	ExitAuth = 3
	// ExitPartialSuccess indicates at least one failure in batch mode.
	ExitPartialSuccess = 4
	// ExitOutputConflict indicates output file conflict without force mode.
	ExitOutputConflict = 5
	// ExitRetriesExhausted indicates a collection gave up after its retry budget.
	ExitRetriesExhausted = 6
)

// ResolveExitCode maps run error state to CLI exit codes.
func ResolveExitCode(err error, isBatch bool, failed int) int {
	if isBatch && failed > 0 {
		return ExitPartialSuccess
	}
	if err == nil {
		return ExitOK
	}

	var vErr *config.ValidationError
	if errors.As(err, &vErr) {
		return ExitInvalidArguments
	}

	var cErr *config.ConflictError
	if errors.As(err, &cErr) {
		return ExitInvalidArguments
	}
	if errors.Is(err, parser.ErrInvalidURL) ||
		errors.Is(err, source.ErrUnsupportedSource) ||
		errors.Is(err, youtube.ErrMissingAPIKey) {
		return ExitInvalidArguments
	}

	if errors.Is(err, ErrOutputConflict) {
		return ExitOutputConflict
	}

	if errors.Is(err, paging.ErrExhaustedRetries) {
		return ExitRetriesExhausted
	}

	if gh.IsAuthError(err) {
		return ExitAuth
	}

	return ExitRuntime
}
