// Package paging drives cursor-based pagination for any remote collection,
// with a bounded, rate-limit aware retry loop around every page.
package paging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxAttempts is the per-page retry budget.
	DefaultMaxAttempts = 5
	// DefaultMaxPages guards against servers that never stop paginating.
	DefaultMaxPages = 1000
)

// Cursor is the pagination state reported by one page.
type Cursor struct {
	HasNextPage bool
	EndCursor   *string
}

// CursorOf builds a Cursor, mapping an empty end cursor to nil.
func CursorOf(hasNext bool, end string) Cursor {
	if end == "" {
		return Cursor{HasNextPage: hasNext}
	}
	return Cursor{HasNextPage: hasNext, EndCursor: &end}
}

// RetryState tracks failed attempts for the page currently being fetched.
// A page may fail MaxAttempts times and still succeed on the next request;
// one more failure is terminal.
type RetryState struct {
	AttemptCount int
	MaxAttempts  int
}

// Exhausted reports whether the failures exceeded the budget.
func (s RetryState) Exhausted() bool { return s.AttemptCount > s.MaxAttempts }

// Page is one decoded page. Missing marks a successful response whose
// expected collection field was absent; it ends pagination without error.
type Page[T any] struct {
	Items   []T
	Cursor  Cursor
	Missing bool
}

// PageFunc fetches the page that starts after the given cursor (nil for the
// first page).
type PageFunc[T any] func(ctx context.Context, after *string) (Page[T], error)

// Collection names one paginated source. PageLimit, when positive, stops the
// loop gracefully after that many pages.
type Collection[T any] struct {
	Name      string
	Fetch     PageFunc[T]
	PageLimit int
}

// Result is the accumulated output of a collection fetch.
type Result[T any] struct {
	Items   []T
	Pages   int
	Retries int
	State   Cursor
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config configures a Pager. Zero values fall back to package defaults.
type Config struct {
	MaxAttempts int
	MaxPages    int
	// FailFast lists HTTP statuses that end the fetch on the first failure
	// instead of being retried. Empty retries every non-success status.
	FailFast    []int
	Governor    Governor
	Sleep       SleepFunc
	Logger      *zerolog.Logger
}

// Pager holds the retry policy shared by collection fetches. It is immutable
// and safe for concurrent use.
type Pager struct {
	maxAttempts int
	maxPages    int
	failFast    map[int]bool
	governor    Governor
	sleep       SleepFunc
	log         zerolog.Logger
}

// NewPager builds a Pager from cfg.
func NewPager(cfg Config) *Pager {
	p := &Pager{
		maxAttempts: cfg.MaxAttempts,
		maxPages:    cfg.MaxPages,
		governor:    cfg.Governor,
		sleep:       cfg.Sleep,
		log:         zerolog.Nop(),
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = DefaultMaxAttempts
	}
	if p.maxPages <= 0 {
		p.maxPages = DefaultMaxPages
	}
	if p.governor.Fallback <= 0 {
		p.governor = NewGovernor(0)
	}
	if p.sleep == nil {
		p.sleep = SleepContext
	}
	if cfg.Logger != nil {
		p.log = *cfg.Logger
	}
	for _, code := range cfg.FailFast {
		if p.failFast == nil {
			p.failFast = make(map[int]bool, len(cfg.FailFast))
		}
		p.failFast[code] = true
	}
	return p
}

func (p *Pager) retryable(err error) bool {
	if code, ok := StatusCode(err); ok && p.failFast[code] {
		return false
	}
	return IsRetryable(err)
}

// FetchAll walks every page of c in order and returns the accumulated items.
// Pages are strictly sequential because each cursor comes from the previous
// page. A failed page is retried at the same cursor up to the retry budget;
// failing once more yields an *ExhaustedRetriesError for the whole collection.
func FetchAll[T any](ctx context.Context, p *Pager, c Collection[T]) (Result[T], error) {
	if p == nil {
		p = NewPager(Config{})
	}

	result := Result[T]{State: Cursor{HasNextPage: true}}
	var after *string
	for pageIndex := 0; result.State.HasNextPage; pageIndex++ {
		if c.PageLimit > 0 && pageIndex >= c.PageLimit {
			p.log.Debug().Str("collection", c.Name).Int("pages", pageIndex).Msg("page limit reached")
			break
		}
		if pageIndex >= p.maxPages {
			return result, fmt.Errorf("collection %q: %w (%d)", c.Name, ErrTooManyPages, p.maxPages)
		}

		page, retries, err := fetchPage(ctx, p, c, pageIndex, after)
		result.Retries += retries
		if err != nil {
			return result, err
		}
		if page.Missing {
			p.log.Debug().Str("collection", c.Name).Int("page", pageIndex).Msg("collection field missing, stopping")
			result.State = Cursor{}
			break
		}

		result.Items = append(result.Items, page.Items...)
		result.Pages++
		result.State = page.Cursor
		p.log.Debug().Str("collection", c.Name).Int("page", pageIndex).Int("items", len(page.Items)).
			Bool("has_next", page.Cursor.HasNextPage).Msg("page fetched")

		if !page.Cursor.HasNextPage {
			break
		}
		next := page.Cursor.EndCursor
		if next == nil || *next == "" {
			return result, fmt.Errorf("collection %q page %d: %w", c.Name, pageIndex, ErrInvalidCursor)
		}
		if after != nil && *after == *next {
			return result, fmt.Errorf("collection %q page %d: %w at %q", c.Name, pageIndex, ErrCursorStalled, *next)
		}
		after = next
	}

	return result, nil
}

func fetchPage[T any](ctx context.Context, p *Pager, c Collection[T], pageIndex int, after *string) (Page[T], int, error) {
	state := RetryState{MaxAttempts: p.maxAttempts}
	for {
		if err := ctx.Err(); err != nil {
			return Page[T]{}, state.AttemptCount, fmt.Errorf("collection %q page %d canceled: %w", c.Name, pageIndex, err)
		}

		page, err := c.Fetch(ctx, after)
		if err == nil {
			return page, state.AttemptCount, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil || errors.Is(err, context.Canceled) {
			return Page[T]{}, state.AttemptCount, fmt.Errorf("collection %q page %d canceled: %w", c.Name, pageIndex, err)
		}
		if !p.retryable(err) {
			return Page[T]{}, state.AttemptCount, fmt.Errorf("collection %q page %d: %w", c.Name, pageIndex, err)
		}

		state.AttemptCount++
		if state.Exhausted() {
			return Page[T]{}, state.AttemptCount, &ExhaustedRetriesError{
				Collection: c.Name,
				Page:       pageIndex,
				Attempts:   state.AttemptCount,
				Err:        err,
			}
		}

		delay := p.governor.DelayFor(err)
		p.log.Warn().Err(err).Str("collection", c.Name).Int("page", pageIndex).
			Int("attempt", state.AttemptCount).Dur("retry_in", delay).Msg("page fetch failed, retrying")
		if err := p.sleep(ctx, delay); err != nil {
			return Page[T]{}, state.AttemptCount, fmt.Errorf("collection %q page %d: sleep before retry: %w", c.Name, pageIndex, err)
		}
	}
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
