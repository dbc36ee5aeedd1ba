// Package source defines the fetch targets and the fetcher contract shared by
// every discussion platform.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

var (
	// ErrNotFound indicates the requested thread, post or video does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrUnsupportedSource indicates no fetcher is registered for a target.
	ErrUnsupportedSource = errors.New("unsupported source")
)

// Scope distinguishes a single item from a listing of items.
type Scope string

const (
	// ScopeItem is one issue, pull request, discussion, post, story or video.
	ScopeItem Scope = "item"
	// ScopeListing is a repository or a subreddit.
	ScopeListing Scope = "listing"
)

// Target is the normalized identity extracted from an input URL.
type Target struct {
	Source thread.Source
	Scope  Scope
	Kind   thread.Kind
	URL    string

	// GitHub.
	Owner  string
	Repo   string
	Number int

	// ID is the platform item id: reddit post id, HN item id, BlueSky post
	// rkey or YouTube video id.
	ID string
	// Community is the subreddit name.
	Community string
	// Handle is the BlueSky author handle or DID.
	Handle string
}

// String returns a short human-readable identity.
func (t Target) String() string {
	switch t.Source {
	case thread.SourceGitHub:
		if t.Scope == ScopeListing {
			return fmt.Sprintf("github:%s/%s", t.Owner, t.Repo)
		}
		return fmt.Sprintf("github:%s/%s#%d", t.Owner, t.Repo, t.Number)
	case thread.SourceReddit:
		if t.Scope == ScopeListing {
			return "reddit:r/" + t.Community
		}
		return "reddit:" + t.ID
	case thread.SourceBluesky:
		return fmt.Sprintf("bluesky:%s/%s", t.Handle, t.ID)
	default:
		return fmt.Sprintf("%s:%s", t.Source, t.ID)
	}
}

// Fetcher fetches and normalizes the containers behind one target.
type Fetcher interface {
	Fetch(ctx context.Context, t Target) ([]thread.Container, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, t Target) ([]thread.Container, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, t Target) ([]thread.Container, error) {
	return f(ctx, t)
}

// Mux dispatches targets to the fetcher registered for their source.
type Mux struct {
	mu       sync.RWMutex
	fetchers map[thread.Source]Fetcher
}

// NewMux returns an empty Mux.
func NewMux() *Mux {
	return &Mux{fetchers: make(map[thread.Source]Fetcher)}
}

// Handle registers f for src, replacing any previous registration.
func (m *Mux) Handle(src thread.Source, f Fetcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchers[src] = f
}

// Sources lists the registered sources.
func (m *Mux) Sources() []thread.Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]thread.Source, 0, len(m.fetchers))
	for src := range m.fetchers {
		out = append(out, src)
	}
	return out
}

// Fetch implements Fetcher.
func (m *Mux) Fetch(ctx context.Context, t Target) ([]thread.Container, error) {
	m.mu.RLock()
	f, ok := m.fetchers[t.Source]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("dispatch %q: %w", t.Source, ErrUnsupportedSource)
	}

	containers, err := f.Fetch(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", t, err)
	}
	return containers, nil
}

// IsNotFound reports whether err means the target does not exist, either as
// ErrNotFound or as an HTTP 404.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	code, ok := paging.StatusCode(err)
	return ok && code == http.StatusNotFound
}
