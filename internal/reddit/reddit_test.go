package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/source"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

func noSleepPager() *paging.Pager {
	return paging.NewPager(paging.Config{
		MaxAttempts: 3,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	})
}

func comment(id, author, body string, replies any) map[string]any {
	if replies == nil {
		replies = ""
	}
	return map[string]any{"kind": "t1", "data": map[string]any{
		"id":          id,
		"author":      author,
		"body":        body,
		"created_utc": 1767225600.0,
		"permalink":   "/r/golang/comments/abc/x/" + id + "/",
		"replies":     replies,
	}}
}

func listingOf(after string, children ...map[string]any) map[string]any {
	if children == nil {
		children = []map[string]any{}
	}
	return map[string]any{"kind": "Listing", "data": map[string]any{"children": children, "after": after}}
}

func postThing(id, title string) map[string]any {
	return map[string]any{"kind": "t3", "data": map[string]any{
		"id":              id,
		"title":           title,
		"selftext":        "body of " + id,
		"is_self":         true,
		"author":          "op",
		"created_utc":     1767225600.0,
		"permalink":       "/r/golang/comments/" + id + "/slug/",
		"score":           -3,
		"subreddit":       "golang",
		"link_flair_text": "discussion",
	}}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func newFetcher(srv *httptest.Server, comments bool) *Fetcher {
	return NewFetcher(Config{
		BaseURL:         srv.URL,
		HTTPClient:      srv.Client(),
		IncludeComments: comments,
		Pager:           noSleepPager(),
	})
}

func TestFetchPostFlattensReplies(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/comments/abc.json", r.URL.Path)
		assert.Equal(t, defaultUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "1", r.URL.Query().Get("raw_json"))

		grandchild := comment("c3", "[deleted]", "[removed]", nil)
		child := comment("c2", "bob", "reply", listingOf("", grandchild))
		more := map[string]any{"kind": "more", "data": map[string]any{"id": "m1", "children": []string{"c9"}}}
		writeJSON(t, w, []any{
			listingOf("", postThing("abc", "Generics question")),
			listingOf("", comment("c1", "alice", "top", listingOf("", child)), more, comment("c4", "carol", "second", nil)),
		})
	}))
	defer srv.Close()

	got, err := newFetcher(srv, true).Fetch(context.Background(), source.Target{Source: thread.SourceReddit, Scope: source.ScopeItem, ID: "abc"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, "Generics question", c.Title)
	assert.Equal(t, thread.KindThread, c.Kind)
	assert.Equal(t, srv.URL+"/r/golang/comments/abc/slug/", c.URL)
	assert.Equal(t, []string{"r/golang", "discussion"}, c.Labels)
	assert.Equal(t, 0, c.EngagementScore)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), c.CreatedAt)

	ids := make([]string, 0, len(c.Comments))
	for _, cm := range c.Comments {
		ids = append(ids, cm.ID)
	}
	assert.Equal(t, []string{"c1", "c2", "c3", "c4"}, ids)
	assert.Equal(t, "", c.Comments[0].ParentID)
	assert.Equal(t, "c1", c.Comments[1].ParentID)
	assert.Equal(t, "c2", c.Comments[2].ParentID)
	assert.Equal(t, thread.UnknownAuthor, c.Comments[2].Author)
	assert.Equal(t, "", c.Comments[3].ParentID)
}

func TestFetchPostWithoutComments(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, []any{
			listingOf("", postThing("abc", "t")),
			listingOf("", comment("c1", "alice", "top", nil)),
		})
	}))
	defer srv.Close()

	got, err := newFetcher(srv, false).Fetch(context.Background(), source.Target{Source: thread.SourceReddit, ID: "abc"})
	require.NoError(t, err)
	assert.Empty(t, got[0].Comments)
}

func TestFetchPostNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message": "Not Found", "error": 404}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newFetcher(srv, true).Fetch(context.Background(), source.Target{Source: thread.SourceReddit, ID: "zzz"})
	require.Error(t, err)
	assert.True(t, source.IsNotFound(err))
}

func TestFetchPostRetriesRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(t, w, []any{listingOf("", postThing("abc", "t")), listingOf("")})
	}))
	defer srv.Close()

	var slept []time.Duration
	f := NewFetcher(Config{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Pager: paging.NewPager(paging.Config{Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}}),
	})

	got, err := f.Fetch(context.Background(), source.Target{Source: thread.SourceReddit, ID: "abc"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, []time.Duration{2 * time.Second}, slept)
}

func TestFetchSubredditPagesAndFetchesComments(t *testing.T) {
	t.Parallel()

	var (
		mu        sync.Mutex
		afters    []string
		postCalls = map[string]int{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/r/golang/hot.json":
			after := r.URL.Query().Get("after")
			mu.Lock()
			afters = append(afters, after)
			mu.Unlock()
			assert.Equal(t, "100", r.URL.Query().Get("limit"))
			if after == "" {
				writeJSON(t, w, listingOf("t3_p2", postThing("p1", "one"), postThing("p2", "two")))
				return
			}
			writeJSON(t, w, listingOf("", postThing("p3", "three")))
		case strings.HasPrefix(r.URL.Path, "/comments/"):
			id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/comments/"), ".json")
			mu.Lock()
			postCalls[id]++
			mu.Unlock()
			writeJSON(t, w, []any{listingOf("", postThing(id, "title "+id)), listingOf("", comment(id+"-c", "alice", "hi", nil))})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(Config{
		BaseURL:         srv.URL,
		HTTPClient:      srv.Client(),
		IncludeComments: true,
		ListingPages:    5,
		Pager:           noSleepPager(),
	})
	got, err := f.Fetch(context.Background(), source.Target{Source: thread.SourceReddit, Scope: source.ScopeListing, Community: "golang"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	for i, id := range []string{"p1", "p2", "p3"} {
		assert.Equal(t, id, got[i].ID)
		require.Len(t, got[i].Comments, 1)
		assert.Equal(t, id+"-c", got[i].Comments[0].ID)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"", "t3_p2"}, afters)
	assert.Equal(t, map[string]int{"p1": 1, "p2": 1, "p3": 1}, postCalls)
}

func TestFetchSubredditRespectsListingPages(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(t, w, listingOf("t3_next", postThing("p1", "one")))
	}))
	defer srv.Close()

	got, err := newFetcher(srv, false).Fetch(context.Background(), source.Target{Source: thread.SourceReddit, Scope: source.ScopeListing, Community: "golang"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchSubredditPropagatesPostError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/r/golang/hot.json" {
			writeJSON(t, w, listingOf("", postThing("p1", "one")))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newFetcher(srv, true).Fetch(context.Background(), source.Target{Source: thread.SourceReddit, Scope: source.ScopeListing, Community: "golang"})
	require.Error(t, err)

	var st *paging.StatusError
	require.True(t, errors.As(err, &st))
	assert.Equal(t, http.StatusForbidden, st.StatusCode)
}
