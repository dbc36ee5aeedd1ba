package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

func TestMuxDispatchesBySource(t *testing.T) {
	t.Parallel()

	var got Target
	m := NewMux()
	m.Handle(thread.SourceReddit, FetcherFunc(func(_ context.Context, tgt Target) ([]thread.Container, error) {
		got = tgt
		return []thread.Container{{ID: "abc", Source: thread.SourceReddit}}, nil
	}))

	target := Target{Source: thread.SourceReddit, Scope: ScopeItem, ID: "abc"}
	out, err := m.Fetch(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, target, got)
	assert.Equal(t, []thread.Source{thread.SourceReddit}, m.Sources())
}

func TestMuxUnsupportedSource(t *testing.T) {
	t.Parallel()

	_, err := NewMux().Fetch(context.Background(), Target{Source: "twitter"})
	assert.ErrorIs(t, err, ErrUnsupportedSource)
}

func TestMuxWrapsFetcherError(t *testing.T) {
	t.Parallel()

	m := NewMux()
	m.Handle(thread.SourceGitHub, FetcherFunc(func(context.Context, Target) ([]thread.Container, error) {
		return nil, ErrNotFound
	}))

	_, err := m.Fetch(context.Background(), Target{Source: thread.SourceGitHub, Owner: "octo", Repo: "repo", Number: 7})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "github:octo/repo#7")
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNotFound(fmt.Errorf("wrap: %w", ErrNotFound)))
	assert.True(t, IsNotFound(&paging.StatusError{StatusCode: http.StatusNotFound, Err: errors.New("gone")}))
	assert.False(t, IsNotFound(&paging.StatusError{StatusCode: http.StatusBadGateway, Err: errors.New("bad")}))
	assert.False(t, IsNotFound(errors.New("other")))
}

func TestTargetString(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		target Target
		want   string
	}{
		{Target{Source: thread.SourceGitHub, Scope: ScopeListing, Owner: "o", Repo: "r"}, "github:o/r"},
		{Target{Source: thread.SourceGitHub, Scope: ScopeItem, Owner: "o", Repo: "r", Number: 3}, "github:o/r#3"},
		{Target{Source: thread.SourceReddit, Scope: ScopeListing, Community: "golang"}, "reddit:r/golang"},
		{Target{Source: thread.SourceReddit, Scope: ScopeItem, ID: "1abc"}, "reddit:1abc"},
		{Target{Source: thread.SourceBluesky, Handle: "jay.bsky.social", ID: "3k"}, "bluesky:jay.bsky.social/3k"},
		{Target{Source: thread.SourceHackerNews, ID: "42"}, "hackernews:42"},
	}
	for _, tc := range tcs {
		assert.Equal(t, tc.want, tc.target.String())
	}
}
