// Package github fetches issues, pull requests and discussions through the
// GitHub REST and GraphQL APIs and normalizes them into thread containers.
package github

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/source"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

// Fetcher implements source.Fetcher for GitHub targets.
type Fetcher struct {
	cfg   Config
	rest  *restClient
	gql   *graphQLClient
	pager *paging.Pager
	log   zerolog.Logger
}

var _ source.Fetcher = (*Fetcher)(nil)

// Fetch dispatches a repository or single-item target.
func (f *Fetcher) Fetch(ctx context.Context, t source.Target) ([]thread.Container, error) {
	if t.Scope == source.ScopeListing {
		containers, err := f.FetchRepository(ctx, t.Owner, t.Repo)
		if err != nil {
			return nil, fmt.Errorf("fetch repository: %w", err)
		}
		return containers, nil
	}

	var (
		c   thread.Container
		err error
	)
	switch t.Kind {
	case thread.KindIssue:
		c, err = f.fetchIssue(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("fetch issue: %w", err)
		}
	case thread.KindPullRequest:
		c, err = f.fetchPullRequest(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("fetch pull request: %w", err)
		}
	case thread.KindDiscussion:
		c, err = f.fetchDiscussion(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("fetch discussion: %w", err)
		}
	default:
		return nil, fmt.Errorf("dispatch github kind %q: %w", t.Kind, source.ErrUnsupportedSource)
	}
	return []thread.Container{c}, nil
}

func containerID(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s#%d", owner, repo, number)
}
