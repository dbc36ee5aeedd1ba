package github

import (
	"context"
	"fmt"

	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/source"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

const discussionQuery = `query DiscussionPage($owner:String!, $repo:String!, $number:Int!, $after:String) {
  repository(owner:$owner, name:$repo) {
    discussion(number:$number) {
      id number title body url createdAt updatedAt
      author { login }
      category { name }
      upvoteCount
      reactions { totalCount }
      comments(first:50, after:$after) {
        nodes {
          id body url createdAt author { login }
          replies(first:50) {
            nodes { id body url createdAt author { login } }
            pageInfo { hasNextPage endCursor }
          }
        }
        pageInfo { hasNextPage endCursor }
      }
    }
  }
}`

func (f *Fetcher) fetchDiscussion(ctx context.Context, t source.Target) (thread.Container, error) {
	var meta *threadNode
	fetch := paging.JSONPages(
		f.gql.request(discussionQuery, map[string]any{"owner": t.Owner, "repo": t.Repo, "number": t.Number}),
		func(p repositoryPayload) ([]commentNode, paging.Cursor, bool) {
			if p.Repository == nil || p.Repository.Discussion == nil {
				return nil, paging.Cursor{}, false
			}
			d := p.Repository.Discussion
			if meta == nil {
				m := *d
				meta = &m
			}
			return d.Comments.page()
		},
		identity[commentNode],
	)

	col := paging.Collection[commentNode]{Name: containerID(t.Owner, t.Repo, t.Number) + " comments", Fetch: fetch}
	if !f.cfg.IncludeComments {
		col.PageLimit = 1
	}
	res, err := paging.FetchAll(ctx, f.pager, col)
	if err != nil {
		return thread.Container{}, fmt.Errorf("fetch discussion pages: %w", err)
	}
	if meta == nil {
		return thread.Container{}, fmt.Errorf("discussion node missing: %w", source.ErrNotFound)
	}

	c := thread.Container{
		ID:              containerID(t.Owner, t.Repo, meta.Number),
		Source:          thread.SourceGitHub,
		Kind:            thread.KindDiscussion,
		Title:           meta.Title,
		Author:          thread.AuthorOrUnknown(login(meta.Author)),
		Body:            meta.Body,
		URL:             meta.URL,
		CreatedAt:       meta.CreatedAt,
		UpdatedAt:       meta.UpdatedAt,
		Labels:          meta.labels(),
		EngagementScore: meta.score(),
	}
	if !f.cfg.IncludeComments {
		return c, nil
	}

	// All comment pages are already collected; only reply overflow remains.
	roots, err := f.commentRoots(ctx, thread.KindDiscussion, meta.ID, &connection[commentNode]{Nodes: res.Items})
	if err != nil {
		return thread.Container{}, err
	}
	c.Comments = thread.Flatten(roots)
	return c, nil
}
