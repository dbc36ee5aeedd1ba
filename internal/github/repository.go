package github

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

const issuesQuery = `query RepositoryIssues($owner:String!, $repo:String!, $after:String) {
  repository(owner:$owner, name:$repo) {
    issues(first:50, after:$after, orderBy:{field:CREATED_AT, direction:ASC}) {
      nodes {
        id number title body url createdAt updatedAt
        author { login }
        labels(first:20) { nodes { name } }
        reactions { totalCount }
        comments(first:50) {
          nodes { id body url createdAt author { login } }
          pageInfo { hasNextPage endCursor }
        }
      }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

const pullRequestsQuery = `query RepositoryPullRequests($owner:String!, $repo:String!, $after:String) {
  repository(owner:$owner, name:$repo) {
    pullRequests(first:50, after:$after, orderBy:{field:CREATED_AT, direction:ASC}) {
      nodes {
        id number title body url createdAt updatedAt
        author { login }
        labels(first:20) { nodes { name } }
        reactions { totalCount }
        comments(first:50) {
          nodes { id body url createdAt author { login } }
          pageInfo { hasNextPage endCursor }
        }
      }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

const discussionsQuery = `query RepositoryDiscussions($owner:String!, $repo:String!, $after:String) {
  repository(owner:$owner, name:$repo) {
    discussions(first:25, after:$after, orderBy:{field:CREATED_AT, direction:ASC}) {
      nodes {
        id number title body url createdAt updatedAt
        author { login }
        category { name }
        upvoteCount
        comments(first:50) {
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
      pageInfo { hasNextPage endCursor }
    }
  }
}`

const commentsQuery = `query ThreadComments($id:ID!, $after:String) {
  node(id:$id) {
    ... on Issue {
      comments(first:100, after:$after) {
        nodes { id body url createdAt author { login } }
        pageInfo { hasNextPage endCursor }
      }
    }
    ... on PullRequest {
      comments(first:100, after:$after) {
        nodes { id body url createdAt author { login } }
        pageInfo { hasNextPage endCursor }
      }
    }
  }
}`

const discussionCommentsQuery = `query DiscussionComments($id:ID!, $after:String) {
  node(id:$id) {
    ... on Discussion {
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

const repliesQuery = `query CommentReplies($id:ID!, $after:String) {
  node(id:$id) {
    ... on DiscussionComment {
      replies(first:50, after:$after) {
        nodes { id body url createdAt author { login } }
        pageInfo { hasNextPage endCursor }
      }
    }
  }
}`

type repositoryCollection struct {
	name  string
	kind  thread.Kind
	query string
	field func(p repositoryPayload) *connection[threadNode]
}

var repositoryCollections = map[string]repositoryCollection{
	CollectionIssues: {
		name: CollectionIssues, kind: thread.KindIssue, query: issuesQuery,
		field: func(p repositoryPayload) *connection[threadNode] { return p.Repository.Issues },
	},
	CollectionPullRequests: {
		name: CollectionPullRequests, kind: thread.KindPullRequest, query: pullRequestsQuery,
		field: func(p repositoryPayload) *connection[threadNode] { return p.Repository.PullRequests },
	},
	CollectionDiscussions: {
		name: CollectionDiscussions, kind: thread.KindDiscussion, query: discussionsQuery,
		field: func(p repositoryPayload) *connection[threadNode] { return p.Repository.Discussions },
	},
}

// FetchRepository fetches the configured collections of owner/repo
// concurrently. Each collection keeps its own cursor and retry state; the
// first failure cancels the others.
func (f *Fetcher) FetchRepository(ctx context.Context, owner, repo string) ([]thread.Container, error) {
	results := make([][]thread.Container, len(f.cfg.Collections))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range f.cfg.Collections {
		col, ok := repositoryCollections[name]
		if !ok {
			return nil, fmt.Errorf("unknown repository collection %q", name)
		}
		g.Go(func() error {
			containers, err := f.fetchRepositoryCollection(gctx, owner, repo, col)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", col.name, err)
			}
			results[i] = containers
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := slices.Concat(results...)
	f.log.Info().Str("repository", owner+"/"+repo).Int("containers", len(out)).Msg("repository fetched")
	return out, nil
}

func (f *Fetcher) fetchRepositoryCollection(ctx context.Context, owner, repo string, col repositoryCollection) ([]thread.Container, error) {
	fetch := paging.JSONPages(
		f.gql.request(col.query, map[string]any{"owner": owner, "repo": repo}),
		func(p repositoryPayload) ([]threadNode, paging.Cursor, bool) {
			if p.Repository == nil {
				return nil, paging.Cursor{}, false
			}
			return col.field(p).page()
		},
		identity[threadNode],
	)

	res, err := paging.FetchAll(ctx, f.pager, paging.Collection[threadNode]{
		Name:      owner + "/" + repo + " " + col.name,
		Fetch:     fetch,
		PageLimit: f.cfg.PageLimit,
	})
	if err != nil {
		return nil, err
	}

	containers := make([]thread.Container, 0, len(res.Items))
	for _, n := range res.Items {
		c, err := f.buildContainer(ctx, owner, repo, col.kind, n)
		if err != nil {
			return nil, fmt.Errorf("build %s #%d: %w", col.kind, n.Number, err)
		}
		containers = append(containers, c)
	}
	return containers, nil
}

func (f *Fetcher) buildContainer(ctx context.Context, owner, repo string, kind thread.Kind, n threadNode) (thread.Container, error) {
	var roots []*thread.Node
	if f.cfg.IncludeComments {
		var err error
		roots, err = f.commentRoots(ctx, kind, n.ID, n.Comments)
		if err != nil {
			return thread.Container{}, err
		}
	}

	return thread.Container{
		ID:              containerID(owner, repo, n.Number),
		Source:          thread.SourceGitHub,
		Kind:            kind,
		Title:           n.Title,
		Author:          thread.AuthorOrUnknown(login(n.Author)),
		Body:            n.Body,
		URL:             n.URL,
		CreatedAt:       n.CreatedAt,
		UpdatedAt:       n.UpdatedAt,
		Labels:          n.labels(),
		EngagementScore: n.score(),
		Comments:        thread.Flatten(roots),
	}, nil
}

// commentRoots completes the embedded first comment page of a thread and
// turns it into tree roots with their replies attached.
func (f *Fetcher) commentRoots(ctx context.Context, kind thread.Kind, threadID string, first *connection[commentNode]) ([]*thread.Node, error) {
	if first == nil {
		return nil, nil
	}

	comments := first.Nodes
	if first.PageInfo.HasNextPage {
		query := commentsQuery
		if kind == thread.KindDiscussion {
			query = discussionCommentsQuery
		}
		more, err := f.collectNodeConnection(ctx, "comments of "+threadID, query, threadID, first.PageInfo.EndCursor,
			func(p nodePayload) *connection[commentNode] { return p.Node.Comments })
		if err != nil {
			return nil, fmt.Errorf("fetch additional comments: %w", err)
		}
		comments = append(slices.Clone(comments), more...)
	}

	roots := make([]*thread.Node, 0, len(comments))
	for _, c := range comments {
		node := c.toNode()
		if c.Replies != nil {
			replies := c.Replies.Nodes
			if c.Replies.PageInfo.HasNextPage {
				more, err := f.collectNodeConnection(ctx, "replies of "+c.ID, repliesQuery, c.ID, c.Replies.PageInfo.EndCursor,
					func(p nodePayload) *connection[commentNode] { return p.Node.Replies })
				if err != nil {
					return nil, fmt.Errorf("fetch additional replies: %w", err)
				}
				replies = append(slices.Clone(replies), more...)
			}
			for _, r := range replies {
				node.Children = append(node.Children, r.toNode())
			}
		}
		roots = append(roots, node)
	}
	return roots, nil
}

// collectNodeConnection pages a connection of node(id) starting after start.
func (f *Fetcher) collectNodeConnection(ctx context.Context, name, query, id, start string, field func(nodePayload) *connection[commentNode]) ([]commentNode, error) {
	fetch := paging.JSONPages(
		f.gql.request(query, map[string]any{"id": id}),
		func(p nodePayload) ([]commentNode, paging.Cursor, bool) {
			if p.Node == nil {
				return nil, paging.Cursor{}, false
			}
			return field(p).page()
		},
		identity[commentNode],
	)

	res, err := paging.FetchAll(ctx, f.pager, paging.Collection[commentNode]{Name: name, Fetch: startAt(start, fetch)})
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// startAt makes the first page of fetch begin after cursor.
func startAt[T any](cursor string, fetch paging.PageFunc[T]) paging.PageFunc[T] {
	return func(ctx context.Context, after *string) (paging.Page[T], error) {
		if after == nil && cursor != "" {
			after = &cursor
		}
		return fetch(ctx, after)
	}
}

func identity[T any](v T) T { return v }
