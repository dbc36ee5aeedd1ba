package github

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goGithub "github.com/google/go-github/v72/github"

	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/source"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

func (f *Fetcher) fetchIssue(ctx context.Context, t source.Target) (thread.Container, error) {
	issue, err := f.rest.getIssue(ctx, t.Owner, t.Repo, t.Number)
	if err != nil {
		return thread.Container{}, fmt.Errorf("fetch issue resource: %w", err)
	}

	c := thread.Container{
		ID:              containerID(t.Owner, t.Repo, t.Number),
		Source:          thread.SourceGitHub,
		Kind:            thread.KindIssue,
		Title:           issue.GetTitle(),
		Author:          thread.AuthorOrUnknown(issue.GetUser().GetLogin()),
		Body:            issue.GetBody(),
		URL:             issue.GetHTMLURL(),
		CreatedAt:       timestamp(issue.CreatedAt),
		UpdatedAt:       timestamp(issue.UpdatedAt),
		Labels:          mapLabels(issue.Labels),
		EngagementScore: thread.Score(issue.GetReactions().GetTotalCount()),
	}

	if f.cfg.IncludeComments {
		roots, err := f.issueCommentRoots(ctx, t)
		if err != nil {
			return thread.Container{}, fmt.Errorf("fetch issue comments: %w", err)
		}
		c.Comments = thread.Flatten(roots)
	}
	return c, nil
}

func (f *Fetcher) issueCommentRoots(ctx context.Context, t source.Target) ([]*thread.Node, error) {
	res, err := paging.FetchAll(ctx, f.pager, paging.Collection[*goGithub.IssueComment]{
		Name:  containerID(t.Owner, t.Repo, t.Number) + " comments",
		Fetch: f.rest.issueComments(t.Owner, t.Repo, t.Number),
	})
	if err != nil {
		return nil, err
	}

	roots := make([]*thread.Node, 0, len(res.Items))
	for _, comment := range res.Items {
		roots = append(roots, &thread.Node{Comment: thread.Comment{
			ID:        strconv.FormatInt(comment.GetID(), 10),
			Author:    thread.AuthorOrUnknown(comment.GetUser().GetLogin()),
			Content:   comment.GetBody(),
			CreatedAt: timestamp(comment.CreatedAt),
			URL:       comment.GetHTMLURL(),
		}})
	}
	return roots, nil
}

func mapLabels(labels []*goGithub.Label) []string {
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		names = append(names, label.GetName())
	}
	return thread.Labels(names...)
}

func timestamp(ts *goGithub.Timestamp) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return ts.Time
}
