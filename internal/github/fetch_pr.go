package github

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	goGithub "github.com/google/go-github/v72/github"

	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/source"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

func (f *Fetcher) fetchPullRequest(ctx context.Context, t source.Target) (thread.Container, error) {
	pr, err := f.rest.getPullRequest(ctx, t.Owner, t.Repo, t.Number)
	if err != nil {
		return thread.Container{}, fmt.Errorf("fetch pull request resource: %w", err)
	}

	issueForPR, err := f.rest.getIssue(ctx, t.Owner, t.Repo, t.Number)
	if err != nil {
		return thread.Container{}, fmt.Errorf("fetch pull request issue envelope: %w", err)
	}

	c := thread.Container{
		ID:              containerID(t.Owner, t.Repo, t.Number),
		Source:          thread.SourceGitHub,
		Kind:            thread.KindPullRequest,
		Title:           pr.GetTitle(),
		Author:          thread.AuthorOrUnknown(pr.GetUser().GetLogin()),
		Body:            pr.GetBody(),
		URL:             pr.GetHTMLURL(),
		CreatedAt:       timestamp(pr.CreatedAt),
		UpdatedAt:       timestamp(pr.UpdatedAt),
		Labels:          mapLabels(pr.Labels),
		EngagementScore: thread.Score(issueForPR.GetReactions().GetTotalCount()),
	}
	if !f.cfg.IncludeComments {
		return c, nil
	}

	roots, err := f.issueCommentRoots(ctx, t)
	if err != nil {
		return thread.Container{}, fmt.Errorf("fetch pull request conversation: %w", err)
	}

	name := containerID(t.Owner, t.Repo, t.Number)
	reviews, err := paging.FetchAll(ctx, f.pager, paging.Collection[*goGithub.PullRequestReview]{
		Name:  name + " reviews",
		Fetch: f.rest.pullRequestReviews(t.Owner, t.Repo, t.Number),
	})
	if err != nil {
		return thread.Container{}, fmt.Errorf("fetch pull request reviews: %w", err)
	}
	comments, err := paging.FetchAll(ctx, f.pager, paging.Collection[*goGithub.PullRequestComment]{
		Name:  name + " review comments",
		Fetch: f.rest.pullRequestComments(t.Owner, t.Repo, t.Number),
	})
	if err != nil {
		return thread.Container{}, fmt.Errorf("fetch pull request review comments: %w", err)
	}

	roots = append(roots, reviewRoots(reviews.Items, comments.Items)...)
	slices.SortStableFunc(roots, func(a, b *thread.Node) int { return a.CreatedAt.Compare(b.CreatedAt) })
	c.Comments = thread.Flatten(roots)
	return c, nil
}

// reviewRoots builds one tree per review: the review summary at the root,
// each review thread's first comment below it and replies below that.
// Comments whose review or reply target is unknown become roots themselves,
// as do comments that reply to themselves or sit on a reply cycle.
func reviewRoots(reviews []*goGithub.PullRequestReview, comments []*goGithub.PullRequestComment) []*thread.Node {
	var roots []*thread.Node

	reviewNodes := make(map[int64]*thread.Node, len(reviews))
	for _, review := range reviews {
		body := review.GetBody()
		if body == "" {
			body = "(" + review.GetState() + ")"
		}
		node := &thread.Node{Comment: thread.Comment{
			ID:        "review-" + strconv.FormatInt(review.GetID(), 10),
			Author:    thread.AuthorOrUnknown(review.GetUser().GetLogin()),
			Content:   body,
			CreatedAt: timestamp(review.SubmittedAt),
			URL:       review.GetHTMLURL(),
		}}
		reviewNodes[review.GetID()] = node
		roots = append(roots, node)
	}

	commentNodes := make(map[int64]*thread.Node, len(comments))
	replyTargets := make(map[int64]int64, len(comments))
	for _, comment := range comments {
		commentNodes[comment.GetID()] = mapReviewComment(comment)
		replyTargets[comment.GetID()] = comment.GetInReplyTo()
	}

	for _, comment := range comments {
		node := commentNodes[comment.GetID()]
		if replyTo := comment.GetInReplyTo(); replyTo != 0 {
			if parent, ok := commentNodes[replyTo]; ok && !onReplyCycle(comment.GetID(), replyTargets) {
				parent.Children = append(parent.Children, node)
				continue
			}
			node.ParentID = strconv.FormatInt(replyTo, 10)
			roots = append(roots, node)
			continue
		}
		if review, ok := reviewNodes[comment.GetPullRequestReviewID()]; ok {
			review.Children = append(review.Children, node)
			continue
		}
		// Keep unmatched review comments so discussion context is never dropped.
		roots = append(roots, node)
	}

	// Reviews that only carried inline comments add no text of their own.
	return slices.DeleteFunc(roots, func(n *thread.Node) bool {
		return len(n.Children) == 0 && n.Content == "(COMMENTED)"
	})
}

// onReplyCycle reports whether following in-reply-to links from id leads back
// to id.
func onReplyCycle(id int64, replyTargets map[int64]int64) bool {
	seen := make(map[int64]bool)
	for cur := replyTargets[id]; cur != 0; cur = replyTargets[cur] {
		if cur == id {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
	}
	return false
}

func mapReviewComment(comment *goGithub.PullRequestComment) *thread.Node {
	line := comment.GetLine()
	if line == 0 {
		line = comment.GetOriginalLine()
	}
	return &thread.Node{Comment: thread.Comment{
		ID:           strconv.FormatInt(comment.GetID(), 10),
		Author:       thread.AuthorOrUnknown(comment.GetUser().GetLogin()),
		Content:      comment.GetBody(),
		CreatedAt:    timestamp(comment.CreatedAt),
		URL:          comment.GetHTMLURL(),
		CodeContext:  comment.GetDiffHunk(),
		FilePath:     comment.GetPath(),
		LinePosition: line,
	}}
}
