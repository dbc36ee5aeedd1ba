package github

import (
	"time"

	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

// Typed GraphQL page schemas. Every collection field is a pointer so an
// absent field is told apart from an empty one.

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

func (p pageInfo) cursor() paging.Cursor {
	return paging.CursorOf(p.HasNextPage, p.EndCursor)
}

type connection[N any] struct {
	Nodes    []N      `json:"nodes"`
	PageInfo pageInfo `json:"pageInfo"`
}

// page reports a connection as a page; a nil connection is missing.
func (c *connection[N]) page() ([]N, paging.Cursor, bool) {
	if c == nil {
		return nil, paging.Cursor{}, false
	}
	return c.Nodes, c.PageInfo.cursor(), true
}

type actor struct {
	Login string `json:"login"`
}

func login(a *actor) string {
	if a == nil {
		return ""
	}
	return a.Login
}

type commentNode struct {
	ID        string                   `json:"id"`
	Body      string                   `json:"body"`
	URL       string                   `json:"url"`
	CreatedAt time.Time                `json:"createdAt"`
	Author    *actor                   `json:"author"`
	Replies   *connection[commentNode] `json:"replies"`
}

type reactionCount struct {
	TotalCount int `json:"totalCount"`
}

type labelNode struct {
	Name string `json:"name"`
}

type threadNode struct {
	ID          string                   `json:"id"`
	Number      int                      `json:"number"`
	Title       string                   `json:"title"`
	Body        string                   `json:"body"`
	URL         string                   `json:"url"`
	CreatedAt   time.Time                `json:"createdAt"`
	UpdatedAt   time.Time                `json:"updatedAt"`
	Author      *actor                   `json:"author"`
	Labels      *connection[labelNode]   `json:"labels"`
	Category    *labelNode               `json:"category"`
	UpvoteCount int                      `json:"upvoteCount"`
	Reactions   *reactionCount           `json:"reactions"`
	Comments    *connection[commentNode] `json:"comments"`
}

type repositoryPayload struct {
	Repository *struct {
		Issues       *connection[threadNode] `json:"issues"`
		PullRequests *connection[threadNode] `json:"pullRequests"`
		Discussions  *connection[threadNode] `json:"discussions"`
		Discussion   *threadNode             `json:"discussion"`
	} `json:"repository"`
}

type nodePayload struct {
	Node *struct {
		Comments *connection[commentNode] `json:"comments"`
		Replies  *connection[commentNode] `json:"replies"`
	} `json:"node"`
}

func (n threadNode) labels() []string {
	var names []string
	if n.Category != nil {
		names = append(names, n.Category.Name)
	}
	if n.Labels != nil {
		for _, l := range n.Labels.Nodes {
			names = append(names, l.Name)
		}
	}
	return thread.Labels(names...)
}

func (n threadNode) score() int {
	if n.Reactions != nil {
		return thread.Score(n.Reactions.TotalCount + n.UpvoteCount)
	}
	return thread.Score(n.UpvoteCount)
}

func (c commentNode) toNode() *thread.Node {
	return &thread.Node{Comment: thread.Comment{
		ID:        c.ID,
		Author:    thread.AuthorOrUnknown(login(c.Author)),
		Content:   c.Body,
		CreatedAt: c.CreatedAt,
		URL:       c.URL,
	}}
}
