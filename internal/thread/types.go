// Package thread holds the normalized discussion model shared by every source
// and the tree flattening that turns nested replies into parent-linked lists.
package thread

import (
	"strings"
	"time"
)

// UnknownAuthor replaces missing or deleted author names.
const UnknownAuthor = "unknown"

// Source identifies the platform a container was fetched from.
type Source string

const (
	SourceGitHub     Source = "github"
	SourceReddit     Source = "reddit"
	SourceHackerNews Source = "hackernews"
	SourceBluesky    Source = "bluesky"
	SourceYouTube    Source = "youtube"
)

// Kind identifies the container shape within a source.
type Kind string

const (
	KindIssue       Kind = "issue"
	KindPullRequest Kind = "pull_request"
	KindDiscussion  Kind = "discussion"
	KindThread      Kind = "thread"
	KindStory       Kind = "story"
	KindPost        Kind = "post"
	KindVideo       Kind = "video"
)

// Comment is one hoisted reply. ParentID is empty for top-level comments.
type Comment struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	URL       string    `json:"url,omitempty"`

	CodeContext  string `json:"code_context,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
	LinePosition int    `json:"line_position,omitempty"`
}

// Node is the tree-shaped input to Flatten. A root's ParentID is kept as the
// source declared it; children are always linked to their tree parent.
type Node struct {
	Comment
	Children []*Node
}

// Container is one issue, pull request, discussion, story, post or video
// together with its flattened comments.
type Container struct {
	ID              string    `json:"id"`
	Source          Source    `json:"source"`
	Kind            Kind      `json:"kind"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Body            string    `json:"body"`
	URL             string    `json:"url"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at,omitzero"`
	Labels          []string  `json:"labels"`
	EngagementScore int       `json:"engagement_score"`
	Comments        []Comment `json:"comments"`
}

// AuthorOrUnknown returns name, or UnknownAuthor when name is blank or a
// platform placeholder for removed accounts.
func AuthorOrUnknown(name string) string {
	trimmed := strings.TrimSpace(name)
	switch trimmed {
	case "", "[deleted]", "[removed]", "ghost":
		return UnknownAuthor
	}
	return trimmed
}

// Labels returns the ordered set of non-empty names, keeping first occurrences.
func Labels(names ...string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Score clamps an engagement count to be non-negative.
func Score(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
