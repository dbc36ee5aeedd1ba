package reddit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/johnqtcg/threaddigest/internal/thread"
)

const (
	kindComment = "t1"
	kindPost    = "t3"
)

type listing struct {
	Kind string `json:"kind"`
	Data *struct {
		Children []thing `json:"children"`
		After    string  `json:"after"`
	} `json:"data"`
}

type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type postData struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	CreatedUTC  float64 `json:"created_utc"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
	Score       int     `json:"score"`
	Subreddit   string  `json:"subreddit"`
	Flair       string  `json:"link_flair_text"`
	IsSelf      bool    `json:"is_self"`
	NumComments int     `json:"num_comments"`
}

type commentData struct {
	ID         string  `json:"id"`
	Author     string  `json:"author"`
	Body       string  `json:"body"`
	CreatedUTC float64 `json:"created_utc"`
	Permalink  string  `json:"permalink"`
	// Replies is "" for leaf comments and a listing otherwise.
	Replies json.RawMessage `json:"replies"`
}

func unixTime(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0).UTC()
}

func (p postData) container(baseURL string) thread.Container {
	body := p.Selftext
	if body == "" && !p.IsSelf {
		body = p.URL
	}
	var labels []string
	if p.Subreddit != "" {
		labels = append(labels, "r/"+p.Subreddit)
	}
	return thread.Container{
		ID:              p.ID,
		Source:          thread.SourceReddit,
		Kind:            thread.KindThread,
		Title:           p.Title,
		Author:          thread.AuthorOrUnknown(p.Author),
		Body:            body,
		URL:             baseURL + p.Permalink,
		CreatedAt:       unixTime(p.CreatedUTC),
		Labels:          thread.Labels(append(labels, p.Flair)...),
		EngagementScore: thread.Score(p.Score),
		Comments:        []thread.Comment{},
	}
}

// commentTree decodes a comment listing into tree roots. Nested reply
// listings are expanded with an explicit stack; "more" stubs are skipped.
func commentTree(root listing, baseURL string) ([]*thread.Node, error) {
	type frame struct {
		list   listing
		parent *thread.Node
	}

	var roots []*thread.Node
	stack := []frame{{list: root}}
	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if fr.list.Data == nil {
			continue
		}

		for _, child := range fr.list.Data.Children {
			if child.Kind != kindComment {
				continue
			}
			var c commentData
			if err := json.Unmarshal(child.Data, &c); err != nil {
				return nil, fmt.Errorf("decode comment: %w", err)
			}

			node := &thread.Node{Comment: thread.Comment{
				ID:        c.ID,
				Author:    thread.AuthorOrUnknown(c.Author),
				Content:   c.Body,
				CreatedAt: unixTime(c.CreatedUTC),
				URL:       baseURL + c.Permalink,
			}}
			if fr.parent == nil {
				roots = append(roots, node)
			} else {
				fr.parent.Children = append(fr.parent.Children, node)
			}

			replies := bytes.TrimSpace(c.Replies)
			if len(replies) == 0 || replies[0] != '{' {
				continue
			}
			var sub listing
			if err := json.Unmarshal(replies, &sub); err != nil {
				return nil, fmt.Errorf("decode replies of %s: %w", c.ID, err)
			}
			stack = append(stack, frame{list: sub, parent: node})
		}
	}
	return roots, nil
}
