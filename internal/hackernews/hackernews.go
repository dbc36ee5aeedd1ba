// Package hackernews fetches Hacker News stories with their full comment tree
// from the Algolia items API.
package hackernews

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/source"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

const (
	defaultBaseURL = "https://hn.algolia.com"
	itemURLPrefix  = "https://news.ycombinator.com/item?id="
)

// Config configures the Hacker News fetcher.
type Config struct {
	BaseURL         string
	HTTPClient      *http.Client
	IncludeComments bool
	Pager           *paging.Pager
	Logger          *zerolog.Logger
}

// Fetcher implements source.Fetcher for Hacker News items.
type Fetcher struct {
	httpClient *http.Client
	baseURL    string
	comments   bool
	pager      *paging.Pager
	log        zerolog.Logger
}

var _ source.Fetcher = (*Fetcher)(nil)

// NewFetcher builds a Hacker News fetcher.
func NewFetcher(cfg Config) *Fetcher {
	f := &Fetcher{
		httpClient: cfg.HTTPClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		comments:   cfg.IncludeComments,
		pager:      cfg.Pager,
		log:        zerolog.Nop(),
	}
	if f.httpClient == nil {
		f.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if f.baseURL == "" {
		f.baseURL = defaultBaseURL
	}
	if f.pager == nil {
		f.pager = paging.NewPager(paging.Config{Logger: cfg.Logger})
	}
	if cfg.Logger != nil {
		f.log = cfg.Logger.With().Str("source", "hackernews").Logger()
	}
	return f
}

type item struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Type      string    `json:"type"`
	Author    *string   `json:"author"`
	Title     *string   `json:"title"`
	URL       *string   `json:"url"`
	Text      *string   `json:"text"`
	Points    *int      `json:"points"`
	Children  []item    `json:"children"`
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Fetch returns the story (or any item) with its nested comments.
func (f *Fetcher) Fetch(ctx context.Context, t source.Target) ([]thread.Container, error) {
	if _, err := strconv.ParseInt(t.ID, 10, 64); err != nil {
		return nil, fmt.Errorf("hacker news item id %q: %w", t.ID, source.ErrNotFound)
	}

	fetch := paging.Single(func(ctx context.Context) ([]item, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/api/v1/items/"+t.ID, nil)
		if err != nil {
			return nil, fmt.Errorf("create item request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := paging.Send(f.httpClient, req)
		if err != nil {
			return nil, err
		}
		var it item
		if err := json.Unmarshal(resp.Body, &it); err != nil {
			return nil, fmt.Errorf("decode item payload: %w", err)
		}
		return []item{it}, nil
	})

	res, err := paging.FetchAll(ctx, f.pager, paging.Collection[item]{Name: "hn item " + t.ID, Fetch: fetch})
	if err != nil {
		return nil, fmt.Errorf("fetch item %s: %w", t.ID, err)
	}

	root := res.Items[0]
	c := container(root)
	if f.comments {
		c.Comments = thread.Flatten(commentTree(root.Children))
	}
	f.log.Debug().Str("item", t.ID).Int("comments", len(c.Comments)).Msg("item fetched")
	return []thread.Container{c}, nil
}

func container(it item) thread.Container {
	id := strconv.FormatInt(it.ID, 10)
	body := deref(it.Text)
	if body == "" {
		body = deref(it.URL)
	}
	return thread.Container{
		ID:              id,
		Source:          thread.SourceHackerNews,
		Kind:            thread.KindStory,
		Title:           deref(it.Title),
		Author:          thread.AuthorOrUnknown(deref(it.Author)),
		Body:            decodeText(body),
		URL:             itemURLPrefix + id,
		CreatedAt:       it.CreatedAt,
		Labels:          thread.Labels(it.Type),
		EngagementScore: thread.Score(deref(it.Points)),
		Comments:        []thread.Comment{},
	}
}

// commentTree converts the nested children into nodes. Deleted comments
// (no author and no text) are dropped; their replies attach to the nearest
// surviving ancestor.
func commentTree(children []item) []*thread.Node {
	type frame struct {
		items  []item
		parent *thread.Node
	}

	var roots []*thread.Node
	stack := []frame{{items: children}}
	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, it := range fr.items {
			parent := fr.parent
			if it.Author != nil || it.Text != nil {
				id := strconv.FormatInt(it.ID, 10)
				node := &thread.Node{Comment: thread.Comment{
					ID:        id,
					Author:    thread.AuthorOrUnknown(deref(it.Author)),
					Content:   decodeText(deref(it.Text)),
					CreatedAt: it.CreatedAt,
					URL:       itemURLPrefix + id,
				}}
				if parent == nil {
					roots = append(roots, node)
				} else {
					parent.Children = append(parent.Children, node)
				}
				parent = node
			}
			if len(it.Children) > 0 {
				stack = append(stack, frame{items: it.Children, parent: parent})
			}
		}
	}
	return roots
}

// decodeText turns the item HTML into plain paragraphs.
func decodeText(s string) string {
	if s == "" {
		return ""
	}
	r := strings.NewReplacer("<p>", "\n\n", "</p>", "", "<i>", "_", "</i>", "_", "<pre><code>", "\n```\n", "</code></pre>", "\n```\n")
	return strings.TrimSpace(html.UnescapeString(r.Replace(s)))
}
