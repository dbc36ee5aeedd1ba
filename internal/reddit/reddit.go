// Package reddit fetches Reddit posts and subreddit listings through the
// public JSON endpoints.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/source"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

const (
	defaultBaseURL   = "https://www.reddit.com"
	defaultUserAgent = "threaddigest/1.0"
	// DefaultConcurrency bounds parallel per-post comment fetches of a listing.
	DefaultConcurrency = 4
	listingPageSize    = 100
)

// Config configures the Reddit fetcher.
type Config struct {
	BaseURL         string
	UserAgent       string
	HTTPClient      *http.Client
	IncludeComments bool
	// ListingPages bounds how many listing pages a subreddit target reads.
	ListingPages int
	Concurrency  int
	Pager        *paging.Pager
	Logger       *zerolog.Logger
}

// Fetcher implements source.Fetcher for Reddit targets.
type Fetcher struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	comments    bool
	pages       int
	concurrency int
	pager       *paging.Pager
	log         zerolog.Logger
}

var _ source.Fetcher = (*Fetcher)(nil)

// NewFetcher builds a Reddit fetcher.
func NewFetcher(cfg Config) *Fetcher {
	f := &Fetcher{
		httpClient:  cfg.HTTPClient,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		comments:    cfg.IncludeComments,
		pages:       cfg.ListingPages,
		concurrency: cfg.Concurrency,
		pager:       cfg.Pager,
		log:         zerolog.Nop(),
	}
	if f.httpClient == nil {
		f.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if f.baseURL == "" {
		f.baseURL = defaultBaseURL
	}
	if f.userAgent == "" {
		f.userAgent = defaultUserAgent
	}
	if f.pages <= 0 {
		f.pages = 1
	}
	if f.concurrency <= 0 {
		f.concurrency = DefaultConcurrency
	}
	if f.pager == nil {
		f.pager = paging.NewPager(paging.Config{Logger: cfg.Logger})
	}
	if cfg.Logger != nil {
		f.log = cfg.Logger.With().Str("source", "reddit").Logger()
	}
	return f
}

// Fetch returns one container for a post target, or one per post for a
// subreddit target.
func (f *Fetcher) Fetch(ctx context.Context, t source.Target) ([]thread.Container, error) {
	if t.Scope == source.ScopeListing {
		return f.fetchSubreddit(ctx, t.Community)
	}
	c, err := f.fetchPost(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	return []thread.Container{c}, nil
}

func (f *Fetcher) fetchPost(ctx context.Context, id string) (thread.Container, error) {
	path := "/comments/" + url.PathEscape(id) + ".json"
	fetch := paging.Single(func(ctx context.Context) ([]thread.Container, error) {
		resp, err := f.get(ctx, path, url.Values{"raw_json": {"1"}})
		if err != nil {
			return nil, err
		}
		var listings []listing
		if err := json.Unmarshal(resp.Body, &listings); err != nil {
			return nil, fmt.Errorf("decode post payload: %w", err)
		}
		c, err := f.postContainer(listings)
		if err != nil {
			return nil, err
		}
		return []thread.Container{c}, nil
	})

	res, err := paging.FetchAll(ctx, f.pager, paging.Collection[thread.Container]{Name: "reddit post " + id, Fetch: fetch})
	if err != nil {
		return thread.Container{}, fmt.Errorf("fetch post %s: %w", id, err)
	}
	return res.Items[0], nil
}

func (f *Fetcher) postContainer(listings []listing) (thread.Container, error) {
	if len(listings) == 0 || listings[0].Data == nil || len(listings[0].Data.Children) == 0 {
		return thread.Container{}, fmt.Errorf("post listing empty: %w", source.ErrNotFound)
	}
	var post postData
	if err := json.Unmarshal(listings[0].Data.Children[0].Data, &post); err != nil {
		return thread.Container{}, fmt.Errorf("decode post: %w", err)
	}

	c := post.container(f.baseURL)
	if f.comments && len(listings) > 1 {
		roots, err := commentTree(listings[1], f.baseURL)
		if err != nil {
			return thread.Container{}, err
		}
		c.Comments = thread.Flatten(roots)
	}
	return c, nil
}

func (f *Fetcher) fetchSubreddit(ctx context.Context, community string) ([]thread.Container, error) {
	path := "/r/" + url.PathEscape(community) + "/hot.json"
	request := func(ctx context.Context, after *string) (paging.Response, error) {
		q := url.Values{"limit": {fmt.Sprint(listingPageSize)}, "raw_json": {"1"}}
		if after != nil {
			q.Set("after", *after)
		}
		return f.get(ctx, path, q)
	}
	fetch := paging.JSONPages(request, func(l listing) ([]thing, paging.Cursor, bool) {
		if l.Data == nil {
			return nil, paging.Cursor{}, false
		}
		return l.Data.Children, paging.CursorOf(l.Data.After != "", l.Data.After), true
	}, func(t thing) thing { return t })

	res, err := paging.FetchAll(ctx, f.pager, paging.Collection[thing]{Name: "r/" + community, Fetch: fetch, PageLimit: f.pages})
	if err != nil {
		return nil, fmt.Errorf("fetch subreddit %s: %w", community, err)
	}

	var posts []postData
	for _, item := range res.Items {
		if item.Kind != kindPost {
			continue
		}
		var p postData
		if err := json.Unmarshal(item.Data, &p); err != nil {
			return nil, fmt.Errorf("decode listing post: %w", err)
		}
		posts = append(posts, p)
	}
	f.log.Info().Str("subreddit", community).Int("posts", len(posts)).Msg("listing fetched")

	out := make([]thread.Container, len(posts))
	if !f.comments {
		for i, p := range posts {
			out[i] = p.container(f.baseURL)
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, p := range posts {
		g.Go(func() error {
			c, err := f.fetchPost(gctx, p.ID)
			if err != nil {
				return err
			}
			out[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Fetcher) get(ctx context.Context, path string, q url.Values) (paging.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return paging.Response{}, fmt.Errorf("create reddit request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")
	return paging.Send(f.httpClient, req)
}
