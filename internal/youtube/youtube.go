// Package youtube fetches YouTube videos and their comment threads through
// the Data API v3.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/source"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

const (
	defaultBaseURL = "https://www.googleapis.com/youtube/v3"
	watchURL       = "https://www.youtube.com/watch?v="
	pageSize       = 100
)

// ErrMissingAPIKey is returned when no Data API key is configured.
var ErrMissingAPIKey = errors.New("youtube api key is required")

// Config configures the YouTube fetcher.
type Config struct {
	APIKey          string
	BaseURL         string
	HTTPClient      *http.Client
	IncludeComments bool
	Pager           *paging.Pager
	Logger          *zerolog.Logger
}

// Fetcher implements source.Fetcher for YouTube videos.
type Fetcher struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	comments   bool
	pager      *paging.Pager
	log        zerolog.Logger
}

var _ source.Fetcher = (*Fetcher)(nil)

// NewFetcher builds a YouTube fetcher.
func NewFetcher(cfg Config) *Fetcher {
	f := &Fetcher{
		apiKey:     strings.TrimSpace(cfg.APIKey),
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
		f.log = cfg.Logger.With().Str("source", "youtube").Logger()
	}
	return f
}

// Fetch returns the video with its flattened comment threads.
func (f *Fetcher) Fetch(ctx context.Context, t source.Target) ([]thread.Container, error) {
	if f.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	c, err := f.fetchVideo(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if !f.comments {
		return []thread.Container{c}, nil
	}

	roots, err := f.fetchCommentThreads(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	c.Comments = thread.Flatten(roots)
	f.log.Debug().Str("video", t.ID).Int("comments", len(c.Comments)).Msg("video fetched")
	return []thread.Container{c}, nil
}

func (f *Fetcher) fetchVideo(ctx context.Context, id string) (thread.Container, error) {
	fetch := paging.Single(func(ctx context.Context) ([]video, error) {
		resp, err := f.get(ctx, "videos", url.Values{"part": {"snippet,statistics"}, "id": {id}})
		if err != nil {
			return nil, err
		}
		var out videoList
		if err := json.Unmarshal(resp.Body, &out); err != nil {
			return nil, fmt.Errorf("decode videos payload: %w", err)
		}
		return out.Items, nil
	})

	res, err := paging.FetchAll(ctx, f.pager, paging.Collection[video]{Name: "video " + id, Fetch: fetch})
	if err != nil {
		return thread.Container{}, fmt.Errorf("fetch video %s: %w", id, err)
	}
	if len(res.Items) == 0 {
		return thread.Container{}, fmt.Errorf("video %s: %w", id, source.ErrNotFound)
	}
	return res.Items[0].container(), nil
}

func (f *Fetcher) fetchCommentThreads(ctx context.Context, videoID string) ([]*thread.Node, error) {
	request := func(ctx context.Context, after *string) (paging.Response, error) {
		q := url.Values{
			"part":       {"snippet,replies"},
			"videoId":    {videoID},
			"maxResults": {strconv.Itoa(pageSize)},
			"textFormat": {"plainText"},
			"order":      {"relevance"},
		}
		if after != nil {
			q.Set("pageToken", *after)
		}
		return f.get(ctx, "commentThreads", q)
	}
	fetch := paging.JSONPages(request, func(p commentThreadList) ([]commentThread, paging.Cursor, bool) {
		return p.Items, paging.CursorOf(p.NextPageToken != "", p.NextPageToken), true
	}, func(ct commentThread) commentThread { return ct })

	res, err := paging.FetchAll(ctx, f.pager, paging.Collection[commentThread]{Name: "commentThreads " + videoID, Fetch: fetch})
	if err != nil {
		if isCommentsDisabled(err) {
			f.log.Info().Str("video", videoID).Msg("comments disabled")
			return nil, nil
		}
		return nil, fmt.Errorf("fetch comment threads of %s: %w", videoID, err)
	}

	roots := make([]*thread.Node, 0, len(res.Items))
	for _, ct := range res.Items {
		top := ct.Snippet.TopLevelComment
		node := &thread.Node{Comment: top.toComment(videoID)}

		replies := ct.Replies.Comments
		if ct.Snippet.TotalReplyCount > len(replies) {
			all, err := f.fetchReplies(ctx, top.ID)
			if err != nil {
				return nil, err
			}
			replies = all
		}
		for _, r := range replies {
			node.Children = append(node.Children, &thread.Node{Comment: r.toComment(videoID)})
		}
		roots = append(roots, node)
	}
	return roots, nil
}

// fetchReplies pages every reply of one top-level comment. The inline
// replies of a comment thread are capped at five.
func (f *Fetcher) fetchReplies(ctx context.Context, parentID string) ([]comment, error) {
	request := func(ctx context.Context, after *string) (paging.Response, error) {
		q := url.Values{
			"part":       {"snippet"},
			"parentId":   {parentID},
			"maxResults": {strconv.Itoa(pageSize)},
			"textFormat": {"plainText"},
		}
		if after != nil {
			q.Set("pageToken", *after)
		}
		return f.get(ctx, "comments", q)
	}
	fetch := paging.JSONPages(request, func(p commentList) ([]comment, paging.Cursor, bool) {
		return p.Items, paging.CursorOf(p.NextPageToken != "", p.NextPageToken), true
	}, func(c comment) comment { return c })

	res, err := paging.FetchAll(ctx, f.pager, paging.Collection[comment]{Name: "replies " + parentID, Fetch: fetch})
	if err != nil {
		return nil, fmt.Errorf("fetch replies of %s: %w", parentID, err)
	}
	return res.Items, nil
}

func (f *Fetcher) get(ctx context.Context, resource string, q url.Values) (paging.Response, error) {
	q.Set("key", f.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/"+resource+"?"+q.Encode(), nil)
	if err != nil {
		return paging.Response{}, fmt.Errorf("create %s request: %w", resource, err)
	}
	req.Header.Set("Accept", "application/json")
	return paging.Send(f.httpClient, req)
}

func isCommentsDisabled(err error) bool {
	code, ok := paging.StatusCode(err)
	return ok && code == http.StatusForbidden && strings.Contains(err.Error(), "commentsDisabled")
}
