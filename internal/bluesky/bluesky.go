// Package bluesky fetches BlueSky post threads from the public AppView API.
package bluesky

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/source"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

const (
	defaultBaseURL = "https://public.api.bsky.app/xrpc"
	webURL         = "https://bsky.app"
	// maxThreadDepth is the deepest reply level the AppView returns.
	maxThreadDepth = 1000

	typeThreadView = "app.bsky.feed.defs#threadViewPost"
	typeNotFound   = "app.bsky.feed.defs#notFoundPost"
	typeBlocked    = "app.bsky.feed.defs#blockedPost"
)

// Config configures the BlueSky fetcher.
type Config struct {
	BaseURL         string
	HTTPClient      *http.Client
	IncludeComments bool
	Pager           *paging.Pager
	Logger          *zerolog.Logger
}

// Fetcher implements source.Fetcher for BlueSky posts.
type Fetcher struct {
	httpClient *http.Client
	baseURL    string
	comments   bool
	pager      *paging.Pager
	log        zerolog.Logger
}

var _ source.Fetcher = (*Fetcher)(nil)

// NewFetcher builds a BlueSky fetcher.
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
		f.log = cfg.Logger.With().Str("source", "bluesky").Logger()
	}
	return f
}

type author struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
}

type postView struct {
	URI    string `json:"uri"`
	Author author `json:"author"`
	Record struct {
		Text      string    `json:"text"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"record"`
	LikeCount   int `json:"likeCount"`
	RepostCount int `json:"repostCount"`
	QuoteCount  int `json:"quoteCount"`
}

type threadView struct {
	Type    string        `json:"$type"`
	Post    *postView     `json:"post"`
	Replies []*threadView `json:"replies"`
}

type threadPayload struct {
	Thread *threadView `json:"thread"`
}

// Fetch returns the post addressed by t together with its reply tree.
func (f *Fetcher) Fetch(ctx context.Context, t source.Target) ([]thread.Container, error) {
	did, err := f.resolveHandle(ctx, t.Handle)
	if err != nil {
		return nil, err
	}

	uri := fmt.Sprintf("at://%s/app.bsky.feed.post/%s", did, t.ID)
	root, err := f.getPostThread(ctx, uri)
	if err != nil {
		return nil, err
	}
	if root == nil || root.Type != typeThreadView || root.Post == nil {
		return nil, fmt.Errorf("post %s: %w", uri, source.ErrNotFound)
	}

	c := container(root.Post, t.URL)
	if f.comments {
		c.Comments = thread.Flatten(replyTree(root.Replies))
	}
	return []thread.Container{c}, nil
}

func (f *Fetcher) resolveHandle(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return "", fmt.Errorf("resolve handle: empty handle: %w", source.ErrNotFound)
	}
	if strings.HasPrefix(handle, "did:") {
		return handle, nil
	}

	var out struct {
		DID string `json:"did"`
	}
	if err := f.call(ctx, "com.atproto.identity.resolveHandle", url.Values{"handle": {handle}}, &out); err != nil {
		if isXRPCNotFound(err) {
			return "", fmt.Errorf("resolve handle %s: %w", handle, source.ErrNotFound)
		}
		return "", fmt.Errorf("resolve handle %s: %w", handle, err)
	}
	if out.DID == "" {
		return "", fmt.Errorf("resolve handle %s: %w", handle, source.ErrNotFound)
	}
	f.log.Debug().Str("handle", handle).Str("did", out.DID).Msg("handle resolved")
	return out.DID, nil
}

func (f *Fetcher) getPostThread(ctx context.Context, uri string) (*threadView, error) {
	var out threadPayload
	q := url.Values{"uri": {uri}, "depth": {fmt.Sprint(maxThreadDepth)}, "parentHeight": {"0"}}
	if err := f.call(ctx, "app.bsky.feed.getPostThread", q, &out); err != nil {
		if isXRPCNotFound(err) {
			return nil, fmt.Errorf("get post thread %s: %w", uri, source.ErrNotFound)
		}
		return nil, fmt.Errorf("get post thread %s: %w", uri, err)
	}
	return out.Thread, nil
}

// isXRPCNotFound reports the 400 responses XRPC uses for unknown posts and
// unresolvable handles.
func isXRPCNotFound(err error) bool {
	if code, ok := paging.StatusCode(err); !ok || code != http.StatusBadRequest {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NotFound") || strings.Contains(msg, "Unable to resolve handle")
}

// call runs one XRPC query through the pager's retry loop.
func (f *Fetcher) call(ctx context.Context, method string, q url.Values, out any) error {
	fetch := paging.Single(func(ctx context.Context) ([]struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/"+method+"?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("create %s request: %w", method, err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := paging.Send(f.httpClient, req)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", method, err)
		}
		return nil, nil
	})
	_, err := paging.FetchAll(ctx, f.pager, paging.Collection[struct{}]{Name: method, Fetch: fetch})
	return err
}

func container(p *postView, targetURL string) thread.Container {
	u := targetURL
	if u == "" {
		u = postURL(p)
	}
	return thread.Container{
		ID:              p.URI,
		Source:          thread.SourceBluesky,
		Kind:            thread.KindPost,
		Title:           title(p),
		Author:          authorName(p.Author),
		Body:            p.Record.Text,
		URL:             u,
		CreatedAt:       p.Record.CreatedAt,
		Labels:          []string{},
		EngagementScore: thread.Score(p.LikeCount + p.RepostCount + p.QuoteCount),
		Comments:        []thread.Comment{},
	}
}

func title(p *postView) string {
	return "Post by @" + p.Author.Handle
}

func authorName(a author) string {
	if a.Handle != "" {
		return thread.AuthorOrUnknown(a.Handle)
	}
	return thread.AuthorOrUnknown(a.DID)
}

// postURL maps at://did/app.bsky.feed.post/rkey to the web URL.
func postURL(p *postView) string {
	rkey := p.URI[strings.LastIndex(p.URI, "/")+1:]
	who := p.Author.Handle
	if who == "" {
		who = p.Author.DID
	}
	return webURL + "/profile/" + who + "/post/" + rkey
}

// replyTree converts nested thread views into nodes, skipping notFound and
// blocked placeholders together with anything beneath them.
func replyTree(replies []*threadView) []*thread.Node {
	type frame struct {
		views  []*threadView
		parent *thread.Node
	}

	var roots []*thread.Node
	stack := []frame{{views: replies}}
	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, v := range fr.views {
			if v == nil || v.Post == nil {
				continue
			}
			switch v.Type {
			case typeNotFound, typeBlocked:
				continue
			}

			node := &thread.Node{Comment: thread.Comment{
				ID:        v.Post.URI,
				Author:    authorName(v.Post.Author),
				Content:   v.Post.Record.Text,
				CreatedAt: v.Post.Record.CreatedAt,
				URL:       postURL(v.Post),
			}}
			if fr.parent == nil {
				roots = append(roots, node)
			} else {
				fr.parent.Children = append(fr.parent.Children, node)
			}
			if len(v.Replies) > 0 {
				stack = append(stack, frame{views: v.Replies, parent: node})
			}
		}
	}
	return roots
}
