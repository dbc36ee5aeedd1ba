package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/johnqtcg/threaddigest/internal/converter"
	"github.com/johnqtcg/threaddigest/internal/history"
	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/source"
	"github.com/johnqtcg/threaddigest/internal/thread"
	"github.com/johnqtcg/threaddigest/internal/youtube"
)

const testIssueURL = "https://github.com/octo/repo/issues/1"

func testTarget() source.Target {
	return source.Target{
		Source: thread.SourceGitHub,
		Scope:  source.ScopeItem,
		Kind:   thread.KindIssue,
		URL:    testIssueURL,
		Owner:  "octo",
		Repo:   "repo",
		Number: 1,
	}
}

func testContainers() []thread.Container {
	return []thread.Container{{
		ID:     "1",
		Source: thread.SourceGitHub,
		Kind:   thread.KindIssue,
		Title:  "Issue title",
		Author: "alice",
		Body:   "Body",
		URL:    testIssueURL,
		Comments: []thread.Comment{
			{ID: "c1", Author: "bob", Content: "first"},
			{ID: "c2", ParentID: "c1", Author: "carol", Content: "second"},
		},
	}}
}

func newTestHandler(deps webDeps) http.Handler {
	if deps.parser == nil {
		deps.parser = &fakeWebParser{target: testTarget()}
	}
	if deps.fetcher == nil {
		deps.fetcher = &fakeWebFetcher{containers: testContainers()}
	}
	if deps.renderer == nil {
		deps.renderer = &fakeWebRenderer{content: []byte("# markdown")}
	}
	deps.log = zerolog.Nop()
	return newWebHandler(deps)
}

func postConvert(h http.Handler, rawURL string) *httptest.ResponseRecorder {
	form := url.Values{}
	form.Set("url", rawURL)
	req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := newTestHandler(webDeps{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body != "ok\n" {
		t.Fatalf("body = %q, want ok", body)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	t.Parallel()

	origin := "https://app.example.com"
	h := newTestHandler(webDeps{corsOrigins: []string{origin}})

	req := httptest.NewRequest(http.MethodOptions, "/convert", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code >= http.StatusMultipleChoices {
		t.Fatalf("preflight status = %d, want 2xx", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != origin {
		t.Fatalf("allow origin = %q, want %q", got, origin)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("allow origin = %q, want none for unknown origin", got)
	}
}

func TestConvertStoresShareableDigest(t *testing.T) {
	t.Parallel()

	renderer := &fakeWebRenderer{content: []byte("# markdown")}
	h := newTestHandler(webDeps{renderer: renderer, baseURL: "https://digest.example.com/"})

	rec := postConvert(h, testIssueURL)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%q", rec.Code, rec.Body.String())
	}
	if body := rec.Body.String(); body != "# markdown" {
		t.Fatalf("body = %q, want markdown content", body)
	}
	if len(renderer.gotOpts) != 1 || !renderer.gotOpts[0].IncludeAnalysis || renderer.gotOpts[0].Format != converter.FormatMarkdown {
		t.Fatalf("render opts = %#v", renderer.gotOpts)
	}

	share := rec.Header().Get(shareURLHeader)
	prefix := "https://digest.example.com/share/"
	if !strings.HasPrefix(share, prefix) {
		t.Fatalf("share url = %q, want prefix %q", share, prefix)
	}
	id := strings.TrimPrefix(share, prefix)

	req := httptest.NewRequest(http.MethodGet, "/share/"+id, nil)
	shareRec := httptest.NewRecorder()
	h.ServeHTTP(shareRec, req)
	if shareRec.Code != http.StatusOK {
		t.Fatalf("share status = %d, want 200", shareRec.Code)
	}
	if shareRec.Body.String() != "# markdown" {
		t.Fatalf("share body = %q", shareRec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/history", nil)
	histRec := httptest.NewRecorder()
	h.ServeHTTP(histRec, req)
	if histRec.Code != http.StatusOK {
		t.Fatalf("history status = %d, want 200", histRec.Code)
	}

	var items []map[string]any
	if err := json.Unmarshal(histRec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("history items = %d, want 1", len(items))
	}
	got := items[0]
	if got["id"] != id || got["url"] != testIssueURL || got["title"] != "Issue title" || got["source"] != "github" {
		t.Fatalf("history item = %#v", got)
	}
	if got["comments"] != float64(2) || got["share_url"] != share {
		t.Fatalf("history item = %#v", got)
	}
	if _, ok := got["markdown"]; ok {
		t.Fatal("history listing should not carry the markdown body")
	}
}

func TestShareDerivesBaseFromRequest(t *testing.T) {
	t.Parallel()

	h := newTestHandler(webDeps{})
	rec := postConvert(h, testIssueURL)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if share := rec.Header().Get(shareURLHeader); !strings.HasPrefix(share, "http://example.com/share/") {
		t.Fatalf("share url = %q, want request host", share)
	}
}

func TestConvertStillServesWhenHistorySaveFails(t *testing.T) {
	t.Parallel()

	h := newTestHandler(webDeps{store: failingStore{}})
	rec := postConvert(h, testIssueURL)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if share := rec.Header().Get(shareURLHeader); share != "" {
		t.Fatalf("share url = %q, want none", share)
	}
}

func TestShareUnknownID(t *testing.T) {
	t.Parallel()

	h := newTestHandler(webDeps{})
	req := httptest.NewRequest(http.MethodGet, "/share/does-not-exist", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHistoryEmptyList(t *testing.T) {
	t.Parallel()

	h := newTestHandler(webDeps{})
	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("body = %q, want empty JSON list", body)
	}
}

func TestStreamFlushesAnalysisFragments(t *testing.T) {
	t.Parallel()

	streamer := &fakeStreamer{fragments: []string{"# Summ", "ary\n", "All good."}}
	renderer := &fakeWebRenderer{content: []byte("# markdown\n")}
	h := newTestHandler(webDeps{renderer: renderer, streamer: streamer})

	req := httptest.NewRequest(http.MethodGet, "/stream?url="+url.QueryEscape(testIssueURL), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if want := "# markdown\n\n## Analysis\n\n# Summary\nAll good.\n"; rec.Body.String() != want {
		t.Fatalf("body = %q, want %q", rec.Body.String(), want)
	}
	if !rec.Flushed {
		t.Fatal("stream should flush fragments")
	}
	if len(renderer.gotOpts) != 1 || renderer.gotOpts[0].IncludeAnalysis {
		t.Fatalf("render opts = %#v, want analysis left to the stream", renderer.gotOpts)
	}
	if !strings.Contains(streamer.gotText, "  Comment by carol: second") {
		t.Fatalf("stream transcript = %q", streamer.gotText)
	}
}

func TestStreamDegradesInline(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name     string
		streamer streamer
		want     string
	}{
		{name: "no analyzer", want: "> analysis skipped (analyzer not configured)"},
		{name: "analyzer failure", streamer: &fakeStreamer{err: errors.New("openai status 500")}, want: "> analysis skipped (openai status 500)"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newTestHandler(webDeps{streamer: tc.streamer})
			req := httptest.NewRequest(http.MethodGet, "/stream?url="+url.QueryEscape(testIssueURL), nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.want) {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tc.want)
			}
		})
	}
}

func TestStreamMissingURL(t *testing.T) {
	t.Parallel()

	h := newTestHandler(webDeps{})
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestConvertStatusMapping(t *testing.T) {
	t.Parallel()

	encoded := url.Values{"url": []string{testIssueURL}}.Encode()
	exhausted := &paging.ExhaustedRetriesError{
		Collection: "comments",
		Page:       2,
		Attempts:   5,
		Err:        &paging.StatusError{StatusCode: http.StatusTooManyRequests, Err: errors.New("slow down")},
	}
	exhaustedNotFound := &paging.ExhaustedRetriesError{
		Collection: "item",
		Attempts:   6,
		Err:        &paging.StatusError{StatusCode: http.StatusNotFound, Err: errors.New("gone")},
	}

	tcs := []struct {
		name        string
		method      string
		body        string
		contentType string
		parserErr   error
		fetchErr    error
		empty       bool
		renderErr   error
		wantStatus  int
	}{
		{name: "method not allowed", method: http.MethodGet, wantStatus: http.StatusMethodNotAllowed},
		{name: "invalid form", method: http.MethodPost, body: "url=%zz", contentType: "application/x-www-form-urlencoded", wantStatus: http.StatusBadRequest},
		{name: "missing url", method: http.MethodPost, body: "", contentType: "application/x-www-form-urlencoded", wantStatus: http.StatusBadRequest},
		{name: "invalid url", method: http.MethodPost, body: "url=bad", contentType: "application/x-www-form-urlencoded", parserErr: errors.New("bad url"), wantStatus: http.StatusBadRequest},
		{name: "unsupported source", method: http.MethodPost, body: encoded, contentType: "application/x-www-form-urlencoded", fetchErr: fmt.Errorf("dispatch: %w", source.ErrUnsupportedSource), wantStatus: http.StatusBadRequest},
		{name: "fetch not found", method: http.MethodPost, body: encoded, contentType: "application/x-www-form-urlencoded", fetchErr: fmt.Errorf("fetch: %w", source.ErrNotFound), wantStatus: http.StatusNotFound},
		{name: "http 404", method: http.MethodPost, body: encoded, contentType: "application/x-www-form-urlencoded", fetchErr: &paging.StatusError{StatusCode: http.StatusNotFound, Err: errors.New("gone")}, wantStatus: http.StatusNotFound},
		{name: "no threads", method: http.MethodPost, body: encoded, contentType: "application/x-www-form-urlencoded", empty: true, wantStatus: http.StatusNotFound},
		{name: "fetch auth unauthorized", method: http.MethodPost, body: encoded, contentType: "application/x-www-form-urlencoded", fetchErr: errors.New("http status 401: bad credentials"), wantStatus: http.StatusUnauthorized},
		{name: "fetch auth forbidden", method: http.MethodPost, body: encoded, contentType: "application/x-www-form-urlencoded", fetchErr: errors.New("forbidden"), wantStatus: http.StatusForbidden},
		{name: "fetch rate limit", method: http.MethodPost, body: encoded, contentType: "application/x-www-form-urlencoded", fetchErr: errors.New("http status 403: API rate limit exceeded"), wantStatus: http.StatusTooManyRequests},
		{name: "retries exhausted", method: http.MethodPost, body: encoded, contentType: "application/x-www-form-urlencoded", fetchErr: exhausted, wantStatus: http.StatusServiceUnavailable},
		{name: "retries exhausted on 404", method: http.MethodPost, body: encoded, contentType: "application/x-www-form-urlencoded", fetchErr: exhaustedNotFound, wantStatus: http.StatusNotFound},
		{name: "youtube key missing", method: http.MethodPost, body: encoded, contentType: "application/x-www-form-urlencoded", fetchErr: youtube.ErrMissingAPIKey, wantStatus: http.StatusServiceUnavailable},
		{name: "fetch upstream failure", method: http.MethodPost, body: encoded, contentType: "application/x-www-form-urlencoded", fetchErr: &paging.StatusError{StatusCode: http.StatusBadGateway, Err: errors.New("upstream timeout")}, wantStatus: http.StatusBadGateway},
		{name: "render failure", method: http.MethodPost, body: encoded, contentType: "application/x-www-form-urlencoded", renderErr: errors.New("render failed"), wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fetcher := &fakeWebFetcher{containers: testContainers(), err: tc.fetchErr}
			if tc.empty {
				fetcher.containers = nil
			}
			h := newTestHandler(webDeps{
				parser:   &fakeWebParser{target: testTarget(), err: tc.parserErr},
				fetcher:  fetcher,
				renderer: &fakeWebRenderer{content: []byte("# markdown"), err: tc.renderErr},
			})

			req := httptest.NewRequest(tc.method, "/convert", strings.NewReader(tc.body))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body=%q", rec.Code, tc.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), []string{"--format", "pdf"})
	if err == nil {
		t.Fatal("run should fail on invalid format")
	}
	if !strings.Contains(err.Error(), "format") {
		t.Fatalf("error = %v, want format validation", err)
	}
}

type fakeWebParser struct {
	target source.Target
	err    error
}

func (f *fakeWebParser) Parse(rawURL string) (source.Target, error) {
	_ = rawURL
	if f.err != nil {
		return source.Target{}, f.err
	}
	return f.target, nil
}

type fakeWebFetcher struct {
	containers []thread.Container
	err        error
}

func (f *fakeWebFetcher) Fetch(ctx context.Context, t source.Target) ([]thread.Container, error) {
	_ = ctx
	_ = t
	if f.err != nil {
		return nil, f.err
	}
	return f.containers, nil
}

type fakeWebRenderer struct {
	content []byte
	err     error
	gotOpts []converter.RenderOptions
}

func (f *fakeWebRenderer) Render(ctx context.Context, containers []thread.Container, opts converter.RenderOptions) ([]byte, error) {
	_ = ctx
	_ = containers
	f.gotOpts = append(f.gotOpts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.content, nil
}

type fakeStreamer struct {
	fragments []string
	err       error
	gotText   string
}

func (f *fakeStreamer) StreamAnalyze(_ context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f.gotText = text
		if f.err != nil {
			yield("", f.err)
			return
		}
		for _, frag := range f.fragments {
			if !yield(frag, nil) {
				return
			}
		}
	}
}

type failingStore struct{}

func (failingStore) Save(context.Context, history.Entry) (history.Entry, error) {
	return history.Entry{}, errors.New("store unavailable")
}

func (failingStore) Get(context.Context, string) (history.Entry, error) {
	return history.Entry{}, history.ErrNotFound
}

func (failingStore) List(context.Context) ([]history.Entry, error) {
	return nil, nil
}
