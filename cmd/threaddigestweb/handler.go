package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/johnqtcg/threaddigest/internal/converter"
	gh "github.com/johnqtcg/threaddigest/internal/github"
	"github.com/johnqtcg/threaddigest/internal/history"
	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/parser"
	"github.com/johnqtcg/threaddigest/internal/source"
	"github.com/johnqtcg/threaddigest/internal/thread"
	"github.com/johnqtcg/threaddigest/internal/youtube"
)

const shareURLHeader = "X-Share-URL"

// streamer yields analysis fragments as they are produced.
type streamer interface {
	StreamAnalyze(ctx context.Context, text string) iter.Seq2[string, error]
}

type webDeps struct {
	parser   parser.URLParser
	fetcher  source.Fetcher
	renderer converter.Renderer
	streamer streamer
	store    history.Store
	// baseURL prefixes share links. Empty derives it from the request.
	baseURL     string
	corsOrigins []string
	log         zerolog.Logger
}

type webHandler struct {
	parser   parser.URLParser
	fetcher  source.Fetcher
	renderer converter.Renderer
	streamer streamer
	store    history.Store
	baseURL  string
	log      zerolog.Logger
}

type historyItem struct {
	history.Entry
	ShareURL string `json:"share_url"`
}

func newWebHandler(deps webDeps) http.Handler {
	store := deps.store
	if store == nil {
		store = history.NewMemoryStore(history.DefaultTTL)
	}

	h := &webHandler{
		parser:   deps.parser,
		fetcher:  deps.fetcher,
		renderer: deps.renderer,
		streamer: deps.streamer,
		store:    store,
		baseURL:  deps.baseURL,
		log:      deps.log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, accessLog(h.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{shareURLHeader},
		MaxAge:         300,
	}))
	r.Get("/healthz", h.handleHealth)
	r.Post("/convert", h.handleConvert)
	r.Get("/stream", h.handleStream)
	r.Get("/history", h.handleHistory)
	r.Get("/share/{id}", h.handleShare)
	return r
}

func accessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("request done")
		})
	}
}

func (h *webHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte("ok\n")); err != nil {
		h.log.Debug().Err(err).Msg("write health response")
	}
}

// handleConvert fetches one URL, renders it as markdown and stores the result
// for sharing.
func (h *webHandler) handleConvert(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	rawURL := strings.TrimSpace(r.FormValue("url"))
	if rawURL == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}

	target, containers, ok := h.fetch(w, r, rawURL)
	if !ok {
		return
	}

	markdown, err := h.renderer.Render(r.Context(), containers, converter.RenderOptions{
		Format:          converter.FormatMarkdown,
		IncludeComments: true,
		IncludeAnalysis: true,
		SourceURL:       target.URL,
	})
	if err != nil {
		h.log.Error().Err(err).Str("target", target.String()).Msg("render failed")
		http.Error(w, "render markdown failed", http.StatusInternalServerError)
		return
	}

	entry, err := h.store.Save(r.Context(), newEntry(target, containers, markdown))
	if err != nil {
		h.log.Warn().Err(err).Str("target", target.String()).Msg("save history failed")
	} else {
		w.Header().Set(shareURLHeader, history.ShareURL(h.shareBase(r), entry.ID))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write(markdown); err != nil {
		h.log.Debug().Err(err).Msg("write convert response")
	}
}

// handleStream writes the rendered thread first and then flushes every
// analysis fragment as soon as it arrives.
func (h *webHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if rawURL == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}

	target, containers, ok := h.fetch(w, r, rawURL)
	if !ok {
		return
	}

	markdown, err := h.renderer.Render(r.Context(), containers, converter.RenderOptions{
		Format:          converter.FormatMarkdown,
		IncludeComments: true,
		SourceURL:       target.URL,
	})
	if err != nil {
		http.Error(w, "render markdown failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	rc := http.NewResponseController(w)
	send := func(s string) bool {
		if _, err := w.Write([]byte(s)); err != nil {
			return false
		}
		if err := rc.Flush(); err != nil {
			h.log.Debug().Err(err).Msg("flush stream")
		}
		return true
	}

	if !send(string(markdown)) || !send("\n## Analysis\n\n") {
		return
	}
	if h.streamer == nil {
		send("> analysis skipped (analyzer not configured)\n")
		return
	}

	for frag, err := range h.streamer.StreamAnalyze(r.Context(), thread.Transcript(containers)) {
		if err != nil {
			// Headers are gone; report inline.
			h.log.Warn().Err(err).Str("target", target.String()).Msg("streamed analysis failed")
			send(fmt.Sprintf("\n> analysis skipped (%v)\n", err))
			return
		}
		if !send(frag) {
			return
		}
	}
	send("\n")
}

func (h *webHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.List(r.Context())
	if err != nil {
		http.Error(w, "list history failed", http.StatusInternalServerError)
		return
	}

	base := h.shareBase(r)
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyItem{Entry: e, ShareURL: history.ShareURL(base, e.ID)})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(items); err != nil {
		h.log.Debug().Err(err).Msg("write history response")
	}
}

func (h *webHandler) handleShare(w http.ResponseWriter, r *http.Request) {
	entry, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			http.Error(w, "share link not found or expired", http.StatusNotFound)
			return
		}
		http.Error(w, "read history failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	if _, err := w.Write([]byte(entry.Markdown)); err != nil {
		h.log.Debug().Err(err).Msg("write share response")
	}
}

// fetch parses and fetches rawURL, writing the error response itself when it
// fails.
func (h *webHandler) fetch(w http.ResponseWriter, r *http.Request, rawURL string) (source.Target, []thread.Container, bool) {
	target, err := h.parser.Parse(rawURL)
	if err != nil {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return source.Target{}, nil, false
	}

	containers, err := h.fetcher.Fetch(r.Context(), target)
	if err != nil {
		h.log.Warn().Err(err).Str("target", target.String()).Msg("fetch failed")
		http.Error(w, "fetch thread failed", fetchHTTPStatusFromError(err))
		return source.Target{}, nil, false
	}
	if len(containers) == 0 {
		http.Error(w, "no threads found", http.StatusNotFound)
		return source.Target{}, nil, false
	}
	return target, containers, true
}

func (h *webHandler) shareBase(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func newEntry(target source.Target, containers []thread.Container, markdown []byte) history.Entry {
	e := history.Entry{
		URL:        target.URL,
		Source:     string(target.Source),
		Containers: len(containers),
		Markdown:   string(markdown),
	}
	if len(containers) == 1 {
		e.Title = containers[0].Title
	} else {
		e.Title = fmt.Sprintf("Digest of %d threads", len(containers))
	}
	for _, c := range containers {
		e.Comments += len(c.Comments)
	}
	return e
}

func fetchHTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if status, ok := fetchStatusFromClassifiedError(err); ok {
		return status
	}
	if status, ok := fetchStatusFromWrappedStatus(err); ok {
		return status
	}

	return http.StatusBadGateway
}

func fetchStatusFromClassifiedError(err error) (int, bool) {
	// A page that kept answering 404 until the budget ran out is still missing.
	switch {
	case source.IsNotFound(err):
		return http.StatusNotFound, true
	case errors.Is(err, paging.ErrExhaustedRetries):
		return http.StatusServiceUnavailable, true
	case errors.Is(err, source.ErrUnsupportedSource):
		return http.StatusBadRequest, true
	case errors.Is(err, youtube.ErrMissingAPIKey):
		return http.StatusServiceUnavailable, true
	case gh.IsRateLimitError(err):
		return http.StatusTooManyRequests, true
	case gh.IsAuthError(err):
		return authHTTPStatus(err), true
	}
	return 0, false
}

func authHTTPStatus(err error) int {
	if status, ok := paging.StatusCode(err); ok {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return status
		}
	}

	text := strings.ToLower(err.Error())
	if strings.Contains(text, "status 403") || strings.Contains(text, "forbidden") {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

func fetchStatusFromWrappedStatus(err error) (int, bool) {
	status, ok := paging.StatusCode(err)
	if !ok {
		return 0, false
	}

	switch status {
	case http.StatusTooManyRequests:
		return http.StatusTooManyRequests, true
	case http.StatusUnauthorized, http.StatusForbidden:
		return status, true
	default:
		if status >= 500 && status <= 599 {
			return http.StatusBadGateway, true
		}
		return 0, false
	}
}
