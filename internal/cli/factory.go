package cli

import (
	"context"
	"fmt"
	"iter"

	"github.com/rs/zerolog"

	"github.com/johnqtcg/threaddigest/internal/analysis"
	"github.com/johnqtcg/threaddigest/internal/bluesky"
	"github.com/johnqtcg/threaddigest/internal/config"
	"github.com/johnqtcg/threaddigest/internal/converter"
	gh "github.com/johnqtcg/threaddigest/internal/github"
	"github.com/johnqtcg/threaddigest/internal/hackernews"
	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/reddit"
	"github.com/johnqtcg/threaddigest/internal/source"
	"github.com/johnqtcg/threaddigest/internal/thread"
	"github.com/johnqtcg/threaddigest/internal/youtube"
)

// AnalysisEngine runs chunked analysis over a transcript. *analysis.Driver
// implements it.
type AnalysisEngine interface {
	converter.Analyzer
	StreamAnalyze(ctx context.Context, text string) iter.Seq2[string, error]
}

// FetcherFactory creates the source fetcher from runtime config.
type FetcherFactory interface {
	New(cfg config.Config, log zerolog.Logger) (source.Fetcher, error)
}

// AnalyzerFactory creates the analysis engine, or nil when analysis cannot run.
type AnalyzerFactory interface {
	New(cfg config.Config, log zerolog.Logger) AnalysisEngine
}

// RendererFactory creates renderer instances from runtime config.
type RendererFactory interface {
	New(cfg config.Config, analyzer converter.Analyzer) converter.Renderer
}

// NewSourceFetcher builds a dispatcher over every supported source. All
// sources share one pager, so retry policy is uniform.
func NewSourceFetcher(cfg config.Config, log zerolog.Logger) (*source.Mux, error) {
	pager := paging.NewPager(paging.Config{
		MaxAttempts: cfg.Fetch.MaxAttempts,
		MaxPages:    cfg.Fetch.MaxPages,
		FailFast:    cfg.Fetch.FailFast,
		Governor:    paging.NewGovernor(cfg.Fetch.FallbackDelay),
		Logger:      &log,
	})

	ghFetcher, err := gh.NewFetcher(gh.Config{
		Token:           cfg.GitHub.Token,
		RESTBaseURL:     cfg.GitHub.RESTURL,
		GraphQLURL:      cfg.GitHub.GraphQLURL,
		IncludeComments: cfg.Fetch.IncludeComments,
		Collections:     cfg.Fetch.Collections,
		Pager:           pager,
		Logger:          &log,
	})
	if err != nil {
		return nil, fmt.Errorf("create github fetcher: %w", err)
	}

	mux := source.NewMux()
	mux.Handle(thread.SourceGitHub, ghFetcher)
	mux.Handle(thread.SourceReddit, reddit.NewFetcher(reddit.Config{
		BaseURL:         cfg.Reddit.BaseURL,
		UserAgent:       cfg.Reddit.UserAgent,
		IncludeComments: cfg.Fetch.IncludeComments,
		ListingPages:    cfg.Reddit.ListingPages,
		Pager:           pager,
		Logger:          &log,
	}))
	mux.Handle(thread.SourceHackerNews, hackernews.NewFetcher(hackernews.Config{
		BaseURL:         cfg.HackerNews.BaseURL,
		IncludeComments: cfg.Fetch.IncludeComments,
		Pager:           pager,
		Logger:          &log,
	}))
	mux.Handle(thread.SourceBluesky, bluesky.NewFetcher(bluesky.Config{
		BaseURL:         cfg.Bluesky.BaseURL,
		IncludeComments: cfg.Fetch.IncludeComments,
		Pager:           pager,
		Logger:          &log,
	}))
	mux.Handle(thread.SourceYouTube, youtube.NewFetcher(youtube.Config{
		APIKey:          cfg.YouTube.APIKey,
		BaseURL:         cfg.YouTube.BaseURL,
		IncludeComments: cfg.Fetch.IncludeComments,
		Pager:           pager,
		Logger:          &log,
	}))
	return mux, nil
}

// NewAnalysisEngine returns a driver over the OpenAI analyzer, or nil when no
// API key is configured.
func NewAnalysisEngine(cfg config.Config, log zerolog.Logger) AnalysisEngine {
	if cfg.OpenAI.APIKey == "" {
		return nil
	}
	analyzer := analysis.NewOpenAIAnalyzer(analysis.OpenAIConfig{
		APIKey:   cfg.OpenAI.APIKey,
		BaseURL:  cfg.OpenAI.BaseURL,
		Model:    cfg.OpenAI.Model,
		Language: cfg.OpenAI.Language,
	})
	return analysis.NewDriver(analyzer, analysis.Config{
		Budget:        cfg.Analysis.Budget,
		Concurrency:   cfg.Analysis.Concurrency,
		FragmentSize:  cfg.Analysis.FragmentSize,
		FragmentDelay: cfg.Analysis.FragmentDelay,
		Logger:        &log,
	})
}

type defaultFetcherFactory struct{}

func (f defaultFetcherFactory) New(cfg config.Config, log zerolog.Logger) (source.Fetcher, error) {
	_ = f
	mux, err := NewSourceFetcher(cfg, log)
	if err != nil {
		return nil, err
	}
	return mux, nil
}

type defaultAnalyzerFactory struct{}

func (f defaultAnalyzerFactory) New(cfg config.Config, log zerolog.Logger) AnalysisEngine {
	_ = f
	return NewAnalysisEngine(cfg, log)
}

type defaultRendererFactory struct{}

func (f defaultRendererFactory) New(cfg config.Config, analyzer converter.Analyzer) converter.Renderer {
	_ = f
	_ = cfg
	return converter.NewRenderer(analyzer)
}
