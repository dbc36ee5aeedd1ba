package github

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/rs/zerolog"

	"github.com/johnqtcg/threaddigest/internal/paging"
)

// Repository collection names accepted in Config.Collections.
const (
	CollectionIssues       = "issues"
	CollectionPullRequests = "pull_requests"
	CollectionDiscussions  = "discussions"
)

// DefaultCollections are fetched for a repository target when none are configured.
var DefaultCollections = []string{CollectionIssues, CollectionPullRequests, CollectionDiscussions}

// Config configures the GitHub fetcher client.
type Config struct {
	Token       string
	HTTPClient  *http.Client
	RESTBaseURL string
	GraphQLURL  string

	// IncludeComments disables comment fetching when false.
	IncludeComments bool
	// Collections selects the repository collections to fetch.
	Collections []string
	// PageLimit bounds every repository collection; 0 means unbounded.
	PageLimit int

	Pager  *paging.Pager
	Logger *zerolog.Logger
}

// WithDefaults fills missing optional values with package defaults.
func (c Config) WithDefaults() Config {
	if len(c.Collections) == 0 {
		c.Collections = DefaultCollections
	}
	if c.Pager == nil {
		c.Pager = paging.NewPager(paging.Config{Logger: c.Logger})
	}
	return c
}

// NewFetcher constructs a GitHub fetcher.
func NewFetcher(cfg Config) (*Fetcher, error) {
	cfg = cfg.WithDefaults()
	for _, name := range cfg.Collections {
		if !slices.Contains(DefaultCollections, name) {
			return nil, fmt.Errorf("unknown repository collection %q", name)
		}
	}
	if cfg.PageLimit < 0 {
		return nil, fmt.Errorf("invalid PageLimit %d", cfg.PageLimit)
	}

	restClient, err := newRESTClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create REST client: %w", err)
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	return &Fetcher{
		cfg:   cfg,
		rest:  restClient,
		gql:   newGraphQLClient(cfg),
		pager: cfg.Pager,
		log:   log.With().Str("source", "github").Logger(),
	}, nil
}
