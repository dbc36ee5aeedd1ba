package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	goGithub "github.com/google/go-github/v72/github"
	"golang.org/x/oauth2"

	"github.com/johnqtcg/threaddigest/internal/paging"
)

const (
	defaultRESTBaseURL = "https://api.github.com/"
	restPerPage        = 100
)

type restClient struct {
	client *goGithub.Client
}

func newRESTClient(cfg Config) (*restClient, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		baseTransport := httpClient.Transport
		if baseTransport == nil {
			baseTransport = http.DefaultTransport
		}
		httpClient = &http.Client{
			Transport: &oauth2.Transport{
				Source: ts,
				Base:   baseTransport,
			},
			Timeout: httpClient.Timeout,
		}
	}

	client := goGithub.NewClient(httpClient)

	baseURL := cfg.RESTBaseURL
	if baseURL == "" {
		baseURL = defaultRESTBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse REST base URL %q: %w", baseURL, err)
	}
	client.BaseURL = parsed

	return &restClient{client: client}, nil
}

func (c *restClient) getIssue(ctx context.Context, owner, repo string, number int) (*goGithub.Issue, error) {
	issue, resp, err := c.client.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, wrapRESTError("get issue", resp, err)
	}
	return issue, nil
}

func (c *restClient) getPullRequest(ctx context.Context, owner, repo string, number int) (*goGithub.PullRequest, error) {
	pr, resp, err := c.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, wrapRESTError("get pull request", resp, err)
	}
	return pr, nil
}

func (c *restClient) issueComments(owner, repo string, number int) paging.PageFunc[*goGithub.IssueComment] {
	return restPages("list issue comments", func(ctx context.Context, opts goGithub.ListOptions) ([]*goGithub.IssueComment, *goGithub.Response, error) {
		return c.client.Issues.ListComments(ctx, owner, repo, number, &goGithub.IssueListCommentsOptions{ListOptions: opts})
	})
}

func (c *restClient) pullRequestReviews(owner, repo string, number int) paging.PageFunc[*goGithub.PullRequestReview] {
	return restPages("list pull request reviews", func(ctx context.Context, opts goGithub.ListOptions) ([]*goGithub.PullRequestReview, *goGithub.Response, error) {
		return c.client.PullRequests.ListReviews(ctx, owner, repo, number, &opts)
	})
}

func (c *restClient) pullRequestComments(owner, repo string, number int) paging.PageFunc[*goGithub.PullRequestComment] {
	return restPages("list pull request comments", func(ctx context.Context, opts goGithub.ListOptions) ([]*goGithub.PullRequestComment, *goGithub.Response, error) {
		return c.client.PullRequests.ListComments(ctx, owner, repo, number, &goGithub.PullRequestListCommentsOptions{ListOptions: opts})
	})
}

// restPages adapts a go-github list call to a paging.PageFunc. The cursor is
// the decimal page number from the Link header.
func restPages[T any](op string, list func(ctx context.Context, opts goGithub.ListOptions) ([]T, *goGithub.Response, error)) paging.PageFunc[T] {
	return func(ctx context.Context, after *string) (paging.Page[T], error) {
		page := 1
		if after != nil {
			n, err := strconv.Atoi(*after)
			if err != nil || n < 1 {
				return paging.Page[T]{}, fmt.Errorf("%s: page cursor %q: %w", op, *after, paging.ErrInvalidCursor)
			}
			page = n
		}

		items, resp, err := list(ctx, goGithub.ListOptions{Page: page, PerPage: restPerPage})
		if err != nil {
			return paging.Page[T]{}, wrapRESTError(op, resp, err)
		}
		if resp == nil || resp.NextPage == 0 {
			return paging.Page[T]{Items: items}, nil
		}
		return paging.Page[T]{Items: items, Cursor: paging.CursorOf(true, strconv.Itoa(resp.NextPage))}, nil
	}
}

func wrapRESTError(op string, resp *goGithub.Response, err error) error {
	if err == nil {
		return nil
	}

	if resp != nil && resp.Response != nil {
		return fmt.Errorf("%s: %w", op, &paging.StatusError{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Err:        err,
		})
	}

	var respErr *goGithub.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return fmt.Errorf("%s: %w", op, &paging.StatusError{
			StatusCode: respErr.Response.StatusCode,
			Header:     respErr.Response.Header.Clone(),
			Err:        err,
		})
	}

	return fmt.Errorf("%s: %w", op, err)
}
