package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/johnqtcg/threaddigest/internal/paging"
)

const defaultGraphQLURL = "https://api.github.com/graphql"

type graphQLClient struct {
	httpClient *http.Client
	endpoint   string
	token      string
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage       `json:"data"`
	Errors []graphQLErrorMessage `json:"errors"`
}

func newGraphQLClient(cfg Config) *graphQLClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	endpoint := cfg.GraphQLURL
	if endpoint == "" {
		endpoint = defaultGraphQLURL
	}

	return &graphQLClient{
		httpClient: httpClient,
		endpoint:   endpoint,
		token:      cfg.Token,
	}
}

// request returns a paging.RequestFunc that runs query with variables and
// the page cursor bound to $after. The response body is the data object.
func (c *graphQLClient) request(query string, variables map[string]any) paging.RequestFunc {
	return func(ctx context.Context, after *string) (paging.Response, error) {
		vars := maps.Clone(variables)
		if vars == nil {
			vars = map[string]any{}
		}
		if after != nil {
			vars["after"] = *after
		}
		data, header, err := c.queryRaw(ctx, query, vars)
		if err != nil {
			return paging.Response{}, err
		}
		return paging.Response{StatusCode: http.StatusOK, Header: header, Body: data}, nil
	}
}

func (c *graphQLClient) queryRaw(ctx context.Context, query string, variables map[string]any) (json.RawMessage, http.Header, error) {
	requestBody, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, nil, fmt.Errorf("create graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := paging.Send(c.httpClient, req)
	if err != nil {
		return nil, nil, fmt.Errorf("graphql request: %w", err)
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if err := classifyGraphQLErrors(envelope.Errors, resp.Header); err != nil {
		return nil, nil, err
	}
	return envelope.Data, resp.Header, nil
}

// classifyGraphQLErrors turns a GraphQL error list into a Go error. Rate
// limiting becomes a retryable 429; NOT_FOUND is left to the page schema,
// whose missing field ends pagination.
func classifyGraphQLErrors(errs []graphQLErrorMessage, header http.Header) error {
	if len(errs) == 0 {
		return nil
	}
	for _, e := range errs {
		if e.Type == "RATE_LIMITED" || paging.LooksLikeRateLimit(fmt.Errorf("%s", e.Message)) {
			return &paging.StatusError{
				StatusCode: http.StatusTooManyRequests,
				Header:     header,
				Err:        fmt.Errorf("graphql: %s", e.Message),
			}
		}
	}
	for _, e := range errs {
		if e.Type != "NOT_FOUND" {
			return fmt.Errorf("graphql returned errors: %s", joinMessages(errs))
		}
	}
	return nil
}

func joinMessages(errs []graphQLErrorMessage) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}
