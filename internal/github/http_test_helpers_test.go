package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/johnqtcg/threaddigest/internal/paging"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// newTestHTTPClient serves requests from fn. Responses get their Request set
// because go-github error messages read it.
func newTestHTTPClient(fn roundTripFunc) *http.Client {
	return &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			resp, err := fn(req)
			if resp != nil && resp.Request == nil {
				resp.Request = req
			}
			return resp, err
		}),
	}
}

func jsonHTTPResponse(statusCode int, payload any) (*http.Response, error) {
	buf := bytes.NewBuffer(nil)
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return nil, err
	}
	return &http.Response{
		StatusCode: statusCode,
		Header: http.Header{
			"Content-Type": []string{"application/json"},
		},
		Body: io.NopCloser(buf),
	}, nil
}

func textHTTPResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func mustJSONResponse(t *testing.T, statusCode int, payload any) *http.Response {
	t.Helper()
	resp, err := jsonHTTPResponse(statusCode, payload)
	if err != nil {
		t.Fatalf("build json response: %v", err)
	}
	return resp
}

func notFoundResponse(path string) *http.Response {
	return textHTTPResponse(http.StatusNotFound, fmt.Sprintf(`{"message":"not found: %s"}`, path))
}

func noSleepPager() *paging.Pager {
	return paging.NewPager(paging.Config{Sleep: func(context.Context, time.Duration) error { return nil }})
}

type graphQLCall struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func decodeGraphQLCall(t *testing.T, r *http.Request) graphQLCall {
	t.Helper()
	var call graphQLCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		t.Fatalf("decode graphql request: %v", err)
	}
	return call
}

func graphQLData(t *testing.T, data any) *http.Response {
	t.Helper()
	return mustJSONResponse(t, http.StatusOK, map[string]any{"data": data})
}

func newTestFetcher(t *testing.T, clientHTTP *http.Client, mutate func(*Config)) *Fetcher {
	t.Helper()
	cfg := Config{
		HTTPClient:      clientHTTP,
		RESTBaseURL:     "https://api.test/",
		GraphQLURL:      "https://api.test/graphql",
		IncludeComments: true,
		Pager:           noSleepPager(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f, err := NewFetcher(cfg)
	if err != nil {
		t.Fatalf("NewFetcher error = %v, want nil", err)
	}
	return f
}

func commentIDs(comments []thread.Comment) []string {
	out := make([]string, 0, len(comments))
	for _, c := range comments {
		out = append(out, c.ID)
	}
	return out
}
