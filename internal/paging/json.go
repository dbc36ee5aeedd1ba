package paging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseBytes = 32 << 20

// Response is a successful raw page response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// RequestFunc issues the request for the page after the given cursor.
type RequestFunc func(ctx context.Context, after *string) (Response, error)

// Send executes req and reads the body. Non-2xx responses become a
// *StatusError carrying the response headers and a short body excerpt.
func Send(client *http.Client, req *http.Request) (Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("execute %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
		return Response{}, &StatusError{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, fmt.Errorf("read response body: %w", err)
	}
	return Response{StatusCode: resp.StatusCode, Header: resp.Header.Clone(), Body: body}, nil
}

// JSONPages builds a PageFunc from a request, a typed page schema P, an
// extraction function returning the page's nodes and cursor (ok=false when
// the collection field is absent), and a node-mapping function.
func JSONPages[P, N, T any](request RequestFunc, extract func(P) ([]N, Cursor, bool), mapNode func(N) T) PageFunc[T] {
	return func(ctx context.Context, after *string) (Page[T], error) {
		resp, err := request(ctx, after)
		if err != nil {
			return Page[T]{}, err
		}

		var payload P
		if err := json.Unmarshal(resp.Body, &payload); err != nil {
			return Page[T]{}, fmt.Errorf("decode page payload: %w", err)
		}

		nodes, cursor, ok := extract(payload)
		if !ok {
			return Page[T]{Missing: true}, nil
		}

		items := make([]T, 0, len(nodes))
		for _, n := range nodes {
			items = append(items, mapNode(n))
		}
		return Page[T]{Items: items, Cursor: cursor}, nil
	}
}

// Single wraps a one-shot fetch as a single-page collection function.
func Single[T any](fetch func(ctx context.Context) ([]T, error)) PageFunc[T] {
	return func(ctx context.Context, _ *string) (Page[T], error) {
		items, err := fetch(ctx)
		if err != nil {
			return Page[T]{}, err
		}
		return Page[T]{Items: items}, nil
	}
}
