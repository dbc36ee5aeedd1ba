// Package history records converted digests so they can be listed and shared.
package history

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// DefaultTTL is how long a stored digest stays shareable.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned for unknown or expired share ids.
var ErrNotFound = errors.New("history entry not found")

// Entry is one converted digest.
type Entry struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Source     string    `json:"source"`
	Containers int       `json:"containers"`
	Comments   int       `json:"comments"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Markdown   string    `json:"-"`
}

// Store is the key-value collaborator holding digests.
type Store interface {
	Save(ctx context.Context, e Entry) (Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
	List(ctx context.Context) ([]Entry, error)
}

// ShareURL joins the public base URL and the share route for id.
func ShareURL(base, id string) string {
	return strings.TrimRight(base, "/") + "/share/" + url.PathEscape(id)
}
