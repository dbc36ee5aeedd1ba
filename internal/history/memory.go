package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore implements Store in process memory. Entries expire after the
// configured TTL.
type MemoryStore struct {
	cache *gocache.Cache
	ttl   time.Duration
	now   func() time.Time
	newID func() string
}

// NewMemoryStore creates an in-memory store. A non-positive ttl uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		cache: gocache.New(ttl, ttl/2),
		ttl:   ttl,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Save assigns an id and timestamps to e and stores it.
func (s *MemoryStore) Save(ctx context.Context, e Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, fmt.Errorf("save history entry: %w", err)
	}
	if e.ID == "" {
		e.ID = s.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	e.ExpiresAt = e.CreatedAt.Add(s.ttl)
	s.cache.Set(e.ID, e, s.ttl)
	return e, nil
}

// Get returns the entry stored under id.
func (s *MemoryStore) Get(ctx context.Context, id string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, fmt.Errorf("get history entry: %w", err)
	}
	v, ok := s.cache.Get(id)
	if !ok {
		return Entry{}, fmt.Errorf("get history entry %q: %w", id, ErrNotFound)
	}
	return v.(Entry), nil
}

// List returns the live entries, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	items := s.cache.Items()
	out := make([]Entry, 0, len(items))
	for _, item := range items {
		e, ok := item.Object.(Entry)
		if !ok {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
