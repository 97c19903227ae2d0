package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// ListKey holds the default story listing (first page, no filters).
const ListKey = "stories:list"

const DefaultTTL = 300 * time.Second

// DetailKey is the cache key for a single story.
func DetailKey(storyID uint) string {
	return fmt.Sprintf("stories:detail:%d", storyID)
}

// Listing is a read-through cache over serialized story payloads.
// Invalidation deletes keys; the next read repopulates them.
type Listing struct {
	store Store
	ttl   time.Duration
}

func NewListing(store Store, ttl time.Duration) *Listing {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Listing{store: store, ttl: ttl}
}

// Fetch returns the payload under key, calling load on a miss and caching
// its result. hit reports whether the store was bypassed. Cache failures
// degrade to a load; they never fail the read.
func (l *Listing) Fetch(ctx context.Context, key string, load func(context.Context) ([]byte, error)) (payload []byte, hit bool, err error) {
	payload, err = l.store.Get(ctx, key)
	if err == nil {
		return payload, true, nil
	}
	if !errors.Is(err, ErrMiss) {
		log.WithError(err).WithField("key", key).Warn("cache read failed")
	}

	payload, err = load(ctx)
	if err != nil {
		return nil, false, err
	}

	if err := l.store.Set(ctx, key, payload, l.ttl); err != nil {
		log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
	return payload, false, nil
}

// InvalidateListing drops the cached listing.
func (l *Listing) InvalidateListing(ctx context.Context) {
	l.delete(ctx, ListKey)
}

// InvalidateStory drops a story's detail entry.
func (l *Listing) InvalidateStory(ctx context.Context, storyID uint) {
	l.delete(ctx, DetailKey(storyID))
}

// InvalidateAll drops the listing and the story's detail entry together.
func (l *Listing) InvalidateAll(ctx context.Context, storyID uint) {
	l.delete(ctx, ListKey, DetailKey(storyID))
}

func (l *Listing) delete(ctx context.Context, keys ...string) {
	if err := l.store.Delete(ctx, keys...); err != nil {
		log.WithError(err).WithField("keys", keys).Warn("cache invalidation failed")
	}
}
