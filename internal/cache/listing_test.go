package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("redis down")
}
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("redis down")
}
func (failingStore) Delete(context.Context, ...string) error { return errors.New("redis down") }

func TestListing_FetchReadsThrough(t *testing.T) {
	ctx := context.Background()
	listing := NewListing(NewMemoryStore(), time.Minute)

	loads := 0
	load := func(context.Context) ([]byte, error) {
		loads++
		return []byte(`[{"id":1}]`), nil
	}

	first, hit, err := listing.Fetch(ctx, ListKey, load)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := listing.Fetch(ctx, ListKey, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, loads)

	listing.InvalidateListing(ctx)
	_, hit, err = listing.Fetch(ctx, ListKey, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, loads)
}

func TestListing_InvalidateAllDropsBothKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	listing := NewListing(store, time.Minute)

	require.NoError(t, store.Set(ctx, ListKey, []byte("list"), time.Minute))
	require.NoError(t, store.Set(ctx, DetailKey(4), []byte("detail"), time.Minute))
	require.NoError(t, store.Set(ctx, DetailKey(5), []byte("other"), time.Minute))

	listing.InvalidateAll(ctx, 4)

	_, err := store.Get(ctx, ListKey)
	assert.ErrorIs(t, err, ErrMiss)
	_, err = store.Get(ctx, DetailKey(4))
	assert.ErrorIs(t, err, ErrMiss)
	_, err = store.Get(ctx, DetailKey(5))
	assert.NoError(t, err)
}

func TestListing_DegradesWhenStoreFails(t *testing.T) {
	listing := NewListing(failingStore{}, 0)

	payload, hit, err := listing.Fetch(context.Background(), ListKey, func(context.Context) ([]byte, error) {
		return []byte("fresh"), nil
	})

	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte("fresh"), payload)
	listing.InvalidateListing(context.Background())
}

func TestListing_PropagatesLoadErrors(t *testing.T) {
	boom := errors.New("db down")
	listing := NewListing(NewMemoryStore(), time.Minute)

	_, _, err := listing.Fetch(context.Background(), ListKey, func(context.Context) ([]byte, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}
