package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Value int `json:"value"`
}

func newTestCache(t *testing.T, ttl time.Duration) (*Versioned, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, "test", ttl), srv
}

func TestVersionedFetchJSONCachesUntilBump(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return snapshot{Value: calls}, nil
	}

	var got snapshot
	require.NoError(t, c.FetchJSON(ctx, &got, loader, "stock", "all"))
	require.Equal(t, 1, got.Value)
	require.NoError(t, c.FetchJSON(ctx, &got, loader, "stock", "all"))
	require.Equal(t, 1, got.Value)
	require.Equal(t, 1, calls)

	require.NoError(t, c.Bump(ctx))
	require.NoError(t, c.FetchJSON(ctx, &got, loader, "stock", "all"))
	require.Equal(t, 2, got.Value)
}

func TestVersionedEntriesExpireAfterTTL(t *testing.T) {
	c, srv := newTestCache(t, 2*time.Second)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return snapshot{Value: calls}, nil
	}

	var got snapshot
	require.NoError(t, c.FetchJSON(ctx, &got, loader, "k"))
	srv.FastForward(3 * time.Second)
	require.NoError(t, c.FetchJSON(ctx, &got, loader, "k"))
	require.Equal(t, 2, calls)
}

func TestVersionedDisabledCallsLoaderEveryTime(t *testing.T) {
	c := NewVersioned(nil, "test", time.Minute)
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return snapshot{Value: calls}, nil
	}
	var got snapshot
	require.NoError(t, c.FetchJSON(context.Background(), &got, loader, "k"))
	require.NoError(t, c.FetchJSON(context.Background(), &got, loader, "k"))
	require.Equal(t, 2, calls)
	require.NoError(t, c.Bump(context.Background()))
}

func TestVersionedLoaderErrorPropagates(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	boom := errors.New("boom")
	var got snapshot
	err := c.FetchJSON(context.Background(), &got, func(context.Context) (any, error) { return nil, boom }, "k")
	require.ErrorIs(t, err, boom)
}
