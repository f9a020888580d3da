package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley/pkg/domain"
)

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewStore(client, "agent-a", opts...)
	require.NoError(t, err)
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.True(t, errors.Is(err, domain.ErrTokenNotFound), "got %v", err)

	require.NoError(t, store.Store(ctx, "page-123"))
	token, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "page-123", token)

	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	assert.True(t, errors.Is(err, domain.ErrTokenNotFound), "got %v", err)
}

func TestClearIsIdempotent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	assert.NoError(t, store.Clear(ctx))
	assert.NoError(t, store.Clear(ctx))
}

func TestPrefixSeparatesAgents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	a, err := NewStore(client, "agent-a", WithPrefix("p1"))
	require.NoError(t, err)
	b, err := NewStore(client, "agent-a", WithPrefix("p2"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.Store(ctx, "page-a"))
	require.NoError(t, b.Store(ctx, "page-b"))

	tokenA, err := a.Load(ctx)
	require.NoError(t, err)
	tokenB, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "page-a", tokenA)
	assert.Equal(t, "page-b", tokenB)
}

func TestNewStoreValidatesArguments(t *testing.T) {
	_, err := NewStore(nil, "agent-a")
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	_, err = NewStore(client, "")
	assert.Error(t, err)
}
