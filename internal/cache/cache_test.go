package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*RedisProvider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	p, err := NewRedisProvider(RedisConfig{Addr: mr.Addr(), KeyPrefix: "fw:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, mr
}

func TestRedisProviderRoundTrip(t *testing.T) {
	p, mr := setupRedis(t)
	ctx := context.Background()

	_, err := p.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, p.Set(ctx, "k", []byte("v"), time.Minute))
	assert.True(t, mr.Exists("fw:k"), "keys are prefixed")

	got, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	mr.FastForward(2 * time.Minute)
	_, err = p.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, p.Set(ctx, "gone", []byte("x"), 0))
	require.NoError(t, p.Del(ctx, "gone"))
	_, err = p.Get(ctx, "gone")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestNewRedisProviderFailsFast(t *testing.T) {
	_, err := NewRedisProvider(RedisConfig{})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = NewRedisProvider(RedisConfig{Addr: addr, DialTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}

func TestLocalProviderTTL(t *testing.T) {
	p := NewLocalProvider(2, time.Hour)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, p.Set(ctx, "short", []byte("1"), time.Second))
	got, err := p.Get(ctx, "short")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	now = now.Add(2 * time.Second)
	_, err = p.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestLocalProviderEvictsLeastRecent(t *testing.T) {
	p := NewLocalProvider(2, time.Hour)
	ctx := context.Background()
	require.NoError(t, p.Set(ctx, "a", []byte("a"), 0))
	require.NoError(t, p.Set(ctx, "b", []byte("b"), 0))
	require.NoError(t, p.Set(ctx, "c", []byte("c"), 0))

	_, err := p.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 2, p.Len())

	require.NoError(t, p.Del(ctx, "b"))
	require.NoError(t, p.Close())
	assert.Zero(t, p.Len())
}

func TestTieredBackfillsLocal(t *testing.T) {
	remote, _ := setupRedis(t)
	local := NewLocalProvider(16, time.Minute)
	tiered := NewTiered(local, remote, time.Minute)
	ctx := context.Background()

	require.NoError(t, remote.Set(ctx, "k", []byte("remote"), time.Minute))
	got, err := tiered.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote"), got)

	fromLocal, err := local.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote"), fromLocal)

	require.NoError(t, tiered.Set(ctx, "both", []byte("x"), time.Minute))
	_, err = remote.Get(ctx, "both")
	assert.NoError(t, err)
	require.NoError(t, tiered.Del(ctx, "both"))
	_, err = local.Get(ctx, "both")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestNewTieredCollapses(t *testing.T) {
	assert.Equal(t, NoopProvider{}, NewTiered(nil, nil, 0))
	local := NewLocalProvider(1, time.Minute)
	assert.Same(t, local, NewTiered(local, nil, 0).(*LocalProvider))

	_, err := NoopProvider{}.Get(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrCacheMiss))
}
