package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv8 "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	svc := NewFromClient(redisv8.NewClient(&redisv8.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = svc.Close() })
	return svc, mr
}

func TestCacheRoundTripAndTTL(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	type page struct{ Title string }
	require.NoError(t, svc.CacheSet(ctx, "k", page{Title: "hello"}, time.Minute))

	var got page
	require.NoError(t, svc.CacheGet(ctx, "k", &got))
	assert.Equal(t, "hello", got.Title)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, svc.CacheGet(ctx, "k", &got), ErrCacheMiss)
}

func TestHealthCheck(t *testing.T) {
	svc, mr := newTestService(t)
	require.NoError(t, svc.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, svc.HealthCheck(context.Background()))
}

func TestNewFailsWithoutServer(t *testing.T) {
	_, err := New(Options{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestAsynqRedisOpt(t *testing.T) {
	svc, mr := newTestService(t)
	assert.Equal(t, mr.Addr(), svc.AsynqRedisOpt().Addr)
}
