package cron

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgredis "github.com/angelmondragon/rentwise-payments/pkg/redis"
)

func newLockRedis(t *testing.T) (*miniredis.Miniredis, *pkgredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := pkgredis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocksExcludeSecondOwner(t *testing.T) {
	mr, client := newLockRedis(t)
	factory := RedisLocks(client, "prod")
	ctx := context.Background()
	const key = "rw:cron-worker:lock:prod:payment-reconcile"

	first, err := factory("payment-reconcile", 15*time.Minute)
	require.NoError(t, err)
	second, err := factory("payment-reconcile", 15*time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 15*time.Minute, mr.TTL(key))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// a replica that never owned the lock must not free it
	require.NoError(t, second.Release(ctx))
	assert.True(t, mr.Exists(key))

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists(key))
}

func TestRedisLocksReleaseKeepsForeignOwner(t *testing.T) {
	mr, client := newLockRedis(t)
	lock, err := RedisLocks(client, "")("commission-payout", 0)
	require.NoError(t, err)
	const key = "rw:cron-worker:lock:local:commission-payout"

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, defaultLockTTL, mr.TTL(key))

	// the ttl lapsed and another replica took over
	require.NoError(t, mr.Set(key, "someone-else"))
	require.NoError(t, lock.Release(context.Background()))
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLocksScopeByEnvironment(t *testing.T) {
	_, client := newLockRedis(t)
	ctx := context.Background()

	staging, err := RedisLocks(client, "staging")("payment-reconcile", time.Minute)
	require.NoError(t, err)
	prod, err := RedisLocks(client, "prod")("payment-reconcile", time.Minute)
	require.NoError(t, err)

	for _, l := range []Lock{staging, prod} {
		ok, err := l.Acquire(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestRedisLocksRequireJobName(t *testing.T) {
	_, client := newLockRedis(t)
	_, err := RedisLocks(client, "prod")("", time.Minute)
	require.Error(t, err)
	_, err = RedisLocks(nil, "prod")("payment-reconcile", time.Minute)
	require.Error(t, err)
}
