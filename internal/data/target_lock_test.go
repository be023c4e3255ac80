package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-crawlsync/internal/core"
	"github.com/target/mmk-crawlsync/internal/testutil"
)

func TestLocalTargetLock(t *testing.T) {
	clock := core.NewFixedTimeProvider(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC))
	lock := NewLocalTargetLock(clock)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "k", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.Acquire(ctx, "k", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "held by a")

	require.NoError(t, lock.Release(ctx, "k", "b"))
	ok, _ = lock.Acquire(ctx, "k", "b", time.Minute)
	assert.False(t, ok, "release by a non-owner is a no-op")

	clock.AddTime(2 * time.Minute)
	ok, _ = lock.Acquire(ctx, "k", "b", time.Minute)
	assert.True(t, ok, "expired lease is taken over")

	require.NoError(t, lock.Release(ctx, "k", "b"))
	ok, _ = lock.Acquire(ctx, "k", "c", time.Minute)
	assert.True(t, ok)

	_, err = lock.Acquire(ctx, "", "c", time.Minute)
	assert.ErrorIs(t, err, ErrKeyRequired)
}

func TestRedisTargetLock(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	lock := NewRedisTargetLock(client)
	ctx := context.Background()
	key := "test:crawlsync:lock:" + time.Now().Format("150405.000000000")
	defer client.Del(ctx, key)

	ok, err := lock.Acquire(ctx, key, "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.Acquire(ctx, key, "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release(ctx, key, "b"))
	assert.Equal(t, "a", client.Get(ctx, key).Val(), "non-owner release keeps the lock")

	require.NoError(t, lock.Release(ctx, key, "a"))
	assert.Zero(t, client.Exists(ctx, key).Val())

	ttl := 5 * time.Minute
	ok, err = lock.Acquire(ctx, key, "c", ttl)
	require.NoError(t, err)
	assert.True(t, ok)
	actual := client.PTTL(ctx, key).Val()
	assert.True(t, actual > 0 && actual <= ttl)
}
