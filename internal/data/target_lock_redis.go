package data

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-crawlsync/internal/core"
)

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTargetLock implements core.TargetLocker with SET NX PX.
type RedisTargetLock struct {
	client redis.UniversalClient
}

var _ core.TargetLocker = (*RedisTargetLock)(nil)

// NewRedisTargetLock creates a RedisTargetLock with the given Redis client.
func NewRedisTargetLock(client redis.UniversalClient) *RedisTargetLock {
	return &RedisTargetLock{client: client}
}

// Acquire sets key to token if it is free. The lock expires after ttl if never released.
func (l *RedisTargetLock) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrKeyRequired
	}
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Release deletes key if token still owns it.
func (l *RedisTargetLock) Release(ctx context.Context, key, token string) error {
	if key == "" {
		return ErrKeyRequired
	}
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}
