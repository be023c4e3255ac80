package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCandidates are tried in order when REDIS_ADDR is unset: the local test
// profile, then the usual CI service names.
var redisCandidates = []string{"localhost:56379", "redis:6379", "localhost:6379"}

// SetupTestRedis returns a client on an emptied test DB, or skips t when no Redis
// answers. TEST_REQUIRE_REDIS turns the skip into a failure. The caller closes the client.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()
	addrs := redisCandidates
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		addrs = []string{addr}
	}
	db := testRedisDB(t)

	var errs []error
	for _, addr := range addrs {
		client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := client.Ping(ctx).Err()
		if err == nil {
			err = client.FlushDB(ctx).Err()
		}
		cancel()
		if err == nil {
			t.Logf("using redis %s db %d", addr, db)
			return client
		}
		closeQuietly(t, "redis probe", client)
		errs = append(errs, fmt.Errorf("%s: %w", addr, err))
	}
	unavailable(t, envBool("TEST_REQUIRE_REDIS"), "redis", errors.Join(errs...))
	return nil
}

// testRedisDB keeps tests off DB 0. TEST_REDIS_DB lets parallel packages pick
// distinct indexes.
func testRedisDB(t TestingTB) int {
	v := os.Getenv("TEST_REDIS_DB")
	if v == "" {
		return 1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 15 {
		t.Logf("ignoring TEST_REDIS_DB=%q", v)
		return 1
	}
	return n
}
