package data

import (
	"context"
	"sync"
	"time"

	"github.com/target/mmk-crawlsync/internal/core"
)

// LocalTargetLock is an in-process TargetLocker for single-instance deployments.
type LocalTargetLock struct {
	mu    sync.Mutex
	held  map[string]localLease
	clock core.TimeProvider
}

type localLease struct {
	token   string
	expires time.Time
}

var _ core.TargetLocker = (*LocalTargetLock)(nil)

// NewLocalTargetLock creates a LocalTargetLock. A nil clock uses real time.
func NewLocalTargetLock(clock core.TimeProvider) *LocalTargetLock {
	if clock == nil {
		clock = core.RealTimeProvider{}
	}
	return &LocalTargetLock{held: map[string]localLease{}, clock: clock}
}

// Acquire takes key for token unless another unexpired holder owns it.
func (l *LocalTargetLock) Acquire(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrKeyRequired
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return false, nil
	}
	l.held[key] = localLease{token: token, expires: now.Add(ttl)}
	return true, nil
}

// Release frees key if token still owns it.
func (l *LocalTargetLock) Release(_ context.Context, key, token string) error {
	if key == "" {
		return ErrKeyRequired
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[key]; ok && cur.token == token {
		delete(l.held, key)
	}
	return nil
}
