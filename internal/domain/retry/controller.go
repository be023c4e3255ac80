// Package retry paces work items and retries transient failures with exponential backoff.
//
// The politeness delay and the retry backoff are separate: the delay is applied
// between consecutive work items whatever their outcome, the backoff only between
// attempts of one work item after a retryable failure.
package retry

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/target/mmk-crawlsync/internal/errors"
)

const (
	// DefaultPolitenessDelay is the pause between work items.
	DefaultPolitenessDelay = 2 * time.Second
	// DefaultBaseDelay is the wait before the first retry.
	DefaultBaseDelay = time.Second
	// DefaultMaxDelay caps the backoff wait.
	DefaultMaxDelay = 30 * time.Second
	// DefaultMaxAttempts is the total number of attempts, first call included.
	DefaultMaxAttempts = 3
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures a Controller.
type Options struct {
	PolitenessDelay time.Duration
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	MaxAttempts     int
	Logger          *slog.Logger
	// Sleep replaces the real timer in tests.
	Sleep SleepFunc
}

// Controller is safe for concurrent use; it keeps no per-call state.
type Controller struct {
	politeness  time.Duration
	base        time.Duration
	max         time.Duration
	maxAttempts int
	logger      *slog.Logger
	sleep       SleepFunc
}

// New creates a Controller. Zero durations select the defaults; a negative politeness delay disables pacing.
func New(opts Options) *Controller {
	c := &Controller{
		politeness:  opts.PolitenessDelay,
		base:        opts.BaseDelay,
		max:         opts.MaxDelay,
		maxAttempts: opts.MaxAttempts,
		logger:      opts.Logger,
		sleep:       opts.Sleep,
	}
	if c.politeness == 0 {
		c.politeness = DefaultPolitenessDelay
	}
	if c.base <= 0 {
		c.base = DefaultBaseDelay
	}
	if c.max <= 0 {
		c.max = DefaultMaxDelay
	}
	if c.max < c.base {
		c.max = c.base
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "retry_controller")
	if c.sleep == nil {
		c.sleep = SleepCtx
	}
	return c
}

// MaxAttempts returns the configured attempt bound.
func (c *Controller) MaxAttempts() int { return c.maxAttempts }

// Pace applies the politeness delay. Call it between work items, not before the first.
func (c *Controller) Pace(ctx context.Context) error {
	if c.politeness <= 0 {
		return nil
	}
	return c.sleep(ctx, c.politeness)
}

// Backoff returns the wait before attempt n+1, given n attempts made so far (n >= 1).
func (c *Controller) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	wait := c.base
	for i := 1; i < n; i++ {
		wait *= 2
		if wait >= c.max {
			return c.max
		}
	}
	return wait
}

// Do calls op until it succeeds, fails with a non-retryable error, or the attempt bound is reached.
// It returns the number of attempts made. Exhaustion keeps the last error's code
// (rate limit or transient network) so callers count it as a per-item failure.
func (c *Controller) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		if !apperrors.IsRetryable(err) {
			return attempt, err
		}
		if attempt == c.maxAttempts {
			break
		}

		wait := c.Backoff(attempt)
		c.logger.WarnContext(ctx, "retrying after retryable failure",
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err)
		if serr := c.sleep(ctx, wait); serr != nil {
			return attempt, lastErr
		}
	}
	return c.maxAttempts, apperrors.Wrapf(lastErr, apperrors.GetCode(lastErr),
		"gave up after %d attempts", c.maxAttempts)
}

// SleepCtx waits for d or until ctx is done.
func SleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
