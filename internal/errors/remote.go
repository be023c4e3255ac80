package errors

import (
	"context"
	"errors"
	"net/http"
)

// FromHTTPStatus classifies a remote response status. Statuses below 400 yield nil.
func FromHTTPStatus(status int, target string) error {
	switch {
	case status < http.StatusBadRequest:
		return nil
	case status == http.StatusTooManyRequests:
		return Newf(ErrCodeRateLimitExceeded, "%s responded %d", target, status)
	case status >= http.StatusInternalServerError:
		return Newf(ErrCodeTransientNetwork, "%s responded %d", target, status)
	default:
		return Newf(ErrCodeNavigationError, "%s responded %d", target, status)
	}
}

// FromTransport classifies a request that produced no response.
// Deadline expiry is a navigation timeout, cancellation passes through, anything else is transient.
func FromTransport(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return Wrapf(err, ErrCodeNavigationTimeout, "%s timed out", op)
	default:
		return Wrapf(err, ErrCodeTransientNetwork, "%s", op)
	}
}
