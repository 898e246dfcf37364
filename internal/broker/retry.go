package broker

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// RetryPolicy implements spec.md §4.1's REST retry rules: transport errors
// retry up to maxAttempts times with exponential backoff (2^attempt
// seconds); HTTP 429 consults Retry-After (with a venue-specific default)
// and does not consume a retry; HTTP 422 is never retried — the caller must
// decode it as an OrderError instead.
type RetryPolicy struct {
	MaxAttempts       int
	DefaultRetryAfter time.Duration
	Sleep             func(ctx context.Context, d time.Duration) error
}

// DefaultSleep sleeps for d or returns ctx.Err() if cancelled first.
func DefaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op, retrying on transient failure per the policy. op returns
// (statusCode, retryAfterHeader, err); statusCode 0 means a pure transport
// error (no HTTP response at all).
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) (statusCode int, retryAfter string, err error)) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = DefaultSleep
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	attempt := 0
	for {
		status, retryAfter, err := op(attempt)

		switch {
		case status == http.StatusTooManyRequests:
			d := p.DefaultRetryAfter
			if d <= 0 {
				d = 60 * time.Second
			}
			if retryAfter != "" {
				if secs, perr := strconv.Atoi(retryAfter); perr == nil {
					d = time.Duration(secs) * time.Second
				}
			}
			if serr := sleep(ctx, d); serr != nil {
				return serr
			}
			continue // 429 does not consume a retry attempt

		case status == http.StatusUnprocessableEntity:
			return err // logical rejection: never retried, caller decodes OrderError

		case status != 0 && status < 500:
			return err // success (nil) or a non-retryable client error, returned as-is

		default:
			// transient: transport error, or 5xx, or status==0.
			if attempt+1 >= attempts {
				return &TransientError{Op: "rest_call", Err: err}
			}
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if serr := sleep(ctx, backoff); serr != nil {
				return serr
			}
			attempt++
		}
	}
}
