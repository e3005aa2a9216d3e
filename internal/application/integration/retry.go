package integration

import (
	"context"
	"errors"
	"time"

	"github.com/erp/storesync/internal/domain/integration"
)

// retryPolicy retries transient failures with capped exponential backoff.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// delay is base*2^(attempt-1) capped at maxDelay. A server Retry-After hint
// wins when it is longer, still capped.
func (p retryPolicy) delay(attempt int, err error) time.Duration {
	d := p.baseDelay
	for i := 1; i < attempt && d < p.maxDelay; i++ {
		d *= 2
	}
	var te *integration.TransientError
	if errors.As(err, &te) && te.RetryAfter > d {
		d = te.RetryAfter
	}
	if p.maxDelay > 0 && d > p.maxDelay {
		d = p.maxDelay
	}
	return d
}

// do runs fn until it succeeds, fails permanently or the attempts run out.
// ctx bounds only the waits between attempts; a cancelled wait returns the
// last error.
func (p retryPolicy) do(ctx context.Context, fn func(attempt int) error) (int, error) {
	maxAttempts := p.maxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		if !integration.IsRetryable(err) || attempt >= maxAttempts {
			return attempt, err
		}
		if serr := p.sleep(ctx, p.delay(attempt, err)); serr != nil {
			return attempt, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
