package fnkit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Do runs f, retrying retriable failures with exponential backoff and
// jitter via cenkalti/backoff/v4, up to maxAttempts. isRetriable classifies
// the returned error; a nil isRetriable treats every error as retriable.
func Do[T any](ctx context.Context, maxAttempts int, isRetriable func(error) bool, f func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx)

	var last T
	var lastErr error
	op := func() error {
		v, err := f(ctx)
		if err == nil {
			last = v
			return nil
		}
		lastErr = err
		if isRetriable != nil && !isRetriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, bo); err != nil {
		if lastErr != nil {
			return zero, lastErr
		}
		return zero, err
	}
	return last, nil
}
