package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Do calls fn until it succeeds or retries extra attempts have failed, waiting
// a fixed delay between attempts. The last error is returned unchanged.
func Do[T any](ctx context.Context, fn func(ctx context.Context) (T, error), retries int, delay time.Duration) (T, error) {
	// WithMaxRetries treats zero as unlimited.
	if retries <= 0 {
		return fn(ctx)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(retries)),
		ctx,
	)
	return backoff.RetryWithData(func() (T, error) {
		return fn(ctx)
	}, policy)
}

// Run is Do for operations without a result.
func Run(ctx context.Context, fn func(ctx context.Context) error, retries int, delay time.Duration) error {
	_, err := Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, retries, delay)
	return err
}
