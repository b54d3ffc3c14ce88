// Package retry re-runs failing operations with exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/MimeLyc/sales-playbook/pkg/log"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

type options struct {
	maxAttempts int
	baseDelay   time.Duration
	name        string
	onRetry     func(attempt int, delay time.Duration, err error)
	sleep       func(ctx context.Context, d time.Duration) error
}

type Option func(*options)

func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.baseDelay = d
		}
	}
}

// WithName labels retry log lines.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// OnRetry is invoked after a failed attempt that will be retried.
func OnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(o *options) { o.onRetry = fn }
}

func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = fn }
}

// Delay returns the wait before the attempt following the given failed one:
// base * 2^(attempt-1).
func Delay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// Do runs op until it succeeds or the attempt budget is spent. The error of
// the last attempt is returned as is.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := options{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		name:        "operation",
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		ret, err := op(ctx)
		if err == nil {
			return ret, nil
		}
		lastErr = err
		if attempt == o.maxAttempts {
			break
		}

		delay := Delay(o.baseDelay, attempt)
		log.Warn("%s attempt %d/%d failed, retrying in %s: %v", o.name, attempt, o.maxAttempts, delay, err)
		if o.onRetry != nil {
			o.onRetry(attempt, delay, err)
		}
		if serr := o.sleep(ctx, delay); serr != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
