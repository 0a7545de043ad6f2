package source

import (
	"context"
	"errors"
	"time"
)

// permanentError stops withRetry; the wrapped error is returned unchanged.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

func permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// withRetry runs fn until it succeeds or maxRetries extra attempts were spent,
// doubling the delay after each failure. onRetry sees every failure that is retried.
// Errors marked permanent end the loop at once and come back unwrapped.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error, onRetry func(attempt int, err error)) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var stop *permanentError
		if errors.As(err, &stop) {
			return stop.err
		}
		if attempt >= maxRetries || ctx.Err() != nil {
			return err
		}
		if onRetry != nil {
			onRetry(attempt+1, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
