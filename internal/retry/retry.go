package retry

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var ErrTooManyAttempts = errors.New("too many retry attempts")

// Func runs one attempt. Returning an error wrapped with Retryable
// schedules another attempt, any other error stops the loop.
type Func func(attempt int) error

type retryableError struct {
	error
}

func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{error: err}
}

// Incremental runs fn with an incrementally growing pause between
// attempts: step, 2*step, 3*step and so on, up to maxAttempts.
func Incremental(ctx context.Context, step time.Duration, maxAttempts int, fn Func) error {
	delay := step

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}

		if _, ok := err.(*retryableError); !ok {
			return errors.Wrapf(err, "attempt %d failed", attempt)
		}

		if attempt >= maxAttempts {
			return errors.Wrapf(ErrTooManyAttempts, "gave up after %d attempts", attempt)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay += step
		}
	}
}
