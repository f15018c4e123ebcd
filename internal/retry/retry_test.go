package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_SucceedsAfterRetryableFailures(t *testing.T) {
	var attempts []int

	err := Incremental(context.Background(), time.Millisecond, 5, func(attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return Retryable(errors.New("not yet"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func Test_UnrecoverableErrorStopsImmediately(t *testing.T) {
	fatal := errors.New("broken beyond retry")
	calls := 0

	err := Incremental(context.Background(), time.Millisecond, 5, func(attempt int) error {
		calls++
		return fatal
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, fatal))
	assert.Equal(t, 1, calls)
}

func Test_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0

	err := Incremental(context.Background(), time.Millisecond, 3, func(attempt int) error {
		calls++
		return Retryable(errors.New("still down"))
	})

	assert.True(t, errors.Is(err, ErrTooManyAttempts))
	assert.Equal(t, 3, calls)
}

func Test_ContextCancellationWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Incremental(ctx, time.Second, 5, func(attempt int) error {
		return Retryable(errors.New("still down"))
	})

	assert.Equal(t, context.Canceled, err)
}

func Test_RetryableNil(t *testing.T) {
	assert.NoError(t, Retryable(nil))
}
