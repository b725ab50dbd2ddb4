package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	r := New(WithMaxAttempts(3), WithInitialDelay(time.Millisecond))

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	r := New(WithMaxAttempts(5), WithInitialDelay(time.Millisecond))

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsLastErrorAfterMaxAttempts(t *testing.T) {
	r := New(WithMaxAttempts(3), WithInitialDelay(time.Millisecond))

	lastErr := errors.New("still failing")
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return lastErr
	})

	assert.ErrorIs(t, err, lastErr)
	assert.Equal(t, 3, calls)
}

func TestDo_RetryIfStopsRetrying(t *testing.T) {
	permanent := errors.New("permanent")
	r := New(
		WithMaxAttempts(5),
		WithInitialDelay(time.Millisecond),
		WithRetryIf(func(err error) bool { return !errors.Is(err, permanent) }),
	)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	r := New(WithMaxAttempts(10), WithInitialDelay(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, func(ctx context.Context) error {
		t.Fatal("operation must not run with a cancelled context")
		return nil
	})

	assert.Error(t, err)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	r := New(
		WithMaxAttempts(3),
		WithInitialDelay(time.Millisecond),
		WithOnRetry(func(attempt int, err error, delay time.Duration) {
			attempts = append(attempts, attempt)
		}),
	)

	_ = r.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("nope")
	})

	assert.Equal(t, []int{1, 2}, attempts)
}
