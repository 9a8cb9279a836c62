package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pace/ingest-service/internal/retry"
)

func recordingPolicy(waits *[]time.Duration) retry.Policy {
	p := retry.DefaultPolicy()
	p.Sleep = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return p
}

func TestDefaultPolicy_Schedule(t *testing.T) {
	p := retry.DefaultPolicy()

	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, time.Second, p.Delay(2))
	assert.Equal(t, 2*time.Second, p.Delay(3))
	assert.Equal(t, 4*time.Second, p.Delay(4))
	assert.Equal(t, 16*time.Second, p.Delay(6))
	assert.Equal(t, 30*time.Second, p.Delay(10))
}

func TestDo_SucceedsOnFifthAttempt(t *testing.T) {
	var waits []time.Duration
	calls := 0

	err := recordingPolicy(&waits).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 5 {
			return errors.New("unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second, 2 * time.Second, 4 * time.Second}, waits)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var waits []time.Duration
	calls := 0
	cause := errors.New("unavailable")

	err := recordingPolicy(&waits).Do(context.Background(), func(context.Context) error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 5, calls)
	assert.Len(t, waits, 4)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	var waits []time.Duration
	calls := 0
	cause := errors.New("bad input")

	err := recordingPolicy(&waits).Do(context.Background(), func(context.Context) error {
		calls++
		return retry.Permanent(cause)
	})

	assert.Equal(t, cause, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, waits)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.DefaultPolicy().Do(ctx, func(context.Context) error { return nil })

	assert.ErrorIs(t, err, retry.ErrContextCancelled)
}

func TestDo_CancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := retry.DefaultPolicy()
	p.MinDelay = time.Hour

	err := p.Do(ctx, func(context.Context) error {
		cancel()
		return errors.New("unavailable")
	})

	assert.ErrorIs(t, err, retry.ErrContextCancelled)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	p := retry.DefaultPolicy()
	p.MaxAttempts = 3
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	p.OnRetry = func(attempt int, _ time.Duration, _ error) { attempts = append(attempts, attempt) }

	_ = p.Do(context.Background(), func(context.Context) error { return errors.New("x") })

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, retry.Permanent(nil))
}
