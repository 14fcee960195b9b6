package planner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleepEngine(schedule ...time.Duration) *Engine {
	e := NewEngine()
	if len(schedule) > 0 {
		e.Schedule = schedule
	}
	e.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return e
}

func TestRunSucceedsAfterTwoFailedAttempts(t *testing.T) {
	e := noSleepEngine(20*time.Second, 30*time.Second, 40*time.Second)

	var notices []RetryNotice
	e.OnRetry = func(n RetryNotice) { notices = append(notices, n) }

	calls := 0
	value, err := Run(context.Background(), e, func(ctx context.Context, wd *Watchdog) (string, error) {
		calls++
		if calls <= 2 {
			return "", &IdleTimeoutError{Attempt: calls - 1, Wait: e.Schedule[calls-1]}
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", value)
	assert.Equal(t, 3, calls)
	require.Len(t, notices, 2)
	assert.Equal(t, 30*time.Second, notices[0].NextTimeout)
	assert.Equal(t, 40*time.Second, notices[1].NextTimeout)
	assert.Equal(t, 250*time.Millisecond, notices[0].Backoff)
	assert.Equal(t, 500*time.Millisecond, notices[1].Backoff)
}

func TestRunExhaustsSchedule(t *testing.T) {
	e := noSleepEngine(time.Second, time.Second)

	calls := 0
	_, err := Run(context.Background(), e, func(ctx context.Context, wd *Watchdog) (int, error) {
		calls++
		return 0, fmt.Errorf("attempt %d failed", calls)
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "all 2 attempts exhausted")
	assert.Contains(t, err.Error(), "attempt 2 failed")
}

func TestWatchdogFiresBeforeFirstChunk(t *testing.T) {
	e := noSleepEngine(30 * time.Millisecond)

	_, err := Run(context.Background(), e, func(ctx context.Context, wd *Watchdog) (string, error) {
		<-ctx.Done()
		return "", context.Cause(ctx)
	})

	var idle *IdleTimeoutError
	require.ErrorAs(t, err, &idle)
	assert.False(t, idle.MidStream)
	assert.True(t, idle.Timeout())
}

func TestWatchdogFiresMidStream(t *testing.T) {
	e := noSleepEngine(30 * time.Millisecond)

	_, err := Run(context.Background(), e, func(ctx context.Context, wd *Watchdog) (string, error) {
		wd.Reset()
		<-ctx.Done()
		return "", context.Cause(ctx)
	})

	var idle *IdleTimeoutError
	require.ErrorAs(t, err, &idle)
	assert.True(t, idle.MidStream)
}

func TestWatchdogResetDefersFiring(t *testing.T) {
	e := noSleepEngine(50 * time.Millisecond)

	start := time.Now()
	value, err := Run(context.Background(), e, func(ctx context.Context, wd *Watchdog) (string, error) {
		// Chunks keep arriving faster than the idle window; the watchdog
		// must not fire even though the call outlives one window.
		for i := 0; i < 5; i++ {
			select {
			case <-ctx.Done():
				return "", context.Cause(ctx)
			case <-time.After(20 * time.Millisecond):
				wd.Reset()
			}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestRunNeverRetriesCancellation(t *testing.T) {
	e := noSleepEngine(time.Second, time.Second, time.Second)

	retries := 0
	e.OnRetry = func(RetryNotice) { retries++ }

	parent, cancel := context.WithCancelCause(context.Background())
	abortErr := errors.New("caller aborted")

	calls := 0
	_, err := Run(parent, e, func(ctx context.Context, wd *Watchdog) (string, error) {
		calls++
		cancel(abortErr)
		<-ctx.Done()
		return "", context.Cause(ctx)
	})

	require.ErrorIs(t, err, abortErr)
	assert.Equal(t, 1, calls)
	assert.Zero(t, retries)
}

func TestRunValidationFailureConsumesSlot(t *testing.T) {
	e := noSleepEngine(time.Second, time.Second)

	var notices []RetryNotice
	e.OnRetry = func(n RetryNotice) { notices = append(notices, n) }

	calls := 0
	value, err := Run(context.Background(), e, func(ctx context.Context, wd *Watchdog) (*Plan, error) {
		calls++
		if calls == 1 {
			return ParsePlan("not json at all", false)
		}
		return ParsePlan(`{"action":"stop"}`, false)
	})

	require.NoError(t, err)
	assert.Equal(t, ActionStop, value.Action)
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Err.Error(), "plan extract")
}
