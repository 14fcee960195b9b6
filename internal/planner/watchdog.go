package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultSchedule is the escalating per-attempt idle-timeout schedule.
var DefaultSchedule = []time.Duration{20 * time.Second, 30 * time.Second, 40 * time.Second}

// DefaultBackoffBase is the base delay between attempts; the actual delay
// is DefaultBackoffBase << attempt.
const DefaultBackoffBase = 250 * time.Millisecond

// IdleTimeoutError reports that an attempt produced no output chunk within
// its idle window. MidStream distinguishes a stall after partial output
// from a call that never produced anything.
type IdleTimeoutError struct {
	Attempt   int
	Wait      time.Duration
	MidStream bool
}

func (e *IdleTimeoutError) Error() string {
	phase := "before first chunk"
	if e.MidStream {
		phase = "mid-stream"
	}
	return fmt.Sprintf("idle timeout after %s on attempt %d (%s)", e.Wait, e.Attempt+1, phase)
}

func (e *IdleTimeoutError) Timeout() bool { return true }

// RetryNotice is surfaced to the caller each time an attempt fails and a
// longer timeout is scheduled.
type RetryNotice struct {
	Attempt     int
	Err         error
	NextTimeout time.Duration
	Backoff     time.Duration
}

// Watchdog is an idle timer reset on every received output chunk. When it
// fires, the attempt's context is canceled with an IdleTimeoutError cause.
type Watchdog struct {
	mu       sync.Mutex
	timer    *time.Timer
	wait     time.Duration
	sawChunk bool
	stopped  bool
}

func newWatchdog(wait time.Duration, onFire func(midStream bool)) *Watchdog {
	w := &Watchdog{wait: wait}
	w.timer = time.AfterFunc(wait, func() {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return
		}
		midStream := w.sawChunk
		w.mu.Unlock()
		onFire(midStream)
	})
	return w
}

// Reset marks output as received and restarts the idle window. Call it on
// every streamed chunk.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.sawChunk = true
	w.timer.Reset(w.wait)
}

func (w *Watchdog) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.timer.Stop()
}

// AttemptFunc runs one attempt. It must honor ctx cancellation and call
// wd.Reset for every chunk of output it receives.
type AttemptFunc[T any] func(ctx context.Context, wd *Watchdog) (T, error)

// Engine retries an AttemptFunc over an escalating idle-timeout schedule.
// Each schedule entry is one attempt; a fired watchdog, a provider error,
// or a validation error all consume the attempt's slot. Caller-initiated
// cancellation is never retried.
type Engine struct {
	Schedule    []time.Duration
	BackoffBase time.Duration
	OnRetry     func(RetryNotice)

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine builds an engine with the default schedule and backoff.
func NewEngine() *Engine {
	return &Engine{
		Schedule:    append([]time.Duration{}, DefaultSchedule...),
		BackoffBase: DefaultBackoffBase,
	}
}

func (e *Engine) schedule() []time.Duration {
	if len(e.Schedule) > 0 {
		return e.Schedule
	}
	return DefaultSchedule
}

func (e *Engine) backoff(attempt int) time.Duration {
	base := e.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}
	return base << attempt
}

func (e *Engine) doSleep(ctx context.Context, d time.Duration) error {
	if e.sleep != nil {
		return e.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}

// Run drives the attempt state machine: each attempt either succeeds,
// schedules the next longer timeout, or exhausts the schedule and returns
// the last error.
func Run[T any](ctx context.Context, e *Engine, fn AttemptFunc[T]) (T, error) {
	var zero T
	schedule := e.schedule()
	var lastErr error

	for attempt, wait := range schedule {
		attemptCtx, cancel := context.WithCancelCause(ctx)
		wd := newWatchdog(wait, func(midStream bool) {
			cancel(&IdleTimeoutError{Attempt: attempt, Wait: wait, MidStream: midStream})
		})

		value, err := fn(attemptCtx, wd)
		wd.stop()
		cancel(nil)

		if err == nil {
			return value, nil
		}

		// Replace a bare context error with the watchdog cause so the
		// caller sees what actually fired.
		var idle *IdleTimeoutError
		if cause := context.Cause(attemptCtx); errors.As(cause, &idle) {
			err = idle
		}

		// Caller cancellation propagates as-is, never retried.
		if parentErr := context.Cause(ctx); parentErr != nil {
			return zero, parentErr
		}

		lastErr = err
		if attempt == len(schedule)-1 {
			break
		}

		backoff := e.backoff(attempt)
		if e.OnRetry != nil {
			e.OnRetry(RetryNotice{
				Attempt:     attempt,
				Err:         err,
				NextTimeout: schedule[attempt+1],
				Backoff:     backoff,
			})
		}
		if sleepErr := e.doSleep(ctx, backoff); sleepErr != nil {
			return zero, sleepErr
		}
	}

	return zero, fmt.Errorf("all %d attempts exhausted: %w", len(schedule), lastErr)
}
