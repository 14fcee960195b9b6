package reply

import "time"

// ProgressFunc receives the cumulative answer text so far. It is invoked
// at most once per throttle interval, plus one guaranteed final call with
// the complete result.
type ProgressFunc func(text string)

// DefaultProgressInterval bounds how often downstream writers see partial
// text.
const DefaultProgressInterval = time.Second

type throttle struct {
	fn       ProgressFunc
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

func newThrottle(fn ProgressFunc, interval time.Duration) *throttle {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &throttle{fn: fn, interval: interval, now: time.Now}
}

// Emit forwards text when the interval has elapsed since the last
// delivery. Deltas arriving faster are coalesced into the next emission.
func (t *throttle) Emit(text string) {
	if t == nil || t.fn == nil {
		return
	}
	current := t.now()
	if !t.last.IsZero() && current.Sub(t.last) < t.interval {
		return
	}
	t.last = current
	t.fn(text)
}

// Flush always delivers, regardless of the interval. Used exactly once at
// the end of a stream so the caller is guaranteed the complete text.
func (t *throttle) Flush(text string) {
	if t == nil || t.fn == nil {
		return
	}
	t.last = t.now()
	t.fn(text)
}
