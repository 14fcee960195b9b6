package keypool

import (
	"sync"
	"time"

	logx "github.com/1VeniVediVeci1/chatgpt-web-sub000/pkg/logger"
)

// DefaultLockoutWindow is how long a key stays excluded from selection after
// an upstream rate-limit signal.
const DefaultLockoutWindow = 20 * time.Second

// Lockout is the in-process overlay of temporarily excluded keys. Entries
// are keyed by the key secret and expire after the configured window.
type Lockout struct {
	mu     sync.Mutex
	locked map[string]time.Time
	window time.Duration
	now    func() time.Time
}

// NewLockout creates a lockout registry. A non-positive window falls back to
// DefaultLockoutWindow.
func NewLockout(window time.Duration) *Lockout {
	if window <= 0 {
		window = DefaultLockoutWindow
	}
	return &Lockout{
		locked: make(map[string]time.Time),
		window: window,
		now:    time.Now,
	}
}

// Lock excludes the key with the given secret from selection until the
// window elapses. Re-locking an already locked key restarts the window.
func (l *Lockout) Lock(secret string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked[secret] = l.now()
	logx.Debug().Int("locked_total", len(l.locked)).Msg("key locked out after rate limit")
}

// Locked reports whether the key with the given secret is under an active
// lockout. Expired entries are removed on the way.
func (l *Lockout) Locked(secret string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	at, ok := l.locked[secret]
	if !ok {
		return false
	}
	if l.now().Sub(at) >= l.window {
		delete(l.locked, secret)
		return false
	}
	return true
}

// Len returns the number of entries currently held, including ones that may
// have expired but were not yet observed.
func (l *Lockout) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locked)
}
