package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	logx "github.com/1VeniVediVeci1/chatgpt-web-sub000/pkg/logger"
)

// ErrAborted is the cancellation cause for a caller-initiated abort. It is
// distinguishable from timeouts via errors.Is on context.Cause.
var ErrAborted = errors.New("generation aborted by user")

// ErrSuperseded is the cancellation cause used when a newer job for the
// same user and room replaces a running one.
var ErrSuperseded = errors.New("generation superseded by a newer request")

// ErrTooManyJobs is returned when a user hits the concurrency ceiling.
// The request is rejected immediately, never queued.
var ErrTooManyJobs = errors.New("too many concurrent generations for this user")

// DefaultMaxPerUser bounds how many rooms a single user may generate in at once.
const DefaultMaxPerUser = 3

type job struct {
	cancel    context.CancelCauseFunc
	userID    string
	roomID    int64
	messageID string
	seq       uint64
}

// Registry tracks at most one running generation per (user, room) and owns
// their cancellation handles. All state is in-process and lost on restart.
type Registry struct {
	mu         sync.Mutex
	jobs       map[string]*job
	seq        uint64
	maxPerUser int
}

// NewRegistry creates a registry with the given per-user ceiling
// (DefaultMaxPerUser when non-positive).
func NewRegistry(maxPerUser int) *Registry {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxPerUser
	}
	return &Registry{
		jobs:       make(map[string]*job),
		maxPerUser: maxPerUser,
	}
}

func jobKey(userID string, roomID int64) string {
	return fmt.Sprintf("%s:%d", userID, roomID)
}

// Start registers a generation for (userID, roomID) bound to messageID and
// returns a context canceled when the job is aborted or replaced, plus a
// finish func that must run when the generation exits on any path.
//
// A running job for the same key is canceled before the new entry becomes
// visible (last writer wins, no queuing).
func (r *Registry) Start(parent context.Context, userID string, roomID int64, messageID string) (context.Context, func(), error) {
	key := jobKey(userID, roomID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.jobs[key]; ok {
		prev.cancel(ErrSuperseded)
		delete(r.jobs, key)
		logx.Debug().Str("job", key).Msg("replaced running job")
	}

	active := 0
	for _, j := range r.jobs {
		if j.userID == userID {
			active++
		}
	}
	if active >= r.maxPerUser {
		return nil, nil, fmt.Errorf("%w (limit %d)", ErrTooManyJobs, r.maxPerUser)
	}

	ctx, cancel := context.WithCancelCause(parent)
	r.seq++
	entry := &job{
		cancel:    cancel,
		userID:    userID,
		roomID:    roomID,
		messageID: messageID,
		seq:       r.seq,
	}
	r.jobs[key] = entry

	finish := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.jobs[key]; ok && cur.seq == entry.seq {
			delete(r.jobs, key)
		}
		// Release the context resources even if a newer job took the slot.
		cancel(nil)
	}
	return ctx, finish, nil
}

// Abort cancels the running job for (userID, roomID) if any, returning the
// bound message id so callers can persist partial output. Aborting an
// absent or already-finished job is a no-op.
func (r *Registry) Abort(userID string, roomID int64) (messageID string, ok bool) {
	key := jobKey(userID, roomID)

	r.mu.Lock()
	defer r.mu.Unlock()

	j, found := r.jobs[key]
	if !found {
		return "", false
	}
	j.cancel(ErrAborted)
	delete(r.jobs, key)
	logx.Debug().Str("job", key).Str("message_id", j.messageID).Msg("job aborted")
	return j.messageID, true
}

// Status reports whether a job is running for (userID, roomID) and its
// message id.
func (r *Registry) Status(userID string, roomID int64) (running bool, messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobKey(userID, roomID)]; ok {
		return true, j.messageID
	}
	return false, ""
}

// Running returns the number of registered jobs, across all users.
func (r *Registry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
