package keypool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	logx "github.com/1VeniVediVeci1/chatgpt-web-sub000/pkg/logger"
)

// ErrNoKeyAvailable means no configured key matches the request. It is a
// configuration failure and must not be retried indefinitely.
var ErrNoKeyAvailable = errors.New("no matching key configured for this model")

const (
	defaultPollInterval = time.Second
	defaultPollBudget   = 3 * time.Second
)

// Selector picks an eligible key for a (roles, model, token estimate)
// request, spreading load by choosing uniformly at random among candidates.
type Selector struct {
	source  Source
	lockout *Lockout

	pollInterval time.Duration
	pollBudget   time.Duration
	intn         func(n int) int
}

// NewSelector creates a selector over source with the given lockout overlay.
func NewSelector(source Source, lockout *Lockout) *Selector {
	return &Selector{
		source:       source,
		lockout:      lockout,
		pollInterval: defaultPollInterval,
		pollBudget:   defaultPollBudget,
		intn:         rand.Intn,
	}
}

// Pick returns one eligible key, polling briefly when the pool is
// momentarily exhausted (lockouts expire quickly so a short wait may free a
// key). estTokens of zero disables the token-bound filter.
func (s *Selector) Pick(ctx context.Context, roles []string, model string, estTokens int) (Key, error) {
	deadline := time.Now().Add(s.pollBudget)
	for {
		keys, err := s.source.List(ctx)
		if err != nil {
			return Key{}, fmt.Errorf("list keys: %w", err)
		}

		eligible := s.filter(keys, roles, model, estTokens)
		if len(eligible) > 0 {
			k := eligible[s.intn(len(eligible))]
			logx.Debug().
				Str("key_id", k.ID).
				Str("model", model).
				Int("eligible", len(eligible)).
				Msg("key selected")
			return k, nil
		}

		if time.Now().After(deadline) {
			return Key{}, ErrNoKeyAvailable
		}
		select {
		case <-ctx.Done():
			return Key{}, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *Selector) filter(keys []Key, roles []string, model string, estTokens int) []Key {
	eligible := make([]Key, 0, len(keys))
	for _, k := range keys {
		if k.Status == StatusDisabled {
			continue
		}
		if !k.AllowsAnyRole(roles) {
			continue
		}
		if !k.SupportsModel(model) {
			continue
		}
		if estTokens > 0 {
			min, max := k.TokenBounds()
			if min > 0 && estTokens < min {
				continue
			}
			if max > 0 && estTokens > max {
				continue
			}
		}
		if s.lockout != nil && s.lockout.Locked(k.Secret) {
			continue
		}
		eligible = append(eligible, k)
	}
	return eligible
}
