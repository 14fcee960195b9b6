package keypool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	errx "github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/core/error"
	logx "github.com/1VeniVediVeci1/chatgpt-web-sub000/pkg/logger"
)

// Source yields the current credential set. Implementations own refresh;
// the selector only reads.
type Source interface {
	List(ctx context.Context) ([]Key, error)
}

// StaticSource serves a fixed key set, mainly for tests and bootstrap.
type StaticSource []Key

func (s StaticSource) List(ctx context.Context) ([]Key, error) {
	return s, nil
}

const keyConfigHash = "config:keys"

// RedisSource reads key documents from a Redis hash maintained out-of-band
// by the admin surface, caching a snapshot between refreshes.
type RedisSource struct {
	rdb     redis.Cmdable
	refresh time.Duration

	mu        sync.Mutex
	snapshot  []Key
	fetchedAt time.Time
}

// NewRedisSource creates a source over rdb refreshing at most every refresh
// interval (default 1m when non-positive).
func NewRedisSource(rdb redis.Cmdable, refresh time.Duration) *RedisSource {
	if refresh <= 0 {
		refresh = time.Minute
	}
	return &RedisSource{rdb: rdb, refresh: refresh}
}

// List returns the cached snapshot, reloading it from Redis when stale.
// Records that fail to decode are skipped rather than failing the load.
func (s *RedisSource) List(ctx context.Context) ([]Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot != nil && time.Since(s.fetchedAt) < s.refresh {
		return s.snapshot, nil
	}

	rows, err := s.rdb.HGetAll(ctx, keyConfigHash).Result()
	if err != nil {
		if s.snapshot != nil {
			logx.Warn().Err(err).Msg("key snapshot refresh failed, serving stale set")
			return s.snapshot, nil
		}
		return nil, errx.WrapRedis(err)
	}

	keys := make([]Key, 0, len(rows))
	for id, raw := range rows {
		var k Key
		if err := json.Unmarshal([]byte(raw), &k); err != nil {
			logx.Warn().Err(err).Str("key_id", id).Msg("skipping undecodable key record")
			continue
		}
		if k.ID == "" {
			k.ID = id
		}
		keys = append(keys, k)
	}

	s.snapshot = keys
	s.fetchedAt = time.Now()
	logx.Debug().Int("keys", len(keys)).Msg("key snapshot refreshed")
	return keys, nil
}

// Put stores a key document, used by bootstrap tooling and tests.
func (s *RedisSource) Put(ctx context.Context, k Key) error {
	if k.ID == "" {
		return fmt.Errorf("key id is required")
	}
	b, err := json.Marshal(k)
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	if err := s.rdb.HSet(ctx, keyConfigHash, k.ID, b).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}
