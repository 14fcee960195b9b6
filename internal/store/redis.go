package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errx "github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/core/error"
	logx "github.com/1VeniVediVeci1/chatgpt-web-sub000/pkg/logger"
)

// RedisStore persists conversation messages as JSON documents keyed by
// message id, with an optional TTL extended on every write.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) messageKey(id string) string {
	return fmt.Sprintf("message:%s", id)
}

func (s *RedisStore) roomModelKey(userID string, roomID int64) string {
	return fmt.Sprintf("room:%s:%d:model", userID, roomID)
}

func (s *RedisStore) GetMessageByID(ctx context.Context, id string) (*Message, error) {
	raw, err := s.rdb.Get(ctx, s.messageKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMessageNotFound
		}
		logx.Error().Err(err).Str("message_id", id).Msg("failed to load message from redis")
		return nil, errx.WrapRedis(err)
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message %s: %w", id, err)
	}
	return &msg, nil
}

func (s *RedisStore) SaveMessage(ctx context.Context, msg *Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("message id is required")
	}
	b, err := json.Marshal(msg)
	if err != nil {
		logx.Error().Err(err).Str("message_id", msg.ID).Msg("failed to marshal message")
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := s.rdb.Set(ctx, s.messageKey(msg.ID), b, s.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("message_id", msg.ID).Msg("failed to write message to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (s *RedisStore) UpdateRoomModel(ctx context.Context, userID string, roomID int64, model string) error {
	key := s.roomModelKey(userID, roomID)
	if err := s.rdb.Set(ctx, key, model, 0).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to update room model")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
