package cursor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"advisor-marketplace/backend/shared/redis"
)

// RedisStore keeps cursors in redis so a user's conversational position
// survives process restarts and is shared across replicas. Entries carry a
// TTL; a cursor older than that is stale enough to rebuild anyway.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a redis-backed cursor store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func cursorKey(userID uint) string {
	return fmt.Sprintf("cursor:%d", userID)
}

func (s *RedisStore) Get(ctx context.Context, userID uint) (*State, error) {
	raw, err := s.client.Get(ctx, cursorKey(userID))
	if err != nil {
		if redis.IsNil(err) {
			return nil, nil
		}
		return nil, err
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *RedisStore) Set(ctx context.Context, userID uint, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, cursorKey(userID), data, s.ttl)
}

func (s *RedisStore) Clear(ctx context.Context, userID uint) error {
	return s.client.Del(ctx, cursorKey(userID))
}
