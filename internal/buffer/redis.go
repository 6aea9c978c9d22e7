package buffer

import (
	"context"
	"encoding/json"
	"fmt"

	"time"

	"advisor-marketplace/backend/shared/redis"
)

// RedisStore keeps each session's buffer in a redis list with a TTL. This is
// the preferred backing: it survives process restarts within the pending
// window and is shared across replicas.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a redis-backed buffer with the given TTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func bufferKey(sessionID string) string {
	return fmt.Sprintf("buffer:%s", sessionID)
}

// Append pushes the message onto the session's list and refreshes the TTL.
func (s *RedisStore) Append(ctx context.Context, sessionID string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := bufferKey(sessionID)
	if err := s.client.RPush(ctx, key, data); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, s.ttl)
}

// Drain atomically reads and deletes the session's list.
func (s *RedisStore) Drain(ctx context.Context, sessionID string) ([]Message, error) {
	raw, err := s.client.DrainList(ctx, bufferKey(sessionID))
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(raw))
	for _, entry := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			// Skip undecodable entries rather than fail the accept.
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Discard drops the session's buffer.
func (s *RedisStore) Discard(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, bufferKey(sessionID))
}
