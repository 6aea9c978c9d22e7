package redis

import (
	"context"
	"time"

	"advisor-marketplace/backend/pkg/config"

	"github.com/redis/go-redis/v9"
)

// Client wraps go-redis with the small surface the buffer and cursor
// stores need.
type Client struct {
	client *redis.Client
}

// NewClient builds a client from configuration.
func NewClient() *Client {
	cfg := config.Get()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &Client{client: client}
}

// Ping checks connectivity.
func (r *Client) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Set stores a string value with expiration.
func (r *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a string value. Returns redis.Nil error when absent.
func (r *Client) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

// Del removes keys.
func (r *Client) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// RPush appends values to a list.
func (r *Client) RPush(ctx context.Context, key string, values ...interface{}) error {
	return r.client.RPush(ctx, key, values...).Err()
}

// Expire sets a key's TTL.
func (r *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

// DrainList atomically reads the whole list and deletes the key, returning
// the entries in insertion order. Uses a transactional pipeline so a
// concurrent append cannot land between the read and the delete.
func (r *Client) DrainList(ctx context.Context, key string) ([]string, error) {
	var entries *redis.StringSliceCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		entries = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries.Val(), nil
}

// IsNil reports whether err is the redis missing-key sentinel.
func IsNil(err error) bool {
	return err == redis.Nil
}
