package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper records chat message idempotency keys in Redis so a client
// retry of the same message id is persisted at most once.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(projectID, key string) string {
	return fmt.Sprintf("msg:%s:%s", projectID, key)
}

// Add records the key if it does not already exist. It returns true when
// the key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, projectID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(projectID, key), 1, r.ttl).Result()
}

// Remove deletes a previously recorded key. It is used when persistence
// fails so the client may retry the message.
func (r *RedisDeduper) Remove(ctx context.Context, projectID, key string) error {
	return r.client.Del(ctx, r.key(projectID, key)).Err()
}
