package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry stores presence entries as plain Redis string keys.
type RedisRegistry struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRegistry creates a registry on client. A zero ttl keeps entries
// until they are deleted.
func NewRedisRegistry(client *redis.Client, prefix string, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, prefix: prefix, ttl: ttl}
}

// Put records that connectionID belongs to userID.
func (r *RedisRegistry) Put(ctx context.Context, connectionID, userID string) error {
	if err := r.client.Set(ctx, r.prefix+connectionID, userID, r.ttl).Err(); err != nil {
		return fmt.Errorf("presence put error: %w", err)
	}
	return nil
}

// Get returns the user registered for connectionID, or ErrNotFound.
func (r *RedisRegistry) Get(ctx context.Context, connectionID string) (string, error) {
	userID, err := r.client.Get(ctx, r.prefix+connectionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("presence get error: %w", err)
	}
	return userID, nil
}

// Delete removes the entry for connectionID. Deleting a missing entry is not an error.
func (r *RedisRegistry) Delete(ctx context.Context, connectionID string) error {
	if err := r.client.Del(ctx, r.prefix+connectionID).Err(); err != nil {
		return fmt.Errorf("presence delete error: %w", err)
	}
	return nil
}

// Ping checks if the Redis connection is healthy.
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
