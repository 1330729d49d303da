// Package cache holds the Redis backed coordination the scheduler needs
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockPrefix = "chama:disputes:lock:"

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// release deletes the lock only if this instance still owns it
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a best effort distributed lock keyed by job name
type RedisLock struct {
	client redis.Cmdable
}

// NewRedisLock creates a lock store on the given client
func NewRedisLock(client redis.Cmdable) *RedisLock {
	return &RedisLock{client: client}
}

// TryAcquireLock takes the named lock for owner until ttl elapses. It
// reports false when another owner holds it.
func (l *RedisLock) TryAcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, lockPrefix+name, owner, ttl).Result()
}

// ReleaseLock frees the named lock if owner still holds it
func (l *RedisLock) ReleaseLock(ctx context.Context, name, owner string) error {
	return release.Run(ctx, l.client, []string{lockPrefix + name}, owner).Err()
}
