package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "redis://:bad@host:notaport/0")
	assert.ErrorContains(t, err, "parse redis url")
}

func TestConnectUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Connect(ctx, "127.0.0.1:1")
	assert.ErrorContains(t, err, "ping redis")
}

func TestLockFailsWithoutServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	lock := NewRedisLock(client)

	ok, err := lock.TryAcquireLock(context.Background(), "reminders", "web.1", time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, lock.ReleaseLock(context.Background(), "reminders", "web.1"))
}
