package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock is held by another holder")

// ReleaseFunc gives a lock back.
type ReleaseFunc func(ctx context.Context) error

// deletes the key only if it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a per-loan mutual exclusion lock backed by SET NX PX.
type RedisLocker struct {
	client redisLockClient
	ttl    time.Duration
}

// redisLockClient is what RedisLocker needs from a client.
type redisLockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

func NewRedisLocker(client redisLockClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

func lockKey(loanID uuid.UUID) string {
	return fmt.Sprintf("lock:loan:%s", loanID)
}

// Lock acquires the lock for the loan or fails fast with ErrLockHeld.
func (l *RedisLocker) Lock(ctx context.Context, loanID uuid.UUID) (ReleaseFunc, error) {
	key := lockKey(loanID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}

// NopLocker is used when no Redis is configured; the database transaction
// remains the only serialization point.
type NopLocker struct{}

func (NopLocker) Lock(context.Context, uuid.UUID) (ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}
