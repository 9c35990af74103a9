package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseLock deletes the key only if it still holds our token
var releaseLock = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrLockLost is returned by release when the lock expired or was taken over
var ErrLockLost = errors.New("lock no longer held")

// Locker implements ports.Locker with SET NX PX
type Locker struct {
	client goredis.Cmdable
	prefix string
}

// NewLocker creates a lock manager whose keys are namespaced by prefix
func NewLocker(client goredis.Cmdable, prefix string) *Locker {
	if prefix == "" {
		prefix = "lock"
	}
	return &Locker{client: client, prefix: prefix}
}

// TryLock acquires key for ttl. acquired is false when another holder owns it.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	redisKey := l.prefix + ":" + key
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		n, err := releaseLock.Run(ctx, l.client, []string{redisKey}, token).Int64()
		if err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		if n == 0 {
			return ErrLockLost
		}
		return nil
	}
	return release, true, nil
}
