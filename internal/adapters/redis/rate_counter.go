package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// incrWindow increments the window counter and starts its expiry on the
// first hit, in one round trip so every instance sees the same count.
var incrWindow = goredis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RateCounter is a fixed-window counter shared by all instances
type RateCounter struct {
	client goredis.Scripter
	prefix string
}

// NewRateCounter creates a counter whose keys are namespaced by prefix
func NewRateCounter(client goredis.Scripter, prefix string) *RateCounter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RateCounter{client: client, prefix: prefix}
}

// Incr counts one hit for key in the current window and returns the total
func (c *RateCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	bucket := time.Now().UnixMilli() / window.Milliseconds()
	redisKey := fmt.Sprintf("%s:%s:%d", c.prefix, key, bucket)

	n, err := incrWindow.Run(ctx, c.client, []string{redisKey}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment rate counter: %w", err)
	}
	return n, nil
}
