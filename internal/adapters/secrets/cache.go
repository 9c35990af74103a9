package secrets

import (
	"sync"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
)

// secretCache is a TTL cache shared by the remote providers
type secretCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	secret    *ports.Secret
	expiresAt time.Time
}

// newSecretCache returns nil when ttl is not positive, which disables caching
func newSecretCache(ttl time.Duration) *secretCache {
	if ttl <= 0 {
		return nil
	}
	return &secretCache{entries: make(map[string]cacheEntry), ttl: ttl, now: time.Now}
}

func (c *secretCache) get(key string) *ports.Secret {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil
	}
	return entry.secret
}

func (c *secretCache) set(key string, secret *ports.Secret) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{secret: secret, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
