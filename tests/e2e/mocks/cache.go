package mocks

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type cacheEntry struct {
	payload []byte
	expiry  time.Time
}

// MemoryCache stores JSON payloads like the Redis cache does, so hits
// decode into fresh values, and records traffic for assertions.
type MemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry

	Gets            int
	Hits            int
	Sets            int
	DeletedPrefixes []string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]cacheEntry)}
}

func (c *MemoryCache) Get(ctx context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Gets++
	entry, ok := c.data[key]
	if !ok || time.Now().After(entry.expiry) {
		return redis.Nil
	}
	c.Hits++
	return json.Unmarshal(entry.payload, dest)
}

func (c *MemoryCache) Set(ctx context.Context, key string, value any, exp time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.Sets++
	c.data[key] = cacheEntry{payload: payload, expiry: time.Now().Add(exp)}
	return nil
}

func (c *MemoryCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.DeletedPrefixes = append(c.DeletedPrefixes, prefix)
	n := 0
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
			n++
		}
	}
	return n, nil
}

// Keys lists the live keys in no particular order.
func (c *MemoryCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns the counters under the lock.
func (c *MemoryCache) Snapshot() (gets, hits, sets int, deleted []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Gets, c.Hits, c.Sets, append([]string(nil), c.DeletedPrefixes...)
}
