package rate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is a fixed-window hit counter. The window starts at the first hit
// for a key and the count resets when it elapses.
type Counter interface {
	Count(ctx context.Context, key string) (int64, error)
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
	Reset(ctx context.Context, key string) error
}

// RedisCounter keeps counters in Redis so limits hold across processes.
type RedisCounter struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisCounter creates a [RedisCounter]. An empty prefix defaults to "gvr".
func NewRedisCounter(redisClient redis.UniversalClient, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "gvr"
	}
	return &RedisCounter{redis: redisClient, prefix: prefix}
}

func (c *RedisCounter) key(k string) string { return c.prefix + ":" + k }

func (c *RedisCounter) Count(ctx context.Context, key string) (int64, error) {
	count, err := c.redis.Get(ctx, c.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return count, nil
}

func (c *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := c.redis.Incr(ctx, c.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := c.redis.Expire(ctx, c.key(key), window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	return count, nil
}

func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// MemoryCounter is an in-process [Counter].
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	count   int64
	expires time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{entries: make(map[string]memoryWindow), now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (c *MemoryCounter) WithClock(now func() time.Time) *MemoryCounter {
	c.now = now
	return c
}

func (c *MemoryCounter) Count(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.live(key)
	if !ok {
		return 0, nil
	}
	return w.count, nil
}

func (c *MemoryCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.live(key)
	if !ok {
		w = memoryWindow{expires: c.now().Add(window)}
	}
	w.count++
	c.entries[key] = w
	return w.count, nil
}

func (c *MemoryCounter) Reset(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCounter) live(key string) (memoryWindow, bool) {
	w, ok := c.entries[key]
	if !ok {
		return memoryWindow{}, false
	}
	if !c.now().Before(w.expires) {
		delete(c.entries, key)
		return memoryWindow{}, false
	}
	return w, true
}
