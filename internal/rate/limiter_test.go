package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisCounterFixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	c := NewRedisCounter(rdb, "t")

	for i := int64(1); i <= 3; i++ {
		n, err := c.Hit(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("hit: %v", err)
		}
		if n != i {
			t.Fatalf("expected %d, got %d", i, n)
		}
	}
	if ttl := mr.TTL("t:k"); ttl != time.Minute {
		t.Fatalf("expected window ttl 1m, got %v", ttl)
	}

	mr.FastForward(time.Minute)
	if n, _ := c.Count(ctx, "k"); n != 0 {
		t.Fatalf("expected counter reset after window, got %d", n)
	}
}

func TestMemoryCounterWindowAndReset(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	c := NewMemoryCounter().WithClock(func() time.Time { return now })

	_, _ = c.Hit(ctx, "k", time.Minute)
	n, _ := c.Hit(ctx, "k", time.Minute)
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}

	now = now.Add(59 * time.Second)
	if n, _ := c.Count(ctx, "k"); n != 2 {
		t.Fatalf("expected window still open, got %d", n)
	}

	now = now.Add(time.Second)
	if n, _ := c.Count(ctx, "k"); n != 0 {
		t.Fatalf("expected window closed, got %d", n)
	}

	_, _ = c.Hit(ctx, "k", time.Minute)
	_ = c.Reset(ctx, "k")
	if n, _ := c.Count(ctx, "k"); n != 0 {
		t.Fatalf("expected reset, got %d", n)
	}
}
