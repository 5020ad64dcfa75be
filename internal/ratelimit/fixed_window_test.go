package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestFixedWindowLimiterRedis(t *testing.T) {
	_, client := newMiniredisClient(t)
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	ctx := context.Background()
	if ok, _ := limiter.Allow(ctx, "login|ip-1"); !ok {
		t.Fatalf("first request should pass")
	}
	if ok, _ := limiter.Allow(ctx, "login|ip-1"); !ok {
		t.Fatalf("second request should pass")
	}
	ok, retryAfter := limiter.Allow(ctx, "login|ip-1")
	if ok {
		t.Fatalf("third request should be blocked")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("retry-after out of range: %v", retryAfter)
	}
	if ok, _ := limiter.Allow(ctx, "login|ip-2"); !ok {
		t.Fatalf("other keys keep their own quota")
	}
}

func TestFixedWindowLimiterResetsNextWindow(t *testing.T) {
	mr, client := newMiniredisClient(t)

	limiter, err := NewFixedWindowLimiter(client, "", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	now := time.Date(2024, 5, 1, 12, 0, 10, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	ctx := context.Background()
	if ok, _ := limiter.Allow(ctx, "contact|ip"); !ok {
		t.Fatalf("first request should pass")
	}
	ok, retryAfter := limiter.Allow(ctx, "contact|ip")
	if ok {
		t.Fatalf("second request in window should be blocked")
	}
	if retryAfter != 50*time.Second {
		t.Fatalf("retry-after = %v, want 50s", retryAfter)
	}
	now = now.Add(time.Minute)
	if ok, _ := limiter.Allow(ctx, "contact|ip"); !ok {
		t.Fatalf("next window should pass")
	}
	if keys := mr.Keys(); len(keys) == 0 || keys[0][:len(defaultPrefix)] != defaultPrefix {
		t.Fatalf("expected keys under default prefix, got %v", keys)
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	mr, client := newMiniredisClient(t)
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	mr.Close()
	if ok, _ := limiter.Allow(context.Background(), "ip-1"); ok {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterRequiresRedis(t *testing.T) {
	_, client := newMiniredisClient(t)
	if limiter, err := NewFixedWindowLimiter(client, "", 0, time.Second); err == nil || limiter != nil {
		t.Fatalf("expected constructor error for zero limit")
	}
	if limiter, err := NewFixedWindowLimiter(nil, "", 1, time.Second); err == nil || limiter != nil {
		t.Fatalf("expected constructor error for nil client")
	}
}
