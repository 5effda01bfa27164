package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLimiter_BurstThenReject(t *testing.T) {
	rdb := newMiniRedis(t)
	limiter := NewRedisLimiter(rdb, nil, "test:login:", 1, 3)
	fixed := time.Now()
	limiter.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		ok, _, err := limiter.Allow(context.Background(), "10.0.0.1")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("expected request %d within burst to pass", i)
		}
	}

	ok, wait, err := limiter.Allow(context.Background(), "10.0.0.1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Fatalf("expected request beyond burst to be rejected")
	}
	if wait <= 0 {
		t.Fatalf("expected positive retry wait, got %v", wait)
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	rdb := newMiniRedis(t)
	limiter := NewRedisLimiter(rdb, nil, "test:login:", 1, 1)
	fixed := time.Now()
	limiter.now = func() time.Time { return fixed }

	if ok, _, _ := limiter.Allow(context.Background(), "a"); !ok {
		t.Fatalf("expected first key to pass")
	}
	if ok, _, _ := limiter.Allow(context.Background(), "b"); !ok {
		t.Fatalf("expected second key to pass independently")
	}
	if ok, _, _ := limiter.Allow(context.Background(), "a"); ok {
		t.Fatalf("expected first key to be exhausted")
	}
}

func TestLimiter_Refill(t *testing.T) {
	rdb := newMiniRedis(t)
	limiter := NewRedisLimiter(rdb, nil, "test:login:", 10, 1)
	current := time.Now()
	limiter.now = func() time.Time { return current }

	if ok, _, _ := limiter.Allow(context.Background(), "ip"); !ok {
		t.Fatalf("expected first request to pass")
	}
	if ok, _, _ := limiter.Allow(context.Background(), "ip"); ok {
		t.Fatalf("expected bucket to be empty")
	}
	current = current.Add(200 * time.Millisecond)
	if ok, _, _ := limiter.Allow(context.Background(), "ip"); !ok {
		t.Fatalf("expected bucket to refill after 200ms at 10/s")
	}
}

func TestLimiter_NilAllows(t *testing.T) {
	var limiter *Limiter
	ok, _, err := limiter.Allow(context.Background(), "x")
	if err != nil || !ok {
		t.Fatalf("expected nil limiter to allow, got %v %v", ok, err)
	}
}

func newMiniRedis(t *testing.T) *redis.Client {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
