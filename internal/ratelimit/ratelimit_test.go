package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryLimitsPerKey(t *testing.T) {
	rl := NewMemory(3, time.Minute)
	defer rl.Close()

	for i := 0; i < 3; i++ {
		if !rl.AllowKey("a") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.AllowKey("a") {
		t.Fatalf("4th request should be rejected")
	}
	if !rl.AllowKey("b") {
		t.Fatalf("other key should not be affected")
	}
}

func TestMemoryWindowSlides(t *testing.T) {
	rl := NewMemory(2, time.Minute)
	defer rl.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.AllowKey("a")
	now = now.Add(30 * time.Second)
	rl.AllowKey("a")
	if rl.AllowKey("a") {
		t.Fatalf("expected rejection inside window")
	}

	// Первое действие вышло из окна
	now = now.Add(31 * time.Second)
	if !rl.AllowKey("a") {
		t.Fatalf("expected allow after first request expired")
	}
}

func TestMemorySweepDropsIdleKeys(t *testing.T) {
	rl := NewMemory(1, time.Minute)
	defer rl.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.AllowKey("a")

	now = now.Add(2 * time.Minute)
	rl.sweep()

	rl.mu.Lock()
	n := len(rl.requests)
	rl.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected idle keys to be removed, got %d", n)
	}
}

func TestMemoryZeroLimitDisables(t *testing.T) {
	rl := NewMemory(0, time.Minute)
	defer rl.Close()

	for i := 0; i < 10; i++ {
		ok, err := rl.Allow(context.Background(), "a")
		if err != nil || !ok {
			t.Fatalf("zero limit should allow everything: ok=%v err=%v", ok, err)
		}
	}
}

func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("BINGOO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BINGOO_TEST_REDIS_ADDR не задан")
	}

	ctx := context.Background()
	client, err := Connect(ctx, addr, "", 0)
	if err != nil {
		t.Skipf("redis недоступен: %v", err)
	}
	defer client.Close()

	rl := NewRedis(client, "bingoo:test:"+uuid.NewString(), 2, time.Minute)
	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "player")
		if err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	ok, err := rl.Allow(ctx, "player")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Fatalf("3rd request should be rejected")
	}
}
