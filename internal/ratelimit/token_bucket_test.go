package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBucket(t *testing.T, capacity int, refill float64) (*TokenBucket, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenBucket(client, capacity, refill, time.Minute), mr
}

func TestTokenBucketExhaustion(t *testing.T) {
	b, _ := newBucket(t, 3, 0.001)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := b.Allow(ctx, "rl:test")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	allowed, tokens, err := b.Allow(ctx, "rl:test")
	if err != nil {
		t.Fatalf("allow after exhaustion: %v", err)
	}
	if allowed {
		t.Fatal("request beyond capacity should be denied")
	}
	if tokens >= 1 {
		t.Fatalf("expected near-zero tokens, got %f", tokens)
	}
}

func TestTokenBucketKeysAreIndependent(t *testing.T) {
	b, _ := newBucket(t, 1, 0.001)
	ctx := context.Background()

	if allowed, _, _ := b.Allow(ctx, "rl:proj-a"); !allowed {
		t.Fatal("first request for proj-a should be allowed")
	}
	if allowed, _, _ := b.Allow(ctx, "rl:proj-a"); allowed {
		t.Fatal("second request for proj-a should be denied")
	}
	if allowed, _, _ := b.Allow(ctx, "rl:proj-b"); !allowed {
		t.Fatal("proj-b has its own bucket")
	}
}

func TestWindowLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	b := NewWindowLimiter(client, 30, time.Minute)
	if b.capacity != 30 {
		t.Fatalf("capacity = %d, want 30", b.capacity)
	}
	if b.refill != 0.5 {
		t.Fatalf("refill = %f, want 0.5 tokens/s", b.refill)
	}

	ctx := context.Background()
	for i := 0; i < 30; i++ {
		if allowed, _, err := b.Allow(ctx, "rl:queue:integration"); err != nil || !allowed {
			t.Fatalf("request %d: allowed=%v err=%v", i, allowed, err)
		}
	}
	if allowed, _, _ := b.Allow(ctx, "rl:queue:integration"); allowed {
		t.Fatal("31st request within the window should be denied")
	}
}
