package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func TestRedisRateLimiter_CountsWithinWindow(t *testing.T) {
	_, client := newTestRedis(t)
	limiter := NewRedisRateLimiter(client, "test")
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		count, retryAfter, err := limiter.ConsumeRateLimit(ctx, "initiate", "user-1", 5, time.Minute)
		if err != nil {
			t.Fatalf("ConsumeRateLimit returned error: %v", err)
		}
		if count != want {
			t.Fatalf("expected count %d, got %d", want, count)
		}
		if retryAfter < 1 || retryAfter > 60 {
			t.Fatalf("expected retry-after within the window, got %d", retryAfter)
		}
	}

	count, _, err := limiter.ConsumeRateLimit(ctx, "initiate", "user-2", 5, time.Minute)
	if err != nil {
		t.Fatalf("ConsumeRateLimit returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected independent counter per subject, got %d", count)
	}
}

func TestRedisRateLimiter_ResetsAfterWindow(t *testing.T) {
	server, client := newTestRedis(t)
	limiter := NewRedisRateLimiter(client, "")
	ctx := context.Background()

	if _, _, err := limiter.ConsumeRateLimit(ctx, "webhook", "1.2.3.4", 1, time.Second); err != nil {
		t.Fatalf("ConsumeRateLimit returned error: %v", err)
	}
	server.FastForward(2 * time.Second)

	count, _, err := limiter.ConsumeRateLimit(ctx, "webhook", "1.2.3.4", 1, time.Second)
	if err != nil {
		t.Fatalf("ConsumeRateLimit returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected counter to restart after the window, got %d", count)
	}
}

func TestRedisRateLimiter_DisabledLimitNeverCounts(t *testing.T) {
	var limiter *RedisRateLimiter
	count, retryAfter, err := limiter.ConsumeRateLimit(context.Background(), "initiate", "user-1", 5, time.Minute)
	if err != nil || count != 0 || retryAfter != 0 {
		t.Fatalf("expected nil limiter to be a no-op, got count=%d retry=%d err=%v", count, retryAfter, err)
	}
}

func TestRedisInitiationLock_ExcludesSecondHolderUntilRelease(t *testing.T) {
	_, client := newTestRedis(t)
	lock := NewRedisInitiationLock(client, "test")
	ctx := context.Background()

	release, acquired, err := lock.Acquire(ctx, "payment-initiation:p1", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("expected first acquire to succeed, acquired=%t err=%v", acquired, err)
	}

	if _, acquired, err := lock.Acquire(ctx, "payment-initiation:p1", time.Minute); err != nil || acquired {
		t.Fatalf("expected second acquire to be refused, acquired=%t err=%v", acquired, err)
	}

	release()

	release2, acquired, err := lock.Acquire(ctx, "payment-initiation:p1", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("expected acquire after release to succeed, acquired=%t err=%v", acquired, err)
	}
	release2()
}

func TestRedisInitiationLock_StaleReleaseKeepsNewHolder(t *testing.T) {
	server, client := newTestRedis(t)
	lock := NewRedisInitiationLock(client, "test")
	ctx := context.Background()

	staleRelease, acquired, err := lock.Acquire(ctx, "payment-initiation:p2", time.Second)
	if err != nil || !acquired {
		t.Fatalf("expected acquire to succeed, acquired=%t err=%v", acquired, err)
	}
	server.FastForward(2 * time.Second)

	_, acquired, err = lock.Acquire(ctx, "payment-initiation:p2", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("expected acquire after expiry to succeed, acquired=%t err=%v", acquired, err)
	}

	staleRelease()

	if !server.Exists("test:lock:payment-initiation:p2") {
		t.Fatal("expected stale release to leave the new holder's key in place")
	}
}
