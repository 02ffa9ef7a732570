package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const quotaKey = "influencehub:ratelimit:youtube"

func quotaLimiter(t *testing.T, rate, burst float64) (*RateLimiter, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisRateLimiter(rdb, nil, quotaKey, rate, burst), rdb
}

func TestAcquire_ConsumesQuotaToken(t *testing.T) {
	limiter, rdb := quotaLimiter(t, 10, 2)

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	raw, err := rdb.HGet(context.Background(), quotaKey, "tokens").Result()
	if err != nil {
		t.Fatalf("hget tokens: %v", err)
	}
	remaining, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		t.Fatalf("parse tokens %q: %v", raw, err)
	}
	if remaining > 1.1 {
		t.Fatalf("token not consumed, %.2f remaining of burst 2", remaining)
	}
}

func TestAcquire_WaitsForRefill(t *testing.T) {
	limiter, _ := quotaLimiter(t, 10, 1)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("drain burst: %v", err)
	}

	// 速率 10/s，空桶补一个 token 约需 100ms。
	start := time.Now()
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after drain: %v", err)
	}
	if waited := time.Since(start); waited < 90*time.Millisecond {
		t.Fatalf("returned after %v without waiting for refill", waited)
	}
}

func TestAcquire_DeadlineExceeded(t *testing.T) {
	limiter, _ := quotaLimiter(t, 1, 1)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("drain burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := limiter.Acquire(ctx); !errors.Is(err, ErrRateLimitTimeout) {
		t.Fatalf("want ErrRateLimitTimeout, got %v", err)
	}
}

func TestAcquire_BurstBoundsConcurrentCallers(t *testing.T) {
	limiter, _ := quotaLimiter(t, 5, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted, expired := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := limiter.Acquire(ctx)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case errors.Is(err, ErrRateLimitTimeout):
				expired++
			}
		}()
	}
	wg.Wait()

	if granted != 5 {
		t.Fatalf("want burst of 5 granted, got %d (expired=%d)", granted, expired)
	}
}

func TestAcquire_DisabledLimiterIsNoop(t *testing.T) {
	limiter, _ := quotaLimiter(t, 0, 0)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("disabled limiter must pass through, got %v", err)
	}

	var nilLimiter *RateLimiter
	if err := nilLimiter.Acquire(context.Background()); err != nil {
		t.Fatalf("nil limiter must pass through, got %v", err)
	}
}
