package joblock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocker_AcquireRelease(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer s.Close()

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		if err := rdb.Close(); err != nil {
			t.Fatalf("close redis: %v", err)
		}
	})

	l := NewLocker(rdb, time.Minute)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "https://youtube.com/watch?v=abc")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}

	ok, err = l.Acquire(ctx, "https://youtube.com/watch?v=abc")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatalf("expected second acquire to be rejected")
	}

	if err := l.Release(ctx, "https://youtube.com/watch?v=abc"); err != nil {
		t.Fatalf("release: %v", err)
	}

	ok, err = l.Acquire(ctx, "https://youtube.com/watch?v=abc")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if !ok {
		t.Fatalf("expected acquire after release to succeed")
	}
}

func TestLocker_NilClient(t *testing.T) {
	l := NewLocker(nil, time.Minute)
	ok, err := l.Acquire(context.Background(), "https://youtube.com/watch?v=abc")
	if err != nil {
		t.Fatalf("acquire with nil client: %v", err)
	}
	if !ok {
		t.Fatalf("nil client should degrade to always-available lock")
	}
}
