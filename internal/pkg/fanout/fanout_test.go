package fanout

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestRunner_BasicFunctionality(t *testing.T) {
	r := NewRunner(testLogger(), 3)

	var completed atomic.Int32
	jobs := make([]Job, 0, 5)
	for i := 0; i < 5; i++ {
		jobs = append(jobs, func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			completed.Add(1)
			return nil
		})
	}

	stats := r.Run(context.Background(), jobs)

	if completed.Load() != 5 {
		t.Errorf("Expected 5 completed jobs, got %d", completed.Load())
	}
	if stats.TotalProcessed != 5 {
		t.Errorf("Expected 5 processed, got %d", stats.TotalProcessed)
	}
	if stats.TotalSucceeded != 5 {
		t.Errorf("Expected 5 succeeded, got %d", stats.TotalSucceeded)
	}
}

func TestRunner_ErrorCounting(t *testing.T) {
	r := NewRunner(testLogger(), 2)

	jobs := []Job{
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return errors.New("task failed") },
		nil, // nil 任务应被跳过
	}

	stats := r.Run(context.Background(), jobs)

	if stats.TotalSucceeded != 1 {
		t.Errorf("Expected 1 success, got %d", stats.TotalSucceeded)
	}
	if stats.TotalFailed != 1 {
		t.Errorf("Expected 1 failure, got %d", stats.TotalFailed)
	}
}

func TestRunner_PanicRecovery(t *testing.T) {
	r := NewRunner(testLogger(), 1)

	var executed atomic.Bool
	jobs := []Job{
		func(ctx context.Context) error {
			panic("intentional panic")
		},
		// 正常任务（验证 worker 没有因为 panic 而挂掉）
		func(ctx context.Context) error {
			executed.Store(true)
			return nil
		},
	}

	stats := r.Run(context.Background(), jobs)

	if stats.TotalPanics != 1 {
		t.Errorf("Expected 1 panic, got %d", stats.TotalPanics)
	}
	if !executed.Load() {
		t.Error("Normal job should execute after panic")
	}
}

func TestRunner_ContextCancelDropsPending(t *testing.T) {
	r := NewRunner(testLogger(), 1)

	ctx, cancel := context.WithCancel(context.Background())

	var started atomic.Int32
	jobs := make([]Job, 0, 10)
	jobs = append(jobs, func(ctx context.Context) error {
		started.Add(1)
		cancel()
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	for i := 0; i < 9; i++ {
		jobs = append(jobs, func(ctx context.Context) error {
			started.Add(1)
			return nil
		})
	}

	stats := r.Run(ctx, jobs)

	if started.Load() >= 10 {
		t.Errorf("Expected cancellation to drop pending jobs, all %d started", started.Load())
	}
	if stats.TotalProcessed >= 10 {
		t.Errorf("Expected fewer than 10 processed, got %d", stats.TotalProcessed)
	}
}

func TestRunner_BoundedConcurrency(t *testing.T) {
	r := NewRunner(testLogger(), 2)

	var current, peak atomic.Int32
	jobs := make([]Job, 0, 8)
	for i := 0; i < 8; i++ {
		jobs = append(jobs, func(ctx context.Context) error {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
			return nil
		})
	}

	r.Run(context.Background(), jobs)

	if peak.Load() > 2 {
		t.Errorf("Expected at most 2 concurrent jobs, observed %d", peak.Load())
	}
}
