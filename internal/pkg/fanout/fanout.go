package fanout

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Job 表示一个可并发执行的子任务。
type Job func(ctx context.Context) error

// Runner 固定 worker 数的并发执行器。
//
// 用于对一批独立子任务做有界并发（如逐个拉取候选频道指标），
// 单个任务失败或 panic 不影响其余任务。
type Runner struct {
	logger  *slog.Logger
	workers int

	// 指标统计
	stats runStats
}

// runStats 执行器内部统计信息（使用 atomic 类型）。
type runStats struct {
	TotalProcessed atomic.Int64 // 总处理完成数
	TotalSucceeded atomic.Int64 // 成功任务数
	TotalFailed    atomic.Int64 // 失败任务数
	TotalPanics    atomic.Int64 // Panic 次数
}

// Stats 执行统计快照（普通值类型，可安全拷贝）。
type Stats struct {
	TotalProcessed int64 // 总处理完成数
	TotalSucceeded int64 // 成功任务数
	TotalFailed    int64 // 失败任务数
	TotalPanics    int64 // Panic 次数
}

// NewRunner 创建并发执行器。
//
// 参数:
//   - logger: 日志记录器
//   - workers: worker 数量（至少为 1）
func NewRunner(logger *slog.Logger, workers int) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		logger:  logger,
		workers: workers,
	}
}

// Run 以有界并发执行全部任务，阻塞直到全部完成或 ctx 取消。
//
// ctx 取消时放弃尚未开始的任务；返回本次执行的统计快照。
func (r *Runner) Run(ctx context.Context, jobs []Job) Stats {
	ch := make(chan Job)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go r.worker(ctx, &wg, ch, i)
	}

dispatch:
	for _, job := range jobs {
		if job == nil {
			continue
		}
		select {
		case ch <- job:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(ch)
	wg.Wait()

	return r.Stats()
}

// worker 单个 worker 的执行逻辑。
func (r *Runner) worker(ctx context.Context, wg *sync.WaitGroup, ch <-chan Job, id int) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("worker stopped", slog.Int("worker_id", id))
			return

		case job, ok := <-ch:
			if !ok {
				return
			}
			r.executeJob(ctx, job, id)
		}
	}
}

// executeJob 执行单个任务，带 panic 恢复。
func (r *Runner) executeJob(ctx context.Context, job Job, workerID int) {
	defer func() {
		if rec := recover(); rec != nil {
			r.stats.TotalPanics.Add(1)
			r.stats.TotalFailed.Add(1)
			r.logger.Error("job panic recovered",
				slog.Int("worker_id", workerID),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	err := job(ctx)
	r.stats.TotalProcessed.Add(1)

	if err != nil {
		r.stats.TotalFailed.Add(1)
		r.logger.Warn("job failed",
			slog.Int("worker_id", workerID),
			slog.String("error", err.Error()))
	} else {
		r.stats.TotalSucceeded.Add(1)
	}
}

// Stats 获取执行统计信息的快照。
func (r *Runner) Stats() Stats {
	return Stats{
		TotalProcessed: r.stats.TotalProcessed.Load(),
		TotalSucceeded: r.stats.TotalSucceeded.Load(),
		TotalFailed:    r.stats.TotalFailed.Load(),
		TotalPanics:    r.stats.TotalPanics.Load(),
	}
}
