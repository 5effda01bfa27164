// Package queue 提供有界内存任务队列与固定大小的 worker 池，用于异步发送通知。
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"uptask/internal/pkg/metrics"
)

// Job 表示一个异步任务。
type Job func(ctx context.Context) error

// Stats 队列统计快照。
type Stats struct {
	Enqueued  int64
	Succeeded int64
	Failed    int64
	Dropped   int64
	Panics    int64
}

// Queue 有界队列 + worker 池。入队从不阻塞调用方，队列满时丢弃任务。
type Queue struct {
	logger  *slog.Logger
	workers int
	jobs    chan Job

	mu      sync.RWMutex // 保护 jobs 的发送与关闭
	wg      sync.WaitGroup
	closed  atomic.Bool
	started atomic.Bool

	enqueued  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	panics    atomic.Int64
}

// New 创建队列，workers 与 capacity 最小为 1。
func New(logger *slog.Logger, workers, capacity int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		logger:  logger,
		workers: workers,
		jobs:    make(chan Job, capacity),
	}
}

// Start 启动 worker。ctx 会传给每个任务；队列关闭后 worker 处理完剩余任务再退出。
func (q *Queue) Start(ctx context.Context) {
	if !q.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for job := range q.jobs {
		metrics.QueuePending.Set(float64(len(q.jobs)))
		q.run(ctx, job, id)
	}
	q.logger.Debug("worker exit", slog.Int("worker_id", id))
}

func (q *Queue) run(ctx context.Context, job Job, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			q.panics.Add(1)
			q.logger.Error("job panic recovered",
				slog.Int("worker_id", workerID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	if err := job(ctx); err != nil {
		q.failed.Add(1)
		q.logger.Warn("job failed", slog.Int("worker_id", workerID), slog.String("error", err.Error()))
		return
	}
	q.succeeded.Add(1)
}

// Enqueue 非阻塞入队，队列已满或已关闭时返回 false。
func (q *Queue) Enqueue(job Job) bool {
	if job == nil {
		return false
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed.Load() {
		return false
	}
	select {
	case q.jobs <- job:
		q.enqueued.Add(1)
		metrics.QueuePending.Set(float64(len(q.jobs)))
		return true
	default:
		q.dropped.Add(1)
		q.logger.Warn("queue full, drop job", slog.Int("capacity", cap(q.jobs)))
		return false
	}
}

// Shutdown 停止接收新任务并等待已入队任务执行完毕，超时返回错误。
func (q *Queue) Shutdown(timeout time.Duration) error {
	q.mu.Lock()
	if !q.closed.CompareAndSwap(false, true) {
		q.mu.Unlock()
		return nil
	}
	close(q.jobs)
	q.mu.Unlock()
	if !q.started.Load() {
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		q.logger.Info("queue drained")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("queue shutdown timeout after %s", timeout)
	}
}

// Stats 返回统计快照。
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:  q.enqueued.Load(),
		Succeeded: q.succeeded.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
		Panics:    q.panics.Load(),
	}
}
