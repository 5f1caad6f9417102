package queue

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrQueueClosed 队列已关闭，不再接受任务。
	ErrQueueClosed = errors.New("queue closed")
)

// Job 是一个可执行的检查任务。
type Job struct {
	Name string
	Run  func(ctx context.Context)
}

// Queue 是固定 worker 数的进程内任务队列。
// worker panic 会被捕获记录，不影响其他任务。
type Queue struct {
	jobs    chan Job
	logger  *slog.Logger
	workers int

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	processed atomic.Int64
	panicked  atomic.Int64
}

// New 创建队列。workers 和 capacity 小于 1 时取 1。
func New(workers, capacity int, logger *slog.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		jobs:    make(chan Job, capacity),
		logger:  logger,
		workers: workers,
	}
}

// Start 启动 worker，ctx 取消后 worker 处理完手头任务即退出。
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	q.logger.Info("queue workers started", slog.Int("workers", q.workers))
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.runJob(ctx, id, job)
		}
	}
}

func (q *Queue) runJob(ctx context.Context, workerID int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.panicked.Add(1)
			q.logger.Error("job panicked",
				slog.Int("worker", workerID),
				slog.String("job", job.Name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	start := time.Now()
	job.Run(ctx)
	q.processed.Add(1)
	q.logger.Debug("job done",
		slog.Int("worker", workerID),
		slog.String("job", job.Name),
		slog.Duration("elapsed", time.Since(start)))
}

// EnqueueBlocking 投递任务。队列满时阻塞，直到有空位、队列关闭或 ctx 取消。
func (q *Queue) EnqueueBlocking(ctx context.Context, job Job) (err error) {
	// 关闭与投递并发时向已关闭 channel 发送会 panic，统一折算成 ErrQueueClosed
	defer func() {
		if recover() != nil {
			err = ErrQueueClosed
		}
	}()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.mu.Unlock()

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShutdownWithTimeout 停止接收新任务并等待在途任务完成，超时返回 false。
func (q *Queue) ShutdownWithTimeout(timeout time.Duration) bool {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		q.logger.Warn("queue shutdown timed out", slog.Duration("timeout", timeout))
		return false
	}
}

// Stats 返回处理计数，便于日志和排障。
func (q *Queue) Stats() (processed, panicked int64, pending int) {
	return q.processed.Load(), q.panicked.Load(), len(q.jobs)
}
