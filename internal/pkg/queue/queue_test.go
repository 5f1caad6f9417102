package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueueProcessesJobs(t *testing.T) {
	q := New(3, 16, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		err := q.EnqueueBlocking(ctx, Job{
			Name: "count",
			Run:  func(context.Context) { count.Add(1) },
		})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	if !q.ShutdownWithTimeout(2 * time.Second) {
		t.Fatal("shutdown timed out")
	}
	if got := count.Load(); got != 10 {
		t.Errorf("processed %d jobs, want 10", got)
	}
	processed, panicked, pending := q.Stats()
	if processed != 10 || panicked != 0 || pending != 0 {
		t.Errorf("stats = (%d, %d, %d)", processed, panicked, pending)
	}
}

func TestQueueRecoversFromPanic(t *testing.T) {
	q := New(1, 4, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var after atomic.Bool
	_ = q.EnqueueBlocking(ctx, Job{Name: "boom", Run: func(context.Context) { panic("boom") }})
	_ = q.EnqueueBlocking(ctx, Job{Name: "after", Run: func(context.Context) { after.Store(true) }})

	if !q.ShutdownWithTimeout(2 * time.Second) {
		t.Fatal("shutdown timed out")
	}
	if !after.Load() {
		t.Error("job after panic did not run")
	}
	_, panicked, _ := q.Stats()
	if panicked != 1 {
		t.Errorf("panicked = %d, want 1", panicked)
	}
}

func TestEnqueueAfterShutdown(t *testing.T) {
	q := New(1, 1, testLogger())
	ctx := context.Background()
	q.Start(ctx)
	q.ShutdownWithTimeout(time.Second)

	err := q.EnqueueBlocking(ctx, Job{Name: "late", Run: func(context.Context) {}})
	if !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
}

func TestEnqueueBlockingHonoursContext(t *testing.T) {
	q := New(1, 1, testLogger())
	// 不启动 worker，队列填满后投递必须阻塞
	_ = q.EnqueueBlocking(context.Background(), Job{Name: "fill", Run: func(context.Context) {}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.EnqueueBlocking(ctx, Job{Name: "blocked", Run: func(context.Context) {}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
