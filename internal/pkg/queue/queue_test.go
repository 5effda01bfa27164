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

func TestQueue_ProcessesAllJobsBeforeShutdown(t *testing.T) {
	q := New(testLogger(), 3, 10)
	q.Start(context.Background())

	var completed atomic.Int32
	for i := 0; i < 5; i++ {
		if !q.Enqueue(func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			completed.Add(1)
			return nil
		}) {
			t.Fatalf("enqueue %d failed", i)
		}
	}

	if err := q.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if completed.Load() != 5 {
		t.Fatalf("expected 5 completed jobs, got %d", completed.Load())
	}
	if s := q.Stats(); s.Enqueued != 5 || s.Succeeded != 5 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestQueue_FailuresAndPanicsAreContained(t *testing.T) {
	q := New(testLogger(), 1, 10)
	q.Start(context.Background())

	q.Enqueue(func(ctx context.Context) error { return errors.New("boom") })
	q.Enqueue(func(ctx context.Context) error { panic("oops") })
	q.Enqueue(func(ctx context.Context) error { return nil })

	if err := q.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	s := q.Stats()
	if s.Failed != 1 || s.Panics != 1 || s.Succeeded != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestQueue_DropsWhenFull(t *testing.T) {
	q := New(testLogger(), 1, 1)

	if !q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatalf("expected first enqueue to succeed")
	}
	if q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatalf("expected second enqueue to be dropped")
	}
	if q.Stats().Dropped != 1 {
		t.Fatalf("expected 1 dropped job")
	}
	_ = q.Shutdown(0)
}

func TestQueue_RejectsAfterShutdown(t *testing.T) {
	q := New(testLogger(), 1, 1)
	q.Start(context.Background())
	if err := q.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatalf("expected enqueue after shutdown to fail")
	}
}
