package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"jobsched/internal/job"
	logx "jobsched/pkg/logx"
)

func startEngine(t *testing.T, cfg Config) *Service {
	t.Helper()
	s := New(cfg, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestEnqueueRunsAndReportsResult(t *testing.T) {
	s := startEngine(t, Config{Workers: 2})

	done := make(chan Result, 1)
	err := s.Enqueue(Task{
		Name:   "ok",
		Run:    func(context.Context) error { return nil },
		OnDone: func(r Result) { done <- r },
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case r := <-done:
		if r.Err != nil || r.Name != "ok" || !strings.HasPrefix(r.ID, "tsk-") {
			t.Fatalf("unexpected result %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("task did not complete")
	}
}

func TestPanicIsRecoveredAsError(t *testing.T) {
	s := startEngine(t, Config{Workers: 1})

	done := make(chan Result, 1)
	_ = s.Enqueue(Task{
		Name:   "boom",
		Run:    func(context.Context) error { panic("kaboom") },
		OnDone: func(r Result) { done <- r },
	})
	r := <-done
	var pe *job.PanicError
	if !errors.As(r.Err, &pe) {
		t.Fatalf("expected PanicError, got %v", r.Err)
	}
	if r.Err.Error() != "panic: kaboom" {
		t.Fatalf("message = %q", r.Err.Error())
	}

	// The worker survives and keeps executing.
	ok := make(chan Result, 1)
	_ = s.Enqueue(Task{Name: "after", Run: func(context.Context) error { return nil }, OnDone: func(r Result) { ok <- r }})
	select {
	case <-ok:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive the panic")
	}

	snap := s.Snapshot()
	if snap.Panics != 1 || snap.Failed != 1 || snap.Executed != 2 {
		t.Fatalf("snapshot counters: %+v", snap)
	}
	if len(snap.History) != 2 || snap.History[0].Error != "panic: kaboom" {
		t.Fatalf("history: %+v", snap.History)
	}
}

func TestTasksRunInParallel(t *testing.T) {
	s := startEngine(t, Config{Workers: 4})

	var wg sync.WaitGroup
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		_ = s.Enqueue(Task{
			Name: "block",
			Run: func(context.Context) error {
				started <- struct{}{}
				<-release
				return nil
			},
			OnDone: func(Result) { wg.Done() },
		})
	}
	for i := 0; i < 4; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatalf("only %d tasks started concurrently", i)
		}
	}
	close(release)
	wg.Wait()
}

func TestQueueFullAndStoppedErrors(t *testing.T) {
	s := New(Config{Workers: 1, QueueSize: 1}, logx.Nop())
	if err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("enqueue before start: %v", err)
	}
	s.Start(context.Background())

	release := make(chan struct{})
	running := make(chan struct{})
	_ = s.Enqueue(Task{Name: "hold", Run: func(context.Context) error {
		close(running)
		<-release
		return nil
	}})
	<-running

	var stopped []error
	var mu sync.Mutex
	onDone := func(r Result) {
		mu.Lock()
		stopped = append(stopped, r.Err)
		mu.Unlock()
	}
	if err := s.Enqueue(Task{Name: "queued", Run: func(context.Context) error { return nil }, OnDone: onDone}); err != nil {
		t.Fatalf("second enqueue should fit the queue: %v", err)
	}
	if err := s.Enqueue(Task{Name: "overflow", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if got := s.Snapshot().DroppedQueueFull; got != 1 {
		t.Fatalf("DroppedQueueFull = %d", got)
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)

	mu.Lock()
	defer mu.Unlock()
	// The queued task either ran before the stop or was drained with ErrStopped.
	if len(stopped) != 1 || (stopped[0] != nil && !errors.Is(stopped[0], ErrStopped)) {
		t.Fatalf("queued task outcome: %v", stopped)
	}
	if s.Running() {
		t.Fatal("engine should not be running after Stop")
	}
}

func TestStopReportsCanceledRunAsStopped(t *testing.T) {
	s := New(Config{Workers: 1}, logx.Nop())
	s.Start(context.Background())

	started := make(chan struct{})
	done := make(chan Result, 1)
	_ = s.Enqueue(Task{
		Name: "blocker",
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
		OnDone: func(r Result) { done <- r },
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)

	r := <-done
	if !errors.Is(r.Err, ErrStopped) || !errors.Is(r.Err, context.Canceled) {
		t.Fatalf("err = %v, want ErrStopped wrapping context.Canceled", r.Err)
	}
	if snap := s.Snapshot(); snap.Failed != 0 {
		t.Fatalf("failed = %d, want 0", snap.Failed)
	}
}

func TestTaskOwnCancellationIsAFailure(t *testing.T) {
	s := startEngine(t, Config{Workers: 1})

	done := make(chan Result, 1)
	_ = s.Enqueue(Task{
		Name:   "self-canceled",
		Run:    func(context.Context) error { return context.Canceled },
		OnDone: func(r Result) { done <- r },
	})
	r := <-done
	if errors.Is(r.Err, ErrStopped) || !errors.Is(r.Err, context.Canceled) {
		t.Fatalf("err = %v", r.Err)
	}
}

func TestEnqueueValidation(t *testing.T) {
	s := startEngine(t, Config{})
	if err := s.Enqueue(Task{Name: "x"}); err == nil {
		t.Fatal("nil Run should be rejected")
	}
	if err := s.Enqueue(Task{Name: "  ", Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatal("blank Name should be rejected")
	}
	if s.Snapshot().Workers != defaultWorkers {
		t.Fatal("defaults not applied")
	}
}
