package job

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFutureCompletesOnce(t *testing.T) {
	t.Parallel()
	f, complete := NewPromise()
	if f.IsDone() || f.Err() != nil {
		t.Fatal("new future must be pending")
	}
	boom := errors.New("boom")
	complete(boom)
	complete(nil)
	if !f.IsDone() {
		t.Fatal("future must be done")
	}
	if !errors.Is(f.Err(), boom) {
		t.Fatalf("Err() = %v, want boom", f.Err())
	}
	if err := f.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Wait() = %v", err)
	}
}

func TestFutureWaitTimeout(t *testing.T) {
	t.Parallel()
	f, complete := NewPromise()
	if err := f.WaitTimeout(20 * time.Millisecond); !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("WaitTimeout() = %v, want ErrWaitTimeout", err)
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		complete(nil)
	}()
	if err := f.WaitTimeout(time.Second); err != nil {
		t.Fatalf("WaitTimeout() = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pending, _ := NewPromise()
	if err := pending.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() = %v, want context.Canceled", err)
	}
}

func TestCompletedFuture(t *testing.T) {
	t.Parallel()
	if f := CompletedFuture(nil); !f.IsDone() || f.Err() != nil {
		t.Fatal("CompletedFuture(nil) must be done without error")
	}
}
