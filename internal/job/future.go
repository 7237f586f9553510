package job

import (
	"context"
	"sync"
	"time"
)

// Future is the completion handle of a run.
type Future struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewPromise returns a pending future and the function completing it. Only
// the first completion counts.
func NewPromise() (*Future, func(error)) {
	f := &Future{done: make(chan struct{})}
	return f, f.complete
}

// CompletedFuture returns a future that is already done with err.
func CompletedFuture(err error) *Future {
	f, complete := NewPromise()
	complete(err)
	return f
}

func (f *Future) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed when the run finishes.
func (f *Future) Done() <-chan struct{} { return f.done }

// IsDone reports whether the run has finished.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns the run's error, or nil while it is still pending.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the run finishes or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitTimeout is Wait bounded by d; it returns ErrWaitTimeout on expiry.
func (f *Future) WaitTimeout(d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-f.done:
		return f.err
	case <-t.C:
		return ErrWaitTimeout
	}
}
